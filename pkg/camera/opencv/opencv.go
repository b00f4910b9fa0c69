// Package opencv implements camera.Opener on top of OpenCV video capture.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

// DefaultMaxDevices is how many device indexes are probed.
const DefaultMaxDevices = 4

// Opener probes /dev/video-style indexes through OpenCV.
// OpenCV cannot tell which way a device faces, so FacingMap supplies it;
// unmapped devices report an empty facing.
type Opener struct {
	MaxDevices int
	FacingMap  map[int]camera.Facing
}

var _ camera.Opener = (*Opener)(nil)

// Devices lists the indexes OpenCV can open right now.
func (o *Opener) Devices() ([]camera.DeviceInfo, error) {
	limit := o.MaxDevices
	if limit <= 0 {
		limit = DefaultMaxDevices
	}

	var devices []camera.DeviceInfo
	for id := 0; id < limit; id++ {
		vc, err := gocv.OpenVideoCapture(id)
		if err != nil {
			continue
		}
		opened := vc.IsOpened()
		vc.Close()
		if !opened {
			continue
		}
		devices = append(devices, camera.DeviceInfo{
			ID:     id,
			Name:   fmt.Sprintf("video%d", id),
			Facing: o.FacingMap[id],
		})
	}
	return devices, nil
}

// Open opens the device and applies the capture configuration.
func (o *Opener) Open(ctx context.Context, info camera.DeviceInfo, cfg camera.Config) (camera.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(info.ID)
	if err != nil {
		return nil, fmt.Errorf("open video%d: %w", info.ID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video%d did not open", info.ID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Brightness != 0 {
		// OpenCV brightness is 0..1 with 0.5 neutral on most V4L2 drivers
		vc.Set(gocv.VideoCaptureBrightness, 0.5+cfg.Brightness/2)
	}
	if cfg.ExposureValue != 0 {
		vc.Set(gocv.VideoCaptureExposure, cfg.ExposureValue)
	}
	if cfg.AutoFocus {
		vc.Set(gocv.VideoCaptureAutoFocus, 1)
	} else {
		vc.Set(gocv.VideoCaptureAutoFocus, 0)
	}

	return &device{vc: vc, mat: gocv.NewMat()}, nil
}

type device struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (d *device) ReadFrame() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ok := d.vc.Read(&d.mat); !ok {
		return nil, errors.New("opencv: read failed")
	}
	if d.mat.Empty() {
		return nil, imagesource.ErrEmptyFrame
	}
	return d.mat.ToImage()
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mat.Close()
	return d.vc.Close()
}
