package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrNoDevice is returned when no video input is present.
	ErrNoDevice = errors.New("camera: no capture device")

	// ErrDeviceBusy is returned when another stream holds the device.
	ErrDeviceBusy = errors.New("camera: device busy")

	// ErrNotStreaming is returned by Capture before Start or after Stop.
	ErrNotStreaming = errors.New("camera: stream not active")
)

// DeviceInfo describes an enumerated video input.
type DeviceInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Facing Facing `json:"facing"`
}

// Device is an open video input.
type Device interface {
	// ReadFrame blocks until the next frame is available.
	ReadFrame() (image.Image, error)
	Close() error
}

// Opener enumerates and opens video inputs.
type Opener interface {
	Devices() ([]DeviceInfo, error)
	Open(ctx context.Context, info DeviceInfo, cfg Config) (Device, error)
}

// SelectDevice picks the device cfg asks for. A pinned DeviceID must exist;
// otherwise the first device with the preferred facing wins and any device
// is accepted when none matches.
func SelectDevice(devices []DeviceInfo, cfg Config) (DeviceInfo, error) {
	if len(devices) == 0 {
		return DeviceInfo{}, ErrNoDevice
	}

	if cfg.DeviceID >= 0 {
		for _, d := range devices {
			if d.ID == cfg.DeviceID {
				return d, nil
			}
		}
		return DeviceInfo{}, fmt.Errorf("%w: device %d not found", ErrNoDevice, cfg.DeviceID)
	}

	if cfg.Facing != "" && cfg.Facing != FacingAny {
		for _, d := range devices {
			if d.Facing == cfg.Facing {
				return d, nil
			}
		}
	}
	return devices[0], nil
}
