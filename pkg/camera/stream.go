package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-elephant/internal/log"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

// Stream is a live camera stream that can produce stills.
// The zero value is not usable; create one with NewStream.
type Stream struct {
	opener Opener
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	dev  Device
	info DeviceInfo
}

// NewStream prepares a stream; no device is opened until Start.
func NewStream(opener Opener, cfg Config, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = log.Discard()
	}
	return &Stream{
		opener: opener,
		cfg:    cfg,
		logger: logger.With("component", "camera"),
	}
}

// Start opens the preferred device and drops the warmup frames.
// Any failure leaves the stream inactive and wraps
// imagesource.ErrCaptureDeviceUnavailable. Starting an active stream is a
// no-op.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return startErr(err)
	}

	devices, err := s.opener.Devices()
	if err != nil {
		return fmt.Errorf("%w: enumerate devices: %v", imagesource.ErrCaptureDeviceUnavailable, err)
	}
	info, err := SelectDevice(devices, s.cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", imagesource.ErrCaptureDeviceUnavailable, err)
	}

	dev, err := s.opener.Open(ctx, info, s.cfg)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", imagesource.ErrCaptureDeviceUnavailable, info.Name, err)
	}

	for i := 0; i < s.cfg.WarmupFrames; i++ {
		if err := ctx.Err(); err != nil {
			dev.Close()
			return startErr(err)
		}
		if _, err := dev.ReadFrame(); err != nil {
			dev.Close()
			return fmt.Errorf("%w: warmup %s: %w", imagesource.ErrCaptureDeviceUnavailable, info.Name, err)
		}
	}

	s.dev = dev
	s.info = info
	s.logger.Info("camera started", "device", info.ID, "name", info.Name, "facing", info.Facing)
	return nil
}

// startErr reports an expired start deadline as an unavailable device.
// Cancellation is returned as is.
func startErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", imagesource.ErrCaptureDeviceUnavailable, err)
	}
	return err
}

// Capture reads the current frame and encodes it as a JPEG still at the
// frame's native resolution.
func (s *Stream) Capture() (imagesource.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev == nil {
		return imagesource.Payload{}, ErrNotStreaming
	}

	frame, err := s.dev.ReadFrame()
	if err != nil {
		return imagesource.Payload{}, fmt.Errorf("%w: read frame: %w", imagesource.ErrCaptureDeviceUnavailable, err)
	}

	payload, err := imagesource.FromFrame(frame, s.cfg.Quality)
	if err != nil {
		return imagesource.Payload{}, err
	}

	w, h := payload.Size()
	s.logger.Debug("still captured", "width", w, "height", h, "bytes", payload.Len())
	return payload, nil
}

// Stop releases the device. Safe to call at any time and more than once.
func (s *Stream) Stop() error {
	s.mu.Lock()
	dev, info := s.dev, s.info
	s.dev = nil
	s.mu.Unlock()

	if dev == nil {
		return nil
	}
	s.logger.Info("camera stopped", "device", info.ID)
	return dev.Close()
}

// Active reports whether the stream holds an open device.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev != nil
}

// Device returns the open device, if any.
func (s *Stream) Device() (DeviceInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.dev != nil
}
