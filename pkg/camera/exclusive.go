package camera

import (
	"context"
	"fmt"
	"sync"
)

// Exclusive wraps an Opener so only one device is open per process.
// Opening while another device is held fails with ErrDeviceBusy; closing
// the device frees the slot.
func Exclusive(o Opener) Opener {
	return &exclusiveOpener{opener: o}
}

type exclusiveOpener struct {
	opener Opener

	mu     sync.Mutex
	holder *heldDevice
}

func (e *exclusiveOpener) Devices() ([]DeviceInfo, error) {
	return e.opener.Devices()
}

func (e *exclusiveOpener) Open(ctx context.Context, info DeviceInfo, cfg Config) (Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.holder != nil {
		return nil, fmt.Errorf("%w: device %d is in use", ErrDeviceBusy, e.holder.info.ID)
	}

	dev, err := e.opener.Open(ctx, info, cfg)
	if err != nil {
		return nil, err
	}

	held := &heldDevice{Device: dev, info: info}
	held.release = func() {
		e.mu.Lock()
		if e.holder == held {
			e.holder = nil
		}
		e.mu.Unlock()
	}
	e.holder = held
	return held, nil
}

type heldDevice struct {
	Device
	info    DeviceInfo
	release func()
	once    sync.Once
	err     error
}

func (h *heldDevice) Close() error {
	h.once.Do(func() {
		h.err = h.Device.Close()
		h.release()
	})
	return h.err
}
