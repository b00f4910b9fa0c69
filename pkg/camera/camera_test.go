package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

type fakeOpener struct {
	mu       sync.Mutex
	devices  []DeviceInfo
	listErr  error
	openErr  error
	size     image.Rectangle
	opened   []*fakeDevice
	lastOpen DeviceInfo
	// frameDelay slows every ReadFrame of opened devices.
	frameDelay time.Duration
}

func (f *fakeOpener) Devices() ([]DeviceInfo, error) {
	return f.devices, f.listErr
}

func (f *fakeOpener) Open(ctx context.Context, info DeviceInfo, cfg Config) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	size := f.size
	if size.Empty() {
		size = image.Rect(0, 0, 32, 24)
	}
	d := &fakeDevice{size: size, delay: f.frameDelay}
	f.opened = append(f.opened, d)
	f.lastOpen = info
	return d, nil
}

type fakeDevice struct {
	mu     sync.Mutex
	size   image.Rectangle
	delay  time.Duration
	reads  int
	closed int
}

func (d *fakeDevice) ReadFrame() (image.Image, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed > 0 {
		return nil, errors.New("closed")
	}
	d.reads++
	img := image.NewRGBA(d.size)
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	return img, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func twoCameras() []DeviceInfo {
	return []DeviceInfo{
		{ID: 0, Name: "front", Facing: FacingUser},
		{ID: 2, Name: "rear", Facing: FacingEnvironment},
	}
}

func TestSelectDevice(t *testing.T) {
	devices := twoCameras()

	cfg := DefaultConfig()
	got, err := SelectDevice(devices, cfg)
	require.NoError(t, err)
	assert.Equal(t, "rear", got.Name)

	cfg.Facing = FacingUser
	got, err = SelectDevice(devices, cfg)
	require.NoError(t, err)
	assert.Equal(t, "front", got.Name)

	cfg.DeviceID = 2
	got, err = SelectDevice(devices, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ID)

	cfg.DeviceID = 7
	_, err = SelectDevice(devices, cfg)
	assert.ErrorIs(t, err, ErrNoDevice)

	// no environment camera: any device is acceptable
	cfg = DefaultConfig()
	got, err = SelectDevice([]DeviceInfo{{ID: 0, Name: "laptop"}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "laptop", got.Name)

	_, err = SelectDevice(nil, cfg)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestStreamCaptureLifecycle(t *testing.T) {
	opener := &fakeOpener{devices: twoCameras(), size: image.Rect(0, 0, 64, 48)}
	cfg := DefaultConfig()
	cfg.WarmupFrames = 3
	s := NewStream(opener, cfg, nil)

	_, err := s.Capture()
	assert.ErrorIs(t, err, ErrNotStreaming)
	assert.False(t, s.Active())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Active())
	assert.Equal(t, "rear", opener.lastOpen.Name)
	assert.Equal(t, 3, opener.opened[0].reads, "warmup frames should be dropped")

	// starting again does not reopen
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, opener.opened, 1)

	p, err := s.Capture()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", p.MIMEType())
	assert.Equal(t, imagesource.SourceCamera, p.Source())
	w, h := p.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.False(t, s.Active())
	assert.Equal(t, 1, opener.opened[0].closed)

	_, err = s.Capture()
	assert.ErrorIs(t, err, ErrNotStreaming)
}

func TestStreamStartUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		opener *fakeOpener
	}{
		{"no devices", &fakeOpener{}},
		{"enumeration fails", &fakeOpener{listErr: errors.New("permission denied")}},
		{"open fails", &fakeOpener{devices: twoCameras(), openErr: errors.New("EBUSY")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStream(tt.opener, DefaultConfig(), nil)
			err := s.Start(context.Background())
			assert.ErrorIs(t, err, imagesource.ErrCaptureDeviceUnavailable)
			assert.False(t, s.Active())
		})
	}
}

func TestStreamStartCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStream(&fakeOpener{devices: twoCameras()}, DefaultConfig(), nil)
	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
	assert.False(t, s.Active())
}

func TestStreamStartWarmupTimeout(t *testing.T) {
	opener := &fakeOpener{devices: twoCameras(), frameDelay: 30 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.WarmupFrames = 10

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := NewStream(opener, cfg, nil)
	err := s.Start(ctx)
	assert.ErrorIs(t, err, imagesource.ErrCaptureDeviceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Active())
	require.Len(t, opener.opened, 1)
	assert.Equal(t, 1, opener.opened[0].closed)
}

func TestExclusiveReleasesOnStop(t *testing.T) {
	opener := Exclusive(&fakeOpener{devices: twoCameras()})
	cfg := DefaultConfig()
	cfg.WarmupFrames = 0

	first := NewStream(opener, cfg, nil)
	second := NewStream(opener, cfg, nil)

	require.NoError(t, first.Start(context.Background()))

	err := second.Start(context.Background())
	assert.ErrorIs(t, err, imagesource.ErrCaptureDeviceUnavailable)
	assert.ErrorIs(t, err, ErrDeviceBusy)

	require.NoError(t, first.Stop())
	require.NoError(t, second.Start(context.Background()))
	assert.True(t, second.Active())
	require.NoError(t, second.Stop())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Validate())

	cfg.Width = 10
	cfg.Quality = 0
	cfg.Facing = "sideways"
	errs := cfg.Validate()
	assert.Len(t, errs, 3)
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.Empty(t, cfg.Validate(), name)
	}
	assert.Nil(t, GetPreset("missing"))
}

func TestManagerUpdateConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied Config
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		return nil
	}

	err := m.UpdateConfig(map[string]interface{}{
		"preset":     PresetSelfie,
		"width":      float64(640),
		"height":     float64(480),
		"auto_focus": false,
	})
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, FacingUser, cfg.Facing)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
	assert.False(t, cfg.AutoFocus)
	assert.Equal(t, cfg, applied)

	err = m.UpdateConfig(map[string]interface{}{"quality": float64(500)})
	assert.Error(t, err)
	assert.Equal(t, 640, m.GetConfig().Width, "failed update must not apply")

	err = m.UpdateConfig(map[string]interface{}{"preset": "nope"})
	assert.Error(t, err)

	j := m.GetConfigJSON()
	assert.Equal(t, "user", j["facing"])
}
