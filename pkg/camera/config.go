// Package camera provides still capture from local video devices together
// with a runtime-configurable capture configuration.
package camera

import "fmt"

// Facing is the direction a device points relative to the user.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
	FacingAny         Facing = "any"
)

// Config holds all capture parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// DeviceID pins a device index. -1 selects by Facing.
	DeviceID int    `json:"device_id"`
	Facing   Facing `json:"facing"`

	// === Resolution ===
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// WarmupFrames are read and dropped after opening so auto exposure
	// settles before the first still.
	WarmupFrames int `json:"warmup_frames"`

	// === Exposure ===
	// ExposureValue is EV compensation in stops (-2.0 to +2.0).
	ExposureValue float64 `json:"exposure_value"`

	// Brightness adjustment (-1.0 to +1.0). 0 keeps the device default.
	Brightness float64 `json:"brightness"`

	AutoFocus bool `json:"auto_focus"`
}

// Limits for requested capture sizes.
const (
	MaxWidth        = 4096
	MaxHeight       = 2160
	MaxFramerate    = 120
	MaxWarmupFrames = 60
)

// DefaultConfig returns the configuration used when nothing is set:
// the rear camera at 720p.
func DefaultConfig() Config {
	return Config{
		DeviceID:      -1,
		Facing:        FacingEnvironment,
		Width:         1280,
		Height:        720,
		Framerate:     30,
		Quality:       92,
		WarmupFrames:  5,
		ExposureValue: 0.0,
		Brightness:    0.0,
		AutoFocus:     true,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.DeviceID < -1 {
		errs = append(errs, "device_id must be -1 (auto) or a device index")
	}
	switch c.Facing {
	case FacingEnvironment, FacingUser, FacingAny:
	default:
		errs = append(errs, "facing must be environment, user, or any")
	}

	if c.Width < 160 || c.Width > MaxWidth {
		errs = append(errs, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errs = append(errs, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errs = append(errs, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, "quality must be between 1 and 100")
	}
	if c.WarmupFrames < 0 || c.WarmupFrames > MaxWarmupFrames {
		errs = append(errs, fmt.Sprintf("warmup_frames must be between 0 and %d", MaxWarmupFrames))
	}

	if c.ExposureValue < -2.0 || c.ExposureValue > 2.0 {
		errs = append(errs, "exposure_value must be between -2.0 and 2.0")
	}
	if c.Brightness < -1.0 || c.Brightness > 1.0 {
		errs = append(errs, "brightness must be between -1.0 and 1.0")
	}

	return errs
}

// Capabilities describes what the configuration accepts.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":         MaxWidth,
		"max_height":        MaxHeight,
		"max_framerate":     MaxFramerate,
		"max_warmup_frames": MaxWarmupFrames,
		"facing":            []Facing{FacingEnvironment, FacingUser, FacingAny},
		"presets":           PresetNames(),
	}
}
