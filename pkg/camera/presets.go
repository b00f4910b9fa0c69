package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset1080p   = "1080p"
	Preset4K      = "4k"
	PresetSelfie  = "selfie"
	PresetDusk    = "dusk"
	PresetBright  = "bright"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  LegacyConfig(),
		Preset1080p:   HD1080Config(),
		Preset4K:      UHD4KConfig(),
		PresetSelfie:  SelfieConfig(),
		PresetDusk:    DuskConfig(),
		PresetBright:  BrightConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset1080p,
		Preset4K,
		PresetSelfie,
		PresetDusk,
		PresetBright,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LegacyConfig returns 640x480 for devices that reject HD modes.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// UHD4KConfig returns 4K UHD configuration at a lower framerate.
func UHD4KConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 3840
	cfg.Height = 2160
	cfg.Framerate = 15
	return cfg
}

// SelfieConfig uses the user-facing camera.
func SelfieConfig() Config {
	cfg := DefaultConfig()
	cfg.Facing = FacingUser
	return cfg
}

// DuskConfig brightens low-light scenes and gives exposure longer to settle.
func DuskConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 15
	cfg.ExposureValue = 1.0
	cfg.Brightness = 0.2
	cfg.WarmupFrames = 15
	return cfg
}

// BrightConfig keeps highlights on sunlit savanna from clipping.
func BrightConfig() Config {
	cfg := DefaultConfig()
	cfg.ExposureValue = -0.5
	return cfg
}
