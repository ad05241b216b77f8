package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/kelter-antunes/chromara/internal/auth"
)

// ConfigDir is the directory name every config file must live in.
const ConfigDir = "configs"

// MaxConfigFileBytes caps the size of a config file.
const MaxConfigFileBytes = 1 << 20

// CameraConfig selects and orients the capture device.
type CameraConfig struct {
	DeviceID         string `yaml:"device_id" env:"CHROMARA_CAMERA_DEVICE_ID"` // empty = first enumerated device
	Mock             bool   `yaml:"mock" env:"CHROMARA_CAMERA_MOCK"`           // simulated camera (dev/test)
	RawEnabled       bool   `yaml:"raw_enabled" env:"CHROMARA_CAMERA_RAW"`     // register a RAW output when the device supports it
	Rotation         int    `yaml:"rotation" env:"CHROMARA_CAMERA_ROTATION"`   // display rotation: 0, 90, 180 or 270
	PreviewMaxWidth  int    `yaml:"preview_max_width"`
	PreviewMaxHeight int    `yaml:"preview_max_height"`
}

// PipelineConfig holds the look applied to every JPEG.
type PipelineConfig struct {
	Saturation      float64 `yaml:"saturation"`
	Contrast        float64 `yaml:"contrast"`
	Offset          float64 `yaml:"offset"`
	HalationRadius  int     `yaml:"halation_radius"`
	HalationOpacity int     `yaml:"halation_opacity"` // 0-255
	JPEGQuality     int     `yaml:"jpeg_quality"`
}

// StorageConfig describes where assets are written and indexed.
type StorageConfig struct {
	Root         string `yaml:"root" env:"CHROMARA_STORAGE_ROOT"`
	IndexPath    string `yaml:"index_path" env:"CHROMARA_STORAGE_INDEX"` // SQLite media index; default <root>/media.db
	Prefix       string `yaml:"prefix"`
	Subfolder    string `yaml:"subfolder"`
	RawSubfolder string `yaml:"raw_subfolder"`
}

// TallyConfig drives the optional "on air" LED.
type TallyConfig struct {
	Enabled  bool `yaml:"enabled" env:"CHROMARA_TALLY_ENABLED"`
	Pin      int  `yaml:"pin"`       // BCM pin number
	MockGPIO bool `yaml:"mock_gpio"` // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// TimeoutsConfig bounds how long hardware callbacks may take.
type TimeoutsConfig struct {
	OpenMs    int `yaml:"open_ms"`
	CaptureMs int `yaml:"capture_ms"`
}

// PermissionsConfig seeds the permission collaborator.
type PermissionsConfig struct {
	Granted   []string `yaml:"granted"`
	AutoGrant bool     `yaml:"auto_grant" env:"CHROMARA_AUTO_GRANT"` // grant on request
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" env:"CHROMARA_OTEL_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"CHROMARA_OTEL_ENDPOINT"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level" env:"CHROMARA_DEBUG_LEVEL"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Workers    int `yaml:"workers"`                                 // command dispatch pool size
}

// Config aggregates all application configuration.
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Storage     StorageConfig     `yaml:"storage"`
	Tally       TallyConfig       `yaml:"tally"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

// Default returns a configuration with every optional value filled in.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			PreviewMaxWidth:  1920,
			PreviewMaxHeight: 1080,
		},
		Pipeline: PipelineConfig{
			Saturation:      1.1,
			Contrast:        1.2,
			Offset:          -30,
			HalationRadius:  10,
			HalationOpacity: 80,
			JPEGQuality:     90,
		},
		Storage: StorageConfig{
			Prefix:       "Chromara",
			Subfolder:    "Chromara",
			RawSubfolder: "Chromara/RAW",
		},
		Timeouts: TimeoutsConfig{
			OpenMs:    10000,
			CaptureMs: 5000,
		},
		Defaults: DefaultsConfig{
			Workers: 4,
		},
	}
}

// ValidateConfigPath rejects paths that escape the configs directory
// or do not name a .yaml file.
func ValidateConfigPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != ConfigDir {
		return fmt.Errorf("config path %q must be inside a %s/ directory", path, ConfigDir)
	}
	return nil
}

// Load reads a YAML file, applies CHROMARA_* environment overrides
// and returns the validated configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.Storage.IndexPath == "" {
		c.Storage.IndexPath = filepath.Join(c.Storage.Root, "media.db")
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = "Chromara"
	}
	if c.Storage.Subfolder == "" {
		c.Storage.Subfolder = c.Storage.Prefix
	}
	if c.Storage.RawSubfolder == "" {
		c.Storage.RawSubfolder = c.Storage.Subfolder + "/RAW"
	}

	switch c.Camera.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("camera.rotation must be 0, 90, 180 or 270, got %d", c.Camera.Rotation)
	}
	if c.Camera.PreviewMaxWidth <= 0 {
		c.Camera.PreviewMaxWidth = 1920
	}
	if c.Camera.PreviewMaxHeight <= 0 {
		c.Camera.PreviewMaxHeight = 1080
	}

	if c.Pipeline.Saturation < 0 {
		return fmt.Errorf("pipeline.saturation must be >= 0, got %.2f", c.Pipeline.Saturation)
	}
	if c.Pipeline.Contrast <= 0 {
		return fmt.Errorf("pipeline.contrast must be > 0, got %.2f", c.Pipeline.Contrast)
	}
	if c.Pipeline.HalationRadius < 0 || c.Pipeline.HalationRadius > 64 {
		return fmt.Errorf("pipeline.halation_radius must be between 0 and 64, got %d", c.Pipeline.HalationRadius)
	}
	if c.Pipeline.HalationOpacity < 0 || c.Pipeline.HalationOpacity > 255 {
		return fmt.Errorf("pipeline.halation_opacity must be between 0 and 255, got %d", c.Pipeline.HalationOpacity)
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return fmt.Errorf("pipeline.jpeg_quality must be between 1 and 100, got %d", c.Pipeline.JPEGQuality)
	}

	if c.Tally.Enabled && c.Tally.Pin <= 0 {
		return fmt.Errorf("tally.pin is required when tally is enabled")
	}

	if c.Timeouts.OpenMs <= 0 {
		c.Timeouts.OpenMs = 10000
	}
	if c.Timeouts.CaptureMs <= 0 {
		c.Timeouts.CaptureMs = 5000
	}

	for _, p := range c.Permissions.Granted {
		if _, err := auth.ParseCapability(p); err != nil {
			return fmt.Errorf("permissions.granted: %w", err)
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.Workers <= 0 {
		c.Defaults.Workers = 4
	}
	return nil
}

// OpenTimeout bounds device open plus preview configuration.
func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.Timeouts.OpenMs) * time.Millisecond
}

// CaptureTimeout bounds the hardware part of a still capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Timeouts.CaptureMs) * time.Millisecond
}

// HalationAlpha returns the halation opacity as a ratio (0.0 to 1.0).
// For example, 80 becomes about 0.31.
func (c *Config) HalationAlpha() float64 {
	return float64(c.Pipeline.HalationOpacity) / 255.0
}
