// Package config loads stitchgraph settings from YAML. Every field has a
// default, so an empty or missing file yields a working configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level configuration.
type Config struct {
	Viewer     ViewerConfig     `yaml:"viewer"`
	Simulation SimulationConfig `yaml:"simulation"`
	Registry   RegistryConfig   `yaml:"registry"`
	Stitch     StitchConfig     `yaml:"stitch"`
	Server     ServerConfig     `yaml:"server"`
}

// ViewerConfig configures the interaction controller.
type ViewerConfig struct {
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	PixelRatio      float64       `yaml:"pixel_ratio"`
	Background      string        `yaml:"background"`
	HoverThrottle   time.Duration `yaml:"hover_throttle"`
	ZoomFactor      float64       `yaml:"zoom_factor"`
	DragTolerance   float64       `yaml:"drag_tolerance"`
	AutoPauseRedraw bool          `yaml:"auto_pause_redraw"`
	MinZoom         float64       `yaml:"min_zoom"`
	MaxZoom         float64       `yaml:"max_zoom"`
	FrameInterval   time.Duration `yaml:"frame_interval"`
}

// SimulationConfig configures the layout engine.
type SimulationConfig struct {
	// CooldownTicks < 0 means no tick limit.
	CooldownTicks   int           `yaml:"cooldown_ticks"`
	CooldownTime    time.Duration `yaml:"cooldown_time"`
	AlphaMin        float64       `yaml:"alpha_min"`
	VelocityDecay   float64       `yaml:"velocity_decay"`
	ChargeStrength  float64       `yaml:"charge_strength"`
	DragAlphaTarget float64       `yaml:"drag_alpha_target"`
	Seed            int64         `yaml:"seed"`
}

// RegistryConfig configures the colour identity registry.
type RegistryConfig struct {
	ChecksumBits int `yaml:"checksum_bits"`
}

// StitchConfig holds rest lengths per link kind.
type StitchConfig struct {
	Distances map[string]float64 `yaml:"distances"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Viewer: ViewerConfig{
			Width:           800,
			Height:          600,
			PixelRatio:      1,
			Background:      "#ffffff",
			HoverThrottle:   800 * time.Millisecond,
			ZoomFactor:      4,
			DragTolerance:   5,
			AutoPauseRedraw: true,
			MinZoom:         1e-12,
			MaxZoom:         1e12,
			FrameInterval:   time.Second / 60,
		},
		Simulation: SimulationConfig{
			CooldownTicks:   -1,
			CooldownTime:    15 * time.Second,
			AlphaMin:        0.001,
			VelocityDecay:   0.4,
			ChargeStrength:  -30,
			DragAlphaTarget: 0.3,
			Seed:            1,
		},
		Registry: RegistryConfig{ChecksumBits: 6},
		Stitch: StitchConfig{Distances: map[string]float64{
			"direct":      1,
			"chain":       2,
			"crochet":     5,
			"crochetSide": 1,
		}},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Marshal encodes cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks ranges that would otherwise break the viewer or the
// simulation at runtime.
func (c *Config) Validate() error {
	v := c.Viewer
	switch {
	case v.Width <= 0 || v.Height <= 0:
		return fmt.Errorf("%w: viewer size %dx%d", ErrInvalid, v.Width, v.Height)
	case !positive(v.PixelRatio):
		return fmt.Errorf("%w: pixel_ratio %g", ErrInvalid, v.PixelRatio)
	case v.HoverThrottle < 0:
		return fmt.Errorf("%w: hover_throttle %s", ErrInvalid, v.HoverThrottle)
	case !positive(v.ZoomFactor):
		return fmt.Errorf("%w: zoom_factor %g", ErrInvalid, v.ZoomFactor)
	case v.DragTolerance < 0 || math.IsNaN(v.DragTolerance):
		return fmt.Errorf("%w: drag_tolerance %g", ErrInvalid, v.DragTolerance)
	case !positive(v.MinZoom) || !positive(v.MaxZoom) || v.MinZoom > v.MaxZoom:
		return fmt.Errorf("%w: zoom extent [%g, %g]", ErrInvalid, v.MinZoom, v.MaxZoom)
	case v.FrameInterval < 0:
		return fmt.Errorf("%w: frame_interval %s", ErrInvalid, v.FrameInterval)
	}

	s := c.Simulation
	switch {
	case !(s.AlphaMin > 0 && s.AlphaMin < 1):
		return fmt.Errorf("%w: alpha_min %g", ErrInvalid, s.AlphaMin)
	case !(s.VelocityDecay >= 0 && s.VelocityDecay <= 1):
		return fmt.Errorf("%w: velocity_decay %g", ErrInvalid, s.VelocityDecay)
	case !(s.DragAlphaTarget >= 0 && s.DragAlphaTarget <= 1):
		return fmt.Errorf("%w: drag_alpha_target %g", ErrInvalid, s.DragAlphaTarget)
	case s.CooldownTime < 0:
		return fmt.Errorf("%w: cooldown_time %s", ErrInvalid, s.CooldownTime)
	case math.IsNaN(s.ChargeStrength) || math.IsInf(s.ChargeStrength, 0):
		return fmt.Errorf("%w: charge_strength %g", ErrInvalid, s.ChargeStrength)
	}

	if b := c.Registry.ChecksumBits; b < 0 || b > 23 {
		return fmt.Errorf("%w: checksum_bits %d out of [0, 23]", ErrInvalid, b)
	}
	for kind, d := range c.Stitch.Distances {
		if !positive(d) {
			return fmt.Errorf("%w: distance for %q is %g", ErrInvalid, kind, d)
		}
	}
	if p := c.Server.Port; p < 0 || p > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, p)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
