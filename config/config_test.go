package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 800*time.Millisecond, cfg.Viewer.HoverThrottle)
	assert.Equal(t, 4.0, cfg.Viewer.ZoomFactor)
	assert.Equal(t, 5.0, cfg.Viewer.DragTolerance)
	assert.Equal(t, 0.3, cfg.Simulation.DragAlphaTarget)
	assert.Equal(t, 6, cfg.Registry.ChecksumBits)
	assert.Equal(t, 5.0, cfg.Stitch.Distances["crochet"])
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
viewer:
  width: 320
  hover_throttle: 250ms
  auto_pause_redraw: false
simulation:
  cooldown_ticks: 120
stitch:
  distances:
    chain: 3
server:
  port: 9090
`))
	require.NoError(t, err)

	assert.Equal(t, 320, cfg.Viewer.Width)
	assert.Equal(t, 600, cfg.Viewer.Height, "unset fields keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.Viewer.HoverThrottle)
	assert.False(t, cfg.Viewer.AutoPauseRedraw)
	assert.Equal(t, 120, cfg.Simulation.CooldownTicks)
	assert.Equal(t, 3.0, cfg.Stitch.Distances["chain"])
	assert.Equal(t, 1.0, cfg.Stitch.Distances["direct"], "distance maps merge")
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("viewer: [1, 2"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Viewer.Width = 0 }},
		{"negative pixel ratio", func(c *Config) { c.Viewer.PixelRatio = -1 }},
		{"negative throttle", func(c *Config) { c.Viewer.HoverThrottle = -time.Second }},
		{"inverted zoom extent", func(c *Config) { c.Viewer.MinZoom, c.Viewer.MaxZoom = 10, 1 }},
		{"alpha min of one", func(c *Config) { c.Simulation.AlphaMin = 1 }},
		{"velocity decay above one", func(c *Config) { c.Simulation.VelocityDecay = 1.5 }},
		{"drag alpha target", func(c *Config) { c.Simulation.DragAlphaTarget = -0.1 }},
		{"checksum bits", func(c *Config) { c.Registry.ChecksumBits = 24 }},
		{"zero distance", func(c *Config) { c.Stitch.Distances["chain"] = 0 }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "stitchgraph.yaml")
	out, err := Default().Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
