package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg := Default()
	err := Decode([]byte(`
validation = true
log_level = "debug"

[window]
width = 800

[shadow]
cascades = 3
lambda = 0.5
`), &cfg)
	require.NoError(t, err)
	assert.True(t, cfg.Validation)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, 900, cfg.Window.Height, "untouched keys keep defaults")
	assert.Equal(t, 3, cfg.Shadow.Cascades)
	assert.Equal(t, float32(0.5), cfg.Shadow.Lambda)
	assert.Equal(t, uint32(2048), cfg.Shadow.Resolution)
	require.NoError(t, cfg.Validate())
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Decode([]byte("[shadow]\ncascade = 2\n"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("frames_in_flight = 3\n[camera]\nfar = 250.0\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, float32(250), cfg.Camera.Far)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestExpandPaths(t *testing.T) {
	cfg := Default()
	cfg.CacheDir = "~/ibl"
	require.NoError(t, cfg.ExpandPaths())
	assert.NotContains(t, cfg.CacheDir, "~")
	assert.Equal(t, "ibl", filepath.Base(cfg.CacheDir))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no cascades":       func(c *Config) { c.Shadow.Cascades = 0 },
		"too many cascades": func(c *Config) { c.Shadow.Cascades = MaxCascades + 1 },
		"near past far":     func(c *Config) { c.Camera.Near = c.Camera.Far },
		"odd resolution":    func(c *Config) { c.Shadow.Resolution = 1000 },
		"even kernel":       func(c *Config) { c.Shadow.KernelSize = 4 },
		"lambda above one":  func(c *Config) { c.Shadow.Lambda = 1.5 },
		"zero width":        func(c *Config) { c.Window.Width = 0 },
		"mips exceed size":  func(c *Config) { c.IBL.PrefilterMips = 9; c.IBL.PrefilterSize = 64 },
		"mips 33":           func(c *Config) { c.IBL.PrefilterMips = 33 },
		"mips 40":           func(c *Config) { c.IBL.PrefilterMips = 40 },
		"mips past 1x1":     func(c *Config) { c.IBL.PrefilterMips = 10; c.IBL.PrefilterSize = 256 },
		"no frames":         func(c *Config) { c.FramesInFlight = 0 },
		"unknown log level": func(c *Config) { c.LogLevel = "loud" },
		"negative blur":     func(c *Config) { c.Bloom.BlurPasses = -1 },
		"non-positive expo": func(c *Config) { c.Exposure = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidatePrefilterMipsUpToOnePixel(t *testing.T) {
	cfg := Default()
	cfg.IBL.PrefilterSize = 256
	cfg.IBL.PrefilterMips = 9
	assert.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoggerHonoursLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	log := cfg.Logger()
	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelWarn))
}
