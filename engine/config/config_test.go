package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/mirage/engine/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Mirage", cfg.Application.Name)
	assert.Equal(t, 2, cfg.Renderer.RingDepth)
	assert.EqualValues(t, 64, cfg.Renderer.MaxSetsPerPool)
}

func TestValidateBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ring depth zero", func(c *Config) { c.Renderer.RingDepth = 0 }},
		{"ring depth too deep", func(c *Config) { c.Renderer.RingDepth = 4 }},
		{"no sets per pool", func(c *Config) { c.Renderer.MaxSetsPerPool = 0 }},
		{"non-positive fence timeout", func(c *Config) { c.Renderer.FenceTimeout = 0 }},
		{"zero extent", func(c *Config) { c.Application.Width = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirage.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[application]
name = "Sandbox"
width = 1920
height = 1080

[renderer]
ring_depth = 3
validation = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Sandbox", cfg.Application.Name)
	assert.EqualValues(t, 1920, cfg.Application.Width)
	assert.Equal(t, 3, cfg.Renderer.RingDepth)
	assert.True(t, cfg.Renderer.Validation)
	// Absent fields keep their defaults.
	assert.EqualValues(t, 64, cfg.Renderer.MaxSetsPerPool)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[application\nname="), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	path = filepath.Join(t.TempDir(), "invalid.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nring_depth = 9\n"), 0o644))
	_, err = Load(path)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
