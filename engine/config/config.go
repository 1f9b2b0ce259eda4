package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/mirage/engine/core"
)

// Config is the top-level engine configuration, loaded from a TOML file.
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
}

type ApplicationConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// RingDepth is the number of frames that may be in flight at once.
	RingDepth int `toml:"ring_depth"`
	// MaxSetsPerPool caps descriptor set allocations per backing pool.
	MaxSetsPerPool uint32 `toml:"max_sets_per_pool"`
	// FenceTimeout bounds host waits on frame fences.
	FenceTimeout time.Duration `toml:"fence_timeout"`
	// Validation enables backend validation layers.
	Validation bool `toml:"validation"`
	// Headless skips window creation; rendering goes to offscreen
	// attachments only.
	Headless bool `toml:"headless"`
	// ShaderWatchDir, when set, enables hot reload of shader sources.
	ShaderWatchDir string `toml:"shader_watch_dir"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Mirage",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			RingDepth:      2,
			MaxSetsPerPool: 64,
			FenceTimeout:   time.Second,
			Validation:     false,
			Headless:       false,
		},
	}
}

// Load reads a TOML configuration file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, core.ConfigurationError("parsing %s: %s", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks bounds that the renderer relies on.
func (c *Config) Validate() error {
	if c.Renderer.RingDepth < 1 || c.Renderer.RingDepth > 3 {
		return core.ConfigurationError("ring_depth must be between 1 and 3, got %d", c.Renderer.RingDepth)
	}
	if c.Renderer.MaxSetsPerPool == 0 {
		return core.ConfigurationError("max_sets_per_pool must be greater than zero")
	}
	if c.Renderer.FenceTimeout <= 0 {
		return core.ConfigurationError("fence_timeout must be positive, got %s", c.Renderer.FenceTimeout)
	}
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return core.ConfigurationError("application extent must be non-zero, got %dx%d", c.Application.Width, c.Application.Height)
	}
	return nil
}
