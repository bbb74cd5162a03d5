package engine

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"memhound/process"

	"gopkg.in/yaml.v3"
)

// Config tunes the engine. Zero fields fall back to defaults.
type Config struct {
	// Workers bounds the scan worker pool.
	Workers int `yaml:"workers"`

	// ChunkSize splits large regions into parallel scan units.
	ChunkSize process.Size `yaml:"chunk_size"`

	// SearchLimit caps candidates kept by an initial search; 0 unlimited.
	SearchLimit int `yaml:"search_limit"`

	// FreezeInterval is the period of the frozen-write ticker.
	FreezeInterval time.Duration `yaml:"freeze_interval"`
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		Workers:        runtime.NumCPU(),
		ChunkSize:      1 << 20,
		SearchLimit:    0,
		FreezeInterval: 250 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.FreezeInterval <= 0 {
		c.FreezeInterval = d.FreezeInterval
	}
	return c
}

// LoadConfig reads a YAML config file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c.withDefaults(), nil
}
