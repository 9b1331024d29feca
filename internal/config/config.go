// Package config loads the TOML configuration file and supplies defaults for
// anything left unset.
package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Database struct {
	Path string `toml:"path"`
}

type Worker struct {
	BatchSize      int           `toml:"batch_size"`
	MaxAttempts    int           `toml:"max_attempts"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	PollInterval   time.Duration `toml:"poll_interval"`
}

type RateLimit struct {
	RefillPerSecond float64 `toml:"refill_per_second"`
	Capacity        int     `toml:"capacity"`
}

type Engine struct {
	Name    string        `toml:"name"`
	BaseURL string        `toml:"base_url"`
	APIKey  string        `toml:"api_key"`
	Timeout time.Duration `toml:"timeout"`
}

type Retention struct {
	ContentDays int `toml:"content_days"`
	TMDays      int `toml:"tm_days"`
}

type Config struct {
	Database  Database  `toml:"database"`
	Worker    Worker    `toml:"worker"`
	RateLimit RateLimit `toml:"ratelimit"`
	Engine    Engine    `toml:"engine"`
	Retention Retention `toml:"retention"`
	LogLevel  string    `toml:"log_level"`
}

func Default() *Config {
	return &Config{
		Database: Database{Path: "data/transhub.db"},
		Worker: Worker{
			BatchSize:      50,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			PollInterval:   2 * time.Second,
		},
		RateLimit: RateLimit{RefillPerSecond: 5, Capacity: 10},
		Engine:    Engine{Name: "debug", Timeout: 20 * time.Second},
		Retention: Retention{ContentDays: 90, TMDays: 180},
		LogLevel:  "info",
	}
}

// Load reads the file at path over the defaults. A missing file is not an
// error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
