package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds everything the client needs from the environment.
type Config struct {
	AppName     string        `env:"APP_NAME" envDefault:"Fridge Client"`
	APIBaseURL  string        `env:"FRIDGE_API_URL" envDefault:"http://localhost:8000"`
	DataDir     string        `env:"FRIDGE_DATA_DIR"`
	HTTPTimeout time.Duration `env:"FRIDGE_HTTP_TIMEOUT" envDefault:"10s"`
	UserAgent   string        `env:"FRIDGE_USER_AGENT" envDefault:"fridgectl/1.0"`
	LogLevel    string        `env:"FRIDGE_LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from environment variables.
// DataDir defaults to ~/.fridgectl when unset.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = filepath.Join(home, ".fridgectl")
	}
	return &cfg, nil
}
