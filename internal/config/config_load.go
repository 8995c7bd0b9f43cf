package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file (comments allowed), then overlays
// env vars. A missing file is not an error — defaults plus env suffice.
// A .env file in the working directory is loaded first, if present;
// variables already set in the environment are left untouched.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}
