// Package config loads server configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all server settings.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// BidCutoffHour is the UTC hour from which bid submission is rejected.
	BidCutoffHour int `yaml:"bid_cutoff_hour"`

	// PriceSeed seeds the oracle's random source; 0 means seed from the clock.
	PriceSeed int64 `yaml:"price_seed"`

	// CacheTTLSeconds is the Redis quote-cache TTL.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

func defaults() *Config {
	return &Config{
		Port:            "8080",
		BidCutoffHour:   11,
		CacheTTLSeconds: 30,
	}
}

// Load reads the config file at path (skipped if path is empty or the file
// does not exist), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("BID_CUTOFF_HOUR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 23 {
			return nil, fmt.Errorf("invalid BID_CUTOFF_HOUR: %q", v)
		}
		cfg.BidCutoffHour = n
	}
	if v := os.Getenv("PRICE_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid PRICE_SEED: %q", v)
		}
		cfg.PriceSeed = n
	}

	return cfg, nil
}
