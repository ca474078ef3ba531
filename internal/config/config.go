package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		TTL        string `yaml:"ttl"`
		SummaryTTL string `yaml:"summary_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Tracker struct {
		// TargetMinutes is the default pace target per question.
		TargetMinutes float64 `yaml:"target_minutes"`
		// Timezone is the IANA zone used for day bucketing when the request
		// doesn't carry one.
		Timezone string `yaml:"timezone"`
		// MaxFutureSkew bounds how far ahead of server time client
		// timestamps may run.
		MaxFutureSkew string `yaml:"max_future_skew"`
	} `yaml:"tracker"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
