package application

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultNearestLimit is used when a nearest query passes no limit.
	DefaultNearestLimit = 10
	// DefaultNearestMaxLimit caps a single nearest query.
	DefaultNearestMaxLimit = 100
)

// Config defines the directory subsystem configuration. The duplicate
// radius is deliberately not configurable: it is a correctness
// threshold shared by the checker, the indexer and the resolver.
type Config struct {
	NearestDefaultLimit int           `yaml:"nearest_default_limit"`
	NearestMaxLimit     int           `yaml:"nearest_max_limit"`
	WebhookURL          string        `yaml:"webhook_url"`
	NotifyTemplate      string        `yaml:"notify_template"`
	NotifyTimeout       time.Duration `yaml:"notify_timeout"`
}

// LoadConfig loads config from yaml or env. A DEDUPE_CONFIG yaml file
// overrides environment values.
func LoadConfig() (Config, error) {
	cfg := Config{
		NearestDefaultLimit: getenvIntDefault("NEAREST_DEFAULT_LIMIT", DefaultNearestLimit),
		NearestMaxLimit:     getenvIntDefault("NEAREST_MAX_LIMIT", DefaultNearestMaxLimit),
		WebhookURL:          os.Getenv("RESOLVE_WEBHOOK_URL"),
		NotifyTemplate:      os.Getenv("RESOLVE_NOTIFY_TEMPLATE"),
		NotifyTimeout:       getenvDuration("RESOLVE_NOTIFY_TIMEOUT", 5*time.Second),
	}

	if path := os.Getenv("DEDUPE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.NearestDefaultLimit <= 0 {
		cfg.NearestDefaultLimit = DefaultNearestLimit
	}
	if cfg.NearestMaxLimit < cfg.NearestDefaultLimit {
		cfg.NearestMaxLimit = DefaultNearestMaxLimit
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return cfg, nil
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
