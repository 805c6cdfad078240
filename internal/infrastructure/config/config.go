package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all relay configuration.
type Config struct {
	API      APIConfig
	Store    StoreConfig
	Bus      BusConfig
	Injector InjectorConfig
	Logging  LogConfig
}

// APIConfig holds remote API client configuration.
type APIConfig struct {
	// BaseURL is the built-in default; the persisted apiUrl key wins once set.
	BaseURL string        `envconfig:"API_BASE_URL" yaml:"base_url"`
	Timeout time.Duration `envconfig:"API_TIMEOUT" yaml:"timeout"`
}

// StoreConfig holds persistent session store configuration.
type StoreConfig struct {
	Dir string `envconfig:"STORE_DIR" yaml:"dir"`
}

// BusConfig holds the coordinator's bus endpoint configuration.
type BusConfig struct {
	Addr string `envconfig:"BUS_ADDR" yaml:"addr"`
}

// InjectorConfig holds page injector configuration.
type InjectorConfig struct {
	// PollInterval is the delay between container probes while the host
	// page is still rendering.
	PollInterval time.Duration `envconfig:"INJECTOR_POLL_INTERVAL" yaml:"poll_interval"`
	// MaxPollAttempts bounds the probe loop; 0 keeps polling until the
	// page context is torn down.
	MaxPollAttempts int `envconfig:"INJECTOR_MAX_POLL_ATTEMPTS" yaml:"max_poll_attempts"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// Load builds configuration in precedence order: built-in defaults, then an
// optional YAML overlay pointed at by RELAY_CONFIG, then environment
// variables. Environment variables win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("RELAY", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://backend-0s46.onrender.com",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Dir: ".feedlens",
		},
		Bus: BusConfig{
			Addr: "127.0.0.1:7801",
		},
		Injector: InjectorConfig{
			PollInterval:    time.Second,
			MaxPollAttempts: 0,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
