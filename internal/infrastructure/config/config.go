package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel daemon configuration.
type Config struct {
	Kernel  KernelConfig
	Admin   AdminConfig
	Logging LogConfig
}

// KernelConfig holds process table and boot settings.
type KernelConfig struct {
	Slots      int    `envconfig:"KERNEL_SLOTS" default:"64"`
	Image      string `envconfig:"KERNEL_IMAGE"`
	DemoRounds int    `envconfig:"KERNEL_DEMO_ROUNDS" default:"100"`
}

// AdminConfig holds the admin HTTP surface settings.
type AdminConfig struct {
	Address string `envconfig:"ADMIN_ADDR" default:"127.0.0.1:9464"`
	Enabled bool   `envconfig:"ADMIN_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string  `envconfig:"LOG_LEVEL" default:"info"`
	Development bool    `envconfig:"LOG_DEV" default:"false"`
	ErrorRPS    float64 `envconfig:"ERROR_LOG_RPS" default:"10"`
	ErrorBurst  int     `envconfig:"ERROR_LOG_BURST" default:"20"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			Slots:      64,
			DemoRounds: 100,
		},
		Admin: AdminConfig{
			Address: "127.0.0.1:9464",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			ErrorRPS:    10,
			ErrorBurst:  20,
		},
	}
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Kernel.Slots < 2 || c.Kernel.Slots > 4096 {
		return fmt.Errorf("KERNEL_SLOTS %d out of range [2, 4096]", c.Kernel.Slots)
	}
	if c.Kernel.DemoRounds < 0 {
		return fmt.Errorf("KERNEL_DEMO_ROUNDS must not be negative")
	}
	if c.Logging.ErrorRPS < 0 || c.Logging.ErrorBurst < 0 {
		return fmt.Errorf("ERROR_LOG_RPS and ERROR_LOG_BURST must not be negative")
	}
	return nil
}
