// Package config loads the service configuration from an optional YAML file
// plus environment overrides. Gateway credentials and the processing channel
// id are explicit values injected into constructors, never read from ambient
// process state by the components themselves.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Checkout holds the gateway credentials and settings for the
// Checkout.com adapter.
type Checkout struct {
	SecretKey           string `yaml:"secret_key"`
	PublicKey           string `yaml:"public_key"`
	WebhookSecret       string `yaml:"webhook_secret"`
	ProcessingChannelID string `yaml:"processing_channel_id"`
	APIBaseURL          string `yaml:"api_base_url"`
}

// Poller holds the redirect reconciliation poller settings.
type Poller struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// Config is the full service configuration.
type Config struct {
	ListenAddr     string   `yaml:"listen_addr"`
	BackendBase    string   `yaml:"backend_base_url"`
	StorefrontBase string   `yaml:"storefront_base_url"`
	Checkout       Checkout `yaml:"checkout"`
	Poller         Poller   `yaml:"poller"`
}

// Default returns a Config with every non-credential field populated.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		BackendBase:    "http://localhost:8080",
		StorefrontBase: "http://localhost:8000",
		Checkout: Checkout{
			APIBaseURL: "https://api.checkout.com",
		},
		Poller: Poller{
			MaxAttempts: 5,
			Delay:       3 * time.Second,
		},
	}
}

// Load reads the YAML file at path (if path is non-empty) on top of the
// defaults, then applies environment overrides. Credentials usually arrive
// via the environment in deployment; the file covers everything else.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Poller.MaxAttempts <= 0 {
		cfg.Poller.MaxAttempts = 5
	}
	if cfg.Poller.Delay <= 0 {
		cfg.Poller.Delay = 3 * time.Second
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		c.BackendBase = v
	}
	if v := os.Getenv("STOREFRONT_BASE_URL"); v != "" {
		c.StorefrontBase = v
	}
	if v := os.Getenv("CHECKOUT_COM_SECRET_KEY"); v != "" {
		c.Checkout.SecretKey = v
	}
	if v := os.Getenv("CHECKOUT_COM_PUBLIC_KEY"); v != "" {
		c.Checkout.PublicKey = v
	}
	if v := os.Getenv("CHECKOUT_COM_WEBHOOK_SECRET"); v != "" {
		c.Checkout.WebhookSecret = v
	}
	if v := os.Getenv("CHECKOUT_COM_PROCESSING_CHANNEL_ID"); v != "" {
		c.Checkout.ProcessingChannelID = v
	}
	if v := os.Getenv("CHECKOUT_COM_API_BASE_URL"); v != "" {
		c.Checkout.APIBaseURL = v
	}
}

// Validate checks the fields the gateway adapter cannot run without.
func (c *Config) Validate() error {
	if c.Checkout.SecretKey == "" {
		return fmt.Errorf("config: checkout secret key is required")
	}
	if c.Checkout.PublicKey == "" {
		return fmt.Errorf("config: checkout public key is required when using API keys")
	}
	return nil
}
