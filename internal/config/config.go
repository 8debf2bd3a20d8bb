package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port" split_words:"true"`
	} `yaml:"server"`
	Log struct {
		Development bool `yaml:"development" split_words:"true"`
	} `yaml:"log"`
	Database struct {
		// URL of the Postgres document store. Empty selects the in-memory store.
		URL string `yaml:"url" split_words:"true"`
	} `yaml:"database"`
	LocalStore struct {
		Driver string `yaml:"driver" split_words:"true"` // "sqlite" or "bolt"
		Path   string `yaml:"path" split_words:"true"`
	} `yaml:"local_store" split_words:"true"`
	Inference struct {
		URL            string `yaml:"url" split_words:"true"`
		TimeoutSeconds int64  `yaml:"timeout_seconds" split_words:"true"`
	} `yaml:"inference"`
	Blocklist struct {
		// FirestoreURL is a Firestore REST documents URL. Empty reads the
		// phishing_links collection from the document store instead.
		FirestoreURL           string `yaml:"firestore_url" split_words:"true"`
		RefreshIntervalSeconds int64  `yaml:"refresh_interval_seconds" split_words:"true"`
		ProxyListen            string `yaml:"proxy_listen" split_words:"true"`
	} `yaml:"blocklist"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" split_words:"true"`
	} `yaml:"auth"`
	QA struct {
		ReviewerID string `yaml:"reviewer_id" split_words:"true"`
	} `yaml:"qa"`
	Notifications struct {
		Enabled          bool   `yaml:"enabled" split_words:"true"`
		TelegramBotToken string `yaml:"telegram_bot_token" split_words:"true"`
		ChatID           int64  `yaml:"chat_id" split_words:"true"`
	} `yaml:"notifications"`
}

// EnvPrefix is the prefix for environment overrides, e.g. PHISHGUARD_DATABASE_URL
// or PHISHGUARD_LOCAL_STORE_DRIVER. Keys come from split_words only: an
// explicit envconfig tag would also match the bare tag name (PATH, PORT).
const EnvPrefix = "PHISHGUARD"

// LoadConfig reads configuration from the specified YAML file and applies
// environment overrides on top of it.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Secrets may reference environment variables.
	config.Auth.JWTSecret = os.ExpandEnv(config.Auth.JWTSecret)
	config.Notifications.TelegramBotToken = os.ExpandEnv(config.Notifications.TelegramBotToken)

	config.setDefaults()

	return config, nil
}

// ValidateServer checks the settings the API server cannot start without.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.LocalStore.Driver == "" {
		c.LocalStore.Driver = "sqlite"
	}
	if c.LocalStore.Path == "" {
		c.LocalStore.Path = "./data/local.db"
	}
	if c.Inference.URL == "" {
		c.Inference.URL = "http://localhost:8000"
	}
	if c.Inference.TimeoutSeconds == 0 {
		c.Inference.TimeoutSeconds = 30
	}
	if c.Blocklist.RefreshIntervalSeconds == 0 {
		c.Blocklist.RefreshIntervalSeconds = 300
	}
	if c.Blocklist.ProxyListen == "" {
		c.Blocklist.ProxyListen = ":3128"
	}
}

// RefreshInterval returns the block list refresh period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Blocklist.RefreshIntervalSeconds) * time.Second
}

// InferenceTimeout returns the per-request timeout for the inference API.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSeconds) * time.Second
}
