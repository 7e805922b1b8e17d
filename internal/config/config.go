package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"
)

// Config holds everything the client needs to reach a server and tune the
// local state core. Values resolve in three layers: compiled defaults, an
// optional YAML file named by SEXTANT_CONFIG, then environment overrides.
type Config struct {
	ServerURL   string `yaml:"server_url"`
	ServerToken string `yaml:"server_token"`
	Environment string `yaml:"environment"`
	SessionID   string `yaml:"session_id"` // session to open on start; empty picks the newest
	LogDir      string `yaml:"log_dir"`
	// Tuning
	MessageCap     int           `yaml:"message_cap"`
	FetchLimit     int           `yaml:"fetch_limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Debug enables DEBUG-level console logging
	Debug bool `yaml:"debug"`
}

// Load resolves the configuration. The YAML file is optional; a missing
// SEXTANT_CONFIG is fine, a named-but-unreadable one is an error.
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")

	cfg := &Config{
		ServerURL:      "http://localhost:4096",
		Environment:    env,
		LogDir:         "logs",
		MessageCap:     DefaultMessageCap,
		FetchLimit:     DefaultFetchLimit,
		RequestTimeout: DefaultRequestTimeout,
		Debug:          getDefaultDebug(env) == "true",
	}

	if path := os.Getenv("SEXTANT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of file/default values.
func (c *Config) applyEnv() {
	c.ServerURL = getEnv("SEXTANT_SERVER_URL", c.ServerURL)
	c.ServerToken = getEnv("SEXTANT_SERVER_TOKEN", c.ServerToken)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.SessionID = getEnv("SEXTANT_SESSION_ID", c.SessionID)
	c.LogDir = getEnv("SEXTANT_LOG_DIR", c.LogDir)
	c.MessageCap = getEnvInt("SEXTANT_MESSAGE_CAP", c.MessageCap)
	c.FetchLimit = getEnvInt("SEXTANT_FETCH_LIMIT", c.FetchLimit)
	c.RequestTimeout = getEnvDuration("SEXTANT_REQUEST_TIMEOUT", c.RequestTimeout)
	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug = v == "true"
	}
}

// Validate checks the resolved configuration before anything connects.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerURL, validation.Required, is.URL),
		validation.Field(&c.Environment, validation.In("dev", "test", "prod")),
		validation.Field(&c.MessageCap, validation.Min(1)),
		validation.Field(&c.FetchLimit, validation.Min(1), validation.Max(1000)),
	)
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
