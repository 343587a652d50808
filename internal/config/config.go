package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabasePath      string `yaml:"database_path"`
	OIDCIssuer        string `yaml:"oidc_issuer"`
	OIDCClientID      string `yaml:"oidc_client_id"`
	OIDCClientSecret  string `yaml:"oidc_client_secret"`
	OIDCRedirectURL   string `yaml:"oidc_redirect_url"`
	SessionSecret     string `yaml:"session_secret"`
	BaseURL           string `yaml:"base_url"`
	LogLevel          string `yaml:"log_level"`
	Port              string `yaml:"port"`
	Timezone          string `yaml:"timezone"`
	WeekStart         string `yaml:"week_start"`
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
	ReconcileSchedule string `yaml:"reconcile_schedule"`
	ViewIdleTimeout   string `yaml:"view_idle_timeout"`
}

func defaults() Config {
	return Config{
		DatabasePath:      "./data/spiretrack.db",
		BaseURL:           "http://localhost:8080",
		LogLevel:          "info",
		Port:              "8080",
		Timezone:          "UTC",
		WeekStart:         "sunday",
		NATSSubjectPrefix: "spiretrack.calendar",
		ReconcileSchedule: "@every 1h",
		ViewIdleTimeout:   "30m",
	}
}

// Load reads the optional YAML file named by CONFIG_FILE, then lets
// environment variables override individual settings.
func Load() (Config, error) {
	config := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &config); err != nil {
			return Config{}, err
		}
	}

	config.DatabasePath = envOrDefault("DATABASE_PATH", config.DatabasePath)
	config.OIDCIssuer = envOrDefault("OIDC_ISSUER", config.OIDCIssuer)
	config.OIDCClientID = envOrDefault("OIDC_CLIENT_ID", config.OIDCClientID)
	config.OIDCClientSecret = envOrDefault("OIDC_CLIENT_SECRET", config.OIDCClientSecret)
	config.OIDCRedirectURL = envOrDefault("OIDC_REDIRECT_URL", config.OIDCRedirectURL)
	config.SessionSecret = envOrDefault("SESSION_SECRET", config.SessionSecret)
	config.BaseURL = envOrDefault("BASE_URL", config.BaseURL)
	config.LogLevel = envOrDefault("LOG_LEVEL", config.LogLevel)
	config.Port = envOrDefault("PORT", config.Port)
	config.Timezone = envOrDefault("TIMEZONE", config.Timezone)
	config.WeekStart = envOrDefault("WEEK_START", config.WeekStart)
	config.NATSURL = envOrDefault("NATS_URL", config.NATSURL)
	config.NATSSubjectPrefix = envOrDefault("NATS_SUBJECT_PREFIX", config.NATSSubjectPrefix)
	config.ReconcileSchedule = envOrDefault("RECONCILE_SCHEDULE", config.ReconcileSchedule)
	config.ViewIdleTimeout = envOrDefault("VIEW_IDLE_TIMEOUT", config.ViewIdleTimeout)

	if config.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET is required")
	}
	if _, err := config.Location(); err != nil {
		return Config{}, err
	}
	if _, err := config.FirstWeekday(); err != nil {
		return Config{}, err
	}
	if _, err := config.IdleTimeout(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (config Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", config.Timezone, err)
	}
	return location, nil
}

func (config Config) FirstWeekday() (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(config.WeekStart)) {
	case "", "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return time.Sunday, errors.New("WEEK_START must be sunday, monday or saturday")
}

// IdleTimeout is how long a user's calendar view stays open without use.
func (config Config) IdleTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(config.ViewIdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("parsing VIEW_IDLE_TIMEOUT %q: %w", config.ViewIdleTimeout, err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("VIEW_IDLE_TIMEOUT must be positive, got %q", config.ViewIdleTimeout)
	}
	return timeout, nil
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
