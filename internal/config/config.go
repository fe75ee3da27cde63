// ABOUTME: Configuration loading and parsing for concierge-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete concierge-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Routing    RoutingConfig    `yaml:"routing"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DepartmentConfig is one entry in the staff department menu
type DepartmentConfig struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// RoutingConfig holds conversation routing configuration
type RoutingConfig struct {
	ExpiryWindow time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ExpiryWindowRaw string `yaml:"expiry_window"`

	// Departments overrides the built-in menu when set
	Departments []DepartmentConfig `yaml:"departments"`

	// HotelIDs restricts which hotel codes check-in accepts; empty accepts all
	HotelIDs []string `yaml:"hotel_ids"`
}

// ExtractionConfig holds document recognition configuration
type ExtractionConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// FeedbackConfig holds feedback flow configuration
type FeedbackConfig struct {
	GoogleReviewLink string `yaml:"google_review_link"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	for i, d := range c.Routing.Departments {
		if d.ID == "" || d.Title == "" {
			return fmt.Errorf("routing.departments[%d] needs both id and title", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Routing.ExpiryWindowRaw != "" {
		cfg.Routing.ExpiryWindow, err = time.ParseDuration(cfg.Routing.ExpiryWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing expiry_window %q: %w", cfg.Routing.ExpiryWindowRaw, err)
		}
	}

	if cfg.Extraction.TimeoutRaw != "" {
		cfg.Extraction.Timeout, err = time.ParseDuration(cfg.Extraction.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing extraction timeout %q: %w", cfg.Extraction.TimeoutRaw, err)
		}
	}

	return nil
}
