// ABOUTME: Configuration loading for the everlight agent service
// ABOUTME: Environment-first with optional YAML file and ${VAR} expansion

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Comms    CommsConfig    `yaml:"comms"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Testing short-circuits external sends so tool flows can run
	// without a live queue or agent endpoint.
	Testing bool `yaml:"testing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig holds database configuration. URL accepts either a
// postgres:// connection string or a SQLite file path.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// IsPostgres reports whether the database URL selects the Postgres backend.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://")
}

// CommsConfig holds message transport configuration.
type CommsConfig struct {
	// LocalDevelopment selects the local HTTP transport by default.
	LocalDevelopment bool `yaml:"local_development"`
	// AgentEndpointURL is the base URL of the agent service /message route.
	AgentEndpointURL string `yaml:"agent_endpoint_url"`
	// GoogleCloudProject and GoogleCloudLocation identify the Cloud Tasks
	// queue parent. Project may be empty when only local transport is used.
	GoogleCloudProject  string `yaml:"google_cloud_project"`
	GoogleCloudLocation string `yaml:"google_cloud_location"`
	// AgentServiceToken, when set, is sent as a bearer token on queued
	// deliveries.
	AgentServiceToken string `yaml:"agent_service_token"`
}

// ToolsConfig holds tool runtime configuration.
type ToolsConfig struct {
	// EvalLogPath appends every tool invocation as one JSON line when set.
	EvalLogPath string `yaml:"eval_log_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from the environment, overlaid on an optional
// YAML file. A .env file in the working directory is loaded first if
// present. Environment variables in the YAML in the format ${VAR_NAME}
// are expanded.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8001},
		Database: DatabaseConfig{},
		Comms: CommsConfig{
			AgentEndpointURL:    "http://localhost:8001",
			GoogleCloudLocation: "us-west1",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// applyEnv overlays environment variables onto the config. Env always
// wins over file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TESTING"); v != "" {
		cfg.Testing = boolEnv(v)
	}
	if v := os.Getenv("LOCAL_DEVELOPMENT"); v != "" {
		cfg.Comms.LocalDevelopment = boolEnv(v)
	}
	if v := os.Getenv("AGENT_ENDPOINT_URL"); v != "" {
		cfg.Comms.AgentEndpointURL = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		cfg.Comms.GoogleCloudProject = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_LOCATION"); v != "" {
		cfg.Comms.GoogleCloudLocation = v
	}
	if v := os.Getenv("AGENT_SERVICE_TOKEN"); v != "" {
		cfg.Comms.AgentServiceToken = v
	}
	if v := os.Getenv("EVAL_TOOL_LOG_PATH"); v != "" {
		cfg.Tools.EvalLogPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func boolEnv(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Comms.AgentEndpointURL == "" {
		return fmt.Errorf("comms.agent_endpoint_url is required")
	}
	return nil
}
