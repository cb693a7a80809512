package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	AllowList AllowListConfig `mapstructure:"allowlist"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// EngineConfig holds execution engine configuration
type EngineConfig struct {
	TimeoutSec     int    `mapstructure:"timeout_sec"`
	ResultVariable string `mapstructure:"result_variable"`
	MaxCallStack   int    `mapstructure:"max_call_stack"`
	MaxLogEntries  int    `mapstructure:"max_log_entries"`
	MaxSourceKB    int    `mapstructure:"max_source_kb"`
}

// AllowListConfig holds the execution policy. When Path is set the policy is
// loaded from that YAML file; otherwise the inline lists apply, and empty
// inline lists fall back to the engine's built-in defaults.
type AllowListConfig struct {
	Path         string   `mapstructure:"path"`
	Modules      []string `mapstructure:"modules"`
	Builtins     []string `mapstructure:"builtins"`
	BlockedCalls []string `mapstructure:"blocked_calls"`
	BlockedAttrs []string `mapstructure:"blocked_attrs"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("engine.timeout_sec", 10)
	viper.SetDefault("engine.result_variable", "result")
	viper.SetDefault("engine.max_call_stack", 500)
	viper.SetDefault("engine.max_log_entries", 256)
	viper.SetDefault("engine.max_source_kb", 64)
	viper.SetDefault("allowlist.path", "")
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Engine.TimeoutSec <= 0 {
		return fmt.Errorf("engine.timeout_sec must be positive, got: %d", c.Engine.TimeoutSec)
	}

	if c.Engine.ResultVariable == "" {
		return fmt.Errorf("engine.result_variable must not be empty")
	}

	if c.Engine.MaxCallStack <= 0 {
		return fmt.Errorf("engine.max_call_stack must be positive, got: %d", c.Engine.MaxCallStack)
	}

	if c.Engine.MaxSourceKB <= 0 {
		return fmt.Errorf("engine.max_source_kb must be positive, got: %d", c.Engine.MaxSourceKB)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSec) * time.Second
}
