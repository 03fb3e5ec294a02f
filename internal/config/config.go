// Package config provides configuration management for treescope using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files, environment variable
// overrides with TREESCOPE_ prefix, and validation. It manages the inspector
// server settings, the notification coalescing interval, the subtree mirror
// debounce window, session log ingestion, and logging options.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Notify NotifyConfig `yaml:"notify"`
	Mirror MirrorConfig `yaml:"mirror"`
	Ingest IngestConfig `yaml:"ingest"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Environment    string   `yaml:"environment"`
}

// NotifyConfig tunes the coalescing scheduler the tree schedules its
// notification passes on.
type NotifyConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// MirrorConfig tunes the subtree subscription feeding the websocket hub.
type MirrorConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type IngestConfig struct {
	SessionFile string `yaml:"session_file"`
	Follow      bool   `yaml:"follow"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Apply defaults for anything not set via file, env or flag.
	if !viper.IsSet("server.port") && config.Server.Port == 0 {
		config.Server.Port = 8675
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if config.Notify.Tick == 0 {
		config.Notify.Tick = 10 * time.Millisecond
	}
	if config.Mirror.Debounce == 0 {
		config.Mirror.Debounce = 25 * time.Millisecond
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	// Handle origins set via viper (workaround for viper slice handling)
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if config.Notify.Tick < 0 {
		return fmt.Errorf("notify config: tick must not be negative, got %s", config.Notify.Tick)
	}
	if config.Mirror.Debounce < 0 {
		return fmt.Errorf("mirror config: debounce must not be negative, got %s", config.Mirror.Debounce)
	}
	switch config.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log config: format must be text or json, got %q", config.Log.Format)
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Port 0 stays allowed for system-assigned ports in testing.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	for _, origin := range config.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("allowed origin must not be blank")
		}
	}

	return nil
}
