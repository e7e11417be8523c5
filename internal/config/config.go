// Package config loads sniffer settings from defaults, an optional YAML file
// and OCPP_-prefixed environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is read when present and no explicit path is given.
const DefaultFile = "config.yaml"

const envPrefix = "OCPP_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	NATS      NATSConfig      `koanf:"nats"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	AdminPort   int    `koanf:"admin_port"`
	Subprotocol string `koanf:"subprotocol"`
}

// CaptureAddr is the WebSocket listener address.
func (s ServerConfig) CaptureAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminAddr is the admin listener address, or "" when disabled.
func (s ServerConfig) AdminAddr() string {
	if s.AdminPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", s.Host, s.AdminPort)
}

type StorageConfig struct {
	// Type selects the primary store: "jsonl" or "memory".
	Type    string       `koanf:"type"`
	LogPath string       `koanf:"log_path"`
	SQLite  SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	// Path enables the SQLite mirror when set.
	Path string `koanf:"path"`
}

type NATSConfig struct {
	// URL enables the NATS publisher when set. ${VAR} references are expanded.
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

type TelemetryConfig struct {
	Tracing bool `koanf:"tracing"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

var defaults = map[string]any{
	"server.host":        "0.0.0.0",
	"server.port":        9000,
	"server.admin_port":  9001,
	"server.subprotocol": "ocpp1.6",
	"storage.type":       "jsonl",
	"storage.log_path":   "ocpp_sniffer.log",
	"nats.subject":       "ocpp.events",
	"logging.level":      "info",
	"logging.format":     "json",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration. An empty path reads DefaultFile if it exists; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	filePath := path
	if filePath == "" {
		filePath = DefaultFile
	}
	if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
		// A missing default file is fine, we'll use env vars and defaults
		if path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", filePath, err)
		}
	}

	// Environment variables override the file
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.NATS.URL = substituteEnvVars(cfg.NATS.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in settings without reading files or the
// environment.
func Default() *Config {
	k := koanf.New(".")
	for key, value := range defaults {
		k.Set(key, value)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "jsonl":
		if c.Storage.LogPath == "" {
			return fmt.Errorf("storage.log_path is required for jsonl storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.AdminPort < 0 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid server.admin_port %d", c.Server.AdminPort)
	}
	if c.Server.AdminPort != 0 && c.Server.AdminPort == c.Server.Port {
		return fmt.Errorf("server.admin_port must differ from server.port")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
