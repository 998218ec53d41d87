// Package config loads catalogbridge's configuration using Koanf's layered
// providers: built-in defaults, an optional YAML file, then environment
// variables, each layer overriding the one before it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first one found is used.
var DefaultConfigPaths = []string{
	"catalogbridge.yaml",
	"catalogbridge.yml",
	"/etc/catalogbridge/config.yaml",
}

// ConfigPathEnvVar overrides the search list with a single explicit path.
const ConfigPathEnvVar = "CATALOGBRIDGE_CONFIG_PATH"

// ServerConfig controls the gin control surface.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DeviceConfig controls the tunnel adapter used to reach a paired device.
type DeviceConfig struct {
	TunnelBaseURL        string `koanf:"tunnel_base_url"`
	UploadBytesPerSecond int    `koanf:"upload_bytes_per_second"`
	LocalBasePath        string `koanf:"local_base_path"`
}

// LockConfig controls the redis-backed single-writer merge lock.
type LockConfig struct {
	RedisAddr string        `koanf:"redis_addr"`
	KeyPrefix string        `koanf:"key_prefix"`
	TTL       time.Duration `koanf:"ttl"`
}

// MergeConfig bounds how many merges may run at once. Timeout is loaded
// but not read anywhere; httpapi.MergeHandler gives every merge a fixed
// 30-minute limit.
type MergeConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent"`
	Timeout       time.Duration `koanf:"timeout"`
}

// LoggingConfig controls the zap logger's verbosity and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is catalogbridge's full runtime configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Device  DeviceConfig  `koanf:"device"`
	Lock    LockConfig    `koanf:"lock"`
	Merge   MergeConfig   `koanf:"merge"`
	Logging LoggingConfig `koanf:"logging"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8787,
			Timeout: 30 * time.Second,
		},
		Device: DeviceConfig{
			TunnelBaseURL:        "",
			UploadBytesPerSecond: 0,
			LocalBasePath:        "",
		},
		Lock: LockConfig{
			RedisAddr: "127.0.0.1:6379",
			KeyPrefix: "catalogbridge:merge-lock:",
			TTL:       10 * time.Minute,
		},
		Merge: MergeConfig{
			MaxConcurrent: 1,
			Timeout:       30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envMappings maps flat environment variable names to koanf dotted paths.
var envMappings = map[string]string{
	"server_host":    "server.host",
	"server_port":    "server.port",
	"server_timeout": "server.timeout",

	"device_tunnel_base_url":         "device.tunnel_base_url",
	"device_upload_bytes_per_second": "device.upload_bytes_per_second",
	"device_local_base_path":         "device.local_base_path",

	"lock_redis_addr": "lock.redis_addr",
	"lock_key_prefix": "lock.key_prefix",
	"lock_ttl":        "lock.ttl",

	"merge_max_concurrent": "merge.max_concurrent",
	"merge_timeout":        "merge.timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[toLowerSnake(key)]; ok {
		return mapped
	}
	return ""
}

func toLowerSnake(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment, in that order of increasing priority.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks invariants Load's layered sources can't enforce on their
// own, such as an operator setting merge.max_concurrent to zero.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Merge.MaxConcurrent < 1 {
		return fmt.Errorf("merge.max_concurrent must be at least 1, got %d", c.Merge.MaxConcurrent)
	}
	if c.Device.TunnelBaseURL == "" && c.Device.LocalBasePath == "" {
		return fmt.Errorf("device: one of tunnel_base_url or local_base_path must be set")
	}
	return nil
}
