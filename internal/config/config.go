package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort              = 3000
	DefaultDeadlineMs        = 6000
	DefaultResourcesDir      = "templates"
	DefaultQueueSize         = 64
	MinQueueSize             = 2
	DefaultLogLevel          = "info"
	DefaultDataDir           = "~/.portshare"
	DefaultHealthIntervalSec = 30
)

// DefaultRelays is used when tunnels.enabled is empty.
var DefaultRelays = []string{"localtunnel", "cloudflared"}

// DefaultSTUNServers are queried by "portshare doctor".
var DefaultSTUNServers = []string{"stun.l.google.com:19302", "stun1.l.google.com:19302"}

// Config is the on-disk portshare configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Tunnels       TunnelsConfig       `yaml:"tunnels"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Observers     ObserversConfig     `yaml:"observers"`
	Log           LogConfig           `yaml:"log"`
	Health        HealthConfig        `yaml:"health"`
	DataDir       string              `yaml:"data_dir"`
	STUNServers   []string            `yaml:"stun_servers"`
}

type ServerConfig struct {
	Port         int    `yaml:"port"`
	TLSCert      string `yaml:"tls_cert,omitempty"`
	TLSKey       string `yaml:"tls_key,omitempty"`
	ResourcesDir string `yaml:"resources_dir"`
}

// TunnelsConfig selects relays. Commands overrides the built-in command
// template of a relay kind; "{port}" is substituted with the serving port.
// Patterns overrides the regular expression matching a kind's address.
type TunnelsConfig struct {
	Enabled    []string          `yaml:"enabled"`
	DeadlineMs int               `yaml:"deadline_ms"`
	Commands   map[string]string `yaml:"commands,omitempty"`
	Patterns   map[string]string `yaml:"patterns,omitempty"`
}

type NotificationsConfig struct {
	// QRInTerminal is a pointer so an explicit false survives ApplyDefaults.
	QRInTerminal *bool `yaml:"qr_in_terminal,omitempty"`
}

type ObserversConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type HealthConfig struct {
	IntervalSec int `yaml:"interval_sec"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// LoadOrDefault loads path, or the default path when path is empty. A missing
// default file is not an error: defaults are returned instead.
func LoadOrDefault(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	cfg, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg = Config{}
			ApplyDefaults(&cfg)
			return cfg, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// DefaultPath is ~/.portshare/config.yaml.
func DefaultPath() (string, error) {
	dir, err := homedir.Expand(DefaultDataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	if cfg.Tunnels.DeadlineMs <= 0 {
		return fmt.Errorf("tunnels.deadline_ms must be positive")
	}
	for kind, expr := range cfg.Tunnels.Patterns {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("tunnels.patterns.%s: %w", kind, err)
		}
	}
	// A new observer is sent stats and history at once.
	if cfg.Observers.QueueSize < MinQueueSize {
		return fmt.Errorf("observers.queue_size must be at least %d: %d", MinQueueSize, cfg.Observers.QueueSize)
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ResourcesDir == "" {
		cfg.Server.ResourcesDir = DefaultResourcesDir
	}
	if len(cfg.Tunnels.Enabled) == 0 {
		cfg.Tunnels.Enabled = append([]string(nil), DefaultRelays...)
	}
	if cfg.Tunnels.DeadlineMs == 0 {
		cfg.Tunnels.DeadlineMs = DefaultDeadlineMs
	}
	if cfg.Notifications.QRInTerminal == nil {
		on := true
		cfg.Notifications.QRInTerminal = &on
	}
	if cfg.Observers.QueueSize == 0 {
		cfg.Observers.QueueSize = DefaultQueueSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Health.IntervalSec == 0 {
		cfg.Health.IntervalSec = DefaultHealthIntervalSec
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = append([]string(nil), DefaultSTUNServers...)
	}
}

// Scheme is https when a certificate pair is configured.
func (c Config) Scheme() string {
	if c.Server.TLSCert != "" && c.Server.TLSKey != "" {
		return "https"
	}
	return "http"
}

// ShowQR reports whether the final link is rendered as a terminal QR code.
func (c Config) ShowQR() bool {
	return c.Notifications.QRInTerminal == nil || *c.Notifications.QRInTerminal
}

// ResolvedDataDir expands a leading "~" in data_dir.
func (c Config) ResolvedDataDir() (string, error) {
	return homedir.Expand(c.DataDir)
}
