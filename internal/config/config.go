// Package config loads clira configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Command line flags (applied by the caller)
//  2. Environment variables (CLIRA_*)
//  3. Config file
//  4. Built-in defaults
//
// Config file search order:
//  1. .clira.yaml in current directory
//  2. ~/.config/clira/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by FindFile when no config file exists.
var ErrNotFound = errors.New("config: no config file found")

// Config holds all clira configuration.
type Config struct {
	// URL of the mixer, e.g. ws://localhost:3000/mixer
	URL string `yaml:"url"`

	LogLevel string `yaml:"log_level"`

	// AuthInit routes interactive authentication prompts through a
	// dedicated auth call.
	AuthInit bool `yaml:"auth_init"`

	// Timeout for a single rpc, as a Go duration string. "0" disables it.
	Timeout string `yaml:"timeout"`

	// Trace is a file to record transport messages to.
	Trace string `yaml:"trace"`

	// Parsed from Timeout after loading.
	TimeoutDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		URL:      "ws://localhost:3000/mixer",
		LogLevel: "warn",
		Timeout:  "2m",
	}
}

// Load reads configuration from path, or from the first file found by
// FindFile if path is empty, then applies environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if path, data, err = FindFile(); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if data != nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finish parses derived fields. Callers that change fields after Load,
// such as from flags, call it again.
func (c *Config) Finish() error {
	d, err := parseDurationOrDisable(c.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	c.TimeoutDuration = d
	return nil
}

// FindFile searches for a config file and returns its path and contents.
func FindFile() (string, []byte, error) {
	if data, err := os.ReadFile(".clira.yaml"); err == nil {
		return ".clira.yaml", data, nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "clira", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, ErrNotFound
}

func mergeFile(cfg *Config, file *Config) {
	if file.URL != "" {
		cfg.URL = file.URL
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.AuthInit {
		cfg.AuthInit = true
	}
	if file.Timeout != "" {
		cfg.Timeout = file.Timeout
	}
	if file.Trace != "" {
		cfg.Trace = file.Trace
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	if v := os.Getenv("CLIRA_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("CLIRA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CLIRA_AUTH_INIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CLIRA_AUTH_INIT %q: %w", v, err)
		}
		cfg.AuthInit = b
	}
	if v := os.Getenv("CLIRA_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("CLIRA_TRACE"); v != "" {
		cfg.Trace = v
	}
	return nil
}

// parseDurationOrDisable parses a duration string. "0" and "off" return 0.
func parseDurationOrDisable(s string) (time.Duration, error) {
	if s == "" || s == "0" || s == "off" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
