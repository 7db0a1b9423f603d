package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Aliases AliasesConfig `yaml:"aliases"`
	API     APIConfig     `yaml:"api"`
}

type ServiceConfig struct {
	LogLevel string `yaml:"log_level"`
	// Workers is the async pool size.
	Workers int `yaml:"workers"`
	// StaleAfter is the startup-sweep threshold: jobs still running longer
	// than this are marked errored at boot.
	StaleAfter time.Duration `yaml:"stale_after"`
}

type StateConfig struct {
	// Path to the SQLite database backing the job store.
	Path string `yaml:"path"`
}

type AliasesConfig struct {
	// Path to the serialized alias table. Empty disables persistence.
	Path string `yaml:"path"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// present records whether the api section appeared in the source
	// document, so an explicit `enabled: false` is not mistaken for an
	// unset section.
	present bool
}

func (a *APIConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain APIConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = APIConfig(p)
	a.present = true
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:   "info",
			Workers:    5,
			StaleAfter: 24 * time.Hour,
		},
		State:   StateConfig{Path: "./data/shellgw.db"},
		Aliases: AliasesConfig{Path: "./data/aliases.yaml"},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8420",
		},
	}
}

// Load reads and parses configuration from a YAML file, interpolating
// ${VAR} environment references and applying defaults for unset keys.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.Workers == 0 {
		cfg.Service.Workers = defaults.Service.Workers
	}
	if cfg.Service.StaleAfter == 0 {
		cfg.Service.StaleAfter = defaults.Service.StaleAfter
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Aliases.Path == "" {
		cfg.Aliases.Path = defaults.Aliases.Path
	}
	if !cfg.API.present {
		cfg.API = defaults.API
	} else if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.Workers < 1 {
		return fmt.Errorf("service.workers must be positive")
	}
	if cfg.Service.StaleAfter < 0 {
		return fmt.Errorf("service.stale_after must not be negative")
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when the API is enabled")
	}
	if envVarPattern.MatchString(cfg.API.Listen) {
		return fmt.Errorf("api.listen: unresolved environment variable")
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (caught by validation if required).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
