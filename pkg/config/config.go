// Package config loads the YAML configuration of a mobility node.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a configuration file.
const DefaultPath = "mobility.yaml"

var ErrInvalid = errors.New("invalid configuration")

// Config is the configuration of one node, which hosts a single agent.
type Config struct {
	Agent     string    `yaml:"agent" mapstructure:"agent"`
	LogLevel  string    `yaml:"log_level" mapstructure:"log_level"`
	Store     Store     `yaml:"store" mapstructure:"store"`
	Transport Transport `yaml:"transport" mapstructure:"transport"`
	HTTP      HTTP      `yaml:"http" mapstructure:"http"`
	Executor  Executor  `yaml:"executor" mapstructure:"executor"`
	Metrics   bool      `yaml:"metrics" mapstructure:"metrics"`
	Locker    bool      `yaml:"locker" mapstructure:"locker"`
}

// Store selects where facts are persisted.
type Store struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // memory, file, redis or sqlite
	Path    string `yaml:"path" mapstructure:"path"`
	Redis   Redis  `yaml:"redis" mapstructure:"redis"`
}

// Transport selects how envelopes reach other agents.
type Transport struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // memory or redis
	Redis   Redis  `yaml:"redis" mapstructure:"redis"`
}

type Redis struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

type HTTP struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Executor tunes the simulated executor.
type Executor struct {
	MoveDuration time.Duration `yaml:"move_duration" mapstructure:"move_duration"`
	Tick         time.Duration `yaml:"tick" mapstructure:"tick"`
	Failures     []string      `yaml:"failures" mapstructure:"failures"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Agent:    "agent-1",
		LogLevel: "info",
		Store: Store{
			Backend: "memory",
			Path:    ".mobility/facts",
			Redis:   Redis{Addr: "localhost:6379", Prefix: "mobility:"},
		},
		Transport: Transport{
			Backend: "memory",
			Redis:   Redis{Addr: "localhost:6379", Prefix: "mobility:"},
		},
		HTTP:     HTTP{Addr: ":8080"},
		Executor: Executor{MoveDuration: time.Second, Tick: 100 * time.Millisecond},
		Metrics:  true,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Merge decodes loosely typed overrides, such as command-line flags, onto cfg.
// Keys follow the YAML names; durations may be strings like "250ms".
func (c Config) Merge(overrides map[string]any) (Config, error) {
	out := c
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(overrides); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return out, out.Validate()
}

// FromMap builds a configuration from defaults and overrides.
func FromMap(overrides map[string]any) (Config, error) {
	return Default().Merge(overrides)
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Agent) == "" {
		errs = append(errs, errors.New("agent id is required"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store %q needs a path", c.Store.Backend))
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("redis store needs an address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.Transport.Backend {
	case "memory":
	case "redis":
		if c.Transport.Redis.Addr == "" {
			errs = append(errs, errors.New("redis transport needs an address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport.Backend))
	}
	if c.Locker && c.Transport.Backend != "redis" && c.Store.Backend != "redis" {
		errs = append(errs, errors.New("locker requires a redis store or transport"))
	}
	if c.Executor.MoveDuration < 0 || c.Executor.Tick <= 0 {
		errs = append(errs, errors.New("executor durations must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}
