package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"codeberg.org/miketth/micboard/pkg/micboard"
	"codeberg.org/miketth/micboard/pkg/telemetry"
)

const (
	appDir     = "micboard"
	configFile = appDir + "/config.yaml"
	envPrefix  = "MICBOARD_"
)

type Config struct {
	// Debounce is how long the platform's own choice of default device is
	// left alone before micboard corrects it.
	Debounce time.Duration `yaml:"debounce"`

	// ExcludePattern matches device names that are never picked
	// automatically. Empty disables exclusion.
	ExcludePattern string `yaml:"exclude_pattern"`

	Store   StoreConfig   `yaml:"store"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
	Pactl   PactlConfig   `yaml:"pactl"`
	Control ControlConfig `yaml:"control"`
}

type StoreConfig struct {
	// Backend is one of sqlite, json or memory.
	Backend string `yaml:"backend"`
	// Path defaults to a file in the XDG data directory.
	Path string `yaml:"path"`
}

type NotifyConfig struct {
	// Backend is one of dbus, log or none.
	Backend   string `yaml:"backend"`
	Sound     string `yaml:"sound"`
	QueueSize int    `yaml:"queue_size"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string `yaml:"listen"`
	// Enabled lists the metrics to record. Empty records all of them.
	Enabled []string `yaml:"enabled"`
}

type PactlConfig struct {
	Path string `yaml:"path"`
}

type ControlConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() *Config {
	return &Config{
		Debounce:       micboard.DefaultDebounce,
		ExcludePattern: micboard.DefaultExcludePattern,
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Notify: NotifyConfig{
			Backend:   "dbus",
			QueueSize: 16,
		},
		Pactl: PactlConfig{
			Path: "pactl",
		},
		Control: ControlConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration in this order, later steps overriding earlier ones:
//  1. Default values
//  2. The YAML file at path, if path is not empty
//  3. MICBOARD_* environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads micboard/config.yaml from the XDG config directories,
// falling back to defaults when there is none.
func LoadDefault() (*Config, string, error) {
	path, err := xdg.SearchConfigFile(configFile)
	if err != nil {
		path = ""
	}

	cfg, err := Load(path)
	return cfg, path, err
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envPrefix + "DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sDEBOUNCE: %w", envPrefix, err)
		}
		cfg.Debounce = d
	}
	if v, ok := os.LookupEnv(envPrefix + "EXCLUDE_PATTERN"); ok {
		cfg.ExcludePattern = v
	}

	if v := os.Getenv(envPrefix + "STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv(envPrefix + "STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	if v := os.Getenv(envPrefix + "NOTIFY_BACKEND"); v != "" {
		cfg.Notify.Backend = v
	}

	if v := os.Getenv(envPrefix + "METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}

	if v := os.Getenv(envPrefix + "PACTL_PATH"); v != "" {
		cfg.Pactl.Path = v
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Debounce <= 0 {
		errs = append(errs, errors.New("debounce must be positive"))
	}

	if _, err := regexp.Compile(c.ExcludePattern); err != nil {
		errs = append(errs, fmt.Errorf("exclude_pattern: %w", err))
	}

	switch c.Store.Backend {
	case "sqlite", "json", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be sqlite, json or memory, got %q", c.Store.Backend))
	}

	switch c.Notify.Backend {
	case "dbus", "log", "none":
	default:
		errs = append(errs, fmt.Errorf("notify.backend must be dbus, log or none, got %q", c.Notify.Backend))
	}
	if c.Notify.QueueSize < 0 {
		errs = append(errs, errors.New("notify.queue_size must not be negative"))
	}

	known := make(map[string]bool)
	for _, m := range telemetry.Catalog {
		known[m.Name] = true
	}
	var unknown []string
	for _, name := range c.Metrics.Enabled {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		errs = append(errs, fmt.Errorf("metrics.enabled: unknown metrics %s", strings.Join(unknown, ", ")))
	}

	if c.Pactl.Path == "" {
		errs = append(errs, errors.New("pactl.path is required"))
	}

	return errors.Join(errs...)
}

// StorePath is where the configured backend keeps its state.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}

	name := "micboard.db"
	if c.Store.Backend == "json" {
		name = "state.json"
	}

	path, err := xdg.DataFile(appDir + "/" + name)
	if err != nil {
		return "", fmt.Errorf("resolve data file: %w", err)
	}

	return path, nil
}
