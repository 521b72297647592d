package xhub

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings
// ("30s", "1h") or bare numbers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SourceConfig selects and configures an inbound feed adapter by name.
type SourceConfig struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

// Config holds bus tuning and filtering settings, loadable from YAML.
type Config struct {
	ObserverWorkers int             `yaml:"observer_workers"`
	ObserverBuffer  int             `yaml:"observer_buffer"`
	CloseTimeout    Duration        `yaml:"close_timeout"`
	Exclusions      ExclusionConfig `yaml:"exclusions"`
	Source          SourceConfig    `yaml:"source"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ObserverWorkers: 2,
		ObserverBuffer:  256,
		CloseTimeout:    Duration(10 * time.Second),
	}
}

// LoadConfig reads a YAML config file, applying defaults for absent keys.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ObserverWorkers <= 0 {
		cfg.ObserverWorkers = 2
	}
	if cfg.ObserverBuffer <= 0 {
		cfg.ObserverBuffer = 256
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = Duration(10 * time.Second)
	}
	return cfg, nil
}
