package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"
)

// Config is the engine configuration.
type Config struct {
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Templates TemplatesConfig `koanf:"templates"`
	Logging   LoggingConfig   `koanf:"logging"`
	Runner    RunnerConfig    `koanf:"runner"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// SchedulerConfig bounds parallelism and abort handling.
type SchedulerConfig struct {
	MaxParallel    int            `koanf:"max_parallel"`
	GraceTimeout   time.Duration  `koanf:"grace_timeout"`
	PlatformLimits map[string]int `koanf:"platform_limits"`
}

// TemplatesConfig bounds nested template resolution.
type TemplatesConfig struct {
	MaxDepth int `koanf:"max_depth"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `koanf:"level"`
	// Format is the log output format (text, json).
	Format string `koanf:"format"`
}

// RunnerConfig configures the shell executor.
type RunnerConfig struct {
	Shell   string `koanf:"shell"`
	WorkDir string `koanf:"workdir"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Scheduler: SchedulerConfig{
			MaxParallel:  4,
			GraceTimeout: 10 * time.Second,
		},
		Templates: TemplatesConfig{MaxDepth: 8},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Runner: RunnerConfig{
			Shell:   "sh",
			WorkDir: ".",
		},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_parallel must be >= 1, got %d", c.Scheduler.MaxParallel))
	}
	if c.Scheduler.GraceTimeout < 0 {
		errs = append(errs, fmt.Errorf("scheduler.grace_timeout must not be negative"))
	}
	for platform, limit := range c.Scheduler.PlatformLimits {
		if limit < 0 {
			errs = append(errs, fmt.Errorf("scheduler.platform_limits.%s must not be negative", platform))
		}
	}
	if c.Templates.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("templates.max_depth must be >= 1, got %d", c.Templates.MaxDepth))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be one of text, json; got %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	if c.Runner.Shell == "" {
		errs = append(errs, errors.New("runner.shell must not be empty"))
	}
	return errors.Join(errs...)
}

// FlagMappings maps CLI flag names to configuration keys.
var FlagMappings = map[string]string{
	"max-parallel":  "scheduler.max_parallel",
	"grace-timeout": "scheduler.grace_timeout",
	"max-depth":     "templates.max_depth",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"workdir":       "runner.workdir",
	"shell":         "runner.shell",
	"metrics-file":  "metrics.textfile",
}

// Load builds the effective configuration: defaults, then configPath, then
// LITEFLOW__* environment variables, then explicitly set flags.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	loader, err := newLoader(configPath, flags)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := loader.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Dump writes the merged configuration sources as YAML, in the same
// precedence order Load applies them
func Dump(w io.Writer, configPath string, flags *pflag.FlagSet) error {
	loader, err := newLoader(configPath, flags)
	if err != nil {
		return err
	}
	if err := loader.DumpYAML(w); err != nil {
		return fmt.Errorf("failed to dump configuration: %w", err)
	}
	return nil
}

func newLoader(configPath string, flags *pflag.FlagSet) (*Loader, error) {
	loader := NewLoader(DefaultEnvPrefix)
	if err := loader.LoadWithDefaults(Defaults(), configPath); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := loader.LoadFlags(flags, FlagMappings); err != nil {
			return nil, err
		}
	}
	return loader, nil
}
