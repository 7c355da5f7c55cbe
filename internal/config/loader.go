// Package config loads engine settings from defaults, a YAML file,
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix of environment overrides, e.g.
// LITEFLOW__SCHEDULER__MAX_PARALLEL -> scheduler.max_parallel
const DefaultEnvPrefix = "LITEFLOW"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
}

// NewLoader creates a new configuration loader.
// envPrefix should be like "LITEFLOW" (without trailing delimiter).
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		k:         koanf.New("."),
		envPrefix: envPrefix + "__",
	}
}

// LoadWithDefaults loads configuration with the following priority (highest to lowest):
//  1. Environment variables
//  2. Config file (YAML)
//  3. Struct defaults
//
// A configPath that does not exist is an error; an empty configPath is skipped.
func (l *Loader) LoadWithDefaults(defaults any, configPath string) error {
	if defaults != nil {
		if err := l.k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
			return fmt.Errorf("failed to load defaults: %w", err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file not found: %s", configPath)
		}
		if err := l.k.Load(file.Provider(configPath), koanfyaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}

	envProvider := env.Provider(l.envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := l.k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	return nil
}

// LoadFlags applies CLI flag overrides using explicit mappings.
// Only flags that were explicitly set by the user are applied.
func (l *Loader) LoadFlags(flags *pflag.FlagSet, mappings map[string]string) error {
	var errs []error
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := mappings[f.Name]; ok {
			if err := l.k.Set(key, f.Value.String()); err != nil {
				errs = append(errs, fmt.Errorf("flag %s: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}

// Unmarshal unmarshals the loaded configuration into the provided struct.
func (l *Loader) Unmarshal(path string, out any) error {
	return l.k.Unmarshal(path, out)
}

// DumpYAML writes the loaded configuration as YAML to the provided writer.
func (l *Loader) DumpYAML(w io.Writer) error {
	return yaml.NewEncoder(w).Encode(l.k.Raw())
}
