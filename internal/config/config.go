// Package config loads lexicard's settings from flag defaults, an optional
// YAML file, LEXICARD_ environment variables, and explicitly set flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "LEXICARD_"

// Config holds the settings for one lexicard process.
type Config struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	Sources         []string      `koanf:"sources" validate:"dive,required"`
	ReposDir        string        `koanf:"repos_dir" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	StarterDeck     bool          `koanf:"starter_deck"`
	Log             LogConfig     `koanf:"log"`
}

// LogConfig selects the logger's level and output format.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"source":       "sources",
	"repos-dir":    "repos_dir",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"shutdown":     "shutdown_timeout",
	"starter-deck": "starter_deck",
}

// NewFlagSet returns the command-line flags with their defaults.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "lexicard.yaml", "Path to the YAML config file")
	fs.String("addr", ":8080", "Address for the HTTP API to listen on")
	fs.StringSlice("source", nil, "Deck source: a directory, a deck file, or a git URL (repeatable)")
	fs.String("repos-dir", "repos", "Directory git deck sources are cloned into")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.Duration("shutdown", 10*time.Second, "Time allowed for in-flight requests on shutdown")
	fs.Bool("starter-deck", true, "Load the built-in starter deck when no sources are configured")
	return fs
}

// Load parses args and returns the validated configuration.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey(fs)), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile reads the YAML file at path. A missing file is not an error.
func loadFile(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat config: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey turns LEXICARD_LOG__LEVEL into log.level and splits list values.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "sources" {
		var sources []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		return key, sources
	}
	return key, value
}

// flagKey renames flags to config keys. The config path itself is not a setting.
func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if f.Name == "config" {
			return "", nil
		}
		key := f.Name
		if mapped, ok := flagKeys[key]; ok {
			key = mapped
		}
		return key, posflag.FlagVal(fs, f)
	}
}

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
