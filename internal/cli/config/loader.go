package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey and configKey are the context keys for the loaded logger and
// config.
type (
	loggerKey struct{}
	configKey struct{}
)

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
)

// flagKeys bridges flag names that do not match their config key.
var flagKeys = map[string]string{
	"server-name": "server.name",
	"language-id": "server.language_id",
	"pattern":     "server.pattern",
	"tag":         "release.tag",
	"base-url":    "release.base_url",
	"timeout":     "fetch.timeout",
	"no-ledger":   "ledger.enabled",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > lspboot.yaml > lspboot.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"lspboot.yaml", "lspboot.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// DefaultCacheDir returns the per-user cache directory for downloaded servers.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(".", "."+appDirName)
}

// Defaults returns the default configuration as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"cache_dir":          DefaultCacheDir(),
		"server.name":        DefaultServerName,
		"server.language_id": DefaultLanguageID,
		"server.pattern":     "",
		"server.args":        []string{},
		"release.tag":        DefaultTag,
		"release.base_url":   DefaultBaseURL,
		"fetch.timeout":      DefaultTimeout.String(),
		"ledger.enabled":     true,
		"log_level":          DefaultLogLevel,
		"verbose":            false,
		"output":             DefaultOutput,
	}
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables. LSPBOOT_SERVER__NAME -> server.name
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			if f.Name == "config" {
				return "", nil
			}
			if f.Name == "no-ledger" {
				// Inverted: --no-ledger disables the ledger.
				v, _ := flags.GetBool("no-ledger")
				return flagKeys[f.Name], !v
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if abs, err := filepath.Abs(cfg.CacheDir); err == nil {
		cfg.CacheDir = abs
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// ParseLevel maps a level name to a slog level. Unknown names mean warn.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}

// NewLogger builds the stderr logger for cfg. Stdout stays reserved for
// command output and JSON-RPC frames.
func NewLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}))
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the config from the command context, falling back to
// the defaults.
func GetConfig(ctx context.Context) *Config {
	if ctx != nil {
		if c, ok := ctx.Value(configKey{}).(*Config); ok {
			return c
		}
	}
	return &Config{
		CacheDir:     DefaultCacheDir(),
		Server:       ServerConfig{Name: DefaultServerName, LanguageID: DefaultLanguageID},
		Release:      ReleaseConfig{Tag: DefaultTag, BaseURL: DefaultBaseURL},
		Fetch:        FetchConfig{Timeout: DefaultTimeout},
		Ledger:       LedgerConfig{Enabled: true},
		LogLevel:     DefaultLogLevel,
		OutputFormat: DefaultOutput,
	}
}
