// Package config provides configuration management for the lspboot CLI.
//
// Values are layered from defaults, an optional lspboot.yaml, LSPBOOT_
// environment variables and explicitly set flags, in that order.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	CacheDir     string        `koanf:"cache_dir"`
	Server       ServerConfig  `koanf:"server"`
	Release      ReleaseConfig `koanf:"release"`
	Fetch        FetchConfig   `koanf:"fetch"`
	Ledger       LedgerConfig  `koanf:"ledger"`
	LogLevel     string        `koanf:"log_level"`
	Verbose      bool          `koanf:"verbose"`
	OutputFormat string        `koanf:"output"`
}

// ServerConfig describes the language server being bootstrapped.
type ServerConfig struct {
	Name       string   `koanf:"name"`
	LanguageID string   `koanf:"language_id"`
	Pattern    string   `koanf:"pattern"`
	Args       []string `koanf:"args"`
}

// ReleaseConfig locates the release assets.
type ReleaseConfig struct {
	Tag     string `koanf:"tag"`
	BaseURL string `koanf:"base_url"`
	// Checksums maps artifact names to sha256 hex digests.
	Checksums map[string]string `koanf:"checksums"`
}

// FetchConfig tunes the HTTP download.
type FetchConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// LedgerConfig toggles the install ledger.
type LedgerConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default configuration values.
const (
	DefaultServerName = "rust-analyzer"
	DefaultLanguageID = "rust"
	DefaultTag        = "2024-12-02"
	DefaultBaseURL    = "https://github.com/rust-lang/rust-analyzer/releases/download"
	DefaultTimeout    = 5 * time.Minute
	DefaultLogLevel   = "warn"
	DefaultOutput     = "text"
	EnvPrefix         = "LSPBOOT_"
	appDirName        = "lspboot"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)
