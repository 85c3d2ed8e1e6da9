package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if strings.TrimSpace(c.Server.Name) == "" {
		return fmt.Errorf("server.name is required")
	}
	if strings.TrimSpace(c.Server.LanguageID) == "" {
		return fmt.Errorf("server.language_id is required")
	}
	if strings.TrimSpace(c.Release.Tag) == "" {
		return fmt.Errorf("release.tag is required")
	}

	u, err := url.Parse(c.Release.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("release.base_url must be an http(s) URL, got %q", c.Release.BaseURL)
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}

	for name, sum := range c.Release.Checksums {
		if b, err := hex.DecodeString(sum); err != nil || len(b) != 32 {
			return fmt.Errorf("release.checksums[%s] is not a sha256 hex digest", name)
		}
	}

	switch c.OutputFormat {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("output must be one of text, json, yaml; got %q", c.OutputFormat)
	}
	return nil
}
