// Package config loads the tool's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds user-level settings. Zero-valued fields fall back to the
// defaults below.
type Config struct {
	// DBPath is where the ledger database lives.
	DBPath string `yaml:"db_path,omitempty"`
	// HorizonDays bounds how far a single series expansion reaches.
	HorizonDays int `yaml:"horizon_days,omitempty"`
	// Currency and Locale control amount formatting in listings.
	Currency string `yaml:"currency,omitempty"`
	Locale   string `yaml:"locale,omitempty"`
	// DefaultAccount is stamped onto imported transactions when no
	// account is given on the command line.
	DefaultAccount string `yaml:"default_account,omitempty"`
}

// DefaultPath returns the conventional config location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cream.yaml"
	}
	return filepath.Join(home, ".config", "cream", "config.yaml")
}

// Load reads the config at path. A missing file yields the defaults rather
// than an error so the tool works out of the box.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes the config to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "cream.db"
	}
	if c.HorizonDays == 0 {
		c.HorizonDays = 365
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.Locale == "" {
		c.Locale = normalizeLocale(systemLocale())
	}
	if c.Locale == "" {
		c.Locale = "en-US"
	}
}

// skipPlatformLocale disables the OS-level locale fallback in tests.
var skipPlatformLocale = false

// systemLocale returns the locale amounts should be formatted with when the
// config names none. The environment wins over the platform fallback so
// terminal overrides behave; LC_MONETARY is the most specific for money.
func systemLocale() string {
	for _, v := range []string{"LC_MONETARY", "LC_ALL", "LANG"} {
		locale := os.Getenv(v)
		if locale != "" && locale != "C" && locale != "POSIX" {
			return locale
		}
	}
	if skipPlatformLocale {
		return ""
	}
	return platformLocale()
}

// normalizeLocale converts a POSIX-style locale like "sv_SE.UTF-8" to the
// BCP-47 form the formatter expects.
func normalizeLocale(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	return strings.ReplaceAll(locale, "_", "-")
}
