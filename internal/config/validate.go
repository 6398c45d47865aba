package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/mod/semver"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateVersions(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateVersions() error {
	parsed, err := url.Parse(c.Versions.URL)
	if err != nil {
		return fmt.Errorf("versions.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("versions.url must be an http(s) URL, got %q", c.Versions.URL)
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Enabled && c.History.Size < 1 {
		return errors.New("history.size must be >= 1 when history.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateScan() error {
	if fw := c.Scan.MaxFirmware; fw != "" && !ValidFirmware(fw) {
		return fmt.Errorf("scan.max_firmware: %q is not a major.minor.patch version", fw)
	}
	return nil
}

// ValidFirmware reports whether s is a firmware string in major.minor.patch
// form.
func ValidFirmware(s string) bool {
	v := "v" + strings.TrimSpace(s)
	return semver.IsValid(v) && semver.Canonical(v) == v
}
