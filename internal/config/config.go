package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the working directories.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Keys locates the key files. Empty file paths resolve inside Dir.
type Keys struct {
	Dir         string `toml:"dir"`
	ProdKeys    string `toml:"prod_keys"`
	TitleKeys   string `toml:"title_keys"`
	ConsoleKeys string `toml:"console_keys"`
}

// Versions configures the remote version list and its local cache.
type Versions struct {
	URL            string `toml:"url"`
	CacheFile      string `toml:"cache_file"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RefreshOnStart bool   `toml:"refresh_on_start"`
}

// Hactool configures the external content archive reader.
type Hactool struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	WorkDir        string `toml:"work_dir"`
}

// History configures the batch history store.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	Size    int    `toml:"size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Scan contains defaults for container scans.
type Scan struct {
	Extensions  []string `toml:"extensions"`
	MaxFirmware string   `toml:"max_firmware"`
}

// Watch configures the removable media watcher.
type Watch struct {
	SettleSeconds int    `toml:"settle_seconds"`
	LockFile      string `toml:"lock_file"`
}

// Config encapsulates all configuration values for nxinfo.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Keys: prod/title/console key files
//   - Versions: remote version list and cache
//   - Hactool: content archive reader binary
//   - History: persisted scan batches
//   - Logging: log format, level, and retention
//   - Scan: file extensions and firmware filter
//   - Watch: SD card watcher timing
type Config struct {
	Paths    Paths    `toml:"paths"`
	Keys     Keys     `toml:"keys"`
	Versions Versions `toml:"versions"`
	Hactool  Hactool  `toml:"hactool"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
	Scan     Scan     `toml:"scan"`
	Watch    Watch    `toml:"watch"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/nxinfo/config.toml")
}

// Load reads, normalizes and validates the configuration. It returns the
// config, the file it came from and whether that file existed; a missing
// file yields the defaults.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath picks the config file. An explicit path (flag, then
// NXINFO_CONFIG) is used whether or not it exists. Otherwise the first
// existing file of the user default and ./nxinfo.toml wins, falling back to
// the user default.
func resolveConfigPath(explicit string) (string, bool, error) {
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("NXINFO_CONFIG"))
	}
	if explicit != "" {
		path, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(path)
		return path, exists, err
	}

	def, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	local, err := filepath.Abs("nxinfo.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{def, local} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return def, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// VersionsTimeout is the HTTP timeout for version list downloads.
func (c *Config) VersionsTimeout() time.Duration {
	return time.Duration(c.Versions.TimeoutSeconds) * time.Second
}

// HactoolTimeout bounds a single hactool invocation. Zero means no limit.
func (c *Config) HactoolTimeout() time.Duration {
	return time.Duration(c.Hactool.TimeoutSeconds) * time.Second
}

// WatchSettle is the delay between a card appearing and the scan starting.
func (c *Config) WatchSettle() time.Duration {
	return time.Duration(c.Watch.SettleSeconds) * time.Second
}

// HasExtension reports whether name carries one of the configured container
// extensions, compared case-insensitively.
func (c *Config) HasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range c.Scan.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// expandPath resolves a leading ~ to the home directory and makes the
// result absolute. Empty stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = home + value[1:]
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
