package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeKeys(); err != nil {
		return err
	}
	if err := c.normalizeVersions(); err != nil {
		return err
	}
	if err := c.normalizeHactool(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeScan()
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeKeys() error {
	if value, ok := os.LookupEnv("NXINFO_KEYS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Keys.Dir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Keys.Dir) == "" {
		c.Keys.Dir = defaultKeysDir
	}
	var err error
	if c.Keys.Dir, err = expandPath(c.Keys.Dir); err != nil {
		return fmt.Errorf("keys.dir: %w", err)
	}
	resolve := func(field, value, name string) (string, error) {
		value = strings.TrimSpace(value)
		if value == "" {
			return filepath.Join(c.Keys.Dir, name), nil
		}
		expanded, err := expandPath(value)
		if err != nil {
			return "", fmt.Errorf("keys.%s: %w", field, err)
		}
		return expanded, nil
	}
	if c.Keys.ProdKeys, err = resolve("prod_keys", c.Keys.ProdKeys, defaultProdKeysName); err != nil {
		return err
	}
	if c.Keys.TitleKeys, err = resolve("title_keys", c.Keys.TitleKeys, defaultTitleKeysName); err != nil {
		return err
	}
	if c.Keys.ConsoleKeys, err = resolve("console_keys", c.Keys.ConsoleKeys, defaultConsoleKeysName); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeVersions() error {
	if value, ok := os.LookupEnv("NXINFO_VERSIONLIST_URL"); ok && strings.TrimSpace(value) != "" {
		c.Versions.URL = value
	}
	c.Versions.URL = strings.TrimSpace(c.Versions.URL)
	if c.Versions.URL == "" {
		c.Versions.URL = defaultVersionListURL
	}
	if strings.TrimSpace(c.Versions.CacheFile) == "" {
		c.Versions.CacheFile = filepath.Join(c.Paths.DataDir, defaultVersionListName)
	}
	var err error
	if c.Versions.CacheFile, err = expandPath(c.Versions.CacheFile); err != nil {
		return fmt.Errorf("versions.cache_file: %w", err)
	}
	if c.Versions.TimeoutSeconds <= 0 {
		c.Versions.TimeoutSeconds = defaultVersionsTimeout
	}
	return nil
}

func (c *Config) normalizeHactool() error {
	c.Hactool.Binary = strings.TrimSpace(c.Hactool.Binary)
	if c.Hactool.Binary == "" {
		c.Hactool.Binary = defaultHactoolBinary
	}
	if strings.ContainsRune(c.Hactool.Binary, filepath.Separator) {
		expanded, err := expandPath(c.Hactool.Binary)
		if err != nil {
			return fmt.Errorf("hactool.binary: %w", err)
		}
		c.Hactool.Binary = expanded
	}
	if c.Hactool.TimeoutSeconds < 0 {
		c.Hactool.TimeoutSeconds = 0
	}
	if strings.TrimSpace(c.Hactool.WorkDir) != "" {
		expanded, err := expandPath(c.Hactool.WorkDir)
		if err != nil {
			return fmt.Errorf("hactool.work_dir: %w", err)
		}
		c.Hactool.WorkDir = expanded
	}
	return nil
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.DataDir, defaultHistoryName)
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeScan() {
	seen := make(map[string]struct{}, len(c.Scan.Extensions))
	exts := make([]string, 0, len(c.Scan.Extensions))
	for _, ext := range c.Scan.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Scan.Extensions = exts
	c.Scan.MaxFirmware = strings.TrimSpace(c.Scan.MaxFirmware)
}

func (c *Config) normalizeWatch() error {
	if c.Watch.SettleSeconds < 0 {
		c.Watch.SettleSeconds = 0
	}
	if strings.TrimSpace(c.Watch.LockFile) == "" {
		c.Watch.LockFile = filepath.Join(c.Paths.DataDir, "watch.lock")
	}
	var err error
	if c.Watch.LockFile, err = expandPath(c.Watch.LockFile); err != nil {
		return fmt.Errorf("watch.lock_file: %w", err)
	}
	return nil
}
