package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"nxinfo/internal/config"
	"nxinfo/internal/keys"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every path lives below one temp directory; no key files are written unless
// WithKeys is given.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "data", "logs")
	cfgVal.Keys.Dir = filepath.Join(base, "keys")
	cfgVal.Keys.ProdKeys = filepath.Join(base, "keys", "prod.keys")
	cfgVal.Keys.TitleKeys = filepath.Join(base, "keys", "title.keys")
	cfgVal.Keys.ConsoleKeys = filepath.Join(base, "keys", "console.keys")
	cfgVal.Versions.URL = "http://127.0.0.1:0/versionlist"
	cfgVal.Versions.CacheFile = filepath.Join(base, "data", "hac_versionlist.json")
	cfgVal.Hactool.WorkDir = filepath.Join(base, "work")
	cfgVal.History.Path = filepath.Join(base, "data", "history.db")
	cfgVal.Watch.LockFile = filepath.Join(base, "data", "watch.lock")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithKeys writes a prod.keys file holding every required key plus extra.
func WithKeys(extra map[string]string) ConfigOption {
	return func(b *configBuilder) {
		values := map[string]string{"master_key_00": strings.Repeat("11", 16)}
		for _, name := range keys.RequiredKeys {
			values[name] = strings.Repeat("11", 16)
		}
		for name, value := range extra {
			values[name] = value
		}
		WriteKeyFile(b.t, b.cfg.Keys.ProdKeys, values)
	}
}

// WithVersionList points the version catalog at url.
func WithVersionList(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Versions.URL = url
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, hactool is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"hactool"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WriteKeyFile writes name = value lines in sorted order.
func WriteKeyFile(t testing.TB, path string, values map[string]string) {
	t.Helper()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s = %s\n", name, values[name])
	}
	WriteFile(t, path, []byte(b.String()))
}
