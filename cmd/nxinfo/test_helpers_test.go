package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nxinfo/internal/config"
	"nxinfo/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config file whose paths all live in a temp dir.
// Keys and a stub hactool are installed unless bare is set; extra options
// are applied last.
func setupCLITestEnv(t *testing.T, bare bool, extra ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	opts := []testsupport.ConfigOption{testsupport.WithStubbedBinaries()}
	if !bare {
		opts = append(opts, testsupport.WithKeys(nil))
	}
	opts = append(opts, extra...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	base := testsupport.BaseDir(cfg)

	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("NXINFO_KEYS_DIR", "")
	t.Setenv("NXINFO_VERSIONLIST_URL", "")
	t.Setenv("NXINFO_CONFIG", "")

	configPath := filepath.Join(homeDir, ".config", "nxinfo", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	testsupport.WriteFile(t, path, data)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
