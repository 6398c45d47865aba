package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes a container fixture to path, creating parent directories,
// and returns path so calls can feed a scan list directly.
func WriteFile(t testing.TB, path string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}
