package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nxinfo/internal/config"
	"nxinfo/internal/keys"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.keys")
	if err := os.WriteFile(path, []byte("header_key = 00\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if r := CheckKeyFile("Prod keys", path, false); !r.Passed || !strings.Contains(r.Detail, path) {
		t.Fatalf("expected pass, got %+v", r)
	}
	missing := CheckKeyFile("Prod keys", filepath.Join(dir, "nope.keys"), false)
	if missing.Passed || !missing.Blocking() {
		t.Fatalf("missing mandatory key file should block, got %+v", missing)
	}
	optional := CheckKeyFile("Title keys", filepath.Join(dir, "nope.keys"), true)
	if optional.Passed || optional.Blocking() {
		t.Fatalf("missing optional key file should warn, got %+v", optional)
	}
	if r := CheckKeyFile("Prod keys", dir, false); r.Passed {
		t.Fatal("expected failure for directory")
	}
}

func TestCheckRequiredKeys(t *testing.T) {
	store := keys.NewStore()
	if r := CheckRequiredKeys(store); r.Passed || !strings.Contains(r.Detail, "header_key") {
		t.Fatalf("expected missing header_key, got %+v", r)
	}

	for _, name := range append(append([]string(nil), keys.RequiredKeys...), "master_key_00") {
		store.SetKey(name, []byte{1})
	}
	if r := CheckRequiredKeys(store); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
}

func TestCheckSDKeysIsOptional(t *testing.T) {
	r := CheckSDKeys(keys.NewStore())
	if r.Passed || r.Blocking() {
		t.Fatalf("missing SD keys should warn, got %+v", r)
	}
}

func TestCheckBinary(t *testing.T) {
	if r := CheckBinary("sh", "sh"); !r.Passed {
		t.Skipf("sh not on PATH: %s", r.Detail)
	}
	if r := CheckBinary("hactool", "definitely-not-a-real-binary-xyz"); r.Passed {
		t.Fatal("expected failure for missing binary")
	}
	if r := CheckBinary("hactool", " "); r.Passed || r.Detail != "command not configured" {
		t.Fatalf("expected not configured, got %+v", r)
	}
}

func TestCheckVersionList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if r := CheckVersionList(context.Background(), srv.URL, time.Second); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	r := CheckVersionList(context.Background(), down.URL, time.Second)
	if r.Passed || r.Blocking() {
		t.Fatalf("unreachable version list should warn, got %+v", r)
	}
}

func TestCheckVersionCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.json")
	if r := CheckVersionCache(path, time.Now()); r.Passed {
		t.Fatal("expected missing cache to be reported")
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := CheckVersionCache(path, time.Now().Add(2*time.Hour))
	if !r.Passed || !strings.Contains(r.Detail, "ago") {
		t.Fatalf("cache = %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_BlocksOnMissingProdKeys(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Keys.ProdKeys = filepath.Join(t.TempDir(), "prod.keys")
	cfg.Keys.TitleKeys = filepath.Join(t.TempDir(), "title.keys")
	cfg.Versions.CacheFile = filepath.Join(cfg.Paths.DataDir, "versions.json")
	cfg.Versions.RefreshOnStart = false

	results := RunAll(context.Background(), &cfg, nil)
	blocking, ok := FirstBlocking(results)
	if !ok || blocking.Name != "Prod keys" {
		t.Fatalf("expected prod keys to block, got %+v", results)
	}
	for _, r := range results {
		if r.Name == "Required keys" {
			t.Fatal("key content checks need a loaded store")
		}
	}
}
