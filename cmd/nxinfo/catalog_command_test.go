package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"nxinfo/internal/testsupport"
	"nxinfo/internal/versions"
)

func writeVersionCache(t *testing.T, path string, entries ...versions.Entry) {
	t.Helper()
	var buf bytes.Buffer
	if err := versions.Encode(&buf, versions.List{FormatVersion: 1, Entries: entries}); err != nil {
		t.Fatalf("encode list: %v", err)
	}
	testsupport.WriteFile(t, path, buf.Bytes())
}

func TestCatalogShowReadsCache(t *testing.T) {
	env := setupCLITestEnv(t, false)
	writeVersionCache(t, env.cfg.Versions.CacheFile,
		versions.Entry{ID: "0100ABCD12345000", Version: 262144},
	)

	out, _, err := runCLI(t, []string{"catalog", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog show: %v", err)
	}
	requireContains(t, out, "Titles")
	requireContains(t, out, env.cfg.Versions.CacheFile)

	out, _, err = runCLI(t, []string{"catalog", "show", "0100abcd12345800", "0100FFFF00000000"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog show ids: %v", err)
	}
	requireContains(t, out, "0100ABCD12345000")
	requireContains(t, out, "262144")
	requireContains(t, out, "unknown")
}

func TestCatalogRefreshWithoutHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = versions.Encode(w, versions.List{FormatVersion: 1, Entries: []versions.Entry{
			{ID: "0100ABCD12345000", Version: 65536},
			{ID: "0100ABCD12346000", Version: 131072},
		}})
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, false, testsupport.WithVersionList(srv.URL))

	out, _, err := runCLI(t, []string{"catalog", "refresh"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog refresh: %v", err)
	}
	requireContains(t, out, "Version list refreshed: 2 titles")

	out, _, err = runCLI(t, []string{"catalog", "show", "0100ABCD12346000"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog show: %v", err)
	}
	requireContains(t, out, "131072")
}

func TestDoctorReportsMissingKeys(t *testing.T) {
	env := setupCLITestEnv(t, true)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail without prod keys")
	}
	requireContains(t, out, "Prod keys")
	requireContains(t, out, "FAIL")
}

func TestDoctorPassesWithKeys(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "hactool")
	requireContains(t, out, "OK")
}
