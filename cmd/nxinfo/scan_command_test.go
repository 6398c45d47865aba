package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"nxinfo/internal/history"
	"nxinfo/internal/scan"
	"nxinfo/internal/sdmonitor"
	"nxinfo/internal/testsupport"
	"nxinfo/internal/title"
)

func writeHomebrew(t *testing.T, dir string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(dir, "beta.nro"), testsupport.Homebrew(testsupport.NACP("2.0", "Beta")))
	testsupport.WriteFile(t, filepath.Join(dir, "nested", "alpha.nro"), testsupport.Homebrew(testsupport.NACP("1.0", "Alpha")))
	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))
}

func TestScanDirectoryJSONAndHistory(t *testing.T) {
	env := setupCLITestEnv(t, false)
	games := filepath.Join(env.baseDir, "games")
	writeHomebrew(t, games)

	out, stderr, err := runCLI(t, []string{"scan", "--json", games}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v (stderr %s)", err, stderr)
	}
	var titles []title.Title
	if err := json.Unmarshal([]byte(out), &titles); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	// Lexical path order: games/beta.nro sorts before games/nested/alpha.nro.
	if len(titles) != 2 || titles[0].TitleName != "Beta" || titles[1].TitleName != "Alpha" {
		t.Fatalf("titles = %+v", titles)
	}
	if titles[1].DisplayVersion != "1.0" || titles[1].Distribution != title.DistributionHomebrew {
		t.Fatalf("title = %+v", titles[1])
	}
	requireContains(t, stderr, "Scan complete: 2 title(s)")

	out, _, err = runCLI(t, []string{"history", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var batches []history.Batch
	if err := json.Unmarshal([]byte(out), &batches); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(batches) != 1 || batches[0].TitleCount != 2 || batches[0].Source != games {
		t.Fatalf("batches = %+v", batches)
	}

	out, _, err = runCLI(t, []string{"history", "show", batches[0].ID}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "Alpha")
	requireContains(t, out, "Beta")
}

func TestScanTableAndExport(t *testing.T) {
	env := setupCLITestEnv(t, false)
	games := filepath.Join(env.baseDir, "games")
	writeHomebrew(t, games)
	exportPath := filepath.Join(env.baseDir, "out", "titles.txt")

	out, stderr, err := runCLI(t, []string{"scan", games, "--export", exportPath}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "TITLE ID")
	requireContains(t, out, "Alpha")
	requireContains(t, stderr, "Exported 2 title(s)")

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	requireContains(t, string(data), "|Alpha|1.0|")
	requireContains(t, string(data), "2 of 2 titles exported")
}

func TestScanRejectsMalformedFirmwareLimit(t *testing.T) {
	env := setupCLITestEnv(t, false)
	games := filepath.Join(env.baseDir, "games")
	writeHomebrew(t, games)

	_, _, err := runCLI(t, []string{"scan", "--max-firmware", "9.x", games}, env.configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, err.Error(), "invalid firmware limit")
}

func TestScanStopsWhenProdKeysAreMissing(t *testing.T) {
	env := setupCLITestEnv(t, true)
	games := filepath.Join(env.baseDir, "games")
	writeHomebrew(t, games)

	_, _, err := runCLI(t, []string{"scan", games}, env.configPath)
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	requireContains(t, err.Error(), "prod keys")
}

func TestScanWithoutContainers(t *testing.T) {
	env := setupCLITestEnv(t, false)
	empty := filepath.Join(env.baseDir, "empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatal(err)
	}
	_, _, err := runCLI(t, []string{"scan", empty}, env.configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, err.Error(), "no container files")
}

func TestSDCardWithoutDatabase(t *testing.T) {
	env := setupCLITestEnv(t, false)

	_, _, err := runCLI(t, []string{"sdcard", t.TempDir()}, env.configPath)
	if !errors.Is(err, scan.ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}
}

func TestWatchHandlerIgnoresCardsWithoutDatabase(t *testing.T) {
	env := setupCLITestEnv(t, false)
	configFlag := env.configPath
	verbose := false
	ctx := newCommandContext(&configFlag, &verbose)

	a, err := ctx.openApp(context.Background(), appOptions{})
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()

	cmd := &cobra.Command{}
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	handler := watchHandler(cmd, a, &batchFlags{}, "")
	if err := handler(context.Background(), sdmonitor.Mount{Device: "/dev/sdz1", Path: t.TempDir()}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	requireContains(t, stderr.String(), "No installed titles")
}

func TestFilterFirmware(t *testing.T) {
	titles := []*title.Title{
		{TitleID: "A", Firmware: "0"},
		{TitleID: "B", Firmware: "9.1.0"},
		{TitleID: "C", Firmware: "11.0.0"},
	}
	kept, hidden := filterFirmware(titles, "10.0.0")
	if hidden != 1 || len(kept) != 2 || kept[1].TitleID != "B" {
		t.Fatalf("kept = %+v hidden = %d", kept, hidden)
	}
	if kept, hidden := filterFirmware(titles, ""); hidden != 0 || len(kept) != 3 {
		t.Fatalf("empty limit filtered titles")
	}
}

func TestProgressReporterReturnsPartialResult(t *testing.T) {
	reporter := newProgressReporter(&bytes.Buffer{})
	want := &scan.Result{BatchID: "b", Canceled: true}
	res, err := reporter.run(context.Background(), func(context.Context) (*scan.Result, error) {
		reporter.notify(scan.Progress{Index: -1, Total: 2})
		return want, context.Canceled
	})
	if res != want || !errors.Is(err, context.Canceled) {
		t.Fatalf("run = %+v, %v", res, err)
	}
}
