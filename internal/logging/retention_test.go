package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"nxinfo/internal/logging"
)

func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
}

func TestCleanupOldLogsPrunesExpiredFilesAndSpoolDirs(t *testing.T) {
	logDir := t.TempDir()
	workDir := t.TempDir()
	week := 7 * 24 * time.Hour

	current := filepath.Join(logDir, logging.LogFileName)
	stale := filepath.Join(logDir, "old-run.log")
	fresh := filepath.Join(logDir, "recent.log")
	other := filepath.Join(logDir, "notes.txt")
	for _, p := range []string{current, stale, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	backdate(t, current, week)
	backdate(t, stale, week)
	backdate(t, other, week)

	spool := filepath.Join(workDir, "nca-123")
	if err := os.MkdirAll(spool, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(spool, "content.nca"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	backdate(t, spool, week)

	logging.CleanupOldLogs(logging.NewNop(), 3,
		logging.RetentionTarget{Dir: logDir, Pattern: "*.log", Exclude: []string{current}},
		logging.RetentionTarget{Dir: workDir, Pattern: "nca-*", Dirs: true},
	)

	for _, p := range []string{current, fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s should remain: %v", filepath.Base(p), err)
		}
	}
	for _, p := range []string{stale, spool} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s should be pruned, stat err = %v", filepath.Base(p), err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	backdate(t, path, 30*24*time.Hour)

	logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir})
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("retention 0 removed a file: %v", err)
	}
}
