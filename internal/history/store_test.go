package history_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"nxinfo/internal/history"
	"nxinfo/internal/title"
)

func openStore(t *testing.T, size int) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"), size)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleTitles() []*title.Title {
	patch := &title.Title{
		TitleID:        "0100ABCD12345800",
		Type:           title.TypePatch,
		Version:        262144,
		Firmware:       "9.1.0",
		MasterKey:      9,
		TitleName:      "Sample",
		DisplayVersion: "1.2.0",
		Distribution:   title.DistributionDigital,
		Structure:      title.CnmtNCA | title.Cert | title.Tik,
		Signature:      title.SignatureValid,
		Filename:       "sample[v262144].nsp",
		Filesize:       123456,
	}
	patch.SetLatestVersion(327680)
	return []*title.Title{
		{TitleID: "0100ABCD12345000", Type: title.TypeApplication, TitleName: "Sample"},
		patch,
	}
}

func TestLatestOnEmptyStore(t *testing.T) {
	store := openStore(t, 0)
	if _, err := store.Latest(context.Background()); !errors.Is(err, history.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	batches, err := store.List(context.Background())
	if err != nil || len(batches) != 0 {
		t.Fatalf("List = %v, %v", batches, err)
	}
}

func TestSaveAndLatestRoundTrip(t *testing.T) {
	store := openStore(t, 0)
	ctx := context.Background()
	titles := sampleTitles()
	if err := store.Save(ctx, "batch-1", "/games", titles); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.ID != "batch-1" || got.Source != "/games" || got.TitleCount != 2 || got.CreatedAt.IsZero() {
		t.Fatalf("batch = %+v", got)
	}
	if len(got.Titles) != 2 {
		t.Fatalf("titles = %+v", got.Titles)
	}
	patch := got.Titles[1]
	if patch.TitleID != "0100ABCD12345800" || patch.Version != 262144 || patch.DisplayVersion != "1.2.0" {
		t.Fatalf("patch = %+v", patch)
	}
	if patch.LatestVersion == nil || *patch.LatestVersion != 327680 {
		t.Fatalf("latest version lost: %v", patch.LatestVersion)
	}
	if got.Titles[0].LatestVersion != nil {
		t.Fatal("unset latest version should stay unset")
	}
}

func TestSavePrunesOldBatches(t *testing.T) {
	store := openStore(t, 2)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		if err := store.Save(ctx, fmt.Sprintf("batch-%d", i), "", sampleTitles()); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	batches, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(batches) != 2 || batches[0].ID != "batch-4" || batches[1].ID != "batch-3" {
		t.Fatalf("batches = %+v", batches)
	}
	if batches[0].Titles != nil {
		t.Fatal("List should not decode titles")
	}
	if _, err := store.Get(ctx, "batch-1"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected pruned batch to be gone, got %v", err)
	}
	b, err := store.Get(ctx, "batch-3")
	if err != nil || len(b.Titles) != 2 {
		t.Fatalf("Get = %+v, %v", b, err)
	}
}

func TestReopenKeepsBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Save(context.Background(), "kept", "sd", sampleTitles()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = history.Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	b, err := store.Latest(context.Background())
	if err != nil || b.ID != "kept" {
		t.Fatalf("Latest = %+v, %v", b, err)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	if _, err := history.Open(path, 0); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
