package scan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nxinfo/internal/builder"
	"nxinfo/internal/keys"
	"nxinfo/internal/scan"
	"nxinfo/internal/testsupport"
	"nxinfo/internal/title"
	"nxinfo/internal/versions"
)

func newRunner(opts ...scan.Option) *scan.Runner {
	opener := testsupport.NewFakeOpener()
	return scan.NewRunner(builder.New(keys.NewStore(), opener), opener, opts...)
}

func TestFilesProcessesInLexicalOrderWithProgress(t *testing.T) {
	dir := t.TempDir()
	b := testsupport.WriteFile(t, filepath.Join(dir, "b.nro"), testsupport.Homebrew(testsupport.NACP("2.0", "Beta")))
	a := testsupport.WriteFile(t, filepath.Join(dir, "a.nro"), testsupport.Homebrew(testsupport.NACP("1.0", "Alpha")))
	junk := testsupport.WriteFile(t, filepath.Join(dir, "c.nsp"), []byte("not a package at all"))

	var events []scan.Progress
	r := newRunner(scan.WithProgress(func(p scan.Progress) { events = append(events, p) }))
	res, err := r.Files(context.Background(), []string{junk, b, a})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if res.BatchID == "" {
		t.Fatal("expected a batch id")
	}
	if len(res.Titles) != 2 || res.Titles[0].TitleName != "Alpha" || res.Titles[1].TitleName != "Beta" {
		t.Fatalf("titles = %+v", res.Titles)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Path != junk || !errors.Is(res.Skipped[0].Err, builder.ErrUnrecognized) {
		t.Fatalf("skipped = %+v", res.Skipped)
	}

	if len(events) != 4 || !events[0].Indeterminate() || events[0].Total != 3 {
		t.Fatalf("progress = %+v", events)
	}
	for i, want := range []string{"a.nro", "b.nro", "c.nsp"} {
		got := events[i+1]
		if got.Index != i+1 || got.Total != 3 || got.Label != want {
			t.Fatalf("progress[%d] = %+v", i+1, got)
		}
	}
}

func TestFilesStopsBetweenContainersOnCancel(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"1.nro", "2.nro", "3.nro"} {
		paths = append(paths, testsupport.WriteFile(t, filepath.Join(dir, name), testsupport.Homebrew(testsupport.NACP("1.0", name))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := newRunner(scan.WithProgress(func(p scan.Progress) {
		if p.Index == 1 {
			cancel()
		}
	}))
	res, err := r.Files(ctx, paths)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !res.Canceled || len(res.Titles) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestDirectoryMatchesExtensionsCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "nested", "GAME.NRO"), testsupport.Homebrew(testsupport.NACP("1.0", "Upper")))
	testsupport.WriteFile(t, filepath.Join(dir, "readme.txt"), []byte("ignored"))

	res, err := newRunner().Directory(context.Background(), dir)
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if len(res.Titles) != 1 || res.Titles[0].TitleName != "Upper" || len(res.Skipped) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestInstalledWithoutDatabase(t *testing.T) {
	res, err := newRunner().Installed(context.Background(), t.TempDir())
	if !errors.Is(err, scan.ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}
	if res != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestInstalledEmptyDatabaseIsNotAnError(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Contents", "registered"), 0o755); err != nil {
		t.Fatal(err)
	}
	res, err := newRunner().Installed(context.Background(), root)
	if err != nil {
		t.Fatalf("Installed: %v", err)
	}
	if len(res.Titles) != 0 {
		t.Fatalf("titles = %+v", res.Titles)
	}
}

func TestRefreshCatalogAnnotatesNewerVersions(t *testing.T) {
	calls := 0
	source := versions.SourceFunc(func(context.Context) (versions.List, error) {
		calls++
		if calls > 1 {
			return versions.List{}, errors.New("offline")
		}
		return versions.List{Entries: []versions.Entry{
			{ID: "0100ABCD12345800", Version: 262144},
			{ID: "0100ABCD12346001", Version: 65536},
		}}, nil
	})
	catalog := versions.NewCatalog(source, "", nil)
	rec := versions.NewReconciler()
	r := newRunner(scan.WithCatalog(catalog), scan.WithReconciler(rec))

	base := &title.Title{TitleID: "0100ABCD12345000", Type: title.TypeApplication, Version: 0}
	current := &title.Title{TitleID: "0100ABCD12345800", Type: title.TypePatch, Version: 262144}
	current.SetLatestVersion(262144)
	dlc := &title.Title{TitleID: "0100ABCD12346001", Type: title.TypeAddOnContent, Version: 0}
	titles := []*title.Title{base, current, dlc}

	updated, err := r.RefreshCatalog(context.Background(), titles)
	if err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if updated != 1 || base.LatestVersion == nil || *base.LatestVersion != 262144 {
		t.Fatalf("updated = %d base latest = %v", updated, base.LatestVersion)
	}
	if dlc.LatestVersion != nil {
		t.Fatal("add-on content is not annotated from the catalog")
	}
	if best, ok := rec.Best("0100ABCD12345000"); !ok || best != 262144 {
		t.Fatalf("best = %d, %v", best, ok)
	}

	if _, err := r.RefreshCatalog(context.Background(), titles); !errors.Is(err, versions.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if v, ok := catalog.Lookup("0100ABCD12345000"); !ok || v != 262144 {
		t.Fatalf("failed refresh replaced the catalog: %d, %v", v, ok)
	}
}

func TestRefreshCatalogWithoutCatalog(t *testing.T) {
	if _, err := newRunner().RefreshCatalog(context.Background(), nil); !errors.Is(err, versions.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
