package export_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nxinfo/internal/export"
	"nxinfo/internal/title"
)

var fixedNow = func() time.Time { return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC) }

func sample() []*title.Title {
	patch := title.New(title.DistributionDigital)
	patch.TitleID = "0100ABCD12345800"
	patch.TitleName = "Sample | Deluxe"
	patch.DisplayVersion = "1.2.0"
	patch.Type = title.TypePatch
	patch.Version = 262144
	patch.SetLatestVersion(327680)
	patch.Firmware = "9.1.0"
	patch.MasterKey = 2
	patch.Filename = "sample.nsp"
	patch.Filesize = 2048
	patch.Structure = title.CnmtNCA | title.Tik
	patch.Signature = title.SignatureValid
	patch.Permission = title.PermissionSafe

	hb := title.New(title.DistributionHomebrew)
	hb.TitleName = "Tool"
	hb.DisplayVersion = "0.3"
	hb.Filename = "tool.nro"
	hb.Filesize = 100
	return []*title.Title{patch, hb}
}

func TestLineColumns(t *testing.T) {
	titles := sample()
	got := export.Line(titles[0])
	fields := strings.Split(got, "|")
	if len(fields) != len(export.Columns) {
		t.Fatalf("got %d fields, want %d: %q", len(fields), len(export.Columns), got)
	}
	want := []string{
		"0100ABCD12345800", "Sample / Deluxe", "1.2.0", "262144", "327680", "9.1.0",
		title.MasterKeyLabel(2), "sample.nsp", "2.0 KiB", "Update", "Digital",
		"CnmtNca, Tik", "Passed", "Safe", "",
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("%s = %q, want %q", export.Columns[i], fields[i], want[i])
		}
	}

	hb := strings.Split(export.Line(titles[1]), "|")
	if hb[3] != "" || hb[4] != "" || hb[6] != "" || hb[10] != "Homebrew" {
		t.Fatalf("homebrew line = %q", hb)
	}
}

func TestWriteBannerAndSummary(t *testing.T) {
	var buf bytes.Buffer
	n, err := export.Write(context.Background(), &buf, sample(), export.Options{Product: "nxinfo", Version: "1.0.0", Now: fixedNow})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 2 {
		t.Fatalf("written = %d", n)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "nxinfo 1.0.0" {
		t.Fatalf("banner = %q", lines[0])
	}
	if lines[3] != "Export titles starts at Tuesday, March 5, 2024 2:07:09 PM" {
		t.Fatalf("timestamp line = %q", lines[3])
	}
	if !strings.HasPrefix(lines[5], "0100ABCD12345800|") {
		t.Fatalf("first title line = %q", lines[5])
	}
	if last := lines[len(lines)-1]; last != "2 of 2 titles exported" {
		t.Fatalf("summary = %q", last)
	}
}

func TestWriteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	n, err := export.Write(ctx, &buf, sample(), export.Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 0 || !strings.HasSuffix(buf.String(), "0 of 2 titles exported\n") {
		t.Fatalf("n = %d output = %q", n, buf.String())
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "titles.txt")
	if _, err := export.WriteFile(context.Background(), path, sample(), export.Options{Now: fixedNow}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "tool.nro") {
		t.Fatalf("export missing homebrew title: %q", data)
	}
}
