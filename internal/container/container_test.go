package container_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"nxinfo/internal/container"
	"nxinfo/internal/testsupport"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want container.Kind
	}{
		{"cartridge", testsupport.Cartridge(testsupport.CartridgePartitions{Secure: []testsupport.File{}}), container.KindCartridge},
		{"digital", testsupport.PFS0(testsupport.File{Name: "a.nca", Data: []byte("x")}), container.KindDigital},
		{"homebrew", testsupport.Homebrew(testsupport.NACP("1.0")), container.KindHomebrew},
		{"empty", nil, container.KindUnknown},
		{"garbage", bytes.Repeat([]byte{0xEE}, 0x400), container.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := container.Classify(bytes.NewReader(tt.data), int64(len(tt.data)))
			if got != tt.want {
				t.Fatalf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadPFS0(t *testing.T) {
	data := testsupport.PFS0(
		testsupport.File{Name: "first.cnmt.nca", Data: []byte("meta")},
		testsupport.File{Name: "second.tik", Data: []byte("ticket-bytes")},
	)
	pfs, err := container.ReadPFS0(bytes.NewReader(data), 0, int64(len(data)))
	if err != nil {
		t.Fatalf("ReadPFS0: %v", err)
	}
	entries := pfs.Entries()
	if len(entries) != 2 || entries[0].Name != "first.cnmt.nca" || entries[1].Name != "second.tik" {
		t.Fatalf("entries = %+v", entries)
	}
	r, err := pfs.Open("second.tik")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(r)
	if string(got) != "ticket-bytes" {
		t.Fatalf("content = %q", got)
	}
	if _, err := pfs.Open("missing"); !errors.Is(err, container.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestReadPFS0RejectsHFS0(t *testing.T) {
	data := testsupport.HFS0(testsupport.File{Name: "a", Data: []byte("b")})
	if _, err := container.ReadPFS0(bytes.NewReader(data), 0, int64(len(data))); !errors.Is(err, container.ErrFormatMismatch) {
		t.Fatalf("expected ErrFormatMismatch, got %v", err)
	}
}

func TestReadPFS0RejectsOutOfRangeEntry(t *testing.T) {
	data := testsupport.PFS0(testsupport.File{Name: "a", Data: []byte("payload")})
	truncated := data[:len(data)-3]
	if _, err := container.ReadPFS0(bytes.NewReader(truncated), 0, int64(len(truncated))); !errors.Is(err, container.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestOpenCartridge(t *testing.T) {
	data := testsupport.Cartridge(testsupport.CartridgePartitions{
		Update: []testsupport.File{{Name: "update.nca", Data: []byte("u")}},
		Normal: []testsupport.File{},
		Secure: []testsupport.File{
			{Name: "abc.cnmt.nca", Data: []byte("meta")},
			{Name: "abc.cert", Data: []byte("cert")},
		},
	})
	xci, err := container.OpenCartridge(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenCartridge: %v", err)
	}
	if xci.Root.Len() != 3 {
		t.Fatalf("root entries = %d", xci.Root.Len())
	}
	if xci.Update.Len() != 1 || xci.Normal.Len() != 0 || xci.Logo != nil {
		t.Fatalf("unexpected partitions: update=%d normal=%d logo=%v", xci.Update.Len(), xci.Normal.Len(), xci.Logo)
	}
	r, err := xci.Secure.Open("abc.cert")
	if err != nil {
		t.Fatalf("open cert: %v", err)
	}
	got, _ := io.ReadAll(r)
	if string(got) != "cert" {
		t.Fatalf("cert = %q", got)
	}
}

func TestOpenCartridgeMismatch(t *testing.T) {
	data := testsupport.PFS0()
	if _, err := container.OpenCartridge(bytes.NewReader(data), int64(len(data))); !errors.Is(err, container.ErrFormatMismatch) {
		t.Fatalf("expected ErrFormatMismatch, got %v", err)
	}
}

func TestOpenHomebrew(t *testing.T) {
	nacp := testsupport.NACP("2.1", "Homebrew App")
	data := testsupport.Homebrew(nacp)
	nro, err := container.OpenHomebrew(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenHomebrew: %v", err)
	}
	r, err := nro.ControlProperties()
	if err != nil {
		t.Fatalf("ControlProperties: %v", err)
	}
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, nacp) {
		t.Fatal("control properties mismatch")
	}
}

func TestContentHeaderRightsID(t *testing.T) {
	var h container.ContentHeader
	if h.HasRightsID() {
		t.Fatal("zero rights id should not count")
	}
	h.RightsID[0] = 0x01
	h.RightsID[15] = 0x0A
	if !h.HasRightsID() {
		t.Fatal("expected rights id")
	}
	if h.RightsIDString() != "0100000000000000000000000000000A" {
		t.Fatalf("RightsIDString = %s", h.RightsIDString())
	}
}
