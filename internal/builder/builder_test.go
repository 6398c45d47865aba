package builder_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"

	"nxinfo/internal/builder"
	"nxinfo/internal/container"
	"nxinfo/internal/installed"
	"nxinfo/internal/keys"
	"nxinfo/internal/testsupport"
	"nxinfo/internal/title"
)

const (
	appID   = 0x0100ABCD12345000
	patchID = 0x0100ABCD12345800
	aocID   = 0x0100ABCD12346001

	programID = "00112233445566778899aabbccddeeff"
	controlID = "ffeeddccbbaa99887766554433221100"
	dataID    = "0123456789abcdef0123456789abcdef"
	rightsHex = "0100abcd123450000000000000000005"
)

type catalog map[string]uint32

func (c catalog) Lookup(id string) (uint32, bool) {
	v, ok := c[id]
	return v, ok
}

func build(t *testing.T, b *builder.Builder, data []byte) *title.Title {
	t.Helper()
	got, err := b.Build(context.Background(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return got
}

func applicationMeta(t *testing.T, version uint32) []byte {
	t.Helper()
	return testsupport.Cnmt{
		TitleID:               appID,
		Version:               version,
		Type:                  0x80,
		RequiredSystemVersion: 336592896,
		Contents: []testsupport.CnmtContent{
			{Type: testsupport.CnmtProgram, ID: programID},
			{Type: testsupport.CnmtControl, ID: controlID},
		},
	}.Bytes(t)
}

func TestBuildCartridge(t *testing.T) {
	var titleKey [16]byte
	copy(titleKey[:], "0123456789abcdef")
	data := testsupport.Cartridge(testsupport.CartridgePartitions{
		Update: []testsupport.File{},
		Secure: []testsupport.File{
			{Name: "aaaa.cnmt.nca", Data: []byte("meta")},
			{Name: programID + ".nca", Data: []byte("program")},
			{Name: controlID + ".nca", Data: []byte("control")},
			{Name: rightsHex + ".tik", Data: testsupport.Ticket(titleKey)},
			{Name: rightsHex + ".cert", Data: []byte("cert")},
		},
	})

	opener := testsupport.NewFakeOpener().
		Add("aaaa.cnmt.nca", testsupport.MetaContent(appID, applicationMeta(t, 2))).
		Add(programID+".nca", testsupport.ProgramContent(appID, testsupport.NPDM([]string{"fsp-srv"}, 0x8000000000000000), true)).
		Add(controlID+".nca", testsupport.ControlContent(appID, testsupport.NACP("1.0.2", "", "Some Game")))
	store := keys.NewStore()
	b := builder.New(store, opener, builder.WithCatalog(catalog{"0100ABCD12345000": 393216}))

	got := build(t, b, data)
	if got.Type != title.TypeApplication || got.TitleID != "0100ABCD12345000" || got.Version != 2 {
		t.Fatalf("identity = %s %s v%d", got.Type, got.TitleID, got.Version)
	}
	if got.Distribution != title.DistributionCartridge {
		t.Fatalf("Distribution = %v", got.Distribution)
	}
	if got.Signature != title.SignatureValid {
		t.Fatalf("Signature = %v", got.Signature)
	}
	for _, flag := range []title.Structure{title.RootPartition, title.SecurePartition, title.CnmtNCA, title.Cert, title.Tik} {
		if !got.Structure.Has(flag) {
			t.Fatalf("Structure %v lacks %v", got.Structure, flag.String())
		}
	}
	if got.Structure.Has(title.UpdatePartition) || got.Structure.Has(title.LogoPartition) {
		t.Fatalf("empty partitions recorded: %v", got.Structure)
	}
	if got.TitleName != "Some Game" || got.DisplayVersion != "1.0.2" {
		t.Fatalf("name = %q display = %q", got.TitleName, got.DisplayVersion)
	}
	if got.Firmware != "5.1.0" {
		t.Fatalf("Firmware = %q", got.Firmware)
	}
	if got.Permission != title.PermissionUnsafe {
		t.Fatalf("Permission = %v", got.Permission)
	}
	if got.LatestVersion == nil || *got.LatestVersion != 393216 {
		t.Fatalf("LatestVersion = %v", got.LatestVersion)
	}
	if got.Error != "" {
		t.Fatalf("Error = %q", got.Error)
	}
	if key, ok := store.TitleKey(rightsHex); !ok || key != titleKey {
		t.Fatalf("ticket key = %x, %v", key, ok)
	}
	if opened := opener.Opened(); !slices.Equal(opened, []string{"aaaa.cnmt.nca", programID + ".nca", controlID + ".nca"}) {
		t.Fatalf("opened = %v", opened)
	}
}

const aocSidecar = `<?xml version="1.0" encoding="utf-8"?>
<ContentMeta>
  <Type>AddOnContent</Type>
  <Id>0x0100abcd12346001</Id>
  <Version>65536</Version>
  <RequiredSystemVersion>0</RequiredSystemVersion>
  <Content>
    <Type>Data</Type>
    <Id>` + dataID + `</Id>
  </Content>
  <KeyGenerationMin>3</KeyGenerationMin>
</ContentMeta>`

func TestBuildPackageAddOnFromSidecar(t *testing.T) {
	data := testsupport.PFS0(
		testsupport.File{Name: dataID + ".cnmt.xml", Data: []byte(aocSidecar)},
		testsupport.File{Name: dataID + ".nca", Data: []byte("data")},
		testsupport.File{Name: "cardspec.xml", Data: []byte("<x/>")},
	)
	opener := testsupport.NewFakeOpener().Add(dataID+".nca", &testsupport.FakeContent{
		Hdr: container.ContentHeader{TitleID: aocID, ContentType: container.ContentAocData, SignatureValid: true},
	})
	store := keys.NewStore()
	store.SetTitleInfo("0100ABCD123460000000000000000000", keys.TitleInfo{Name: "Some Game"})
	b := builder.New(store, opener, builder.WithCatalog(catalog{"0100ABCD12345000": 1}))

	got := build(t, b, data)
	if got.Type != title.TypeAddOnContent || got.TitleID != "0100ABCD12346001" || got.Version != 65536 {
		t.Fatalf("identity = %s %s v%d", got.Type, got.TitleID, got.Version)
	}
	if got.TitleName != "Some Game [DLC]" {
		t.Fatalf("TitleName = %q", got.TitleName)
	}
	if !got.Structure.Has(title.CnmtXML) || got.Structure.Has(title.CnmtNCA) || !got.Structure.Has(title.CardspecXML) {
		t.Fatalf("Structure = %v", got.Structure)
	}
	if got.Distribution != title.DistributionDigital || got.Signature != title.SignatureValid {
		t.Fatalf("distribution %v signature %v", got.Distribution, got.Signature)
	}
	if got.MasterKey != 0 {
		t.Fatalf("MasterKey = %d, want crypto-type derived 0", got.MasterKey)
	}
	if got.LatestVersion != nil {
		t.Fatalf("add-on content must not take a catalog version, got %d", *got.LatestVersion)
	}
	if got.Permission != title.PermissionUnset {
		t.Fatalf("Permission = %v", got.Permission)
	}
}

func TestBuildPackageSelectsGreatestVersion(t *testing.T) {
	const otherProgram = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	v3 := testsupport.Cnmt{TitleID: appID, Version: 3, Type: 0x81, Contents: []testsupport.CnmtContent{
		{Type: testsupport.CnmtProgram, ID: otherProgram},
		{Type: testsupport.CnmtControl, ID: controlID},
	}}.Bytes(t)
	v5 := applicationMeta(t, 5)

	for _, order := range [][2]string{{"v3", "v5"}, {"v5", "v3"}} {
		t.Run(order[0]+"_first", func(t *testing.T) {
			metas := map[string][]byte{"v3": v3, "v5": v5}
			opener := testsupport.NewFakeOpener().
				Add("first.cnmt.nca", testsupport.MetaContent(appID, metas[order[0]])).
				Add("second.cnmt.nca", testsupport.MetaContent(appID, metas[order[1]])).
				Add(programID+".nca", testsupport.ProgramContent(appID, testsupport.NPDM(nil, 0), true)).
				Add(otherProgram+".nca", testsupport.ProgramContent(appID, testsupport.NPDM(nil, 0), false)).
				Add(controlID+".nca", testsupport.ControlContent(appID, testsupport.NACP("5.0", "Game")))
			data := testsupport.PFS0(
				testsupport.File{Name: "first.cnmt.nca", Data: []byte("a")},
				testsupport.File{Name: "second.cnmt.nca", Data: []byte("b")},
				testsupport.File{Name: programID + ".nca", Data: []byte("p")},
				testsupport.File{Name: otherProgram + ".nca", Data: []byte("o")},
				testsupport.File{Name: controlID + ".nca", Data: []byte("c")},
			)
			got := build(t, builder.New(keys.NewStore(), opener), data)
			if got.Version != 5 || got.Type != title.TypeApplication {
				t.Fatalf("selected %s v%d", got.Type, got.Version)
			}
			if slices.Contains(opener.Opened(), otherProgram+".nca") {
				t.Fatalf("primary of the losing record was opened: %v", opener.Opened())
			}
			if got.Signature != title.SignatureValid || got.Permission != title.PermissionSafe {
				t.Fatalf("signature %v permission %v", got.Signature, got.Permission)
			}
		})
	}
}

func TestBuildRecordsMissingKeyAndContinues(t *testing.T) {
	control := testsupport.ControlContent(appID, nil)
	control.SectionErrs = map[int]error{container.SectionFirst: &keys.MissingKeyError{Kind: keys.KindCommon, Name: "key_area_key_application_05"}}
	patchMeta := testsupport.Cnmt{TitleID: patchID, Version: 65536, Type: 0x81, Contents: []testsupport.CnmtContent{
		{Type: testsupport.CnmtProgram, ID: programID},
		{Type: testsupport.CnmtControl, ID: controlID},
	}}.Bytes(t)

	opener := testsupport.NewFakeOpener().
		Add("meta.cnmt.nca", testsupport.MetaContent(patchID, patchMeta)).
		Add(programID+".nca", testsupport.ProgramContent(appID, testsupport.NPDM([]string{"hid"}, 0xFFFFFFFFFFFFFFFF), true)).
		Add(controlID+".nca", control)
	data := testsupport.PFS0(
		testsupport.File{Name: "meta.cnmt.nca", Data: []byte("m")},
		testsupport.File{Name: programID + ".nca", Data: []byte("p")},
		testsupport.File{Name: controlID + ".nca", Data: []byte("c")},
	)

	got := build(t, builder.New(keys.NewStore(), opener), data)
	if got.Error != "Missing Key: master_key_05" {
		t.Fatalf("Error = %q", got.Error)
	}
	if got.TitleID != "0100ABCD12345800" {
		t.Fatalf("TitleID = %q, want the patch form of the control header ID", got.TitleID)
	}
	if got.Permission != title.PermissionSafe || got.Signature != title.SignatureValid {
		t.Fatalf("permission %v signature %v", got.Permission, got.Signature)
	}
}

func TestBuildDropsContainerOnEarlyMissingKey(t *testing.T) {
	opener := testsupport.NewFakeOpener().Fail("meta.cnmt.nca", &keys.MissingKeyError{Kind: keys.KindCommon, Name: "header_key"})
	data := testsupport.PFS0(testsupport.File{Name: "meta.cnmt.nca", Data: []byte("m")})

	b := builder.New(keys.NewStore(), opener)
	_, err := b.Build(context.Background(), bytes.NewReader(data), int64(len(data)))
	if !keys.IsMissingKey(err) {
		t.Fatalf("expected a missing key error, got %v", err)
	}
}

func TestBuildSignatureOnlyForPairedContent(t *testing.T) {
	opener := testsupport.NewFakeOpener().
		Add("meta.cnmt.nca", testsupport.MetaContent(appID, applicationMeta(t, 0))).
		Add(programID+".nca", &testsupport.FakeContent{Hdr: container.ContentHeader{
			TitleID: appID, ContentType: container.ContentData, SignatureValid: true, CryptoType: 2, CryptoType2: 6,
		}}).
		Add(controlID+".nca", testsupport.ControlContent(appID, testsupport.NACP("1.0", "Game")))
	data := testsupport.PFS0(
		testsupport.File{Name: "meta.cnmt.nca", Data: []byte("m")},
		testsupport.File{Name: programID + ".nca", Data: []byte("p")},
		testsupport.File{Name: controlID + ".nca", Data: []byte("c")},
	)

	got := build(t, builder.New(keys.NewStore(), opener), data)
	if got.Signature != title.SignatureUnknown || got.MasterKey != 0 || got.Permission != title.PermissionUnset {
		t.Fatalf("unpaired content leaked: signature %v masterkey %d permission %v", got.Signature, got.MasterKey, got.Permission)
	}
}

func TestBuildRightsProtectedName(t *testing.T) {
	var rights [16]byte
	copy(rights[:], []byte{0x01, 0x00, 0xAB, 0xCD, 0x12, 0x34, 0x50, 0x00, 0, 0, 0, 0, 0, 0, 0, 0x05})
	program := testsupport.ProgramContent(appID, testsupport.NPDM(nil, 0xFFFFFFFFFFFFFFFF), true)
	program.Hdr.RightsID = rights
	program.Hdr.CryptoType = 2
	program.Hdr.CryptoType2 = 5

	opener := testsupport.NewFakeOpener().
		Add("meta.cnmt.nca", testsupport.MetaContent(appID, applicationMeta(t, 0))).
		Add(programID+".nca", program).
		Add(controlID+".nca", testsupport.ControlContent(appID, testsupport.NACP("1.0.0")))
	store := keys.NewStore()
	store.SetTitleInfo(rightsHex, keys.TitleInfo{Name: "Protected Game", Version: 131072, HasVersion: true})
	data := testsupport.PFS0(
		testsupport.File{Name: "meta.cnmt.nca", Data: []byte("m")},
		testsupport.File{Name: programID + ".nca", Data: []byte("p")},
		testsupport.File{Name: controlID + ".nca", Data: []byte("c")},
	)

	got := build(t, builder.New(store, opener), data)
	if got.TitleName != "Protected Game" {
		t.Fatalf("TitleName = %q", got.TitleName)
	}
	if got.LatestVersion == nil || *got.LatestVersion != 131072 {
		t.Fatalf("LatestVersion = %v", got.LatestVersion)
	}
	if got.MasterKey != 4 || got.Permission != title.PermissionDangerous {
		t.Fatalf("masterkey %d permission %v", got.MasterKey, got.Permission)
	}
}

func TestBuildHomebrew(t *testing.T) {
	data := testsupport.Homebrew(testsupport.NACP("0.9.1", "Homebrew App"))
	got := build(t, builder.New(nil, testsupport.NewFakeOpener()), data)
	if got.Distribution != title.DistributionHomebrew || got.TitleName != "Homebrew App" || got.DisplayVersion != "0.9.1" {
		t.Fatalf("homebrew = %+v", got)
	}
	if got.TitleID != "" || got.Signature != title.SignatureUnknown || got.Permission != title.PermissionUnset {
		t.Fatalf("homebrew must carry no identity: %+v", got)
	}
}

func TestBuildUnrecognized(t *testing.T) {
	b := builder.New(nil, testsupport.NewFakeOpener())
	data := bytes.Repeat([]byte{0x11}, 0x400)
	if _, err := b.Build(context.Background(), bytes.NewReader(data), int64(len(data))); !errors.Is(err, builder.ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized, got %v", err)
	}
}

func TestBuildFromFileSetsFileFields(t *testing.T) {
	data := testsupport.Homebrew(testsupport.NACP("1.0", "Tool"))
	path := filepath.Join(t.TempDir(), "tool.nro")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := builder.New(nil, testsupport.NewFakeOpener()).BuildFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("BuildFromFile: %v", err)
	}
	if got.Filename != path || got.Filesize != int64(len(data)) {
		t.Fatalf("file fields = %q %d", got.Filename, got.Filesize)
	}
}

func TestBuildInstalledPatch(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) installed.Content {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		return installed.Content{Name: name, Path: p, Size: int64(len(name))}
	}
	program := write(programID + ".nca")
	program.Type = container.ContentProgram
	meta := write("meta.nca")
	meta.Type = container.ContentMeta
	control := write(controlID + ".nca")
	control.Type = container.ContentControl

	patchMeta := testsupport.Cnmt{TitleID: patchID, Version: 196608, Type: 0x81, RequiredSystemVersion: 336592896}.Bytes(t)
	opener := testsupport.NewFakeOpener().
		Add(programID+".nca", testsupport.ProgramContent(appID, testsupport.NPDM(nil, 0), true)).
		Add("meta.nca", &testsupport.FakeContent{
			Hdr:      container.ContentHeader{TitleID: patchID, ContentType: container.ContentMeta},
			Sections: map[int]fstest.MapFS{container.SectionFirst: {"Patch_0100abcd12345800.cnmt": {Data: patchMeta}}},
		}).
		Add(controlID+".nca", testsupport.ControlContent(appID, testsupport.NACP("3.0.0", "Some Game")))

	it := &installed.Title{ID: appID, Type: title.TypePatch, HasMeta: true, Contents: []installed.Content{program, meta, control}}
	b := builder.New(keys.NewStore(), opener, builder.WithCatalog(catalog{"0100ABCD12345000": 262144}))
	got := b.BuildInstalled(context.Background(), it)

	if got.TitleID != "0100ABCD12345800" || got.Type != title.TypePatch || got.Version != 196608 {
		t.Fatalf("identity = %s %s v%d", got.Type, got.TitleID, got.Version)
	}
	if got.Distribution != title.DistributionFilesystem || got.Filename != programID+".nca" {
		t.Fatalf("distribution %v filename %q", got.Distribution, got.Filename)
	}
	if got.Filesize != it.Size() || got.Firmware != "5.1.0" {
		t.Fatalf("filesize %d firmware %q", got.Filesize, got.Firmware)
	}
	if got.TitleName != "Some Game" || got.Signature != title.SignatureValid {
		t.Fatalf("name %q signature %v", got.TitleName, got.Signature)
	}
	if got.LatestVersion == nil || *got.LatestVersion != 262144 {
		t.Fatalf("LatestVersion = %v", got.LatestVersion)
	}
}
