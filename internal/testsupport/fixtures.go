package testsupport

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"
)

// File is one named blob placed in a partition fixture.
type File struct {
	Name string
	Data []byte
}

func le(buf *bytes.Buffer, v any) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func partition(magic string, files []File, entrySize int) []byte {
	var names bytes.Buffer
	nameOffsets := make([]uint32, len(files))
	for i, f := range files {
		nameOffsets[i] = uint32(names.Len())
		names.WriteString(f.Name)
		names.WriteByte(0)
	}
	for names.Len()%0x20 != 0 {
		names.WriteByte(0)
	}

	var out bytes.Buffer
	out.WriteString(magic)
	le(&out, uint32(len(files)))
	le(&out, uint32(names.Len()))
	le(&out, uint32(0))

	var offset uint64
	for i, f := range files {
		le(&out, offset)
		le(&out, uint64(len(f.Data)))
		le(&out, nameOffsets[i])
		out.Write(make([]byte, entrySize-20))
		offset += uint64(len(f.Data))
	}
	out.Write(names.Bytes())
	for _, f := range files {
		out.Write(f.Data)
	}
	return out.Bytes()
}

// PFS0 builds a PFS0 partition (digital package, meta section).
func PFS0(files ...File) []byte {
	return partition("PFS0", files, 0x18)
}

// HFS0 builds an HFS0 partition (cartridge partitions).
func HFS0(files ...File) []byte {
	return partition("HFS0", files, 0x40)
}

// CartridgePartitions lists the files of each cartridge partition. Nil
// partitions are left out of the root partition.
type CartridgePartitions struct {
	Update []File
	Normal []File
	Secure []File
	Logo   []File
}

// Cartridge builds a cartridge image with the given partitions.
func Cartridge(parts CartridgePartitions) []byte {
	var root []File
	for _, p := range []struct {
		name  string
		files []File
	}{
		{"update", parts.Update},
		{"normal", parts.Normal},
		{"secure", parts.Secure},
		{"logo", parts.Logo},
	} {
		if p.files == nil {
			continue
		}
		root = append(root, File{Name: p.name, Data: HFS0(p.files...)})
	}

	const rootOffset = 0x200
	out := make([]byte, rootOffset)
	copy(out[0x100:], "HEAD")
	binary.LittleEndian.PutUint64(out[0x130:], rootOffset)
	rootData := HFS0(root...)
	binary.LittleEndian.PutUint64(out[0x138:], uint64(len(rootData)))
	return append(out, rootData...)
}

// Homebrew builds a homebrew executable embedding nacp in its asset section.
func Homebrew(nacp []byte) []byte {
	const headerSize = 0x80
	out := make([]byte, headerSize)
	copy(out[0x10:], "NRO0")
	binary.LittleEndian.PutUint32(out[0x18:], headerSize)

	var assets bytes.Buffer
	assets.WriteString("ASET")
	le(&assets, uint32(0))
	le(&assets, [2]uint64{0, 0})
	le(&assets, [2]uint64{0x38, uint64(len(nacp))})
	le(&assets, [2]uint64{0, 0})
	assets.Write(nacp)
	return append(out, assets.Bytes()...)
}

// CnmtContent is one content record of a packaged metadata fixture.
type CnmtContent struct {
	Type uint8
	ID   string
}

// Content record types of packaged metadata.
const (
	CnmtMeta    uint8 = 0
	CnmtProgram uint8 = 1
	CnmtData    uint8 = 2
	CnmtControl uint8 = 3
)

// Cnmt describes a binary packaged content meta record.
type Cnmt struct {
	TitleID               uint64
	Version               uint32
	Type                  uint8
	RequiredSystemVersion uint32
	Contents              []CnmtContent
}

// Bytes encodes the record.
func (c Cnmt) Bytes(t testing.TB) []byte {
	t.Helper()
	var ext bytes.Buffer
	switch c.Type {
	case 0x81:
		le(&ext, c.TitleID&^0xFFF)
		le(&ext, c.RequiredSystemVersion)
		le(&ext, uint32(0))
		le(&ext, uint64(0))
	case 0x82:
		le(&ext, (c.TitleID&^0xFFF)-0x1000)
		le(&ext, c.RequiredSystemVersion)
		le(&ext, uint32(0))
	default:
		le(&ext, c.TitleID|0x800)
		le(&ext, c.RequiredSystemVersion)
		le(&ext, uint32(0))
	}

	var out bytes.Buffer
	le(&out, c.TitleID)
	le(&out, c.Version)
	le(&out, c.Type)
	le(&out, uint8(0))
	le(&out, uint16(ext.Len()))
	le(&out, uint16(len(c.Contents)))
	le(&out, uint16(0))
	out.Write(make([]byte, 0x20-out.Len()))
	out.Write(ext.Bytes())
	for _, content := range c.Contents {
		id, err := hex.DecodeString(content.ID)
		if err != nil || len(id) != 16 {
			t.Fatalf("content id %q: want 32 hex digits", content.ID)
		}
		out.Write(make([]byte, 0x20))
		out.Write(id)
		out.Write(make([]byte, 6))
		le(&out, content.Type)
		le(&out, uint8(0))
	}
	return out.Bytes()
}

// NACP builds a control property block with the given localized names and
// display version. Names beyond sixteen are ignored.
func NACP(displayVersion string, names ...string) []byte {
	out := make([]byte, 0x4000)
	for i, name := range names {
		if i >= 16 {
			break
		}
		copy(out[i*0x300:i*0x300+0x200], name)
		copy(out[i*0x300+0x200:i*0x300+0x300], "Publisher")
	}
	copy(out[0x3060:0x3070], displayVersion)
	return out
}

// NPDM builds a program descriptor declaring services and a filesystem
// permission bitmask in its ACID block.
func NPDM(services []string, fsPermissions uint64) []byte {
	const acidOffset = 0x80

	var fsAccess bytes.Buffer
	le(&fsAccess, uint8(1))
	fsAccess.Write([]byte{0, 0, 0})
	le(&fsAccess, fsPermissions)

	var svc bytes.Buffer
	for _, name := range services {
		svc.WriteByte(byte(len(name)-1) & 0x7)
		svc.WriteString(name)
	}

	acid := make([]byte, 0x240)
	copy(acid[0x200:], "ACID")
	fsOff := uint32(len(acid))
	svcOff := fsOff + uint32(fsAccess.Len())
	binary.LittleEndian.PutUint32(acid[0x220:], fsOff)
	binary.LittleEndian.PutUint32(acid[0x224:], uint32(fsAccess.Len()))
	binary.LittleEndian.PutUint32(acid[0x228:], svcOff)
	binary.LittleEndian.PutUint32(acid[0x22C:], uint32(svc.Len()))
	acid = append(acid, fsAccess.Bytes()...)
	acid = append(acid, svc.Bytes()...)
	binary.LittleEndian.PutUint32(acid[0x204:], uint32(len(acid)))

	header := make([]byte, acidOffset)
	copy(header, "META")
	binary.LittleEndian.PutUint32(header[0x78:], acidOffset)
	binary.LittleEndian.PutUint32(header[0x7C:], uint32(len(acid)))
	return append(header, acid...)
}

// Ticket builds a ticket carrying key in its title key field.
func Ticket(key [16]byte) []byte {
	out := make([]byte, 0x2C0)
	copy(out[0x180:], key[:])
	return out
}
