package container

import (
	"encoding/binary"
	"fmt"
	"io"

	"nxinfo/internal/textutil"
)

var (
	magicPFS0 = [4]byte{'P', 'F', 'S', '0'}
	magicHFS0 = [4]byte{'H', 'F', 'S', '0'}
)

// partitionHeader is shared by PFS0 and HFS0 partitions.
type partitionHeader struct {
	Magic           [4]byte
	FileCount       uint32
	StringTableSize uint32
	Reserved        uint32
}

type pfs0Entry struct {
	Offset     uint64
	Size       uint64
	NameOffset uint32
	Reserved   uint32
}

type hfs0Entry struct {
	Offset     uint64
	Size       uint64
	NameOffset uint32
	HashedSize uint32
	Reserved   uint64
	Hash       [0x20]byte
}

// maxPartitionEntries bounds the entry table so corrupt headers cannot
// trigger huge allocations.
const maxPartitionEntries = 0x10000

// Entry is one named file inside a partition filesystem.
type Entry struct {
	Name   string
	Offset int64
	Size   int64
}

// PartitionFS is a flat, ordered list of named files backed by a byte range.
type PartitionFS struct {
	r       io.ReaderAt
	entries []Entry
	byName  map[string]int
}

// Entries returns the files in on-disk order.
func (p *PartitionFS) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of files.
func (p *PartitionFS) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Lookup finds a file by exact name.
func (p *PartitionFS) Lookup(name string) (Entry, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Entry{}, false
	}
	return p.entries[i], true
}

// OpenEntry returns a reader over one file.
func (p *PartitionFS) OpenEntry(e Entry) *io.SectionReader {
	return io.NewSectionReader(p.r, e.Offset, e.Size)
}

// Open returns a reader over the named file.
func (p *PartitionFS) Open(name string) (*io.SectionReader, error) {
	e, ok := p.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
	}
	return p.OpenEntry(e), nil
}

// ReadPFS0 parses a PFS0 partition starting at offset base of r.
func ReadPFS0(r io.ReaderAt, base, size int64) (*PartitionFS, error) {
	return readPartition(r, base, size, magicPFS0)
}

// ReadHFS0 parses an HFS0 partition starting at offset base of r.
func ReadHFS0(r io.ReaderAt, base, size int64) (*PartitionFS, error) {
	return readPartition(r, base, size, magicHFS0)
}

func readPartition(r io.ReaderAt, base, size int64, magic [4]byte) (*PartitionFS, error) {
	sr := io.NewSectionReader(r, base, size)

	var hdr partitionHeader
	if err := binary.Read(sr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: partition header: %v", ErrFormatMismatch, err)
	}
	if hdr.Magic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormatMismatch, hdr.Magic[:])
	}
	if hdr.FileCount > maxPartitionEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrMalformed, hdr.FileCount)
	}

	type rawEntry struct {
		offset, size uint64
		nameOffset   uint32
	}
	raw := make([]rawEntry, 0, hdr.FileCount)
	entrySize := int64(binary.Size(pfs0Entry{}))
	if magic == magicHFS0 {
		entrySize = int64(binary.Size(hfs0Entry{}))
	}
	for range hdr.FileCount {
		if magic == magicHFS0 {
			var e hfs0Entry
			if err := binary.Read(sr, binary.LittleEndian, &e); err != nil {
				return nil, fmt.Errorf("%w: entry table: %v", ErrMalformed, err)
			}
			raw = append(raw, rawEntry{e.Offset, e.Size, e.NameOffset})
		} else {
			var e pfs0Entry
			if err := binary.Read(sr, binary.LittleEndian, &e); err != nil {
				return nil, fmt.Errorf("%w: entry table: %v", ErrMalformed, err)
			}
			raw = append(raw, rawEntry{e.Offset, e.Size, e.NameOffset})
		}
	}

	names := make([]byte, hdr.StringTableSize)
	if _, err := io.ReadFull(sr, names); err != nil {
		return nil, fmt.Errorf("%w: string table: %v", ErrMalformed, err)
	}

	dataStart := int64(binary.Size(partitionHeader{})) + entrySize*int64(hdr.FileCount) + int64(hdr.StringTableSize)
	p := &PartitionFS{
		r:       sr,
		entries: make([]Entry, 0, len(raw)),
		byName:  make(map[string]int, len(raw)),
	}
	for _, e := range raw {
		name, err := cString(names, e.nameOffset)
		if err != nil {
			return nil, err
		}
		entry := Entry{Name: name, Offset: dataStart + int64(e.offset), Size: int64(e.size)}
		if entry.Offset < 0 || entry.Size < 0 || (size > 0 && entry.Offset+entry.Size > size) {
			return nil, fmt.Errorf("%w: entry %q out of range", ErrMalformed, name)
		}
		p.byName[name] = len(p.entries)
		p.entries = append(p.entries, entry)
	}
	return p, nil
}

func cString(table []byte, offset uint32) (string, error) {
	if int(offset) >= len(table) {
		return "", fmt.Errorf("%w: name offset %d", ErrMalformed, offset)
	}
	return textutil.CString(table[offset:]), nil
}
