package container

import (
	"encoding/binary"
	"fmt"
	"io"
)

// cartridgeHeader is the plaintext part of a cartridge image header starting
// at offset 0x100.
type cartridgeHeader struct {
	Magic                [4]byte
	SecureAreaStart      uint32
	BackupAreaStart      uint32
	TitleKEKIndex        uint8
	GameCardSize         uint8
	Version              uint8
	Flags                uint8
	PackageID            uint64
	ValidDataEnd         uint64
	IV                   [0x10]byte
	PartitionFsOffset    uint64
	PartitionFsHeaderLen uint64
}

// Partition names inside the root partition of a cartridge image.
const (
	PartitionUpdate = "update"
	PartitionNormal = "normal"
	PartitionSecure = "secure"
	PartitionLogo   = "logo"
)

// Cartridge is an opened cartridge image. Partitions absent from the image
// are nil.
type Cartridge struct {
	Root   *PartitionFS
	Update *PartitionFS
	Normal *PartitionFS
	Secure *PartitionFS
	Logo   *PartitionFS
}

// OpenCartridge parses the partition layout of a cartridge image.
func OpenCartridge(r io.ReaderAt, size int64) (*Cartridge, error) {
	var hdr cartridgeHeader
	if err := binary.Read(io.NewSectionReader(r, cartridgeMagicOffset, size-cartridgeMagicOffset), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: cartridge header: %v", ErrFormatMismatch, err)
	}
	if string(hdr.Magic[:]) != "HEAD" {
		return nil, fmt.Errorf("%w: not a cartridge image", ErrFormatMismatch)
	}
	rootOffset := int64(hdr.PartitionFsOffset)
	if rootOffset <= 0 || rootOffset >= size {
		return nil, fmt.Errorf("%w: root partition offset 0x%x", ErrMalformed, rootOffset)
	}

	root, err := ReadHFS0(r, rootOffset, size-rootOffset)
	if err != nil {
		return nil, fmt.Errorf("root partition: %w", err)
	}
	c := &Cartridge{Root: root}
	for _, e := range root.Entries() {
		part, err := ReadHFS0(root.r, e.Offset, e.Size)
		if err != nil {
			return nil, fmt.Errorf("%s partition: %w", e.Name, err)
		}
		switch e.Name {
		case PartitionUpdate:
			c.Update = part
		case PartitionNormal:
			c.Normal = part
		case PartitionSecure:
			c.Secure = part
		case PartitionLogo:
			c.Logo = part
		}
	}
	return c, nil
}
