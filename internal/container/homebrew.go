package container

import (
	"encoding/binary"
	"fmt"
	"io"
)

// homebrewHeader follows the 0x10-byte start block of a homebrew executable.
type homebrewHeader struct {
	Magic    [4]byte
	Version  uint32
	Size     uint32
	Flags    uint32
	Segments [3][2]uint32
	BSSSize  uint32
	Reserved uint32
	BuildID  [0x20]byte
}

type assetSection struct {
	Offset uint64
	Size   uint64
}

type assetHeader struct {
	Magic   [4]byte
	Version uint32
	Icon    assetSection
	NACP    assetSection
	RomFS   assetSection
}

// Homebrew is an opened homebrew executable with its asset section.
type Homebrew struct {
	r         io.ReaderAt
	assetBase int64
	assets    assetHeader
}

// OpenHomebrew parses the header and asset section of a homebrew executable.
func OpenHomebrew(r io.ReaderAt, size int64) (*Homebrew, error) {
	var hdr homebrewHeader
	if err := binary.Read(io.NewSectionReader(r, homebrewMagicOffset, size-homebrewMagicOffset), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: homebrew header: %v", ErrFormatMismatch, err)
	}
	if string(hdr.Magic[:]) != "NRO0" {
		return nil, fmt.Errorf("%w: not a homebrew executable", ErrFormatMismatch)
	}
	h := &Homebrew{r: r, assetBase: int64(hdr.Size)}
	if h.assetBase >= size {
		return h, nil
	}
	if err := binary.Read(io.NewSectionReader(r, h.assetBase, size-h.assetBase), binary.LittleEndian, &h.assets); err != nil {
		return nil, fmt.Errorf("%w: asset header: %v", ErrMalformed, err)
	}
	if string(h.assets.Magic[:]) != "ASET" {
		h.assets = assetHeader{}
	}
	return h, nil
}

// HasControlProperties reports whether the asset section embeds a control
// property block.
func (h *Homebrew) HasControlProperties() bool {
	return h.assets.NACP.Size > 0
}

// ControlProperties returns a reader over the embedded control property
// block.
func (h *Homebrew) ControlProperties() (*io.SectionReader, error) {
	if !h.HasControlProperties() {
		return nil, fmt.Errorf("control properties: %w", ErrEntryNotFound)
	}
	return io.NewSectionReader(h.r, h.assetBase+int64(h.assets.NACP.Offset), int64(h.assets.NACP.Size)), nil
}
