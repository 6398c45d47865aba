package container

import (
	"bytes"
	"io"
)

// Kind is the result of classifying a top-level container.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindCartridge
	KindDigital
	KindHomebrew
)

func (k Kind) String() string {
	switch k {
	case KindCartridge:
		return "cartridge"
	case KindDigital:
		return "digital"
	case KindHomebrew:
		return "homebrew"
	default:
		return "unknown"
	}
}

const (
	cartridgeMagicOffset = 0x100
	homebrewMagicOffset  = 0x10
)

// Classify inspects the magic values of a container. It never fails; input
// that matches no format is KindUnknown.
func Classify(r io.ReaderAt, size int64) Kind {
	if hasMagic(r, size, cartridgeMagicOffset, []byte("HEAD")) {
		return KindCartridge
	}
	if hasMagic(r, size, 0, magicPFS0[:]) {
		return KindDigital
	}
	if hasMagic(r, size, homebrewMagicOffset, []byte("NRO0")) {
		return KindHomebrew
	}
	return KindUnknown
}

func hasMagic(r io.ReaderAt, size, offset int64, magic []byte) bool {
	if size < offset+int64(len(magic)) {
		return false
	}
	buf := make([]byte, len(magic))
	if _, err := r.ReadAt(buf, offset); err != nil {
		return false
	}
	return bytes.Equal(buf, magic)
}
