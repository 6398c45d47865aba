package container

import (
	"context"
	"encoding/hex"
	"io"
	"io/fs"
	"strings"
)

// ContentType is the kind declared in a content archive header.
type ContentType uint8

const (
	ContentProgram ContentType = iota
	ContentMeta
	ContentControl
	ContentManual
	ContentData
	ContentAocData
)

func (c ContentType) String() string {
	switch c {
	case ContentProgram:
		return "Program"
	case ContentMeta:
		return "Meta"
	case ContentControl:
		return "Control"
	case ContentManual:
		return "Manual"
	case ContentData:
		return "Data"
	case ContentAocData:
		return "AocData"
	default:
		return "Unknown"
	}
}

// ParseContentType accepts the names used by content archive tools.
func ParseContentType(name string) (ContentType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "program":
		return ContentProgram, true
	case "meta":
		return ContentMeta, true
	case "control":
		return ContentControl, true
	case "manual", "legalinformation", "htmldocument":
		return ContentManual, true
	case "data":
		return ContentData, true
	case "aocdata", "publicdata":
		return ContentAocData, true
	}
	return 0, false
}

// ContentHeader is the decrypted header of a content archive.
type ContentHeader struct {
	TitleID     uint64
	ContentType ContentType
	RightsID    [16]byte
	CryptoType  uint8
	CryptoType2 uint8
	// SignatureValid is the fixed-key header signature check result.
	SignatureValid bool
}

// HasRightsID reports whether the content needs a registered title key.
func (h ContentHeader) HasRightsID() bool {
	return h.RightsID != [16]byte{}
}

// RightsIDString renders the rights ID as 32 upper-case hex digits.
func (h ContentHeader) RightsIDString() string {
	return strings.ToUpper(hex.EncodeToString(h.RightsID[:]))
}

// SectionFirst holds main.npdm in program content, the packaged metadata in
// meta content and control.nacp in control content.
const SectionFirst = 0

// Content is an opened content archive. Decryption happens behind this
// interface; callers only see headers and nested filesystems.
type Content interface {
	Header() ContentHeader
	// OpenSection returns the filesystem of section index. Missing key
	// material is reported as a *keys.MissingKeyError.
	OpenSection(index int) (fs.FS, error)
	Close() error
}

// ContentOpener opens content archives found inside a container.
type ContentOpener interface {
	OpenContent(ctx context.Context, name string, r *io.SectionReader) (Content, error)
}
