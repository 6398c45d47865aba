package cnmt

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"nxinfo/internal/title"
)

// ContentType is the role of one content entry listed in packaged metadata.
type ContentType uint8

const (
	ContentMeta ContentType = iota
	ContentProgram
	ContentData
	ContentControl
	ContentHTMLDocument
	ContentLegalInformation
	ContentDeltaFragment
)

var contentTypeNames = []string{"Meta", "Program", "Data", "Control", "HtmlDocument", "LegalInformation", "DeltaFragment"}

func (c ContentType) String() string {
	if int(c) < len(contentTypeNames) {
		return contentTypeNames[c]
	}
	return fmt.Sprintf("ContentType(%d)", uint8(c))
}

func parseContentType(name string) (ContentType, bool) {
	for i, n := range contentTypeNames {
		if n == name {
			return ContentType(i), true
		}
	}
	return 0, false
}

// Content is one (type, identifier) pair. ID is the hex content identifier
// exactly as it names the archive inside the container.
type Content struct {
	Type ContentType
	ID   string
}

// Filename is the archive name of the content inside a container.
func (c Content) Filename() string {
	return c.ID + ".nca"
}

// Record is a decoded content metadata record.
type Record struct {
	TitleID                    uint64
	Type                       title.Type
	Version                    uint32
	RequiredSystemVersion      uint32
	RequiredApplicationVersion uint32
	// KeyGenerationMin is only present in legacy XML sidecars.
	KeyGenerationMin    uint32
	HasKeyGenerationMin bool
	Contents            []Content
}

// TitleIDString returns the canonical title ID.
func (r Record) TitleIDString() string {
	return title.FormatTitleID(r.TitleID)
}

// Firmware maps the required system version through the firmware table.
func (r Record) Firmware() string {
	return title.Firmware(r.RequiredSystemVersion)
}

// MasterKey derives the key generation index from KeyGenerationMin.
func (r Record) MasterKey() (uint32, bool) {
	if !r.HasKeyGenerationMin {
		return 0, false
	}
	if r.KeyGenerationMin == 0 {
		return 0, true
	}
	return r.KeyGenerationMin - 1, true
}

// Primary returns the archive name of the content that represents the title
// itself: Program for applications and patches, Data for add-on content.
// When several entries qualify the last one wins.
func (r Record) Primary() (string, bool) {
	var want ContentType
	switch r.Type {
	case title.TypeApplication, title.TypePatch:
		want = ContentProgram
	case title.TypeAddOnContent:
		want = ContentData
	default:
		return "", false
	}
	return r.last(want)
}

// Control returns the archive name of the control content. Only
// applications and patches carry one.
func (r Record) Control() (string, bool) {
	if r.Type != title.TypeApplication && r.Type != title.TypePatch {
		return "", false
	}
	return r.last(ContentControl)
}

func (r Record) last(want ContentType) (string, bool) {
	name, found := "", false
	for _, c := range r.Contents {
		if c.Type == want {
			name, found = c.Filename(), true
		}
	}
	return name, found
}

// ErrMalformed is returned when a record cannot be decoded.
var ErrMalformed = errors.New("malformed content metadata")

type header struct {
	TitleID                    uint64
	Version                    uint32
	Type                       uint8
	_                          uint8
	ExtendedHeaderSize         uint16
	ContentCount               uint16
	ContentMetaCount           uint16
	Attributes                 uint8
	_                          [3]uint8
	RequiredDownloadSysVersion uint32
	_                          [4]uint8
}

type contentRecord struct {
	Hash     [0x20]byte
	ID       [0x10]byte
	Size     [6]byte
	Type     uint8
	IDOffset uint8
}

const maxContents = 0x1000

// Decode parses a binary packaged content metadata record.
func Decode(r io.Reader) (Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Record{}, fmt.Errorf("read content metadata: %w", err)
	}
	br := bytes.NewReader(data)

	var hdr header
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return Record{}, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if hdr.ContentCount > maxContents {
		return Record{}, fmt.Errorf("%w: %d contents", ErrMalformed, hdr.ContentCount)
	}
	rec := Record{TitleID: hdr.TitleID, Type: title.Type(hdr.Type), Version: hdr.Version}

	ext := make([]byte, hdr.ExtendedHeaderSize)
	if _, err := io.ReadFull(br, ext); err != nil {
		return Record{}, fmt.Errorf("%w: extended header: %v", ErrMalformed, err)
	}
	if len(ext) >= 0x10 {
		switch rec.Type {
		case title.TypeApplication, title.TypePatch:
			rec.RequiredSystemVersion = binary.LittleEndian.Uint32(ext[0x08:])
		case title.TypeAddOnContent:
			rec.RequiredApplicationVersion = binary.LittleEndian.Uint32(ext[0x08:])
		}
	}

	rec.Contents = make([]Content, 0, hdr.ContentCount)
	for i := range int(hdr.ContentCount) {
		var cr contentRecord
		if err := binary.Read(br, binary.LittleEndian, &cr); err != nil {
			return Record{}, fmt.Errorf("%w: content record %d: %v", ErrMalformed, i, err)
		}
		rec.Contents = append(rec.Contents, Content{Type: ContentType(cr.Type), ID: hex.EncodeToString(cr.ID[:])})
	}
	return rec, nil
}
