package cnmt

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"nxinfo/internal/textutil"
	"nxinfo/internal/title"
)

type xmlContent struct {
	Type string `xml:"Type"`
	ID   string `xml:"Id"`
}

type xmlContentMeta struct {
	XMLName               xml.Name     `xml:"ContentMeta"`
	Type                  string       `xml:"Type"`
	ID                    string       `xml:"Id"`
	Version               string       `xml:"Version"`
	RequiredSystemVersion string       `xml:"RequiredSystemVersion"`
	KeyGenerationMin      string       `xml:"KeyGenerationMin"`
	Contents              []xmlContent `xml:"Content"`
}

// DecodeXML parses a legacy ".cnmt.xml" sidecar.
func DecodeXML(r io.Reader) (Record, error) {
	data, err := textutil.SanitizeXML(r)
	if err != nil {
		return Record{}, fmt.Errorf("read content metadata xml: %w", err)
	}
	var doc xmlContentMeta
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var rec Record
	if t, ok := title.ParseType(strings.TrimSpace(doc.Type)); ok {
		rec.Type = t
	}
	rec.TitleID, err = title.ParseTitleID(doc.ID)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	version, err := strconv.ParseUint(strings.TrimSpace(doc.Version), 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("%w: version: %v", ErrMalformed, err)
	}
	rec.Version = uint32(version)

	if s := strings.TrimSpace(doc.RequiredSystemVersion); s != "" {
		rsv, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%w: required system version: %v", ErrMalformed, err)
		}
		rec.RequiredSystemVersion = uint32(rsv % (1 << 32))
	}
	if s := strings.TrimSpace(doc.KeyGenerationMin); s != "" {
		kg, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Record{}, fmt.Errorf("%w: key generation: %v", ErrMalformed, err)
		}
		rec.KeyGenerationMin = uint32(max(kg, 0))
		rec.HasKeyGenerationMin = true
	}

	for _, c := range doc.Contents {
		ct, ok := parseContentType(strings.TrimSpace(c.Type))
		if !ok {
			continue
		}
		rec.Contents = append(rec.Contents, Content{Type: ct, ID: strings.TrimSpace(c.ID)})
	}
	return rec, nil
}
