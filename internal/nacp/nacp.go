package nacp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"

	"nxinfo/internal/textutil"
)

const (
	languageCount     = 16
	entrySize         = 0x300
	nameSize          = 0x200
	publisherSize     = 0x100
	displayVersionOff = 0x3060
	displayVersionLen = 0x10
	// Size is the length of a control property block.
	Size = 0x4000
)

// Languages lists the localized entry order of a control property block.
var Languages = [languageCount]language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.Japanese,
	language.French,
	language.German,
	language.LatinAmericanSpanish,
	language.Spanish,
	language.Italian,
	language.Dutch,
	language.CanadianFrench,
	language.Portuguese,
	language.Russian,
	language.Korean,
	language.TraditionalChinese,
	language.SimplifiedChinese,
	language.BrazilianPortuguese,
}

// Description is one localized name entry.
type Description struct {
	Language  language.Tag
	Title     string
	Publisher string
}

// Properties is a decoded control property block.
type Properties struct {
	Descriptions   []Description
	DisplayVersion string
}

// Title returns the first non-empty localized title in table order.
func (p Properties) Title() string {
	for _, d := range p.Descriptions {
		if d.Title != "" {
			return d.Title
		}
	}
	return ""
}

// Localized returns the title for tag, falling back to Title.
func (p Properties) Localized(tag language.Tag) string {
	for _, d := range p.Descriptions {
		if d.Language == tag && d.Title != "" {
			return d.Title
		}
	}
	return p.Title()
}

// ErrTruncated is returned for blocks shorter than the fixed layout.
var ErrTruncated = errors.New("control properties truncated")

// Decode parses a binary control property block.
func Decode(r io.Reader) (Properties, error) {
	buf := make([]byte, displayVersionOff+displayVersionLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Properties{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	var p Properties
	for i := range languageCount {
		entry := buf[i*entrySize : (i+1)*entrySize]
		p.Descriptions = append(p.Descriptions, Description{
			Language:  Languages[i],
			Title:     textutil.CString(entry[:nameSize]),
			Publisher: textutil.CString(entry[nameSize : nameSize+publisherSize]),
		})
	}
	p.DisplayVersion = textutil.CString(buf[displayVersionOff : displayVersionOff+displayVersionLen])
	return p, nil
}

type xmlTitle struct {
	Language  string `xml:"Language"`
	Name      string `xml:"Name"`
	Publisher string `xml:"Publisher"`
}

type xmlApplication struct {
	XMLName        xml.Name   `xml:"Application"`
	Titles         []xmlTitle `xml:"Title"`
	DisplayVersion string     `xml:"DisplayVersion"`
}

// DecodeXML parses a legacy ".nacp.xml" sidecar. The name is taken from the
// first Title element.
func DecodeXML(r io.Reader) (Properties, error) {
	data, err := textutil.SanitizeXML(r)
	if err != nil {
		return Properties{}, fmt.Errorf("read control properties xml: %w", err)
	}
	var doc xmlApplication
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Properties{}, fmt.Errorf("parse control properties xml: %w", err)
	}
	p := Properties{DisplayVersion: strings.TrimSpace(doc.DisplayVersion)}
	for _, t := range doc.Titles {
		tag, _ := language.Parse(t.Language)
		p.Descriptions = append(p.Descriptions, Description{
			Language:  tag,
			Title:     strings.TrimSpace(t.Name),
			Publisher: strings.TrimSpace(t.Publisher),
		})
	}
	return p, nil
}

// FirstXMLTitle returns the name of the first Title element, empty or not.
func (p Properties) FirstXMLTitle() string {
	if len(p.Descriptions) == 0 {
		return ""
	}
	return p.Descriptions[0].Title
}
