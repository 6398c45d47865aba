package hactool

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"nxinfo/internal/container"
	"nxinfo/internal/keys"
)

// report is the parsed header section of hactool's NCA output.
type report struct {
	header     container.ContentHeader
	hasTitleID bool
	hasType    bool
	// missing is the first console key the tool complained about. Title
	// key warnings are not recorded; the opener checks title keys itself.
	missing *keys.MissingKeyError
	invalid bool
}

var keyNamePattern = regexp.MustCompile(`\b((?:master_key|key_area_key_application|titlekek)_[0-9a-fA-F]{2})\b`)

// observe folds one output line into the report.
func (r *report) observe(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	lower := strings.ToLower(trimmed)

	if label, value, ok := splitField(trimmed); ok {
		r.field(label, value)
		return
	}

	switch {
	case strings.Contains(lower, "invalid nca header"):
		r.invalid = true
		r.miss(keys.KindCommon, "header_key")
	case strings.Contains(lower, "titlekey"):
	case strings.Contains(lower, "key"):
		if m := keyNamePattern.FindStringSubmatch(trimmed); m != nil {
			r.miss(keys.KindCommon, strings.ToLower(m[1]))
		}
	}
}

func (r *report) miss(kind keys.KeyKind, name string) {
	if r.missing == nil {
		r.missing = &keys.MissingKeyError{Kind: kind, Name: name}
	}
}

func (r *report) field(label, value string) {
	switch {
	case label == "Title ID":
		if id, err := strconv.ParseUint(value, 16, 64); err == nil {
			r.header.TitleID = id
			r.hasTitleID = true
		}
	case label == "Content Type":
		if ct, ok := container.ParseContentType(value); ok {
			r.header.ContentType = ct
			r.hasType = true
		}
	case label == "Rights ID":
		if raw, err := hex.DecodeString(value); err == nil && len(raw) == len(r.header.RightsID) {
			copy(r.header.RightsID[:], raw)
		}
	case label == "Master Key Revision":
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return
		}
		if rev, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 8); err == nil {
			r.header.CryptoType, r.header.CryptoType2 = cryptoTypes(uint8(rev))
		}
	case strings.HasPrefix(label, "Fixed-Key Signature"):
		r.header.SignatureValid = strings.Contains(label, "(GOOD)")
	}
}

// cryptoTypes maps a master key revision back to the two header crypto type
// bytes, so the builder can derive the revision the same way it does for
// archives decoded in-process.
func cryptoTypes(rev uint8) (uint8, uint8) {
	return 2, rev + 1
}

// splitField splits "Label:   value" lines. Lines whose label has no value
// (section headings such as "NCA:") are not fields.
func splitField(line string) (string, string, bool) {
	label, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)
	if label == "" || value == "" || strings.HasPrefix(label, "[") {
		return "", "", false
	}
	return label, value, true
}

// validate checks that the report describes a readable archive.
func (r *report) validate() error {
	if r.missing != nil && (r.invalid || !r.hasTitleID) {
		return r.missing
	}
	if !r.hasTitleID || !r.hasType {
		return fmt.Errorf("%w: header report incomplete", container.ErrMalformed)
	}
	return nil
}
