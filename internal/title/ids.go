package title

import (
	"fmt"
	"strconv"
	"strings"
)

// TitleIDLength is the number of hex digits in a canonical title ID.
const TitleIDLength = 16

// FormatTitleID renders a numeric title ID in canonical form.
func FormatTitleID(id uint64) string {
	return fmt.Sprintf("%016X", id)
}

// ParseTitleID parses a canonical or lower-case title ID, with or without a
// leading "0x".
func ParseTitleID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != TitleIDLength {
		return 0, fmt.Errorf("title id %q: want %d hex digits", s, TitleIDLength)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("title id %q: %w", s, err)
	}
	return v, nil
}

// NormalizeTitleID returns the canonical upper-case form of a title ID.
func NormalizeTitleID(s string) (string, error) {
	v, err := ParseTitleID(s)
	if err != nil {
		return "", err
	}
	return FormatTitleID(v), nil
}

// ApplicationTitleID masks the variant digits of a title ID. Inputs shorter
// than 13 digits are returned upper-cased and unchanged.
func ApplicationTitleID(id string) string {
	id = strings.ToUpper(id)
	if len(id) < TitleIDLength-3 {
		return id
	}
	return id[:TitleIDLength-3] + "000"
}

// PatchTitleID rewrites the last three digits of a title ID to the patch
// suffix.
func PatchTitleID(id string) string {
	id = strings.ToUpper(id)
	if len(id) < TitleIDLength-3 {
		return id
	}
	return id[:TitleIDLength-3] + "800"
}

// IsPatchTitleID reports whether a title ID carries the patch suffix.
func IsPatchTitleID(id string) bool {
	return strings.HasSuffix(strings.ToUpper(id), "800")
}
