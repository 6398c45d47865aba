package textutil

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SanitizeXML strips a leading UTF-8 byte order mark and escapes every "&".
// Authoring tools write bare ampersands into names, which strict parsers
// reject.
func SanitizeXML(r io.Reader) ([]byte, error) {
	decoded, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, err
	}
	return bytes.ReplaceAll(decoded, []byte("&"), []byte("&amp;")), nil
}

// CString returns the NUL-terminated prefix of a fixed-width field with
// surrounding whitespace removed.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
