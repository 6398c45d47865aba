package keys

import (
	"errors"
	"fmt"
	"strings"
)

// KeyKind distinguishes console keys from per-title content keys.
type KeyKind uint8

const (
	KindCommon KeyKind = iota
	KindTitle
)

// MissingKeyError reports that decoding needed key material the store does
// not hold.
type MissingKeyError struct {
	Kind KeyKind
	Name string
}

func (e *MissingKeyError) Error() string {
	label := "Key"
	if e.Kind == KindTitle {
		label = "Title Key"
	}
	return fmt.Sprintf("Missing %s: %s", label, strings.ReplaceAll(e.Name, "key_area_key_application", "master_key"))
}

// IsMissingKey reports whether err wraps a MissingKeyError.
func IsMissingKey(err error) bool {
	var mk *MissingKeyError
	return errors.As(err, &mk)
}

// ErrKeyFileNotFound is returned when the console key file does not exist.
var ErrKeyFileNotFound = errors.New("key file not found")
