package cnmt

import (
	"fmt"
	"io/fs"
)

// Selector keeps the winning record among several decoded for one title.
// The first record offered wins, and later records replace it only with a
// strictly greater version.
type Selector struct {
	current Record
	set     bool
}

// Offer considers rec and reports whether it became the current record.
func (s *Selector) Offer(rec Record) bool {
	if s.set && rec.Version <= s.current.Version {
		return false
	}
	s.current = rec
	s.set = true
	return true
}

// Current returns the winning record so far.
func (s *Selector) Current() (Record, bool) {
	return s.current, s.set
}

// DecodeSection decodes every packaged metadata file at the root of a meta
// content section, in directory order.
func DecodeSection(fsys fs.FS) ([]Record, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list meta section: %w", err)
	}
	var records []Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := fsys.Open(e.Name())
		if err != nil {
			return records, fmt.Errorf("open %s: %w", e.Name(), err)
		}
		rec, err := Decode(f)
		f.Close()
		if err != nil {
			return records, fmt.Errorf("%s: %w", e.Name(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}
