package keys

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// RequiredKeys lists console keys that must be present for content headers
// to be readable. The last two entries are alternatives.
var RequiredKeys = []string{
	"header_key",
	"aes_kek_generation_source",
	"aes_key_generation_source",
	"key_area_key_application_source",
}

var masterKeyAlternatives = []string{"master_key_00", "key_area_key_application_00"}

// SDKeys are needed to read titles installed on a storage card.
var SDKeys = []string{"sd_seed", "sd_card_kek_source", "sd_card_nca_key_source"}

// Paths locates the key files. Only Prod is mandatory.
type Paths struct {
	Prod    string
	Title   string
	Console string
}

// Load reads key files into a new store. Missing optional files are ignored.
func Load(paths Paths) (*Store, error) {
	store := NewStore()
	if err := store.loadFile(paths.Prod, store.parseKeyLine); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", paths.Prod, ErrKeyFileNotFound)
		}
		return nil, err
	}
	for _, optional := range []struct {
		path  string
		parse func(string, string) error
	}{
		{paths.Console, store.parseKeyLine},
		{paths.Title, store.parseTitleKeyLine},
	} {
		if strings.TrimSpace(optional.path) == "" {
			continue
		}
		if err := store.loadFile(optional.path, optional.parse); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return store, nil
}

func (s *Store) loadFile(path string, parse func(string, string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := s.Read(f, parse); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Read parses "name = value" lines, skipping blanks and comments.
func (s *Store) Read(r io.Reader, parse func(name, value string) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			name, value, ok = strings.Cut(line, ",")
		}
		if !ok {
			return fmt.Errorf("line %d: expected name = value", lineNo)
		}
		if err := parse(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func (s *Store) parseKeyLine(name, value string) error {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("key %s: %w", name, err)
	}
	s.SetKey(name, raw)
	return nil
}

// parseTitleKeyLine accepts "rights_id = key[,name[,version]]".
func (s *Store) parseTitleKeyLine(name, value string) error {
	rightsID, err := hex.DecodeString(name)
	if err != nil || len(rightsID) != 16 {
		return fmt.Errorf("rights id %q: want 32 hex digits", name)
	}
	fields := strings.Split(value, ",")
	raw, err := hex.DecodeString(strings.TrimSpace(fields[0]))
	if err != nil || len(raw) != 16 {
		return fmt.Errorf("title key for %s: want 32 hex digits", name)
	}
	var key [16]byte
	copy(key[:], raw)
	s.RegisterKey(rightsID, key)

	if len(fields) < 2 {
		return nil
	}
	info := TitleInfo{Name: strings.TrimSpace(fields[1])}
	if len(fields) > 2 {
		if v, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32); err == nil {
			info.Version = uint32(v)
			info.HasVersion = true
		}
	}
	s.SetTitleInfo(name, info)
	return nil
}

func (s *Store) hasNonZero(name string) bool {
	v, ok := s.Key(name)
	if !ok {
		return false
	}
	for _, b := range v {
		if b != 0 {
			return true
		}
	}
	return false
}

// MissingRequired lists required console keys the store does not hold.
func (s *Store) MissingRequired() []string {
	var missing []string
	for _, name := range RequiredKeys {
		if !s.hasNonZero(name) {
			missing = append(missing, name)
		}
	}
	if !s.hasNonZero(masterKeyAlternatives[0]) && !s.hasNonZero(masterKeyAlternatives[1]) {
		missing = append(missing, strings.Join(masterKeyAlternatives, " or "))
	}
	return missing
}

// HasSDKeys reports whether keys for installed-title databases are present.
func (s *Store) HasSDKeys() bool {
	for _, name := range SDKeys {
		if !s.hasNonZero(name) {
			return false
		}
	}
	return true
}
