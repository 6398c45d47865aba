package keys

import (
	"encoding/hex"
	"strings"
	"sync"
)

// TitleInfo is a side-table row supplied alongside a title key.
type TitleInfo struct {
	Name       string
	Version    uint32
	HasVersion bool
}

// Store holds key material and the per-rights-ID name and version side
// tables. Title keys are registered as tickets are discovered; all methods
// are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	keys      map[string][]byte
	titleKeys map[string][16]byte
	info      map[string]TitleInfo
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		keys:      make(map[string][]byte),
		titleKeys: make(map[string][16]byte),
		info:      make(map[string]TitleInfo),
	}
}

func normalizeRightsID(rightsID string) string {
	return strings.ToUpper(strings.TrimSpace(rightsID))
}

// SetKey stores a named console key.
func (s *Store) SetKey(name string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[strings.ToLower(strings.TrimSpace(name))] = append([]byte(nil), value...)
}

// Key returns a named console key.
func (s *Store) Key(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.keys[strings.ToLower(name)]
	return v, ok
}

// RegisterKey records the content key for a rights ID. A later registration
// for the same rights ID replaces the earlier key.
func (s *Store) RegisterKey(rightsID []byte, key [16]byte) {
	id := strings.ToUpper(hex.EncodeToString(rightsID))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titleKeys[id] = key
}

// TitleKey returns the content key registered for a rights ID in hex form.
func (s *Store) TitleKey(rightsID string) ([16]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.titleKeys[normalizeRightsID(rightsID)]
	return k, ok
}

// TitleKeyCount returns the number of registered title keys.
func (s *Store) TitleKeyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.titleKeys)
}

// SetTitleInfo records side-table data for a rights ID.
func (s *Store) SetTitleInfo(rightsID string, info TitleInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info[normalizeRightsID(rightsID)] = info
}

// NameByRightsID returns the side-table name for a rights ID.
func (s *Store) NameByRightsID(rightsID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.info[normalizeRightsID(rightsID)]
	if !ok || info.Name == "" {
		return "", false
	}
	return info.Name, true
}

// VersionByRightsID returns the side-table version for a rights ID.
func (s *Store) VersionByRightsID(rightsID string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.info[normalizeRightsID(rightsID)]
	if !ok || !info.HasVersion {
		return 0, false
	}
	return info.Version, true
}

// NameByTitleID returns the side-table name of any rights ID whose title ID
// half matches id.
func (s *Store) NameByTitleID(id string) (string, bool) {
	info, ok := s.infoByTitleID(id)
	if !ok || info.Name == "" {
		return "", false
	}
	return info.Name, true
}

// VersionByTitleID returns the side-table version of any rights ID whose
// title ID half matches id.
func (s *Store) VersionByTitleID(id string) (uint32, bool) {
	info, ok := s.infoByTitleID(id)
	if !ok || !info.HasVersion {
		return 0, false
	}
	return info.Version, true
}

func (s *Store) infoByTitleID(id string) (TitleInfo, bool) {
	id = normalizeRightsID(id)
	if id == "" {
		return TitleInfo{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Rights IDs are the title ID followed by the key generation, so the
	// lowest generation with data wins.
	var (
		best    TitleInfo
		bestKey string
		found   bool
	)
	for rid, info := range s.info {
		if !strings.HasPrefix(rid, id) {
			continue
		}
		if !found || rid < bestKey {
			best, bestKey, found = info, rid, true
		}
	}
	return best, found
}

