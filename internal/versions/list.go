package versions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nxinfo/internal/title"
)

// Entry is one row of the version list.
type Entry struct {
	ID              string
	Version         uint32
	RequiredVersion uint32
}

// List is a parsed version list.
type List struct {
	FormatVersion int
	LastModified  time.Time
	Entries       []Entry
}

type wireEntry struct {
	ID              string `json:"id"`
	Version         uint32 `json:"version"`
	RequiredVersion uint32 `json:"required_version"`
}

type wireList struct {
	Titles        []wireEntry `json:"titles"`
	FormatVersion int         `json:"format_version"`
	LastModified  int64       `json:"last_modified"`
}

// Decode parses the JSON version list format. Rows whose ID is not a
// 16-digit title ID are dropped.
func Decode(r io.Reader) (List, error) {
	var wire wireList
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return List{}, fmt.Errorf("decode version list: %w", err)
	}
	list := List{FormatVersion: wire.FormatVersion}
	if wire.LastModified > 0 {
		list.LastModified = time.Unix(wire.LastModified, 0).UTC()
	}
	for _, w := range wire.Titles {
		id, err := title.NormalizeTitleID(w.ID)
		if err != nil {
			continue
		}
		list.Entries = append(list.Entries, Entry{ID: id, Version: w.Version, RequiredVersion: w.RequiredVersion})
	}
	return list, nil
}

// Encode writes list in the same JSON format Decode reads.
func Encode(w io.Writer, list List) error {
	wire := wireList{FormatVersion: list.FormatVersion, Titles: make([]wireEntry, 0, len(list.Entries))}
	if !list.LastModified.IsZero() {
		wire.LastModified = list.LastModified.Unix()
	}
	for _, e := range list.Entries {
		wire.Titles = append(wire.Titles, wireEntry{ID: strings.ToLower(e.ID), Version: e.Version, RequiredVersion: e.RequiredVersion})
	}
	enc := json.NewEncoder(w)
	return enc.Encode(wire)
}

// Source fetches a version list.
type Source interface {
	Fetch(ctx context.Context) (List, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (List, error)

func (f SourceFunc) Fetch(ctx context.Context) (List, error) { return f(ctx) }

// HTTPSource downloads the version list from a URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

const defaultFetchTimeout = 30 * time.Second

// NewHTTPSource returns a source for url with the given request timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPSource{URL: strings.TrimSpace(url), Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Fetch(ctx context.Context) (List, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return List{}, fmt.Errorf("build version list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return List{}, fmt.Errorf("download version list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return List{}, fmt.Errorf("download version list: unexpected status %d", resp.StatusCode)
	}
	return Decode(resp.Body)
}
