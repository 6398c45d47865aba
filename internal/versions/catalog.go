package versions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"nxinfo/internal/fileutil"
	"nxinfo/internal/logging"
	"nxinfo/internal/title"
)

// ErrUnavailable reports that the version list could not be obtained. The
// previously loaded list stays in effect.
var ErrUnavailable = errors.New("version list unavailable")

// Lookup resolves the newest known version of a title.
type Lookup interface {
	Lookup(id string) (uint32, bool)
}

// Catalog holds the version list in memory, keyed by application title ID.
// The map is swapped wholesale on success and never partially updated.
type Catalog struct {
	source    Source
	cachePath string
	logger    *slog.Logger

	mu       sync.RWMutex
	versions map[string]uint32
	modified time.Time

	group singleflight.Group
}

// NewCatalog returns an empty catalog. cachePath may be empty to disable the
// on-disk cache; source may be nil when only the cache is used.
func NewCatalog(source Source, cachePath string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Catalog{
		source:    source,
		cachePath: strings.TrimSpace(cachePath),
		logger:    logging.NewComponentLogger(logger, "versions"),
		versions:  map[string]uint32{},
	}
}

// CatalogID maps a title ID to the key used by the catalog: patch IDs fold
// onto their application ID, everything else is kept as is.
func CatalogID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if title.IsPatchTitleID(id) {
		return title.ApplicationTitleID(id)
	}
	return id
}

// Lookup returns the catalog version for id. A nil catalog knows nothing.
func (c *Catalog) Lookup(id string) (uint32, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.versions[CatalogID(id)]
	return v, ok
}

// Len returns the number of titles in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.versions)
}

// LastModified is the timestamp carried by the loaded list.
func (c *Catalog) LastModified() time.Time {
	if c == nil {
		return time.Time{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modified
}

// Snapshot returns a copy of the catalog map.
func (c *Catalog) Snapshot() map[string]uint32 {
	out := map[string]uint32{}
	if c == nil {
		return out
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.versions {
		out[k] = v
	}
	return out
}

// Replace swaps in list. An empty list is rejected so that a truncated
// download cannot wipe a good catalog.
func (c *Catalog) Replace(list List) error {
	if len(list.Entries) == 0 {
		return fmt.Errorf("%w: list is empty", ErrUnavailable)
	}
	versions := make(map[string]uint32, len(list.Entries))
	for _, e := range list.Entries {
		id := CatalogID(e.ID)
		if v, ok := versions[id]; !ok || e.Version > v {
			versions[id] = e.Version
		}
	}
	c.mu.Lock()
	c.versions = versions
	c.modified = list.LastModified
	c.mu.Unlock()
	return nil
}

// Refresh fetches the list from the source, writes it to the cache file and
// swaps it in. Concurrent callers share one download. On failure the
// previous list stays loaded and the error wraps ErrUnavailable.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("%w: no source configured", ErrUnavailable)
	}
	ch := c.group.DoChan("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

func (c *Catalog) refresh(ctx context.Context) error {
	c.logger.Debug("refreshing version list")
	list, err := c.source.Fetch(ctx)
	if err != nil {
		logging.WarnWithContext(c.logger, "version list refresh failed; keeping previous list", "versions_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network access or set versions.url"),
			logging.String(logging.FieldImpact, "latest versions may be stale"),
		)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := c.Replace(list); err != nil {
		logging.WarnWithContext(c.logger, "version list refresh returned no titles; keeping previous list", "versions_refresh_empty",
			logging.Error(err),
			logging.String(logging.FieldImpact, "latest versions may be stale"),
		)
		return err
	}
	if err := c.writeCache(list); err != nil {
		logging.WarnWithContext(c.logger, "version list cache not written", "versions_cache_write_failed",
			logging.Error(err),
			logging.String("cache_path", c.cachePath),
			logging.String(logging.FieldErrorHint, "check permissions of versions.cache_file"),
			logging.String(logging.FieldImpact, "the list will be downloaded again next run"),
		)
	}
	c.logger.Info("version list refreshed",
		logging.Int("titles", c.Len()),
		logging.String(logging.FieldEventType, "versions_refreshed"),
	)
	return nil
}

// LoadCached loads the cache file. A missing cache is not an error and
// leaves the catalog empty.
func (c *Catalog) LoadCached() error {
	if c.cachePath == "" {
		return nil
	}
	lock := flock.New(c.cachePath + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("lock version cache: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(c.cachePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open version cache: %w", err)
	}
	defer f.Close()

	list, err := Decode(f)
	if err != nil {
		return err
	}
	if len(list.Entries) == 0 {
		return nil
	}
	if err := c.Replace(list); err != nil {
		return err
	}
	c.logger.Debug("version list loaded from cache", logging.String("cache_path", c.cachePath), logging.Int("titles", c.Len()))
	return nil
}

// CacheAge returns how long ago the cache file was written.
func (c *Catalog) CacheAge() (time.Duration, bool) {
	if c.cachePath == "" {
		return 0, false
	}
	info, err := os.Stat(c.cachePath)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

func (c *Catalog) writeCache(list List) error {
	if c.cachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		return fmt.Errorf("create version cache directory: %w", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, list); err != nil {
		return fmt.Errorf("encode version cache: %w", err)
	}

	lock := flock.New(c.cachePath + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock version cache: %w", err)
	}
	defer lock.Unlock()

	if err := fileutil.WriteFileAtomic(c.cachePath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write version cache: %w", err)
	}
	return nil
}
