package preflight

import (
	"context"
	"time"

	"nxinfo/internal/config"
	"nxinfo/internal/keys"
)

// Result reports the outcome of a single preflight check. A failed optional
// check is a warning.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional"`
	Detail   string `json:"detail"`
}

// Blocking reports whether the result should stop a scan.
func (r Result) Blocking() bool { return !r.Passed && !r.Optional }

// RunAll executes all applicable preflight checks for the given config.
// store may be nil when the keys have not been loaded; key content checks are
// skipped then.
func RunAll(ctx context.Context, cfg *config.Config, store *keys.Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckKeyFile("Prod keys", cfg.Keys.ProdKeys, false),
		CheckKeyFile("Title keys", cfg.Keys.TitleKeys, true),
	}
	if store != nil {
		results = append(results, CheckRequiredKeys(store), CheckSDKeys(store))
	}
	results = append(results,
		CheckBinary("hactool", cfg.Hactool.Binary),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
	)
	results = append(results, CheckVersionCache(cfg.Versions.CacheFile, time.Now()))
	if cfg.Versions.RefreshOnStart {
		results = append(results, CheckVersionList(ctx, cfg.Versions.URL, cfg.VersionsTimeout()))
	}
	return results
}

// FirstBlocking returns the first result that should stop a scan.
func FirstBlocking(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Blocking() {
			return r, true
		}
	}
	return Result{}, false
}
