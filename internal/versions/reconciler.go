package versions

import (
	"sync"

	"nxinfo/internal/title"
)

// SideTable is the per-title version data supplied with the key files.
type SideTable interface {
	VersionByTitleID(id string) (uint32, bool)
}

// Reconciler keeps the highest version observed per reconcile ID
// (application ID for base titles and patches, title ID for add-on
// content). Stored values never decrease. Titles themselves are not
// modified.
type Reconciler struct {
	mu   sync.RWMutex
	best map[string]uint32
}

// NewReconciler returns an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{best: map[string]uint32{}}
}

// Observe folds the version of t into the best-known map.
func (r *Reconciler) Observe(t *title.Title) {
	if t == nil || t.TitleID == "" {
		return
	}
	r.raise(t.ReconcileID(), t.Version)
}

// ObserveAll observes every title in order.
func (r *Reconciler) ObserveAll(titles []*title.Title) {
	for _, t := range titles {
		r.Observe(t)
	}
}

// Seed replays titles from an earlier session.
func (r *Reconciler) Seed(titles []*title.Title) {
	r.ObserveAll(titles)
}

func (r *Reconciler) raise(id string, v uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.best[id]; !ok || v > cur {
		r.best[id] = v
	}
}

// Best returns the best-known version for a reconcile ID.
func (r *Reconciler) Best(id string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.best[id]
	return v, ok
}

// Len returns the number of tracked IDs.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.best)
}

// Snapshot returns a copy of the best-known map.
func (r *Reconciler) Snapshot() map[string]uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint32, len(r.best))
	for k, v := range r.best {
		out[k] = v
	}
	return out
}

// Stale reports whether a newer version than the best one held for t is
// known from the catalog or the key side table. Either source may be nil.
func (r *Reconciler) Stale(t *title.Title, catalog Lookup, side SideTable) bool {
	if t == nil || t.TitleID == "" {
		return false
	}
	best, ok := r.Best(t.ReconcileID())
	if !ok || t.Version > best {
		best = t.Version
	}
	if catalog != nil {
		if v, ok := catalog.Lookup(t.ReconcileID()); ok && v > best {
			return true
		}
	}
	if side != nil {
		if v, ok := side.VersionByTitleID(t.TitleID); ok && v > best {
			return true
		}
	}
	return false
}
