// Package versions tracks the newest known version of every title.
//
// Catalog holds the remote version list, keyed by application title ID, and
// replaces it wholesale on every successful refresh; a failed or empty
// refresh leaves the previous list in place. Reconciler keeps the highest
// version observed per title across builds and history replays and never
// lowers it.
package versions
