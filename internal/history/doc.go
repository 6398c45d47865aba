// Package history persists finished scan batches in SQLite.
//
// Each batch is stored as one row holding its UUID, creation time, source
// label and the zstd-compressed JSON encoding of its titles. Only the most
// recent batches are kept. The newest batch seeds the best-known version
// map at start-up.
package history
