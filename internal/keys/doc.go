// Package keys loads console key files and keeps the title keys discovered
// from tickets while packages are scanned.
//
// The Store is shared by every container in a batch. Keys registered by one
// container become visible to later containers but never retroactively fix an
// earlier failure.
package keys
