// Package scan runs the title builder over batches of containers.
//
// A Runner processes one container at a time in a fixed order: lexical
// path order for files, numeric title ID order for installed titles.
// Cancellation is only observed between containers, so a container that
// has started always finishes. Every built title is folded into the
// best-known version map, and each batch gets a UUID that tags its log
// lines and its history entry.
package scan
