// Command nxinfo reads metadata from Switch game containers.
//
// It scans cartridge images, digital packages and homebrew executables, or
// the titles installed on a mounted storage card, and reports one record per
// title: IDs, versions, required firmware, key generation, names and the
// signature and permission checks. Results can be rendered as a table, JSON
// or a pipe-delimited export file, and every scan is kept in a small history
// database.
package main
