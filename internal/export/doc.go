// Package export writes the pipe-separated title listing.
//
// The file starts with a product banner and a timestamp, lists one title per
// line in the column order of Columns, and ends with a summary line.
package export
