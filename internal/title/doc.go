// Package title defines the metadata record produced for every game package,
// together with title ID arithmetic, the firmware table and display helpers.
//
// Title IDs are always carried as 16 upper-case hex digits. The application ID
// of a title masks its variant digits, so a base game, its patches and its
// add-on content share one application ID.
package title
