// Package builder turns one opened container into a title record.
//
// Build classifies the bytes and dispatches to the cartridge, digital
// package or homebrew path, in that order. Cartridge and package paths scan
// their entries once, decoding content metadata, registering ticket keys
// and noting structural components, then open the primary and control
// content chosen by the winning metadata record. BuildInstalled does the
// same for a title read from an installed-title database, where contents
// are already classified by type.
//
// Failures inside a sub-decoder degrade the record: the first message is
// kept in Title.Error and decoding carries on. Only failures that happen
// before any record exists drop the container.
package builder
