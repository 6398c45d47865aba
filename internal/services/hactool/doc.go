// Package hactool opens content archives by running the hactool binary.
//
// Each archive is spooled to a private work directory and inspected once to
// read its header report. Sections are extracted on first use and served as
// directory filesystems. Key problems reported by the tool surface as
// *keys.MissingKeyError so the builder can record them against the title.
package hactool
