package main

import (
	"errors"
	"fmt"
	"io"

	"nxinfo/internal/builder"
	"nxinfo/internal/scan"
	"nxinfo/internal/title"
)

var titleHeaders = []string{
	"Title ID", "Name", "Type", "Version", "Latest", "Firmware", "Key", "Size", "Signature", "Permission", "Note",
}

var titleAligns = []columnAlignment{
	alignLeft, alignWrap, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignWrap,
}

// renderTitles renders titles as a table. Versions for which a newer one is
// known are marked with an asterisk.
func renderTitles(titles []*title.Title, stale func(*title.Title) bool) string {
	rows := make([][]string, 0, len(titles))
	for _, t := range titles {
		v := t.VersionString()
		if stale != nil && stale(t) {
			v += "*"
		}
		name := t.TitleName
		if name == "" {
			name = t.Filename
		}
		rows = append(rows, []string{
			t.TitleID,
			name,
			t.TypeString(),
			v,
			t.LatestVersionString(),
			t.Firmware,
			t.MasterKeyString(),
			t.FilesizeString(),
			t.SignatureString(),
			t.PermissionString(),
			t.Error,
		})
	}
	return renderTable(titleHeaders, rows, titleAligns)
}

// writeSkipped lists containers that produced no title. Files that are not
// containers at all only count toward the total.
func writeSkipped(w io.Writer, skipped []scan.Skip) {
	unrecognized := 0
	for _, s := range skipped {
		if errors.Is(s.Err, builder.ErrUnrecognized) {
			unrecognized++
			continue
		}
		fmt.Fprintf(w, "Skipped %s: %v\n", s.Path, s.Err)
	}
	if unrecognized > 0 {
		fmt.Fprintf(w, "Ignored %d unrecognized file(s)\n", unrecognized)
	}
}

// filterFirmware drops titles that need a newer firmware than limit.
func filterFirmware(titles []*title.Title, limit string) ([]*title.Title, int) {
	if limit == "" {
		return titles, 0
	}
	kept := make([]*title.Title, 0, len(titles))
	for _, t := range titles {
		if title.CompareFirmware(t.Firmware, limit) > 0 {
			continue
		}
		kept = append(kept, t)
	}
	return kept, len(titles) - len(kept)
}
