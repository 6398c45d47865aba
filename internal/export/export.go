package export

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"nxinfo/internal/fileutil"
	"nxinfo/internal/title"
)

// Columns names the fields of each title line, in order.
var Columns = []string{
	"titleID", "name", "displayVersion", "version", "latest", "firmware",
	"masterkey", "filename", "filesize", "type", "distribution", "structure",
	"signature", "permission", "error",
}

const timeLayout = "Monday, January 2, 2006 3:04:05 PM"

// fieldCleaner keeps every title on one line with a fixed column count.
var fieldCleaner = strings.NewReplacer("|", "/", "\r", " ", "\n", " ")

// Options controls the banner.
type Options struct {
	Product string
	Version string
	Now     func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Line renders one title.
func Line(t *title.Title) string {
	fields := []string{
		t.TitleID,
		t.TitleName,
		t.DisplayVersion,
		t.VersionString(),
		t.LatestVersionString(),
		t.Firmware,
		t.MasterKeyString(),
		t.Filename,
		t.FilesizeString(),
		t.TypeString(),
		t.DistributionString(),
		t.StructureString(),
		t.SignatureString(),
		t.PermissionString(),
		t.Error,
	}
	for i, f := range fields {
		fields[i] = fieldCleaner.Replace(f)
	}
	return strings.Join(fields, "|")
}

// Write renders titles to w and returns how many were written. A canceled
// context stops the listing early; the summary line still reports the
// partial count.
func Write(ctx context.Context, w io.Writer, titles []*title.Title, opts Options) (int, error) {
	bw := bufio.NewWriter(w)
	product := strings.TrimSpace(opts.Product + " " + opts.Version)
	fmt.Fprintln(bw, product)
	fmt.Fprintln(bw, strings.Repeat("-", 62))
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Export titles starts at %s\n\n", opts.now().Format(timeLayout))

	written := 0
	for _, t := range titles {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintln(bw, Line(t))
		written++
	}
	fmt.Fprintf(bw, "\n%d of %d titles exported\n", written, len(titles))
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("write export: %w", err)
	}
	return written, nil
}

// WriteFile writes the export to path, replacing any existing file.
func WriteFile(ctx context.Context, path string, titles []*title.Title, opts Options) (int, error) {
	var buf bytes.Buffer
	n, err := Write(ctx, &buf, titles, opts)
	if err != nil {
		return n, err
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return n, fmt.Errorf("write export file: %w", err)
	}
	return n, nil
}
