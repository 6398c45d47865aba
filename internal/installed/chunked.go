package installed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// chunkedFile presents the numbered chunks of a split archive as one
// contiguous byte range.
type chunkedFile struct {
	files  []*os.File
	starts []int64
	size   int64
}

func openChunked(dir string) (*chunkedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read split archive %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isChunkName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("split archive %s: no chunks", dir)
	}
	sort.Strings(names)

	c := &chunkedFile{}
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			_ = c.Close()
			return nil, err
		}
		c.files = append(c.files, f)
		c.starts = append(c.starts, c.size)
		c.size += info.Size()
	}
	return c, nil
}

// isChunkName accepts the two-digit chunk names "00", "01", ...
func isChunkName(name string) bool {
	if len(name) != 2 {
		return false
	}
	return name[0] >= '0' && name[0] <= '9' && name[1] >= '0' && name[1] <= '9'
}

func (c *chunkedFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= c.size {
		return 0, io.EOF
	}
	i := sort.Search(len(c.starts), func(i int) bool { return c.starts[i] > off }) - 1
	n := 0
	for n < len(p) && i < len(c.files) {
		read, err := c.files[i].ReadAt(p[n:], off+int64(n)-c.starts[i])
		n += read
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
		if errors.Is(err, io.EOF) || read == 0 {
			i++
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (c *chunkedFile) Size() int64 { return c.size }

func (c *chunkedFile) Close() error {
	var errs []error
	for _, f := range c.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
