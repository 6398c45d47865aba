package hactool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"nxinfo/internal/container"
	"nxinfo/internal/keys"
)

// content is a spooled archive. Sections are extracted lazily and cached
// for the lifetime of the content.
type content struct {
	opener *Opener
	// ctx is the context of the OpenContent call; extraction happens
	// within the same build step.
	ctx      context.Context
	name     string
	dir      string
	file     string
	header   container.ContentHeader
	titleKey string
	missing  *keys.MissingKeyError

	mu        sync.Mutex
	sections  map[int]fs.FS
	closeOnce sync.Once
	closeErr  error
}

func (c *content) Header() container.ContentHeader { return c.header }

func (c *content) OpenSection(index int) (fs.FS, error) {
	if index < 0 || index > maxSection {
		return nil, fmt.Errorf("section %d of %s: %w", index, c.name, fs.ErrNotExist)
	}
	if c.missing != nil {
		return nil, c.missing
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fsys, ok := c.sections[index]; ok {
		return fsys, nil
	}
	dest := sectionDir(c.dir, index)
	if err := c.opener.extract(c.ctx, c, index, dest); err != nil {
		return nil, err
	}
	if c.sections == nil {
		c.sections = map[int]fs.FS{}
	}
	fsys := os.DirFS(dest)
	c.sections[index] = fsys
	return fsys, nil
}

// Close removes the spooled archive and everything extracted from it.
func (c *content) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = os.RemoveAll(c.dir)
	})
	return c.closeErr
}
