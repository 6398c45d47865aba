package testsupport

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
	"testing/fstest"

	"nxinfo/internal/container"
)

// FakeContent is an in-memory content archive.
type FakeContent struct {
	Hdr         container.ContentHeader
	Sections    map[int]fstest.MapFS
	SectionErrs map[int]error
}

func (c *FakeContent) Header() container.ContentHeader { return c.Hdr }

func (c *FakeContent) OpenSection(index int) (fs.FS, error) {
	if err, ok := c.SectionErrs[index]; ok {
		return nil, err
	}
	section, ok := c.Sections[index]
	if !ok {
		return nil, fmt.Errorf("section %d: %w", index, fs.ErrNotExist)
	}
	return section, nil
}

func (c *FakeContent) Close() error { return nil }

// FakeOpener serves FakeContent by entry base name and records every name it
// was asked to open.
type FakeOpener struct {
	mu       sync.Mutex
	contents map[string]*FakeContent
	errs     map[string]error
	opened   []string
}

// NewFakeOpener returns an opener with no registered contents.
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{contents: map[string]*FakeContent{}, errs: map[string]error{}}
}

// Add registers content under an entry name such as "abcd....nca".
func (o *FakeOpener) Add(name string, c *FakeContent) *FakeOpener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.contents[name] = c
	return o
}

// Fail makes opening name return err.
func (o *FakeOpener) Fail(name string, err error) *FakeOpener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[name] = err
	return o
}

// Opened returns the names opened so far, in order.
func (o *FakeOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

func (o *FakeOpener) OpenContent(_ context.Context, name string, _ *io.SectionReader) (container.Content, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	base := path.Base(name)
	o.opened = append(o.opened, base)
	if err, ok := o.errs[base]; ok {
		return nil, err
	}
	c, ok := o.contents[base]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", base, fs.ErrNotExist)
	}
	return c, nil
}

// MetaContent builds meta content whose first section holds one packaged
// metadata file.
func MetaContent(titleID uint64, cnmt []byte) *FakeContent {
	return &FakeContent{
		Hdr: container.ContentHeader{TitleID: titleID, ContentType: container.ContentMeta, SignatureValid: true},
		Sections: map[int]fstest.MapFS{
			container.SectionFirst: {fmt.Sprintf("Application_%016x.cnmt", titleID): {Data: cnmt}},
		},
	}
}

// ControlContent builds control content whose first section holds
// control.nacp.
func ControlContent(titleID uint64, nacp []byte) *FakeContent {
	return &FakeContent{
		Hdr: container.ContentHeader{TitleID: titleID, ContentType: container.ContentControl, SignatureValid: true},
		Sections: map[int]fstest.MapFS{
			container.SectionFirst: {"control.nacp": {Data: nacp}},
		},
	}
}

// ProgramContent builds program content whose first section holds
// main.npdm.
func ProgramContent(titleID uint64, npdm []byte, signatureValid bool) *FakeContent {
	return &FakeContent{
		Hdr: container.ContentHeader{TitleID: titleID, ContentType: container.ContentProgram, SignatureValid: signatureValid},
		Sections: map[int]fstest.MapFS{
			container.SectionFirst: {"main.npdm": {Data: npdm}},
		},
	}
}
