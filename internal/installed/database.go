package installed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nxinfo/internal/cnmt"
	"nxinfo/internal/container"
	"nxinfo/internal/logging"
	"nxinfo/internal/title"
)

// ErrNotFound means the location holds no installed-title database. It is
// distinct from a database with zero titles.
var ErrNotFound = errors.New("installed title database not found")

// contentRoots are tried in order below the scanned location.
var contentRoots = []string{
	filepath.Join("Contents", "registered"),
	filepath.Join("Nintendo", "Contents", "registered"),
}

// Content is one content archive of an installed title.
type Content struct {
	// Name is the archive name, "<content id>.nca".
	Name string
	Type container.ContentType
	Path string
	Size int64
	// Split archives are directories of numbered chunks.
	Split bool
}

// ID returns the lower-case content identifier.
func (c Content) ID() string {
	return strings.ToLower(strings.TrimSuffix(c.Name, ".nca"))
}

// Open returns a reader over the whole archive and the closer that releases
// it.
func (c Content) Open() (*io.SectionReader, io.Closer, error) {
	if c.Split {
		chunked, err := openChunked(c.Path)
		if err != nil {
			return nil, nil, err
		}
		return io.NewSectionReader(chunked, 0, chunked.Size()), chunked, nil
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return io.NewSectionReader(f, 0, info.Size()), f, nil
}

// Title is one installed title: the contents referenced by its metadata, or
// for titles without metadata, the contents whose header names its ID.
type Title struct {
	ID       uint64
	Type     title.Type
	Version  uint32
	HasMeta  bool
	Contents []Content
}

// TitleID returns the canonical title ID.
func (t *Title) TitleID() string { return title.FormatTitleID(t.ID) }

// Size is the total size of the title's contents.
func (t *Title) Size() int64 {
	var total int64
	for _, c := range t.Contents {
		total += c.Size
	}
	return total
}

// Application groups a base title with its patch and add-on content.
type Application struct {
	ID     uint64
	Main   *Title
	Patch  *Title
	AddOns []*Title
}

// Database is the index of one storage medium.
type Database struct {
	Root         string
	titles       map[uint64]*Title
	applications map[uint64]*Application
	contents     int
	skipped      int
}

type header struct {
	content Content
	titleID uint64
}

// Open indexes the installed titles below root. Archives that cannot be
// opened are logged and skipped. Cancellation is honored between archives.
func Open(ctx context.Context, root string, opener container.ContentOpener, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "installed")

	dir, err := ContentsDir(root)
	if err != nil {
		return nil, err
	}
	found, err := listContents(dir)
	if err != nil {
		return nil, err
	}
	logger.Debug("content archives found", logging.String("dir", dir), logging.Int("count", len(found)))

	db := &Database{
		Root:         root,
		titles:       map[uint64]*Title{},
		applications: map[uint64]*Application{},
		contents:     len(found),
	}
	byID := make(map[string]header, len(found))
	var metas []Content
	for _, c := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := readHeader(ctx, opener, c)
		if err != nil {
			db.skipped++
			logging.WarnWithContext(logger, "content archive skipped", "installed_content_skipped",
				logging.String(logging.FieldEntry, c.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the console and storage keys are present"),
			)
			continue
		}
		c.Type = h.ContentType
		byID[c.ID()] = header{content: c, titleID: h.TitleID}
		if c.Type == container.ContentMeta {
			metas = append(metas, c)
		}
	}

	referenced := map[string]bool{}
	for _, meta := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := readMeta(ctx, opener, meta)
		if err != nil {
			db.skipped++
			logging.WarnWithContext(logger, "content metadata skipped", "installed_meta_skipped",
				logging.String(logging.FieldEntry, meta.Name),
				logging.Error(err),
			)
			continue
		}
		t := &Title{ID: rec.TitleID, Type: rec.Type, Version: rec.Version, HasMeta: true, Contents: []Content{meta}}
		referenced[meta.ID()] = true
		for _, rc := range rec.Contents {
			id := strings.ToLower(rc.ID)
			h, ok := byID[id]
			if !ok || id == meta.ID() {
				continue
			}
			t.Contents = append(t.Contents, h.content)
			referenced[id] = true
		}
		if prev, ok := db.titles[t.ID]; ok && prev.HasMeta && prev.Version >= t.Version {
			continue
		}
		db.titles[t.ID] = t
	}

	// Archives no metadata refers to are grouped by the title ID in their
	// header.
	var orphans []header
	for id, h := range byID {
		if !referenced[id] {
			orphans = append(orphans, h)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].content.Name < orphans[j].content.Name })
	for _, h := range orphans {
		t, ok := db.titles[h.titleID]
		if !ok {
			t = &Title{ID: h.titleID, Type: orphanType(h.content.Type)}
			db.titles[h.titleID] = t
		}
		if !t.HasMeta {
			t.Contents = append(t.Contents, h.content)
		}
	}

	for _, t := range db.titles {
		db.group(t)
	}
	logger.Info("installed titles indexed",
		logging.String(logging.FieldEventType, "installed_indexed"),
		logging.Int("titles", len(db.titles)),
		logging.Int("applications", len(db.applications)),
		logging.Int("skipped", db.skipped),
	)
	return db, nil
}

func orphanType(ct container.ContentType) title.Type {
	if ct == container.ContentAocData {
		return title.TypeAddOnContent
	}
	return title.TypeApplication
}

// ApplicationID returns the ID of the application a title belongs to.
func ApplicationID(t *Title) uint64 {
	if t.Type == title.TypeAddOnContent {
		return (t.ID &^ 0xFFF) - 0x1000
	}
	return t.ID &^ 0xFFF
}

func (db *Database) group(t *Title) {
	id := ApplicationID(t)
	app, ok := db.applications[id]
	if !ok {
		app = &Application{ID: id}
		db.applications[id] = app
	}
	switch t.Type {
	case title.TypeApplication:
		app.Main = t
	case title.TypePatch:
		app.Patch = t
	case title.TypeAddOnContent:
		app.AddOns = append(app.AddOns, t)
	}
}

// ContentsDir locates the registered content directory below root.
func ContentsDir(root string) (string, error) {
	for _, rel := range contentRoots {
		dir := filepath.Join(root, rel)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%s: %w", root, ErrNotFound)
}

// listContents walks dir for archives in lexical path order. Directories
// named "*.nca" are split archives; other directories are descended into.
func listContents(dir string) ([]Content, error) {
	var out []Content
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir || !strings.HasSuffix(strings.ToLower(d.Name()), ".nca") {
			return nil
		}
		c := Content{Name: d.Name(), Path: path}
		if d.IsDir() {
			c.Split = true
			size, err := dirSize(path)
			if err != nil {
				return err
			}
			c.Size = size
			out = append(out, c)
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		c.Size = info.Size()
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return out, nil
}

func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !isChunkName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func readHeader(ctx context.Context, opener container.ContentOpener, c Content) (container.ContentHeader, error) {
	r, closer, err := c.Open()
	if err != nil {
		return container.ContentHeader{}, err
	}
	defer closer.Close()
	content, err := opener.OpenContent(ctx, c.Name, r)
	if err != nil {
		return container.ContentHeader{}, err
	}
	defer content.Close()
	return content.Header(), nil
}

func readMeta(ctx context.Context, opener container.ContentOpener, c Content) (cnmt.Record, error) {
	r, closer, err := c.Open()
	if err != nil {
		return cnmt.Record{}, err
	}
	defer closer.Close()
	content, err := opener.OpenContent(ctx, c.Name, r)
	if err != nil {
		return cnmt.Record{}, err
	}
	defer content.Close()
	fsys, err := content.OpenSection(container.SectionFirst)
	if err != nil {
		return cnmt.Record{}, err
	}
	records, err := cnmt.DecodeSection(fsys)
	var sel cnmt.Selector
	for _, rec := range records {
		sel.Offer(rec)
	}
	if rec, ok := sel.Current(); ok {
		return rec, nil
	}
	if err == nil {
		err = fmt.Errorf("%w: no records", cnmt.ErrMalformed)
	}
	return cnmt.Record{}, err
}

// Titles returns the titles to list, ordered by numeric title ID. A base
// title is listed when it has its own metadata or when no patch with
// metadata exists; patches are listed only with metadata; add-on content is
// always listed.
func (db *Database) Titles() []*Title {
	var out []*Title
	for _, app := range db.applications {
		if app.Main != nil && (app.Main.HasMeta || app.Patch == nil || !app.Patch.HasMeta) {
			out = append(out, app.Main)
		}
		if app.Patch != nil && app.Patch.HasMeta {
			out = append(out, app.Patch)
		}
		out = append(out, app.AddOns...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Applications returns the applications ordered by ID.
func (db *Database) Applications() []*Application {
	out := make([]*Application, 0, len(db.applications))
	for _, app := range db.applications {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ContentCount is the number of archives found, including skipped ones.
func (db *Database) ContentCount() int { return db.contents }

// Skipped is the number of archives that could not be read.
func (db *Database) Skipped() int { return db.skipped }
