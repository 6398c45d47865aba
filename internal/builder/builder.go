package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"nxinfo/internal/container"
	"nxinfo/internal/keys"
	"nxinfo/internal/logging"
	"nxinfo/internal/title"
	"nxinfo/internal/versions"
)

// ErrUnrecognized means the input matched none of the supported formats.
var ErrUnrecognized = errors.New("unrecognized container")

// Builder builds title records. The key store, catalog and opener are
// shared across builds; a Builder is safe to reuse but builds one container
// at a time per call.
type Builder struct {
	keys    *keys.Store
	catalog versions.Lookup
	opener  container.ContentOpener
	logger  *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger routes trace output to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithCatalog sets the version catalog consulted after each build.
func WithCatalog(catalog versions.Lookup) Option {
	return func(b *Builder) { b.catalog = catalog }
}

// New returns a Builder using store for key lookups and opener for content
// archives.
func New(store *keys.Store, opener container.ContentOpener, opts ...Option) *Builder {
	b := &Builder{
		keys:   store,
		opener: opener,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.keys == nil {
		b.keys = keys.NewStore()
	}
	b.logger = logging.NewComponentLogger(b.logger, "builder")
	return b
}

// BuildFromFile builds the title stored in the file at path and fills in
// Filename and Filesize.
func (b *Builder) BuildFromFile(ctx context.Context, path string) (*title.Title, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	ctx = logging.WithFile(ctx, path)
	t, err := b.Build(ctx, f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Filename = path
	t.Filesize = info.Size()
	return t, nil
}

// Build classifies r and builds the title it holds.
func (b *Builder) Build(ctx context.Context, r io.ReaderAt, size int64) (*title.Title, error) {
	kind := container.Classify(r, size)
	b.log(ctx).Debug("container classified", logging.String("kind", kind.String()), logging.Int64("size_bytes", size))
	switch kind {
	case container.KindCartridge:
		return b.BuildCartridge(ctx, r, size)
	case container.KindDigital:
		return b.BuildPackage(ctx, r, size)
	case container.KindHomebrew:
		return b.BuildHomebrew(ctx, r, size)
	default:
		return nil, ErrUnrecognized
	}
}

// BuildCartridge builds the title of a cartridge image.
func (b *Builder) BuildCartridge(ctx context.Context, r io.ReaderAt, size int64) (*title.Title, error) {
	cart, err := container.OpenCartridge(r, size)
	if err != nil {
		return nil, err
	}
	s := b.newSession(ctx, title.DistributionCartridge)
	s.log.Debug("processing cartridge image")

	if cart.Root.Len() > 0 {
		s.t.Structure.Add(title.RootPartition)
	}
	if cart.Update.Len() > 0 {
		s.t.Structure.Add(title.UpdatePartition)
	}
	if cart.Normal.Len() > 0 {
		s.t.Structure.Add(title.NormalPartition)
	}
	if cart.Secure.Len() > 0 {
		if err := s.scan(cart.Secure, false); err != nil {
			return nil, err
		}
		if err := s.resolve(cart.Secure); err != nil {
			return nil, err
		}
		s.t.Structure.Add(title.SecurePartition)
	}
	if cart.Logo.Len() > 0 {
		s.t.Structure.Add(title.LogoPartition)
	}
	return b.finish(s), nil
}

// BuildPackage builds the title of a digital package.
func (b *Builder) BuildPackage(ctx context.Context, r io.ReaderAt, size int64) (*title.Title, error) {
	pfs, err := container.ReadPFS0(r, 0, size)
	if err != nil {
		return nil, err
	}
	s := b.newSession(ctx, title.DistributionDigital)
	s.log.Debug("processing digital package", logging.Int("entries", pfs.Len()))

	if err := s.scan(pfs, true); err != nil {
		return nil, err
	}
	if err := s.resolve(pfs); err != nil {
		return nil, err
	}
	return b.finish(s), nil
}

// BuildHomebrew builds the title of a homebrew executable. Only the name and
// display version are known for homebrew.
func (b *Builder) BuildHomebrew(ctx context.Context, r io.ReaderAt, size int64) (*title.Title, error) {
	nro, err := container.OpenHomebrew(r, size)
	if err != nil {
		return nil, err
	}
	s := b.newSession(ctx, title.DistributionHomebrew)
	s.log.Debug("processing homebrew executable")

	props, err := nro.ControlProperties()
	if err != nil {
		s.log.Debug("homebrew carries no control properties")
		return b.finish(s), nil
	}
	s.controlProperties(props)
	return b.finish(s), nil
}

// finish applies the version catalog and logs the result.
func (b *Builder) finish(s *session) *title.Title {
	t := s.t
	if b.catalog != nil && (t.Type == title.TypeApplication || t.Type == title.TypePatch) {
		if v, ok := b.catalog.Lookup(t.TitleIDApplication()); ok {
			t.SetLatestVersion(v)
		}
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "title_built"),
		logging.TitleID(t.TitleID),
		logging.String("title_name", t.TitleName),
		logging.String("type", t.Type.String()),
		logging.String("version", t.VersionString()),
		logging.String("distribution", t.Distribution.String()),
	}
	if t.Error != "" {
		attrs = append(attrs, logging.String("decode_error", t.Error))
	}
	s.log.Info("title built", logging.Args(attrs...)...)
	return t
}

func (b *Builder) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, b.logger)
}
