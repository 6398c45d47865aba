package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"nxinfo/internal/builder"
	"nxinfo/internal/container"
	"nxinfo/internal/installed"
	"nxinfo/internal/logging"
	"nxinfo/internal/services"
	"nxinfo/internal/title"
	"nxinfo/internal/versions"
)

// ErrDatabaseNotFound means the scanned location has no installed-title
// database. It is never reported as an empty result.
var ErrDatabaseNotFound = errors.New("installed title database not found")

// DefaultExtensions are the container file extensions picked up by
// directory scans.
var DefaultExtensions = []string{".xci", ".nsp", ".nro"}

// Progress is one progress notification. Index is -1 for the indeterminate
// notification sent before the batch starts; afterwards it counts the
// containers finished so far.
type Progress struct {
	Index int
	Total int
	Label string
}

// Indeterminate reports whether the batch size is not yet known to the
// consumer.
func (p Progress) Indeterminate() bool { return p.Index < 0 }

// ProgressFunc receives progress notifications on the scanning goroutine.
type ProgressFunc func(Progress)

// Skip records a container that produced no title.
type Skip struct {
	Path string
	Err  error
}

// Result is the outcome of one batch.
type Result struct {
	BatchID  string
	Titles   []*title.Title
	Skipped  []Skip
	Canceled bool
}

// Runner drives the builder over a batch of containers, one at a time.
type Runner struct {
	builder    *builder.Builder
	opener     container.ContentOpener
	catalog    *versions.Catalog
	reconciler *versions.Reconciler
	extensions []string
	progress   ProgressFunc
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithExtensions replaces the extensions matched by directory scans.
func WithExtensions(exts []string) Option {
	return func(r *Runner) {
		if len(exts) > 0 {
			r.extensions = exts
		}
	}
}

// WithCatalog sets the version catalog refreshed by RefreshCatalog.
func WithCatalog(c *versions.Catalog) Option {
	return func(r *Runner) { r.catalog = c }
}

// WithReconciler sets the best-known version map fed by every build.
func WithReconciler(rec *versions.Reconciler) Option {
	return func(r *Runner) { r.reconciler = rec }
}

// NewRunner returns a Runner. The opener is used to index installed-title
// databases and must be the one the builder uses.
func NewRunner(b *builder.Builder, opener container.ContentOpener, opts ...Option) *Runner {
	r := &Runner{
		builder:    b,
		opener:     opener,
		extensions: DefaultExtensions,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.reconciler == nil {
		r.reconciler = versions.NewReconciler()
	}
	r.logger = logging.NewComponentLogger(r.logger, "scan")
	return r
}

// Reconciler returns the best-known version map.
func (r *Runner) Reconciler() *versions.Reconciler { return r.reconciler }

// Files builds every file in paths, in lexical order. Cancellation is
// checked between containers; a canceled batch returns the titles built so
// far together with the context error.
func (r *Runner) Files(ctx context.Context, paths []string) (*Result, error) {
	sorted := slices.Clone(paths)
	sort.Strings(sorted)

	res, ctx, logger := r.begin(ctx, len(sorted))
	logger.Info("scan started",
		logging.String(logging.FieldEventType, "scan_started"),
		logging.Int("containers", len(sorted)),
	)
	for i, path := range sorted {
		if err := ctx.Err(); err != nil {
			return r.canceled(res, logger, err)
		}
		t, err := r.builder.BuildFromFile(ctx, path)
		if err != nil {
			r.skip(res, logger, path, err)
		} else {
			r.reconciler.Observe(t)
			res.Titles = append(res.Titles, t)
		}
		r.report(Progress{Index: i + 1, Total: len(sorted), Label: filepath.Base(path)})
	}
	r.done(res, logger)
	return res, nil
}

// Directory collects container files below root and builds them.
func (r *Runner) Directory(ctx context.Context, root string) (*Result, error) {
	paths, err := Collect(root, r.extensions)
	if err != nil {
		return nil, err
	}
	return r.Files(ctx, paths)
}

// Installed indexes the installed-title database below root and builds
// every listed title in title ID order.
func (r *Runner) Installed(ctx context.Context, root string) (*Result, error) {
	db, err := installed.Open(ctx, root, r.opener, r.logger)
	if err != nil {
		if errors.Is(err, installed.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, root)
		}
		return nil, err
	}
	titles := db.Titles()

	res, ctx, logger := r.begin(ctx, len(titles))
	logger.Info("installed scan started",
		logging.String(logging.FieldEventType, "scan_started"),
		logging.String("root", root),
		logging.Int("titles", len(titles)),
	)
	for i, it := range titles {
		if err := ctx.Err(); err != nil {
			return r.canceled(res, logger, err)
		}
		t := r.builder.BuildInstalled(ctx, it)
		r.reconciler.Observe(t)
		res.Titles = append(res.Titles, t)
		r.report(Progress{Index: i + 1, Total: len(titles), Label: t.TitleID})
	}
	r.done(res, logger)
	return res, nil
}

// RefreshCatalog refreshes the version catalog and re-annotates titles whose
// catalog version is newer than what they carry. It returns the number of
// titles updated. On failure nothing changes and the error wraps
// versions.ErrUnavailable.
func (r *Runner) RefreshCatalog(ctx context.Context, titles []*title.Title) (int, error) {
	if r.catalog == nil {
		return 0, fmt.Errorf("%w: no catalog configured", versions.ErrUnavailable)
	}
	if err := r.catalog.Refresh(ctx); err != nil {
		return 0, err
	}
	updated := 0
	for _, t := range titles {
		if t.Type != title.TypeApplication && t.Type != title.TypePatch {
			continue
		}
		v, ok := r.catalog.Lookup(t.TitleIDApplication())
		if !ok || (t.LatestVersion != nil && *t.LatestVersion >= v) {
			continue
		}
		t.SetLatestVersion(v)
		updated++
	}
	r.reconciler.ObserveAll(titles)
	r.logger.Info("catalog applied",
		logging.String(logging.FieldEventType, "catalog_applied"),
		logging.Int("catalog_titles", r.catalog.Len()),
		logging.Int("updated", updated),
	)
	return updated, nil
}

func (r *Runner) begin(ctx context.Context, total int) (*Result, context.Context, *slog.Logger) {
	res := &Result{BatchID: uuid.NewString()}
	ctx = logging.WithBatchID(ctx, res.BatchID)
	r.report(Progress{Index: -1, Total: total})
	return res, ctx, logging.WithContext(ctx, r.logger)
}

func (r *Runner) report(p Progress) {
	if r.progress != nil {
		r.progress(p)
	}
}

func (r *Runner) skip(res *Result, logger *slog.Logger, path string, err error) {
	res.Skipped = append(res.Skipped, Skip{Path: path, Err: err})
	if errors.Is(err, builder.ErrUnrecognized) {
		logger.Debug("container not recognized", logging.File(path))
		return
	}
	logging.WarnWithContext(logger, "container skipped", "container_skipped",
		logging.File(path),
		logging.Error(err),
		logging.Bool("retryable", services.Retryable(err)),
		logging.String(logging.FieldImpact, "no title produced for this file"),
	)
}

func (r *Runner) canceled(res *Result, logger *slog.Logger, err error) (*Result, error) {
	res.Canceled = true
	logger.Info("scan canceled",
		logging.String(logging.FieldEventType, "scan_canceled"),
		logging.Int("titles", len(res.Titles)),
	)
	return res, err
}

func (r *Runner) done(res *Result, logger *slog.Logger) {
	logger.Info("scan finished",
		logging.String(logging.FieldEventType, "scan_finished"),
		logging.Int("titles", len(res.Titles)),
		logging.Int("skipped", len(res.Skipped)),
	)
}

// Collect lists the files below root whose extension is in exts, compared
// case-insensitively. A regular file root is returned as is.
func Collect(root string, exts []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if path == root || matchExtension(path, exts) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

func matchExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
