package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"nxinfo/internal/builder"
	"nxinfo/internal/config"
	"nxinfo/internal/container"
	"nxinfo/internal/history"
	"nxinfo/internal/keys"
	"nxinfo/internal/logging"
	"nxinfo/internal/preflight"
	"nxinfo/internal/scan"
	"nxinfo/internal/services/hactool"
	"nxinfo/internal/versions"
)

// newContentOpener builds the reader used for encrypted content archives.
// Tests replace it.
var newContentOpener = func(cfg *config.Config, store *keys.Store, logger *slog.Logger) (container.ContentOpener, error) {
	return hactool.New(cfg.Hactool.Binary, cfg.Keys.ProdKeys, store,
		hactool.WithWorkDir(cfg.Hactool.WorkDir),
		hactool.WithTimeout(cfg.HactoolTimeout()),
		hactool.WithLogger(logger),
	)
}

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.verbose != nil && *c.verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("create logger: %w", err)
			return
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
			logging.RetentionTarget{
				Dir:     cfg.Paths.LogDir,
				Pattern: "*.log",
				Exclude: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
			},
			// Spool dirs left behind by an interrupted hactool run.
			logging.RetentionTarget{Dir: cfg.Hactool.WorkDir, Pattern: hactool.SpoolPattern, Dirs: true},
		)
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// app holds everything a scanning command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	keys    *keys.Store
	catalog *versions.Catalog
	history *history.Store
	runner  *scan.Runner
}

type appOptions struct {
	progress scan.ProgressFunc
}

// openApp runs the blocking preflight checks, loads keys and the cached
// version catalog, and wires the scan runner. The best-known version map is
// seeded from the latest history batch.
func (c *commandContext) openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	if failed, ok := preflight.FirstBlocking(preflight.RunAll(ctx, cfg, nil)); ok {
		return nil, fmt.Errorf("preflight %s: %s", strings.ToLower(failed.Name), failed.Detail)
	}
	store, err := keys.Load(keys.Paths{
		Prod:    cfg.Keys.ProdKeys,
		Title:   cfg.Keys.TitleKeys,
		Console: cfg.Keys.ConsoleKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	if check := preflight.CheckRequiredKeys(store); check.Blocking() {
		return nil, fmt.Errorf("load keys: %s", check.Detail)
	}
	logger.Debug("keys loaded",
		logging.String(logging.FieldEventType, "keys_loaded"),
		logging.Int("title_keys", store.TitleKeyCount()),
		logging.Bool("sd_keys", store.HasSDKeys()),
	)

	catalog := versions.NewCatalog(
		versions.NewHTTPSource(cfg.Versions.URL, cfg.VersionsTimeout()),
		cfg.Versions.CacheFile,
		logger,
	)
	if err := catalog.LoadCached(); err != nil {
		logger.Debug("version cache not loaded", logging.Error(err))
	}
	if cfg.Versions.RefreshOnStart {
		if err := catalog.Refresh(ctx); err != nil {
			logging.WarnWithContext(logger, "version list refresh failed", "catalog_refresh_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "latest versions come from the cached list"),
			)
		}
	}

	opener, err := newContentOpener(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, keys: store, catalog: catalog}
	rec := versions.NewReconciler()
	if cfg.History.Enabled {
		hs, err := history.Open(cfg.History.Path, cfg.History.Size)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = hs
		latest, err := hs.Latest(ctx)
		switch {
		case err == nil:
			rec.Seed(latest.Titles)
		case !errors.Is(err, history.ErrEmpty):
			logging.WarnWithContext(logger, "history not loaded", "history_load_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "best-known versions start empty"),
			)
		}
	}

	b := builder.New(store, opener, builder.WithLogger(logger), builder.WithCatalog(catalog))
	a.runner = scan.NewRunner(b, opener,
		scan.WithLogger(logger),
		scan.WithExtensions(cfg.Scan.Extensions),
		scan.WithCatalog(catalog),
		scan.WithReconciler(rec),
		scan.WithProgress(opts.progress),
	)
	return a, nil
}

func (a *app) Close() error {
	if a == nil || a.history == nil {
		return nil
	}
	return a.history.Close()
}

// record stores a finished batch in the history database.
func (a *app) record(ctx context.Context, source string, res *scan.Result) {
	if a.history == nil || res == nil || len(res.Titles) == 0 {
		return
	}
	if err := a.history.Save(ctx, res.BatchID, source, res.Titles); err != nil {
		logging.WarnWithContext(a.logger, "history save failed", "history_save_failed",
			logging.String("batch_id", res.BatchID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "batch is not kept for later runs"),
		)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
