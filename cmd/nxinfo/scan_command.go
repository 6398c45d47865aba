package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"nxinfo/internal/config"
	"nxinfo/internal/export"
	"nxinfo/internal/scan"
	"nxinfo/internal/title"
)

// batchFlags are shared by the commands that produce a batch of titles.
type batchFlags struct {
	json        bool
	maxFirmware string
	exportPath  string
	refresh     bool
}

func (f *batchFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.json, "json", false, "Output JSON instead of a table")
	cmd.Flags().StringVar(&f.maxFirmware, "max-firmware", "", "Hide titles that need a newer firmware (x.y.z)")
	cmd.Flags().StringVarP(&f.exportPath, "export", "o", "", "Also write a pipe-delimited export file")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "Refresh the version list after scanning")
}

func (f *batchFlags) firmwareLimit(cfg *config.Config) (string, error) {
	limit := strings.TrimSpace(f.maxFirmware)
	if limit == "" {
		limit = cfg.Scan.MaxFirmware
	}
	if limit != "" && !config.ValidFirmware(limit) {
		return "", fmt.Errorf("invalid firmware limit %q (expected x.y.z)", limit)
	}
	return limit, nil
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "Read metadata from container files and directories",
		Long: "Read metadata from cartridge images, digital packages and homebrew executables.\n" +
			"Directories are searched recursively for the configured extensions.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			paths, err := collectPaths(args, cfg.Scan.Extensions)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no container files found in %s", strings.Join(args, ", "))
			}
			return runBatch(cmd, ctx, &flags, strings.Join(args, ", "), func(c context.Context, r *scan.Runner) (*scan.Result, error) {
				return r.Files(c, paths)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

// collectPaths expands directory arguments into the container files below
// them. Duplicate paths are dropped.
func collectPaths(args []string, exts []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", arg, err)
		}
		found := []string{arg}
		if info.IsDir() {
			if found, err = scan.Collect(arg, exts); err != nil {
				return nil, err
			}
		}
		for _, p := range found {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

// runBatch opens the app, runs one batch with progress and interrupt
// handling, records it and presents the titles. An interrupted batch still
// presents and records what it built before returning the cancellation.
func runBatch(cmd *cobra.Command, ctx *commandContext, flags *batchFlags, source string, fn func(context.Context, *scan.Runner) (*scan.Result, error)) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	limit, err := flags.firmwareLimit(cfg)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := newProgressReporter(cmd.ErrOrStderr())
	a, err := ctx.openApp(runCtx, appOptions{progress: reporter.notify})
	if err != nil {
		return err
	}
	defer a.Close()

	res, scanErr := reporter.run(runCtx, func(c context.Context) (*scan.Result, error) {
		return fn(c, a.runner)
	})
	if res == nil {
		return scanErr
	}
	if scanErr != nil && !res.Canceled {
		return scanErr
	}

	outCtx := context.WithoutCancel(runCtx)
	if flags.refresh && !res.Canceled {
		updated, err := a.runner.RefreshCatalog(outCtx, res.Titles)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Version list not refreshed: %v\n", err)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Version list refreshed; %d title(s) updated\n", updated)
		}
	}
	a.record(outCtx, source, res)
	if err := present(cmd, a, res, flags, limit); err != nil {
		return err
	}
	return scanErr
}

func present(cmd *cobra.Command, a *app, res *scan.Result, flags *batchFlags, limit string) error {
	titles, hidden := filterFirmware(res.Titles, limit)
	stderr := cmd.ErrOrStderr()

	if path := strings.TrimSpace(flags.exportPath); path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return fmt.Errorf("resolve export path: %w", err)
		}
		n, err := export.WriteFile(context.WithoutCancel(cmd.Context()), expanded, titles, export.Options{
			Product: "nxinfo",
			Version: version,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(stderr, "Exported %d title(s) to %s\n", n, expanded)
	}

	if flags.json {
		if titles == nil {
			titles = []*title.Title{}
		}
		if err := writeJSON(cmd, titles); err != nil {
			return err
		}
	} else if len(titles) > 0 {
		stale := func(t *title.Title) bool {
			return a.runner.Reconciler().Stale(t, a.catalog, a.keys)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTitles(titles, stale))
	}

	writeSkipped(stderr, res.Skipped)
	if hidden > 0 {
		fmt.Fprintf(stderr, "%d title(s) hidden: firmware above %s\n", hidden, limit)
	}
	status := "complete"
	if res.Canceled {
		status = "interrupted"
	}
	fmt.Fprintf(stderr, "Scan %s: %d title(s), batch %s\n", status, len(res.Titles), res.BatchID)
	return nil
}
