package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"nxinfo/internal/logging"
	"nxinfo/internal/scan"
	"nxinfo/internal/sdmonitor"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan every storage card as it is inserted",
		Long: "Listen for removable partitions being attached and read the installed titles\n" +
			"of each one once it is mounted. Runs until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			limit, err := flags.firmwareLimit(cfg)
			if err != nil {
				return err
			}

			lock := flock.New(cfg.Watch.LockFile)
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire watch lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another watcher is running (lock %s)", cfg.Watch.LockFile)
			}
			defer func() { _ = lock.Unlock() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := ctx.openApp(runCtx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			monitor := sdmonitor.New(watchHandler(cmd, a, &flags, limit),
				sdmonitor.WithLogger(a.logger),
				sdmonitor.WithSettle(cfg.WatchSettle(), 0),
			)
			fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for storage cards; press Ctrl+C to stop")
			return monitor.Run(runCtx)
		},
	}
	flags.bind(cmd)
	return cmd
}

// watchHandler scans each mounted card. Cards without an installed-title
// database are reported and ignored so that the watcher keeps running.
func watchHandler(cmd *cobra.Command, a *app, flags *batchFlags, limit string) sdmonitor.Handler {
	return func(ctx context.Context, mount sdmonitor.Mount) error {
		fmt.Fprintf(cmd.ErrOrStderr(), "Card mounted at %s (%s)\n", mount.Path, mount.Device)
		res, err := a.runner.Installed(ctx, mount.Path)
		if errors.Is(err, scan.ErrDatabaseNotFound) {
			fmt.Fprintf(cmd.ErrOrStderr(), "No installed titles on %s\n", mount.Path)
			a.logger.Info("card has no title database",
				logging.String(logging.FieldEventType, "card_ignored"),
				logging.String("mount", mount.Path),
			)
			return nil
		}
		if res == nil {
			return err
		}
		a.record(context.WithoutCancel(ctx), mount.Path, res)
		if perr := present(cmd, a, res, flags, limit); perr != nil {
			return perr
		}
		return err
	}
}
