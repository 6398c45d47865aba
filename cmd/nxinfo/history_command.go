package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"nxinfo/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var latest bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List stored scan batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				if latest {
					batch, err := store.Latest(cmd.Context())
					if err != nil {
						return err
					}
					return showBatch(cmd, batch, jsonOut)
				}
				batches, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, batches)
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches stored")
					return nil
				}
				rows := make([][]string, 0, len(batches))
				for _, b := range batches {
					rows = append(rows, []string{
						b.ID,
						humanize.Time(b.CreatedAt),
						b.Source,
						strconv.Itoa(b.TitleCount),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Batch", "Created", "Source", "Titles"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	historyCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output JSON instead of a table")
	historyCmd.Flags().BoolVar(&latest, "latest", false, "Show the titles of the newest batch")

	historyCmd.AddCommand(&cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show the titles of one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				batch, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return showBatch(cmd, batch, jsonOut)
			})
		},
	})
	return historyCmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in the configuration")
	}
	store, err := history.Open(cfg.History.Path, cfg.History.Size)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func showBatch(cmd *cobra.Command, batch *history.Batch, jsonOut bool) error {
	if jsonOut {
		return writeJSON(cmd, batch)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %s (%s, %s)\n", batch.ID, batch.Source, humanize.Time(batch.CreatedAt))
	if len(batch.Titles) > 0 {
		fmt.Fprintln(out, renderTitles(batch.Titles, nil))
	}
	return nil
}
