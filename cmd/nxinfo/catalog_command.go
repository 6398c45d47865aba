package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nxinfo/internal/history"
	"nxinfo/internal/versions"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and refresh the title version list",
	}
	catalogCmd.AddCommand(newCatalogRefreshCommand(ctx))
	catalogCmd.AddCommand(newCatalogShowCommand(ctx))
	return catalogCmd
}

func newCatalogRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Download the version list and re-check the latest scan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var latest *history.Batch
			if a.history != nil {
				latest, err = a.history.Latest(cmd.Context())
				if err != nil && !errors.Is(err, history.ErrEmpty) {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if latest == nil {
				if err := a.catalog.Refresh(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(out, "Version list refreshed: %d titles\n", a.catalog.Len())
				return nil
			}

			updated, err := a.runner.RefreshCatalog(cmd.Context(), latest.Titles)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Version list refreshed: %d titles\n", a.catalog.Len())
			fmt.Fprintf(out, "Batch %s: %d title(s) have a newer version\n", latest.ID, updated)
			if updated > 0 {
				if err := a.history.Save(cmd.Context(), uuid.NewString(), latest.Source, latest.Titles); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCatalogShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show [title-id...]",
		Short: "Show the cached version list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			catalog := versions.NewCatalog(nil, cfg.Versions.CacheFile, logger)
			if err := catalog.LoadCached(); err != nil {
				return fmt.Errorf("load version cache: %w", err)
			}

			if len(args) == 0 {
				return showCatalogSummary(cmd, catalog, cfg.Versions.CacheFile, jsonOut)
			}

			found := make(map[string]uint32, len(args))
			rows := make([][]string, 0, len(args))
			for _, id := range args {
				key := versions.CatalogID(id)
				v, ok := catalog.Lookup(key)
				if !ok {
					rows = append(rows, []string{key, "unknown"})
					continue
				}
				found[key] = v
				rows = append(rows, []string{key, strconv.FormatUint(uint64(v), 10)})
			}
			if jsonOut {
				return writeJSON(cmd, found)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Title ID", "Latest"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON instead of a table")
	return cmd
}

type catalogSummary struct {
	Titles       int       `json:"titles"`
	LastModified time.Time `json:"last_modified,omitzero"`
	CacheFile    string    `json:"cache_file"`
	CacheAge     string    `json:"cache_age,omitempty"`
}

func showCatalogSummary(cmd *cobra.Command, catalog *versions.Catalog, path string, jsonOut bool) error {
	summary := catalogSummary{
		Titles:       catalog.Len(),
		LastModified: catalog.LastModified(),
		CacheFile:    path,
	}
	if age, ok := catalog.CacheAge(); ok {
		summary.CacheAge = humanize.RelTime(time.Now().Add(-age), time.Now(), "ago", "from now")
	}
	if jsonOut {
		return writeJSON(cmd, summary)
	}

	rows := [][]string{
		{"Titles", humanize.Comma(int64(summary.Titles))},
		{"Cache file", summary.CacheFile},
	}
	if !summary.LastModified.IsZero() {
		rows = append(rows, []string{"Last modified", summary.LastModified.Local().Format(time.DateTime)})
	}
	if summary.CacheAge != "" {
		rows = append(rows, []string{"Downloaded", summary.CacheAge})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}
