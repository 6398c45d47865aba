package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nxinfo/internal/keys"
	"nxinfo/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check keys, tools and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// Key contents are only checked when the key files load.
			store, _ := keys.Load(keys.Paths{
				Prod:    cfg.Keys.ProdKeys,
				Title:   cfg.Keys.TitleKeys,
				Console: cfg.Keys.ConsoleKeys,
			})
			results := preflight.RunAll(cmd.Context(), cfg, store)
			if jsonOut {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Name, checkStatus(r), r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			}
			if failed, ok := preflight.FirstBlocking(results); ok {
				return fmt.Errorf("%s check failed", failed.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON instead of a table")
	return cmd
}

func checkStatus(r preflight.Result) string {
	switch {
	case r.Passed:
		return "OK"
	case r.Optional:
		return "WARN"
	default:
		return "FAIL"
	}
}
