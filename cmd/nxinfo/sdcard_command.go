package main

import (
	"context"

	"github.com/spf13/cobra"

	"nxinfo/internal/scan"
)

func newSDCardCommand(ctx *commandContext) *cobra.Command {
	var flags batchFlags
	cmd := &cobra.Command{
		Use:   "sdcard <mount-path>",
		Short: "Read metadata for the titles installed on a storage card",
		Long: "Read metadata for the titles installed on a mounted storage card or a copy of one.\n" +
			"The path must contain Nintendo/Contents/registered or Contents/registered.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			return runBatch(cmd, ctx, &flags, root, func(c context.Context, r *scan.Runner) (*scan.Result, error) {
				return r.Installed(c, root)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}
