package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-gridexport/cmd/gridexport/config"
	exportcmd "github.com/goliatone/go-gridexport/command"
	"github.com/goliatone/go-gridexport/export"
)

func newBatchCmd(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Save the exports listed in a JSON file",
		Long: `Runs every request of a JSON array against the configured grids and
saves the workbooks to the artifact directory. Stops at the first failure.

Example file:
  [{"grid": "orders", "title": "Daily", "filter": {"status": "open"}}]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg, a.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			batch := exportcmd.NewScheduledExportsCommand(rt.runner, nil,
				exportcmd.WithBatchResultHook(func(res export.ExportResult) {
					fmt.Fprintf(out, "%s\t%s\t%d\t%s\n", res.ID, res.Grid, res.Rows, res.Filename)
				}),
			)
			count, err := batch.Run(cmd.Context(), from)
			a.logger.Info("batch finished", zap.String("from", from), zap.Int("saved", count), zap.Error(err))
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "JSON file with export requests")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
