package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	trackerbun "github.com/goliatone/go-gridexport/adapters/tracker/bun"
	"github.com/goliatone/go-gridexport/cmd/gridexport/config"
	exportqry "github.com/goliatone/go-gridexport/query"
)

type historyOptions struct {
	grid  string
	state string
	since time.Duration
	limit int
}

func newHistoryCmd(a *app) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List tracked exports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}
			return a.runHistory(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.grid, "grid", "", "Only exports of this grid")
	flags.StringVar(&opts.state, "state", "", "Only exports in state running, completed or failed")
	flags.DurationVar(&opts.since, "since", 0, "Only exports started within this duration")
	flags.IntVar(&opts.limit, "limit", 20, "Maximum number of exports")
	return cmd
}

func (a *app) runHistory(ctx context.Context, cfg config.Config, opts *historyOptions, out io.Writer) error {
	db, err := openDB(cfg.Export.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	tracker := trackerbun.NewTracker(db)
	if err := tracker.CreateTable(ctx); err != nil {
		return err
	}

	msg := exportqry.ExportHistory{
		Grid:  opts.grid,
		State: trackerbun.State(opts.state),
		Limit: opts.limit,
	}
	if opts.since > 0 {
		msg.Since = time.Now().Add(-opts.since)
	}
	records, err := exportqry.NewExportHistoryHandler(tracker).Query(ctx, msg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGRID\tSTATE\tROWS\tSTARTED\tERROR")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.ID, rec.Grid, rec.State, rec.Rows, rec.StartedAt.Format(time.RFC3339), rec.Error)
	}
	return tw.Flush()
}
