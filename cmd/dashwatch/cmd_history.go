package main

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <monitor>",
		Short: "Show the most recent runs of a monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Store().RecentRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.Style().Format.Footer = text.FormatDefault
			t.SetTitle(args[0])
			t.AppendHeader(table.Row{"Started", "Reason", "Added", "Removed", "Modified", "Rows", "Took", "Error"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.StartedAt.Local().Format(time.DateTime),
					r.Reason,
					r.Added,
					r.Removed,
					r.Modified,
					r.Rows,
					r.Took.Round(time.Millisecond).String(),
					r.Error,
				})
			}
			t.AppendFooter(table.Row{strconv.Itoa(len(runs)) + " runs"})
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
