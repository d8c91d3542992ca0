package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dashwatch/internal/monitor"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var deliver bool
	cmd := &cobra.Command{
		Use:   "run [monitor...]",
		Short: "Acquire snapshots, classify changes and publish reports",
		Long: `Runs every configured monitor, or only the named ones. A run that finds
changes writes its reports and sets the monitor's changed flag; "notify"
delivers them. With --notify delivery follows immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			runner := a.Runner()
			names := args
			if len(names) == 0 {
				names = runner.Names()
			}

			var (
				errs    []error
				changed bool
			)
			for _, name := range names {
				rep, err := runner.Run(ctx, name)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
					continue
				}
				changed = changed || rep.Result.HasChanges
				printRun(cmd, rep)
			}
			if err := writeStepOutput(os.Getenv("GITHUB_OUTPUT"), changed); err != nil {
				errs = append(errs, err)
			}

			if deliver {
				n, err := a.Notifier()
				if err != nil {
					return errors.Join(append(errs, err)...)
				}
				if _, err := n.DeliverAll(ctx, names); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&deliver, "notify", false, "deliver pending reports after the runs")
	return cmd
}

func printRun(cmd *cobra.Command, rep monitor.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s (%d rows", rep.Monitor, rep.Result.Reason, rep.Rows)
	if s := rep.Summary; s.Total() > 0 {
		fmt.Fprintf(out, ", +%d -%d ~%d", s.Added, s.Removed, s.Modified)
	}
	fmt.Fprintln(out, ")")
	for _, art := range rep.Artifacts {
		fmt.Fprintf(out, "  %s\n", art.Name)
	}
}

// writeStepOutput appends has_changes to a CI step output file. Empty path
// is a no-op.
func writeStepOutput(path string, changed bool) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("step output: %w", err)
	}
	if _, err := fmt.Fprintf(f, "has_changes=%t\n", changed); err != nil {
		_ = f.Close()
		return fmt.Errorf("step output: %w", err)
	}
	return f.Close()
}
