package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dashwatch/internal/diff"
	"dashwatch/internal/faults"
	"dashwatch/internal/report"
	"dashwatch/internal/snapshot"
)

type diffOptions struct {
	keys   []string
	values []string
	sheet  string
	out    string
}

func newDiffCmd() *cobra.Command {
	o := &diffOptions{}
	cmd := &cobra.Command{
		Use:   "diff <previous> <current>",
		Short: "Compare two exports without touching any state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(o.keys) == 0 {
				return faults.Configuration(snapshot.ErrNoKeyColumns)
			}
			if len(o.values) == 0 {
				return faults.Configuration(errors.New("--values is required"))
			}
			previous, err := readSnapshot(args[0], o.sheet)
			if err != nil {
				return err
			}
			current, err := readSnapshot(args[1], o.sheet)
			if err != nil {
				return err
			}

			entries, err := diff.Diff(current, previous, o.keys, o.values)
			if err != nil {
				return err
			}
			rep := report.Build(entries, current, nil, report.Options{
				Monitor:      "diff",
				KeyColumns:   o.keys,
				ValueColumns: o.values,
			})[0]
			report.RenderText(cmd.OutOrStdout(), rep)

			if o.out == "" {
				return nil
			}
			format, err := snapshot.FormatFromPath(o.out)
			if err != nil {
				return faults.Configuration(err)
			}
			data, err := report.Encode(rep, format)
			if err != nil {
				return faults.Configuration(err)
			}
			if err := os.WriteFile(o.out, data, 0o644); err != nil {
				return faults.Persistence(err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", o.out)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&o.keys, "keys", "k", nil, "key columns (comma separated)")
	cmd.Flags().StringSliceVarP(&o.values, "values", "v", nil, "value columns (comma separated)")
	cmd.Flags().StringVar(&o.sheet, "sheet", "", "worksheet to read from xlsx inputs (default: first)")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "also write the report to this .xlsx or .csv file")
	return cmd
}

func readSnapshot(path, sheet string) (snapshot.Snapshot, error) {
	format, err := snapshot.FormatFromPath(path)
	if err != nil {
		return snapshot.Snapshot{}, faults.Configuration(err)
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(err)
	}
	defer f.Close()

	s, err := snapshot.Decode(format, f, snapshot.DecodeOptions{Sheet: strings.TrimSpace(sheet)})
	if err != nil {
		return snapshot.Snapshot{}, faults.Acquisition(fmt.Errorf("decode %s: %w", path, err))
	}
	return s, nil
}
