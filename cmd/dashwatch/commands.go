package main

import (
	"github.com/spf13/cobra"

	"dashwatch/internal/app"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "dashwatch",
		Short:         "Watch tabular exports for changes and deliver the differences",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./dashwatch.yaml", "path to config yaml/json")

	root.AddCommand(
		newRunCmd(opts),
		newNotifyCmd(opts),
		newDiffCmd(),
		newHistoryCmd(opts),
	)
	return root
}

// openApp loads the config of cmd and opens the stores it names.
func (o *rootOptions) openApp(cmd *cobra.Command) (*app.App, error) {
	return app.NewApp(cmd.Context(), o.configPath)
}
