package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dashwatch/internal/app"
	"dashwatch/internal/notify"
	"dashwatch/internal/runtime/supervisor"
	logx "dashwatch/pkg/logx"
)

func newNotifyCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "notify [monitor...]",
		Short: "Deliver pending reports to Telegram",
		Long: `Consumes the changed flag of each monitor and sends its summary and
reports. Without a flag nothing is sent. --watch keeps running and delivers
as soon as a run sets a flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Notifier()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = a.Config().MonitorNames()
			}
			if watch {
				return watchLoop(cmd.Context(), a, n, names)
			}

			ds, err := n.DeliverAll(cmd.Context(), names)
			for _, d := range ds {
				if d.Flag == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to send\n", d.Monitor)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: sent %d, skipped %d\n", d.Monitor, len(d.Sent), len(d.Skipped))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and deliver flags as they appear")
	return cmd
}

// watchLoop runs the watcher and the optional debug server until ctx ends or
// one of them fails for good.
func watchLoop(ctx context.Context, a *app.App, n *notify.Notifier, names []string) error {
	log := a.Log()
	sup := supervisor.New(ctx,
		supervisor.WithLogger(log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	sup.GoRestart("notify.watch", func(c context.Context) error {
		return n.Watch(c, names)
	}, supervisor.WithMaxRestarts(5))

	if srv := a.DebugServer(); srv != nil {
		sup.GoRestart("debug.http", srv.Serve,
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
			supervisor.WithMaxRestarts(5))
	}

	<-sup.Context().Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		return err
	}
	log.Info("watch stopped")
	return nil
}
