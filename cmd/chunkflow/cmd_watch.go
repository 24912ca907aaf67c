package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lguimbarda/chunkflow/flow/core"
	"github.com/lguimbarda/chunkflow/flow/filter"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
	"github.com/lguimbarda/chunkflow/flow/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Print classified change events for a directory",
		Long: `Watch DIR and print one line per change: created, content-updated,
status-updated or deleted, followed by the entry name. Runs until
interrupted, or until --count events were printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			printer := core.SinkFunc[watch.Event]{
				WriteFn: func(_ context.Context, ev watch.Event) error {
					_, err := fmt.Fprintln(a.stdout, ev)
					return err
				},
			}

			events := pipeline.From("watch", watch.Watch(args[0]), a.pipelineOptions(ctx, "watch")...)
			if count > 0 {
				events = events.Through("take", filter.Take[watch.Event](count))
			}
			_, err := events.Into("print", printer).Run(ctx)
			// interrupted by the user
			if core.IsCancellation(err) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many events (0 runs until interrupted)")
	return cmd
}
