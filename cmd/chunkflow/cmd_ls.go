package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lguimbarda/chunkflow/flow"
	flowio "github.com/lguimbarda/chunkflow/flow/io"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
	"github.com/lguimbarda/chunkflow/flow/watch"
)

func newLsCmd(a *app) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls DIR",
		Short: "List a directory",
		Long:  `List the entries of DIR in name order, each labelled dir or file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entries := pipeline.From("list", watch.List(args[0]), a.pipelineOptions(ctx, "ls")...)
			lines := pipeline.Via(entries, "format", flow.Map(func(e watch.Entry) (string, error) {
				return formatEntry(e, long), nil
			}))
			_, err := lines.Into("print", flowio.LineSink(a.stdout)).Run(ctx)
			return err
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "include size and change times")
	return cmd
}

func formatEntry(e watch.Entry, long bool) string {
	label := "file"
	if e.IsDir {
		label = "dir"
	}
	if !long {
		return fmt.Sprintf("%-4s %s", label, e.Name)
	}
	return fmt.Sprintf("%-4s %s %10d %s %s %s", label, e.Mode, e.Size,
		e.CTime.Format(time.RFC3339), e.MTime.Format(time.RFC3339), e.Name)
}
