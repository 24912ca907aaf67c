package main

import (
	"bytes"
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
	"github.com/lguimbarda/chunkflow/flow/filter"
	flowio "github.com/lguimbarda/chunkflow/flow/io"
	"github.com/lguimbarda/chunkflow/flow/netflow"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
)

func newSendCmd(a *app) *cobra.Command {
	var addr string
	var beats bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send MSG...",
		Short: "Send messages to a chunkflow server and print the replies",
		Long: `Send each message to the server, close the write side and print every
reply until the server closes the connection. Chunks that are exactly a
heartbeat are dropped unless --beats is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			client, err := netflow.Dial(ctx, addr)
			if err != nil {
				return err
			}
			defer client.Close()

			msgs := make([][]byte, len(args))
			for i, arg := range args {
				msgs[i] = []byte(arg)
			}
			if err := flow.Drain(ctx, flow.FromSlice(msgs), client.Sink()); err != nil {
				return err
			}

			replies := pipeline.From("replies", client.Replies(), a.pipelineOptions(ctx, "send")...)
			if !beats {
				replies = replies.Through("beats", filter.Exclude(func(chunk []byte) bool {
					return bytes.Equal(chunk, netflow.Beat)
				}))
			}
			_, err = replies.Into("print", core.Sink[[]byte](flowio.NewWriterSink(a.stdout))).Run(ctx)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "server address (default server.addr)")
	cmd.Flags().BoolVar(&beats, "beats", false, "print heartbeats too")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long")
	return cmd
}
