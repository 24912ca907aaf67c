package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lguimbarda/chunkflow/flow/netflow"
	"github.com/lguimbarda/chunkflow/internal/logger"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, transform string
	var heartbeat time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a TCP transform with a heartbeat",
		Long: `Accept TCP connections and run one pipeline per connection: every chunk a
client sends is transformed and written back, and "beat" is written at every
heartbeat until the client closes its side.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr
			}
			if !cmd.Flags().Changed("heartbeat") {
				heartbeat = a.cfg.Server.Heartbeat
			}
			if !cmd.Flags().Changed("transform") {
				transform = a.cfg.Server.Transform
			}
			t, err := a.transform(transform)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			srv := &netflow.Server{
				Addr:      addr,
				Heartbeat: heartbeat,
				Transform: t,
				ChunkSize: a.cfg.Pipeline.ChunkSize,
				Logger:    a.log.WithComponent("server").Zerolog(),
				Options:   a.pipelineOptions(ctx, "server"),
			}
			a.log.WithFields(map[string]any{logger.FieldComponent: "server", "transform": transform}).Info("starting")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "heartbeat interval (default server.heartbeat)")
	cmd.Flags().StringVarP(&transform, "transform", "t", "", "transform to apply (default server.transform)")
	return cmd
}
