package main

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lguimbarda/chunkflow/flow/core"
	flowio "github.com/lguimbarda/chunkflow/flow/io"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
	"github.com/lguimbarda/chunkflow/flow/process"
)

func newSpawnCmd(a *app) *cobra.Command {
	var env []string
	var dir, transform string
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "spawn [flags] -- CMD [ARGS...]",
		Short: "Stream a child process's output through a transform",
		Long: `Start CMD and copy its stdout, transformed, to stdout. A non-zero exit
fails the run with the tail of the process's stderr.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bad := lo.Reject(env, func(kv string, _ int) bool { return strings.Contains(kv, "=") }); len(bad) > 0 {
				return errors.WithHint(
					core.WithKind(errors.Newf("malformed --env %q", bad), core.KindInvalidInput),
					"use --env KEY=VALUE",
				)
			}
			t, err := a.transform(transform)
			if err != nil {
				return err
			}

			src := process.NewChunkSource(process.Command{
				Name:        args[0],
				Args:        args[1:],
				Dir:         dir,
				Env:         env,
				Stdin:       a.stdin,
				GracePeriod: grace,
			}, a.cfg.Pipeline.ChunkSize)

			ctx := a.observed(cmd.Context(), "transform")
			_, err = pipeline.FromSource[[]byte]("spawn", src, a.pipelineOptions(ctx, "spawn")...).
				Through("transform", t).
				Through("observe", core.Observe[[]byte]()).
				Into("stdout", flowio.NewWriterSink(a.stdout)).
				Run(ctx)
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "extra environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&dir, "dir", "", "working directory")
	cmd.Flags().StringVarP(&transform, "transform", "t", "echo", "transform to apply")
	cmd.Flags().DurationVar(&grace, "grace", process.DefaultGracePeriod, "time to exit after SIGTERM before SIGKILL")
	return cmd
}
