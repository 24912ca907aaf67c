package main

import (
	"github.com/spf13/cobra"

	"github.com/lguimbarda/chunkflow/flow/core"
	flowio "github.com/lguimbarda/chunkflow/flow/io"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var in, out, transform string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Read a file, transform its chunks and write the result",
		Long: `Run a file -> transform -> file pipeline. Use "-" for stdin or stdout.
Every chunk is pipeline.chunk_size bytes except possibly the last.

Transforms: echo, upper, lower, gzip, gunzip, hex, unhex, scrypt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.transform(transform)
			if err != nil {
				return err
			}

			var src core.Source[[]byte]
			if in == "-" {
				src = flowio.NewChunkSource(a.stdin, a.cfg.Pipeline.ChunkSize)
			} else {
				src = flowio.OpenChunks(in, a.cfg.Pipeline.ChunkSize)
			}

			var sink *flowio.WriterSink
			if out == "-" {
				sink = flowio.NewWriterSink(a.stdout)
			} else if sink, err = flowio.FileSink(out); err != nil {
				_ = src.Close()
				return err
			}

			ctx := a.observed(cmd.Context(), "transform")
			_, err = pipeline.FromSource("read", src, a.pipelineOptions(ctx, "run")...).
				Through("transform", t).
				Through("observe", core.Observe[[]byte]()).
				Into("write", sink).
				Run(ctx)
			return err
		},
	}

	cmd.Flags().StringVar(&in, "in", "-", "input file")
	cmd.Flags().StringVar(&out, "out", "-", "output file")
	cmd.Flags().StringVarP(&transform, "transform", "t", "upper", "transform to apply")
	return cmd
}
