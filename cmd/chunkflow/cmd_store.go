package main

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/lguimbarda/chunkflow/flow/core"
	flowio "github.com/lguimbarda/chunkflow/flow/io"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
	"github.com/lguimbarda/chunkflow/flow/store"
)

const storeTable = "chunks"

func newStoreCmd(a *app) *cobra.Command {
	var dsn string
	var get []string

	cmd := &cobra.Command{
		Use:   "store [FILE...]",
		Short: "Store file chunks and print their ids",
		Long: `Split each FILE into chunks, store every chunk and print one id per line.
With --db the chunks go to an SQLite database (store.dsn); otherwise they are
kept in memory for the duration of the command. --get prints stored chunks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(get) == 0 {
				return core.WithKind(errors.New("nothing to store or get"), core.KindInvalidInput)
			}
			ctx := cmd.Context()
			if !cmd.Flags().Changed("db") && a.cfg.Store.Driver == "sqlite3" {
				dsn = a.cfg.Store.DSN
			}

			s, closeFn, err := openStore(ctx, dsn)
			if err != nil {
				return err
			}
			defer closeFn()

			for _, path := range args {
				ids := pipeline.Via(
					pipeline.FromSource[[]byte]("read", flowio.OpenChunks(path, a.cfg.Pipeline.ChunkSize), a.pipelineOptions(ctx, "store")...),
					"store", s.IDs(),
				)
				_, err := ids.Into("print", flowio.LineSink(a.stdout)).Run(ctx)
				if err != nil {
					return err
				}
			}
			for _, id := range get {
				data, err := s.Get(ctx, id)
				if err != nil {
					return err
				}
				if _, err := a.stdout.Write(data); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "db", "", "SQLite database path")
	cmd.Flags().StringArrayVar(&get, "get", nil, "print the chunk stored under this id (repeatable)")
	return cmd
}

func openStore(ctx context.Context, dsn string) (*store.Store, func(), error) {
	if dsn == "" {
		return store.NewMemory(), func() {}, nil
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, core.WithKind(errors.Wrapf(err, "open %s", dsn), core.KindResource)
	}
	db.SetMaxOpenConns(1)
	backend, err := store.NewTableBackend(ctx, db, storeTable)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.New(backend), func() { db.Close() }, nil
}
