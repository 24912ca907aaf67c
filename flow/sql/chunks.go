package sql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow/core"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ChunkTable stores byte chunks of one or more streams in a table with
// columns (stream, seq, data), so a stream can be replayed in order later.
type ChunkTable struct {
	db   *sql.DB
	name string
}

// NewChunkTable creates the table if it does not exist.
func NewChunkTable(ctx context.Context, db *sql.DB, name string) (*ChunkTable, error) {
	if !tableName.MatchString(name) {
		return nil, core.WithKind(errors.Newf("invalid table name %q", name), core.KindInvalidInput)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		stream TEXT NOT NULL,
		seq INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (stream, seq)
	)`, name)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, resource(err, "create table %s", name)
	}
	return &ChunkTable{db: db, name: name}, nil
}

// Sink returns a sink appending chunks to stream, numbered from the current
// end of the stream. Aborting the sink deletes the chunks it appended.
func (t *ChunkTable) Sink(ctx context.Context, stream string) (*ExecSink[[]byte], error) {
	var start int64
	err := t.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(seq) + 1, 0) FROM %s WHERE stream = ?`, t.name), stream).Scan(&start)
	if err != nil {
		return nil, resource(err, "find end of stream %s", stream)
	}
	next := start
	query := fmt.Sprintf(`INSERT INTO %s (stream, seq, data) VALUES (?, ?, ?)`, t.name)
	sink, err := NewExecSink(ctx, t.db, query, func(chunk []byte) []any {
		seq := next
		next++
		return []any{stream, seq, chunk}
	})
	if err != nil {
		return nil, err
	}
	undo := fmt.Sprintf(`DELETE FROM %s WHERE stream = ? AND seq >= ?`, t.name)
	return sink.OnAbort(func(ctx context.Context) error {
		_, err := t.db.ExecContext(ctx, undo, stream, start)
		return err
	}), nil
}

// Read replays the chunks of stream in the order they were written.
func (t *ChunkTable) Read(stream string) core.Stream[[]byte] {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE stream = ? ORDER BY seq`, t.name)
	return Query(t.db, query, func(rows *sql.Rows) ([]byte, error) {
		var data []byte
		err := rows.Scan(&data)
		return data, err
	}, stream)
}

// Streams lists the stream names stored in the table.
func (t *ChunkTable) Streams() core.Stream[string] {
	query := fmt.Sprintf(`SELECT DISTINCT stream FROM %s ORDER BY stream`, t.name)
	return Query(t.db, query, func(rows *sql.Rows) (string, error) {
		var name string
		err := rows.Scan(&name)
		return name, err
	})
}
