// Package sql connects chunk streams to database/sql: query results become
// sources, and statements become transformers and sinks. Any registered
// driver works; the tests use github.com/mattn/go-sqlite3.
package sql

import (
	"context"
	"database/sql"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
)

// Scanner is a function that scans a row into a value.
type Scanner[T any] func(*sql.Rows) (T, error)

func resource(err error, format string, args ...any) error {
	return core.WithKind(errors.Wrapf(err, format, args...), core.KindResource)
}

// RowSource pulls one scanned row per Pull. The query runs on the first Pull
// so a source that is never read never touches the database.
type RowSource[T any] struct {
	db      *sql.DB
	query   string
	args    []any
	scanner Scanner[T]

	mu     sync.Mutex
	rows   *sql.Rows
	closed bool
}

// OpenQuery returns a Source over the rows of query.
func OpenQuery[T any](db *sql.DB, query string, scanner Scanner[T], args ...any) *RowSource[T] {
	return &RowSource[T]{db: db, query: query, args: args, scanner: scanner}
}

func (s *RowSource[T]) Pull(ctx context.Context) (T, error) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return zero, core.ErrEndOfStream
	}
	if s.rows == nil {
		rows, err := s.db.QueryContext(ctx, s.query, s.args...)
		if err != nil {
			return zero, resource(err, "query %q", s.query)
		}
		s.rows = rows
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return zero, resource(err, "read rows")
		}
		return zero, core.ErrEndOfStream
	}
	value, err := s.scanner(s.rows)
	if err != nil {
		return zero, core.WithKind(errors.Wrap(err, "scan row"), core.KindInvalidInput)
	}
	return value, nil
}

func (s *RowSource[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.rows == nil {
		return nil
	}
	return s.rows.Close()
}

// Query creates a Stream of the rows returned by query. The first scan or
// query failure ends the stream.
func Query[T any](db *sql.DB, query string, scanner Scanner[T], args ...any) core.Stream[T] {
	return flow.Defer(func() core.Stream[T] {
		return flow.FromSource[T](OpenQuery(db, query, scanner, args...))
	})
}

// QueryRow creates a Stream that executes a query expecting a single row.
func QueryRow[T any](db *sql.DB, query string, scanner func(*sql.Row) (T, error), args ...any) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], 1)
		go func() {
			defer close(out)
			value, err := scanner(db.QueryRowContext(ctx, query, args...))
			if err != nil {
				core.Send(ctx, out, core.Err[T](resource(err, "query row %q", query)))
				return
			}
			core.Send(ctx, out, core.Ok(value))
		}()
		return out
	})
}

// ExecResult contains the result of an exec operation.
type ExecResult struct {
	LastInsertId int64
	RowsAffected int64
}

func execResult(r sql.Result) ExecResult {
	lastID, _ := r.LastInsertId()
	rowsAffected, _ := r.RowsAffected()
	return ExecResult{LastInsertId: lastID, RowsAffected: rowsAffected}
}

// Exec creates a Stream that executes a statement and emits the result.
func Exec(db *sql.DB, query string, args ...any) core.Stream[ExecResult] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[ExecResult] {
		out := make(chan core.Result[ExecResult], 1)
		go func() {
			defer close(out)
			result, err := db.ExecContext(ctx, query, args...)
			if err != nil {
				core.Send(ctx, out, core.Err[ExecResult](resource(err, "exec %q", query)))
				return
			}
			core.Send(ctx, out, core.Ok(execResult(result)))
		}()
		return out
	})
}

// ExecMany creates a Converter that executes a statement for each chunk.
// The binder function converts the chunk to statement arguments.
func ExecMany[T any](db *sql.DB, query string, binder func(T) []any) core.Converter[T, ExecResult] {
	return core.Convert(func(ctx context.Context, chunk T) (ExecResult, bool, error) {
		result, err := db.ExecContext(ctx, query, binder(chunk)...)
		if err != nil {
			return ExecResult{}, false, resource(err, "exec %q", query)
		}
		return execResult(result), true, nil
	})
}

// ExecSink is a Sink that executes a prepared statement once per chunk.
// Statements already run stay applied when the sink is aborted unless an
// undo step was registered with OnAbort.
type ExecSink[T any] struct {
	stmt   *sql.Stmt
	binder func(T) []any
	undo   func(context.Context) error

	mu       sync.Mutex
	affected int64
	closed   bool
	err      error
}

// NewExecSink prepares query on db and returns a sink binding each chunk
// with binder.
func NewExecSink[T any](ctx context.Context, db *sql.DB, query string, binder func(T) []any) (*ExecSink[T], error) {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, resource(err, "prepare %q", query)
	}
	return &ExecSink[T]{stmt: stmt, binder: binder}, nil
}

func (s *ExecSink[T]) Write(ctx context.Context, chunk T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.WithKind(errors.New("exec sink is closed"), core.KindResource)
	}
	result, err := s.stmt.ExecContext(ctx, s.binder(chunk)...)
	if err != nil {
		return resource(err, "exec")
	}
	n, _ := result.RowsAffected()
	s.affected += n
	return nil
}

func (s *ExecSink[T]) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stmt.Close()
}

// OnAbort registers undo to run when the sink is aborted.
func (s *ExecSink[T]) OnAbort(undo func(context.Context) error) *ExecSink[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = undo
	return s
}

// Abort closes the statement, runs the undo step if any, and records err.
func (s *ExecSink[T]) Abort(ctx context.Context, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.err = err
	cerr := s.stmt.Close()
	if s.undo != nil {
		if uerr := s.undo(ctx); uerr != nil {
			return resource(uerr, "undo aborted writes")
		}
	}
	return cerr
}

// Err returns the reason the sink was aborted, or nil.
func (s *ExecSink[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RowsAffected returns the total rows affected by the statements run so far.
func (s *ExecSink[T]) RowsAffected() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.affected
}

// Transaction executes a function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, it is committed.
func Transaction[T any](db *sql.DB, fn func(tx *sql.Tx) (T, error)) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], 1)
		go func() {
			defer close(out)
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				core.Send(ctx, out, core.Err[T](resource(err, "begin transaction")))
				return
			}
			value, err := fn(tx)
			if err != nil {
				_ = tx.Rollback()
				core.Send(ctx, out, core.Err[T](err))
				return
			}
			if err := tx.Commit(); err != nil {
				core.Send(ctx, out, core.Err[T](resource(err, "commit")))
				return
			}
			core.Send(ctx, out, core.Ok(value))
		}()
		return out
	})
}
