package sql

import (
	"context"
	"database/sql"
	"slices"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func setupTestDB(t *testing.T) *sql.DB {
	db := openDB(t)
	_, err := db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			age INTEGER NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	_, err = db.Exec(`INSERT INTO users (name, age) VALUES ('Alice', 30), ('Bob', 25), ('Charlie', 35)`)
	if err != nil {
		t.Fatalf("failed to insert data: %v", err)
	}
	return db
}

type User struct {
	ID   int
	Name string
	Age  int
}

func scanUser(rows *sql.Rows) (User, error) {
	var u User
	err := rows.Scan(&u.ID, &u.Name, &u.Age)
	return u, err
}

func TestQuery(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		args  []any
		want  []string
	}{
		{name: "all rows in order", query: "SELECT id, name, age FROM users ORDER BY id", want: []string{"Alice", "Bob", "Charlie"}},
		{name: "with args", query: "SELECT id, name, age FROM users WHERE age > ? ORDER BY id", args: []any{28}, want: []string{"Alice", "Charlie"}},
		{name: "no rows", query: "SELECT id, name, age FROM users WHERE age > 100", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := flow.Slice(ctx, Query(db, tt.query, scanUser, tt.args...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var names []string
			for _, u := range users {
				names = append(names, u.Name)
			}
			if !slices.Equal(names, tt.want) {
				t.Errorf("got %v, want %v", names, tt.want)
			}
		})
	}
}

func TestQueryError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := flow.Slice(ctx, Query(db, "SELECT * FROM missing", scanUser))
	if err == nil {
		t.Fatal("expected an error for a missing table")
	}
	if core.KindOf(err) != core.KindResource {
		t.Errorf("kind = %v, want resource", core.KindOf(err))
	}
}

func TestQueryScanError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// two columns for a three-field scan
	_, err := flow.Slice(ctx, Query(db, "SELECT id, name FROM users", scanUser))
	if core.KindOf(err) != core.KindInvalidInput {
		t.Errorf("got %v, want an invalid-input error", err)
	}
}

func TestRowSourceClose(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	src := OpenQuery(db, "SELECT id, name, age FROM users ORDER BY id", scanUser)
	first, err := src.Pull(ctx)
	if err != nil || first.Name != "Alice" {
		t.Fatalf("first pull = %+v, %v", first, err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := src.Pull(ctx); err != core.ErrEndOfStream {
		t.Errorf("pull after close = %v, want end of stream", err)
	}
}

func TestQueryRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	count, err := flow.First(ctx, QueryRow(db, "SELECT COUNT(*) FROM users", func(row *sql.Row) (int, error) {
		var n int
		err := row.Scan(&n)
		return n, err
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3, got %d", count)
	}
}

func TestExec(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	result, err := flow.First(ctx, Exec(db, "UPDATE users SET age = age + 1 WHERE age < ?", 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RowsAffected != 2 {
		t.Errorf("expected 2 rows affected, got %d", result.RowsAffected)
	}
}

func TestExecMany(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	insert := ExecMany(db, "INSERT INTO users (name, age) VALUES (?, ?)", func(u User) []any {
		return []any{u.Name, u.Age}
	})
	results, err := flow.Slice(ctx, insert.Apply(ctx, flow.FromSlice([]User{{Name: "Dana", Age: 41}, {Name: "Eve", Age: 22}})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[1].LastInsertId != 5 {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestExecSink(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	sink, err := NewExecSink(ctx, db, "INSERT INTO users (name, age) VALUES (?, 20)", func(name string) []any {
		return []any{name}
	})
	if err != nil {
		t.Fatalf("NewExecSink: %v", err)
	}
	if err := flow.Drain(ctx, flow.FromSlice([]string{"Finn", "Gus"}), core.Sink[string](sink)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if sink.RowsAffected() != 2 {
		t.Errorf("rows affected = %d, want 2", sink.RowsAffected())
	}
	if err := sink.Write(ctx, "late"); err == nil {
		t.Error("write after close should fail")
	}
}

func TestTransaction(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := flow.First(ctx, Transaction(db, func(tx *sql.Tx) (int, error) {
		if _, err := tx.Exec("DELETE FROM users"); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}))
	if err == nil {
		t.Fatal("expected the transaction error")
	}

	n, err := flow.First(ctx, QueryRow(db, "SELECT COUNT(*) FROM users", func(row *sql.Row) (int, error) {
		var n int
		err := row.Scan(&n)
		return n, err
	}))
	if err != nil || n != 3 {
		t.Errorf("rollback did not restore rows: n=%d err=%v", n, err)
	}
}
