// Package store keeps byte chunks under short generated ids.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/core"
	flowsql "github.com/lguimbarda/chunkflow/flow/sql"
)

// IDLength is the length of every id handed out by a Store.
const IDLength = 4

const maxAttempts = 16

var (
	// ErrNotBuffer is returned when Store is given anything but a []byte.
	ErrNotBuffer = core.WithKind(errors.New("input must be a buffer"), core.KindInvalidInput)
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = core.WithKind(errors.New("chunk not found"), core.KindResource)
	// ErrIDSpaceExhausted is returned when no free id was found.
	ErrIDSpaceExhausted = core.WithKind(errors.New("no free id"), core.KindResource)
)

// Backend persists chunks by id. Put must not be called twice for one id.
type Backend interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Has(ctx context.Context, id string) (bool, error)
}

// Store assigns ids to chunks and saves them in a Backend.
type Store struct {
	backend Backend
	newID   func() string

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithIDFunc replaces the id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New returns a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, newID: randomID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemory returns a Store that keeps chunks in memory.
func NewMemory(opts ...Option) *Store {
	return New(NewMemoryBackend(), opts...)
}

func randomID() string {
	return uuid.NewString()[:IDLength]
}

// Store saves chunk and returns its id. chunk must be a []byte; the store
// keeps its own copy.
func (s *Store) Store(ctx context.Context, chunk any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.WithKind(err, core.KindCancelled)
	}
	data, ok := chunk.([]byte)
	if !ok {
		return "", errors.WithDetailf(ErrNotBuffer, "got %T", chunk)
	}

	stored := bytes.Clone(data)
	if stored == nil {
		stored = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for range maxAttempts {
		id := s.newID()
		taken, err := s.backend.Has(ctx, id)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		if err := s.backend.Put(ctx, id, stored); err != nil {
			return "", err
		}
		return id, nil
	}
	return "", ErrIDSpaceExhausted
}

// Get returns the chunk stored under id.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	return s.backend.Get(ctx, id)
}

// IDs is a transform that stores every chunk and emits its id.
func (s *Store) IDs() core.Converter[[]byte, string] {
	return flow.Convert(func(ctx context.Context, chunk []byte) (string, bool, error) {
		id, err := s.Store(ctx, chunk)
		return id, err == nil, err
	})
}

// Sink adapts the store to a chunk sink. The ids of written chunks are
// available from the returned sink in write order.
func (s *Store) Sink() *Sink {
	return &Sink{store: s}
}

// Sink writes chunks to a Store.
type Sink struct {
	store *Store

	mu  sync.Mutex
	ids []string
	err error
}

func (k *Sink) Write(ctx context.Context, chunk []byte) error {
	id, err := k.store.Store(ctx, chunk)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.ids = append(k.ids, id)
	k.mu.Unlock()
	return nil
}

func (k *Sink) Close(context.Context) error { return nil }

// Abort records err. Chunks stored before the failure keep their ids.
func (k *Sink) Abort(_ context.Context, err error) error {
	k.mu.Lock()
	k.err = err
	k.mu.Unlock()
	return nil
}

// Err returns the reason the sink was aborted, or nil.
func (k *Sink) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// IDs returns the ids assigned so far.
func (k *Sink) IDs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.ids...)
}

// MemoryBackend keeps chunks in a map.
type MemoryBackend struct {
	mu     sync.RWMutex
	chunks map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{chunks: make(map[string][]byte)}
}

func (m *MemoryBackend) Put(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[id] = data
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.chunks[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return bytes.Clone(data), nil
}

func (m *MemoryBackend) Has(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.chunks[id]
	return ok, nil
}

// TableBackend keeps each chunk as a one-chunk stream of a ChunkTable.
type TableBackend struct {
	table *flowsql.ChunkTable
}

// NewTableBackend creates (if needed) the table name in db.
func NewTableBackend(ctx context.Context, db *sql.DB, name string) (*TableBackend, error) {
	table, err := flowsql.NewChunkTable(ctx, db, name)
	if err != nil {
		return nil, err
	}
	return &TableBackend{table: table}, nil
}

func (t *TableBackend) Put(ctx context.Context, id string, data []byte) error {
	sink, err := t.table.Sink(ctx, id)
	if err != nil {
		return err
	}
	if err := sink.Write(ctx, data); err != nil {
		_ = sink.Abort(ctx, err)
		return err
	}
	return sink.Close(ctx)
}

func (t *TableBackend) Get(ctx context.Context, id string) ([]byte, error) {
	chunks, err := flow.Slice(ctx, t.table.Read(id))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return bytes.Join(chunks, nil), nil
}

func (t *TableBackend) Has(ctx context.Context, id string) (bool, error) {
	chunks, err := flow.Slice(ctx, t.table.Read(id))
	if err != nil {
		return false, err
	}
	return len(chunks) > 0, nil
}
