package sqlite

import (
	"context"
	"database/sql"

	dbpkg "github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed store.Store. Reads go straight to the pool;
// every Update runs as one transaction on the single writer goroutine.
type Store struct {
	reader
	writer *dbpkg.Worker
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{reader: reader{q: db}, writer: writer}
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &txStore{reader: reader{q: tx}, tx: tx})
	})
}

type reader struct {
	q queryer
}

type txStore struct {
	reader
	tx *sql.Tx
}

var _ store.Tx = (*txStore)(nil)
