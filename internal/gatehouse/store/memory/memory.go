// Package memory is an in-process store.Store. It backs tests and, when no
// database path is configured, the training namespace.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

type state struct {
	persons map[int64]store.Person
	history []store.HistoryRecord // index i holds record ID i+1
	board   map[int64]store.BoardEntry
	cycles  []store.Cycle
	audit   []store.AuditEntry

	nextPerson int64
	nextBoard  int64
}

func (s *state) clone() *state {
	c := &state{
		persons:    make(map[int64]store.Person, len(s.persons)),
		history:    append([]store.HistoryRecord(nil), s.history...),
		board:      make(map[int64]store.BoardEntry, len(s.board)),
		cycles:     append([]store.Cycle(nil), s.cycles...),
		audit:      append([]store.AuditEntry(nil), s.audit...),
		nextPerson: s.nextPerson,
		nextBoard:  s.nextBoard,
	}
	for k, v := range s.persons {
		c.persons[k] = v
	}
	for k, v := range s.board {
		c.board[k] = v
	}
	return c
}

// Store keeps the whole namespace in memory. Update runs fn against a copy
// of the state and swaps it in only if fn succeeds, so a failed transaction
// leaves nothing behind. Updates are serialized.
type Store struct {
	mu sync.RWMutex
	st *state

	// FailAfter, when set, is consulted before every write inside a
	// transaction; a non-nil return aborts the transaction. Test hook.
	FailAfter func(op string) error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		persons: make(map[int64]store.Person),
		board:   make(map[int64]store.BoardEntry),
	}}
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{view: view{st: work}, fail: s.FailAfter}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) snapshot() view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{st: s.st}
}

// Reads outside a transaction see the last committed state. Committed states
// are never modified in place, so reading one without the lock is safe.

func (s *Store) GetPerson(ctx context.Context, id int64) (store.Person, error) {
	return s.snapshot().GetPerson(ctx, id)
}

func (s *Store) FindPersonByDocument(ctx context.Context, documentID string) (store.Person, error) {
	return s.snapshot().FindPersonByDocument(ctx, documentID)
}

func (s *Store) ListPersons(ctx context.Context, f store.PersonFilter) ([]store.Person, error) {
	return s.snapshot().ListPersons(ctx, f)
}

func (s *Store) GetRecord(ctx context.Context, id int64) (store.HistoryRecord, error) {
	return s.snapshot().GetRecord(ctx, id)
}

func (s *Store) SuccessorOf(ctx context.Context, id int64) (store.HistoryRecord, error) {
	return s.snapshot().SuccessorOf(ctx, id)
}

func (s *Store) ListHistory(ctx context.Context, f store.HistoryFilter) ([]store.HistoryRecord, error) {
	return s.snapshot().ListHistory(ctx, f)
}

func (s *Store) OpenCycle(ctx context.Context) (store.Cycle, error) {
	return s.snapshot().OpenCycle(ctx)
}

func (s *Store) ListBoard(ctx context.Context) ([]store.BoardEntry, error) {
	return s.snapshot().ListBoard(ctx)
}

func (s *Store) BoardEntryFor(ctx context.Context, historyID int64) (store.BoardEntry, error) {
	return s.snapshot().BoardEntryFor(ctx, historyID)
}

func (s *Store) PendingEntry(ctx context.Context, personID int64) (store.BoardEntry, error) {
	return s.snapshot().PendingEntry(ctx, personID)
}

func (s *Store) ListAudit(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	return s.snapshot().ListAudit(ctx, f)
}

func newCycleID() string { return uuid.NewString() }

func utc(t time.Time) time.Time { return t.UTC() }
