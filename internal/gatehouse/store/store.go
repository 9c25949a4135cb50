package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPendingExists     = errors.New("person already has a pending entry on the board")
	ErrNoPending         = errors.New("no pending entry")
	ErrSuperseded        = errors.New("record already superseded")
	ErrDuplicateDocument = errors.New("document id already registered")
)

// Reader is the read side shared by stores and transactions.
type Reader interface {
	GetPerson(ctx context.Context, id int64) (Person, error)
	FindPersonByDocument(ctx context.Context, documentID string) (Person, error)
	ListPersons(ctx context.Context, f PersonFilter) ([]Person, error)

	GetRecord(ctx context.Context, id int64) (HistoryRecord, error)
	// SuccessorOf returns the row that supersedes id, or ErrNotFound when id
	// is the head of its lineage.
	SuccessorOf(ctx context.Context, id int64) (HistoryRecord, error)
	ListHistory(ctx context.Context, f HistoryFilter) ([]HistoryRecord, error)

	// OpenCycle returns ErrNotFound before the first cycle is opened.
	OpenCycle(ctx context.Context) (Cycle, error)
	// ListBoard lists the open cycle's entries by effective time, then id.
	ListBoard(ctx context.Context) ([]BoardEntry, error)
	BoardEntryFor(ctx context.Context, historyID int64) (BoardEntry, error)
	PendingEntry(ctx context.Context, personID int64) (BoardEntry, error)

	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Tx is one atomic read-write unit. Every write made through a Tx is either
// committed together or not at all.
type Tx interface {
	Reader

	CreatePerson(ctx context.Context, p Person) (Person, error)
	// UpdatePerson rewrites a person's mutable fields (everything except ID,
	// DocumentID and CreatedAt).
	UpdatePerson(ctx context.Context, p Person) error
	SetPersonActive(ctx context.Context, id int64, active bool, at time.Time) error

	// EnsureCycle returns the open cycle, opening one if none exists.
	EnsureCycle(ctx context.Context, actorID string, at time.Time) (Cycle, error)
	// RotateCycle closes the open cycle, opens a new one, carries pending
	// entries over and deletes every other entry. It returns the number of
	// entries deleted.
	RotateCycle(ctx context.Context, actorID string, at time.Time) (closed, opened Cycle, removed int64, err error)

	// InsertHistory appends rec. A second row superseding the same record
	// fails with ErrSuperseded.
	InsertHistory(ctx context.Context, rec HistoryRecord) (HistoryRecord, error)
	// CompleteExit fills the exit fields of a pending row and clears its
	// pending flag. It fails with ErrNoPending if the row is not pending.
	CompleteExit(ctx context.Context, historyID int64, m ExitMark) error

	// InsertBoardEntry fails with ErrPendingExists when e is pending and the
	// person already has a pending entry.
	InsertBoardEntry(ctx context.Context, e BoardEntry) (BoardEntry, error)
	UpdateBoardEntry(ctx context.Context, e BoardEntry) error
	DeleteBoardEntry(ctx context.Context, id int64) error

	AppendAudit(ctx context.Context, a AuditEntry) (AuditEntry, error)
}

// Store is one namespace's persistent state.
type Store interface {
	Reader
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
