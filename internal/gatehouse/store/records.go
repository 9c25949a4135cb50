package store

import "time"

type Kind string

const (
	KindEntry Kind = "ENTRY"
	KindExit  Kind = "EXIT"
)

func (k Kind) Valid() bool { return k == KindEntry || k == KindExit }

type RevisionStatus string

const (
	StatusOriginal RevisionStatus = "ORIGINAL"
	StatusEdited   RevisionStatus = "EDITED"
	StatusDeleted  RevisionStatus = "DELETED"
)

type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditEdit   AuditAction = "EDIT"
	AuditDelete AuditAction = "DELETE"
	AuditView   AuditAction = "VIEW"
)

// Audit target types.
const (
	TargetHistoryRecord = "HistoryRecord"
	TargetBoard         = "Board"
	TargetReport        = "Report"
	TargetPerson        = "Person"
)

// Person is someone who may pass the gate. DocumentID is the natural key.
// Persons are never hard-deleted; Active=false hides them from the roster.
type Person struct {
	ID         int64
	FullName   string
	DocumentID string
	Vehicle    string
	Sector     string // free text, informational only
	Shift      string // rotation name, or "" for non-shift staff
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HistoryRecord is one row of the permanent ledger. Rows are appended and
// never rewritten, except that the exit fields of a pending entry are filled
// in once (see Tx.CompleteExit).
type HistoryRecord struct {
	ID            int64
	PersonID      int64
	OperatorID    string
	Kind          Kind
	OccurredAt    time.Time  // when the row was registered
	ManualAt      *time.Time // operator-supplied back-dated time
	Justification string
	Note          string
	Flagged       bool
	Vehicle       string
	Sector        string

	// ExitManual marks an ExitAt supplied by the operator rather than the
	// clock; ExitJustification then explains it.
	ExitAt            *time.Time
	ExitOperatorID    string
	ExitNote          string
	ExitManual        bool
	ExitJustification string
	PendingExit       bool

	Status     RevisionStatus
	Supersedes *int64
	RevisedAt  *time.Time
	RevisedBy  string
}

// EffectiveAt is the instant the event is considered to have happened.
func (r HistoryRecord) EffectiveAt() time.Time {
	if r.ManualAt != nil {
		return *r.ManualAt
	}
	return r.OccurredAt
}

// ExitMark completes a pending entry. Manual is set for back-dated exits.
type ExitMark struct {
	At            time.Time
	OperatorID    string
	Note          string
	Manual        bool
	Justification string
}

// Cycle is one board session. Exactly one cycle is open at a time; clearing
// the board closes it and opens the next.
type Cycle struct {
	ID       string
	Open     bool
	OpenedAt time.Time
	OpenedBy string
	ClosedAt *time.Time
	ClosedBy string
}

// BoardEntry mirrors a HistoryRecord for the open cycle. It carries no
// information of its own beyond the cycle it belongs to.
type BoardEntry struct {
	ID        int64
	CycleID   string
	HistoryID int64

	PersonID   int64
	OperatorID string
	Kind       Kind
	OccurredAt time.Time
	ManualAt   *time.Time
	Note       string
	Flagged    bool
	Vehicle    string
	Sector     string

	ExitAt         *time.Time
	ExitOperatorID string
	ExitNote       string
	PendingExit    bool
}

func (e BoardEntry) EffectiveAt() time.Time {
	if e.ManualAt != nil {
		return *e.ManualAt
	}
	return e.OccurredAt
}

// Mirror copies rec's fields onto e, pointing e at rec. ID and CycleID are
// left untouched so an existing board row can be repointed in place.
func (e BoardEntry) Mirror(rec HistoryRecord) BoardEntry {
	e.HistoryID = rec.ID
	e.PersonID = rec.PersonID
	e.OperatorID = rec.OperatorID
	e.Kind = rec.Kind
	e.OccurredAt = rec.OccurredAt
	e.ManualAt = rec.ManualAt
	e.Note = rec.Note
	e.Flagged = rec.Flagged
	e.Vehicle = rec.Vehicle
	e.Sector = rec.Sector
	e.ExitAt = rec.ExitAt
	e.ExitOperatorID = rec.ExitOperatorID
	e.ExitNote = rec.ExitNote
	e.PendingExit = rec.PendingExit
	return e
}

// AuditEntry is an append-only log line.
type AuditEntry struct {
	ID         int64
	ActorID    string
	Action     AuditAction
	TargetType string
	TargetID   string
	Detail     string
	At         time.Time
}

// HistoryFilter selects ledger rows by effective time, [From, To).
type HistoryFilter struct {
	From      *time.Time
	To        *time.Time
	PersonIDs []int64 // nil = any person
}

type PersonFilter struct {
	ActiveOnly bool
	Shift      string // "" = any
}

type AuditFilter struct {
	Since *time.Time
	Limit int // 0 = no limit
}
