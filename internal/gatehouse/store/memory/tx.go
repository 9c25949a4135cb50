package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// tx applies the same constraints the SQLite schema enforces.
type tx struct {
	view
	fail func(op string) error
}

var _ store.Tx = (*tx)(nil)

func (t *tx) check(op string) error {
	if t.fail == nil {
		return nil
	}
	if err := t.fail(op); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *tx) CreatePerson(ctx context.Context, p store.Person) (store.Person, error) {
	if err := t.check("CreatePerson"); err != nil {
		return store.Person{}, err
	}
	if _, err := t.FindPersonByDocument(ctx, p.DocumentID); err == nil {
		return store.Person{}, store.ErrDuplicateDocument
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	t.st.nextPerson++
	p.ID = t.st.nextPerson
	p.CreatedAt = utc(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	t.st.persons[p.ID] = p
	return p, nil
}

func (t *tx) UpdatePerson(_ context.Context, p store.Person) error {
	if err := t.check("UpdatePerson"); err != nil {
		return err
	}
	cur, ok := t.st.persons[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	cur.FullName = p.FullName
	cur.Vehicle = p.Vehicle
	cur.Sector = p.Sector
	cur.Shift = p.Shift
	cur.Active = p.Active
	cur.UpdatedAt = utc(p.UpdatedAt)
	t.st.persons[p.ID] = cur
	return nil
}

func (t *tx) SetPersonActive(_ context.Context, id int64, active bool, at time.Time) error {
	if err := t.check("SetPersonActive"); err != nil {
		return err
	}
	p, ok := t.st.persons[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Active = active
	p.UpdatedAt = utc(at)
	t.st.persons[id] = p
	return nil
}

func (t *tx) EnsureCycle(ctx context.Context, actorID string, at time.Time) (store.Cycle, error) {
	if c, err := t.OpenCycle(ctx); err == nil {
		return c, nil
	}
	if err := t.check("EnsureCycle"); err != nil {
		return store.Cycle{}, err
	}
	return t.openCycle(actorID, at), nil
}

func (t *tx) openCycle(actorID string, at time.Time) store.Cycle {
	c := store.Cycle{ID: newCycleID(), Open: true, OpenedAt: utc(at), OpenedBy: actorID}
	t.st.cycles = append(t.st.cycles, c)
	return c
}

func (t *tx) RotateCycle(ctx context.Context, actorID string, at time.Time) (store.Cycle, store.Cycle, int64, error) {
	closed, err := t.EnsureCycle(ctx, actorID, at)
	if err != nil {
		return store.Cycle{}, store.Cycle{}, 0, err
	}
	if err := t.check("RotateCycle"); err != nil {
		return store.Cycle{}, store.Cycle{}, 0, err
	}

	closedAt := utc(at)
	for i := range t.st.cycles {
		if t.st.cycles[i].ID == closed.ID {
			t.st.cycles[i].Open = false
			t.st.cycles[i].ClosedAt = &closedAt
			t.st.cycles[i].ClosedBy = actorID
			closed = t.st.cycles[i]
		}
	}
	opened := t.openCycle(actorID, at)

	var removed int64
	for id, e := range t.st.board {
		if e.CycleID != closed.ID {
			continue
		}
		if !e.PendingExit {
			delete(t.st.board, id)
			removed++
			continue
		}
		e.CycleID = opened.ID
		t.st.board[id] = e
	}
	return closed, opened, removed, nil
}

func (t *tx) InsertHistory(ctx context.Context, rec store.HistoryRecord) (store.HistoryRecord, error) {
	if err := t.check("InsertHistory"); err != nil {
		return store.HistoryRecord{}, err
	}
	if _, ok := t.st.persons[rec.PersonID]; !ok {
		return store.HistoryRecord{}, fmt.Errorf("InsertHistory: person %d: %w", rec.PersonID, store.ErrNotFound)
	}
	if rec.Supersedes != nil {
		if _, err := t.GetRecord(ctx, *rec.Supersedes); err != nil {
			return store.HistoryRecord{}, fmt.Errorf("InsertHistory: supersedes %d: %w", *rec.Supersedes, err)
		}
		if _, err := t.SuccessorOf(ctx, *rec.Supersedes); err == nil {
			return store.HistoryRecord{}, store.ErrSuperseded
		}
	}
	if rec.Status == "" {
		rec.Status = store.StatusOriginal
	}
	rec.ID = int64(len(t.st.history)) + 1
	rec.OccurredAt = utc(rec.OccurredAt)
	t.st.history = append(t.st.history, rec)
	return rec, nil
}

func (t *tx) CompleteExit(_ context.Context, historyID int64, m store.ExitMark) error {
	if err := t.check("CompleteExit"); err != nil {
		return err
	}
	if historyID < 1 || historyID > int64(len(t.st.history)) {
		return store.ErrNoPending
	}
	rec := t.st.history[historyID-1]
	if !rec.PendingExit {
		return store.ErrNoPending
	}
	at := utc(m.At)
	rec.ExitAt = &at
	rec.ExitOperatorID = m.OperatorID
	rec.ExitNote = m.Note
	rec.ExitManual = m.Manual
	rec.ExitJustification = m.Justification
	rec.PendingExit = false
	t.st.history[historyID-1] = rec
	return nil
}

func (t *tx) InsertBoardEntry(ctx context.Context, e store.BoardEntry) (store.BoardEntry, error) {
	if err := t.check("InsertBoardEntry"); err != nil {
		return store.BoardEntry{}, err
	}
	if err := t.boardConstraints(ctx, e, 0); err != nil {
		return store.BoardEntry{}, err
	}
	t.st.nextBoard++
	e.ID = t.st.nextBoard
	t.st.board[e.ID] = e
	return e, nil
}

func (t *tx) UpdateBoardEntry(ctx context.Context, e store.BoardEntry) error {
	if err := t.check("UpdateBoardEntry"); err != nil {
		return err
	}
	cur, ok := t.st.board[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	e.CycleID = cur.CycleID
	if err := t.boardConstraints(ctx, e, e.ID); err != nil {
		return err
	}
	t.st.board[e.ID] = e
	return nil
}

func (t *tx) boardConstraints(ctx context.Context, e store.BoardEntry, self int64) error {
	if _, err := t.GetRecord(ctx, e.HistoryID); err != nil {
		return fmt.Errorf("board entry history %d: %w", e.HistoryID, err)
	}
	cycleKnown := false
	for _, c := range t.st.cycles {
		if c.ID == e.CycleID {
			cycleKnown = true
		}
	}
	if !cycleKnown {
		return fmt.Errorf("board entry cycle %q: %w", e.CycleID, store.ErrNotFound)
	}
	for id, other := range t.st.board {
		if id == self {
			continue
		}
		if other.HistoryID == e.HistoryID {
			return fmt.Errorf("history %d already mirrored by board entry %d", e.HistoryID, id)
		}
		if e.PendingExit && other.PendingExit && other.PersonID == e.PersonID {
			return store.ErrPendingExists
		}
	}
	return nil
}

func (t *tx) DeleteBoardEntry(_ context.Context, id int64) error {
	if err := t.check("DeleteBoardEntry"); err != nil {
		return err
	}
	if _, ok := t.st.board[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.board, id)
	return nil
}

func (t *tx) AppendAudit(_ context.Context, a store.AuditEntry) (store.AuditEntry, error) {
	if err := t.check("AppendAudit"); err != nil {
		return store.AuditEntry{}, err
	}
	a.ID = int64(len(t.st.audit)) + 1
	a.At = utc(a.At)
	t.st.audit = append(t.st.audit, a)
	return a, nil
}
