package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

func TestPersons_CreateGetAndDuplicateDocument(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()

	p := seedPerson(t, s, "Ana Souza", "111")

	got, err := s.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("GetPerson (-want +got):\n%s", diff)
	}

	byDoc, err := s.FindPersonByDocument(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byDoc.ID)

	err = s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreatePerson(ctx, store.Person{FullName: "Outra", DocumentID: "111", CreatedAt: t0, UpdatedAt: t0})
		return err
	})
	require.ErrorIs(t, err, store.ErrDuplicateDocument)

	_, err = s.GetPerson(ctx, 999)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPersons_ListFilters(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()

	a := seedPerson(t, s, "Bruno", "1")
	seedPerson(t, s, "Ana", "2")
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetPersonActive(ctx, a.ID, false, t0)
	}))

	all, err := s.ListPersons(ctx, store.PersonFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := s.ListPersons(ctx, store.PersonFilter{ActiveOnly: true, Shift: "ALFA"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Ana", active[0].FullName)

	none, err := s.ListPersons(ctx, store.PersonFilter{Shift: "BRAVO"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBoard_SecondPendingEntryRejectedByIndex(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	p := seedPerson(t, s, "Ana", "1")
	seedEntry(t, s, p, t0)

	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		c, err := tx.EnsureCycle(ctx, "op", t0)
		if err != nil {
			return err
		}
		rec, err := tx.InsertHistory(ctx, entryFor(p, t0.Add(time.Minute)))
		if err != nil {
			return err
		}
		_, err = tx.InsertBoardEntry(ctx, store.BoardEntry{CycleID: c.ID}.Mirror(rec))
		return err
	})
	require.ErrorIs(t, err, store.ErrPendingExists)

	// The history row written before the failed insert was rolled back.
	assert.Equal(t, 1, countRows(t, conn, "history_records"))
	assert.Equal(t, 1, countRows(t, conn, "board_entries"))
}

func TestCompleteExit_OnlyOnce(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()
	p := seedPerson(t, s, "Ana", "1")
	rec, _ := seedEntry(t, s, p, t0)

	mark := store.ExitMark{At: t0.Add(time.Hour), OperatorID: "op2", Note: "saiu"}
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CompleteExit(ctx, rec.ID, mark)
	}))

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.PendingExit)
	require.NotNil(t, got.ExitAt)
	assert.True(t, got.ExitAt.Equal(mark.At))
	assert.Equal(t, "op2", got.ExitOperatorID)
	assert.Equal(t, "saiu", got.ExitNote)

	err = s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CompleteExit(ctx, rec.ID, mark)
	})
	require.ErrorIs(t, err, store.ErrNoPending)

	_, err = s.PendingEntry(ctx, p.ID)
	require.ErrorIs(t, err, store.ErrNoPending)
}

func TestCompleteExit_ManualMarkIsStored(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()
	p := seedPerson(t, s, "Ana", "1")
	rec, _ := seedEntry(t, s, p, t0)

	mark := store.ExitMark{
		At:            t0.Add(30 * time.Minute),
		OperatorID:    "op2",
		Manual:        true,
		Justification: "leitor fora do ar, saída anotada no livro",
	}
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CompleteExit(ctx, rec.ID, mark)
	}))

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.ExitManual)
	assert.Equal(t, mark.Justification, got.ExitJustification)
	require.NotNil(t, got.ExitAt)
	assert.True(t, got.ExitAt.Equal(mark.At))

	_, err = conn.ExecContext(ctx, `UPDATE history_records SET exit_justification = 'x' WHERE record_id = ?`, rec.ID)
	assert.Error(t, err, "closed rows are frozen")
}

func TestHistory_TriggersKeepRowsImmutable(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()
	p := seedPerson(t, s, "Ana", "1")
	rec, _ := seedEntry(t, s, p, t0)

	_, err := conn.ExecContext(ctx, `UPDATE history_records SET note = 'x' WHERE record_id = ?`, rec.ID)
	assert.Error(t, err, "non-exit fields of a pending row")

	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CompleteExit(ctx, rec.ID, store.ExitMark{At: t0.Add(time.Hour), OperatorID: "op"})
	}))
	_, err = conn.ExecContext(ctx, `UPDATE history_records SET exit_note = 'x' WHERE record_id = ?`, rec.ID)
	assert.Error(t, err, "closed rows are frozen")

	_, err = conn.ExecContext(ctx, `DELETE FROM history_records WHERE record_id = ?`, rec.ID)
	assert.Error(t, err)

	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AppendAudit(ctx, store.AuditEntry{ActorID: "op", Action: store.AuditView, TargetType: store.TargetReport, At: t0})
		return err
	}))
	_, err = conn.ExecContext(ctx, `UPDATE audit_log SET detail = 'x'`)
	assert.Error(t, err)
	_, err = conn.ExecContext(ctx, `DELETE FROM audit_log`)
	assert.Error(t, err)
	assert.Equal(t, 1, countRows(t, conn, "audit_log"))
}

func TestHistory_SupersedesIsLinear(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()
	p := seedPerson(t, s, "Ana", "1")
	rec, _ := seedEntry(t, s, p, t0)

	revise := func() (store.HistoryRecord, error) {
		var out store.HistoryRecord
		err := s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
			next := rec
			next.ID = 0
			next.Status = store.StatusEdited
			next.Supersedes = &rec.ID
			at := t0.Add(time.Minute)
			next.RevisedAt = &at
			next.RevisedBy = "op"
			var err error
			out, err = tx.InsertHistory(ctx, next)
			return err
		})
		return out, err
	}

	first, err := revise()
	require.NoError(t, err)
	_, err = revise()
	require.ErrorIs(t, err, store.ErrSuperseded)

	succ, err := s.SuccessorOf(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, succ.ID)

	_, err = s.SuccessorOf(ctx, first.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRotateCycle_CarriesPendingAndDropsTheRest(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()

	a := seedPerson(t, s, "Ana", "1")
	b := seedPerson(t, s, "Bia", "2")
	c := seedPerson(t, s, "Caio", "3")
	ra, _ := seedEntry(t, s, a, t0)
	rb, _ := seedEntry(t, s, b, t0.Add(time.Minute))
	seedEntry(t, s, c, t0.Add(2*time.Minute))
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, rec := range []store.HistoryRecord{ra, rb} {
			if err := tx.CompleteExit(ctx, rec.ID, store.ExitMark{At: t0.Add(time.Hour), OperatorID: "op"}); err != nil {
				return err
			}
			e, err := tx.BoardEntryFor(ctx, rec.ID)
			if err != nil {
				return err
			}
			got, err := tx.GetRecord(ctx, rec.ID)
			if err != nil {
				return err
			}
			if err := tx.UpdateBoardEntry(ctx, e.Mirror(got)); err != nil {
				return err
			}
		}
		return nil
	}))
	before, err := s.OpenCycle(ctx)
	require.NoError(t, err)

	var (
		closed, opened store.Cycle
		removed        int64
	)
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		closed, opened, removed, err = tx.RotateCycle(ctx, "boss", t0.Add(2*time.Hour))
		return err
	}))

	assert.EqualValues(t, 2, removed)
	assert.Equal(t, before.ID, closed.ID)
	assert.False(t, closed.Open)
	assert.Equal(t, "boss", closed.ClosedBy)
	assert.True(t, opened.Open)

	board, err := s.ListBoard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, c.ID, board[0].PersonID)
	assert.Equal(t, opened.ID, board[0].CycleID)
	assert.Equal(t, 3, countRows(t, conn, "history_records"))

	cur, err := s.OpenCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, cur.ID)
}

func TestUpdate_ErrorRollsBackEverything(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()
	p := seedPerson(t, s, "Ana", "1")

	boom := errors.New("boom")
	err := s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.EnsureCycle(ctx, "op", t0)
		if err != nil {
			return err
		}
		rec, err := tx.InsertHistory(ctx, entryFor(p, t0))
		if err != nil {
			return err
		}
		if _, err := tx.InsertBoardEntry(ctx, store.BoardEntry{CycleID: c.ID}.Mirror(rec)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, countRows(t, conn, "history_records"))
	assert.Equal(t, 0, countRows(t, conn, "board_entries"))
	assert.Equal(t, 0, countRows(t, conn, "board_cycles"))
}

func TestListHistory_EffectiveTimeWindow(t *testing.T) {
	conn := openTestDB(t)
	s := newTestStore(t, conn)
	ctx := context.Background()
	p := seedPerson(t, s, "Ana", "1")

	// Registered now but back-dated a day.
	back := t0.Add(-24 * time.Hour)
	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		rec := entryFor(p, t0)
		rec.ManualAt = &back
		rec.PendingExit = false
		_, err := tx.InsertHistory(ctx, rec)
		return err
	}))
	seedEntry(t, s, p, t0)

	from, to := t0.Add(-time.Hour), t0.Add(time.Hour)
	recs, err := s.ListHistory(ctx, store.HistoryFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].ManualAt)

	all, err := s.ListHistory(ctx, store.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].EffectiveAt().Equal(back), "ordered by effective time")

	none, err := s.ListHistory(ctx, store.HistoryFilter{PersonIDs: []int64{}})
	require.NoError(t, err)
	assert.Empty(t, none)
}
