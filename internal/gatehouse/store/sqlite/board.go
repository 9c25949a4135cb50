package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

const boardColumns = `entry_id, cycle_id, history_id, person_id, operator_id, kind,
  occurred_at_ms, manual_at_ms, note, flagged, vehicle, sector,
  exit_at_ms, exit_operator_id, exit_note, pending_exit`

func scanBoard(row interface{ Scan(...any) error }) (store.BoardEntry, error) {
	var (
		e                store.BoardEntry
		kind             string
		occurred         int64
		manual, exitAt   sql.NullInt64
		exitOp           sql.NullString
		flagged, pending int
	)
	err := row.Scan(
		&e.ID, &e.CycleID, &e.HistoryID, &e.PersonID, &e.OperatorID, &kind,
		&occurred, &manual, &e.Note, &flagged, &e.Vehicle, &e.Sector,
		&exitAt, &exitOp, &e.ExitNote, &pending,
	)
	if err != nil {
		return store.BoardEntry{}, err
	}
	e.Kind = store.Kind(kind)
	e.OccurredAt = fromMs(occurred)
	e.ManualAt = timePtr(manual)
	e.ExitAt = timePtr(exitAt)
	e.ExitOperatorID = exitOp.String
	e.Flagged = flagged == 1
	e.PendingExit = pending == 1
	return e, nil
}

func (r reader) ListBoard(ctx context.Context) ([]store.BoardEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+boardColumns+`
FROM board_entries
WHERE cycle_id = (SELECT cycle_id FROM board_cycles WHERE is_open = 1)
ORDER BY COALESCE(manual_at_ms, occurred_at_ms), entry_id;
`)
	if err != nil {
		return nil, fmt.Errorf("ListBoard: %w", err)
	}
	defer rows.Close()

	var out []store.BoardEntry
	for rows.Next() {
		e, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBoard scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r reader) BoardEntryFor(ctx context.Context, historyID int64) (store.BoardEntry, error) {
	e, err := scanBoard(r.q.QueryRowContext(ctx,
		`SELECT `+boardColumns+` FROM board_entries WHERE history_id = ?;`, historyID))
	if isNoRows(err) {
		return store.BoardEntry{}, store.ErrNotFound
	}
	if err != nil {
		return store.BoardEntry{}, fmt.Errorf("BoardEntryFor: %w", err)
	}
	return e, nil
}

func (r reader) PendingEntry(ctx context.Context, personID int64) (store.BoardEntry, error) {
	e, err := scanBoard(r.q.QueryRowContext(ctx,
		`SELECT `+boardColumns+` FROM board_entries WHERE person_id = ? AND pending_exit = 1;`, personID))
	if isNoRows(err) {
		return store.BoardEntry{}, store.ErrNoPending
	}
	if err != nil {
		return store.BoardEntry{}, fmt.Errorf("PendingEntry: %w", err)
	}
	return e, nil
}

func (t *txStore) InsertBoardEntry(ctx context.Context, e store.BoardEntry) (store.BoardEntry, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO board_entries(
  cycle_id, history_id, person_id, operator_id, kind,
  occurred_at_ms, manual_at_ms, note, flagged, vehicle, sector,
  exit_at_ms, exit_operator_id, exit_note, pending_exit
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		e.CycleID, e.HistoryID, e.PersonID, e.OperatorID, string(e.Kind),
		toMs(e.OccurredAt), nullableMs(e.ManualAt), e.Note, boolInt(e.Flagged), e.Vehicle, e.Sector,
		nullableMs(e.ExitAt), nullableString(e.ExitOperatorID), e.ExitNote, boolInt(e.PendingExit),
	)
	if uniqueViolation(err, "board_entries.person_id") {
		return store.BoardEntry{}, store.ErrPendingExists
	}
	if err != nil {
		return store.BoardEntry{}, fmt.Errorf("InsertBoardEntry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.BoardEntry{}, fmt.Errorf("InsertBoardEntry id: %w", err)
	}
	e.ID = id
	return e, nil
}

func (t *txStore) UpdateBoardEntry(ctx context.Context, e store.BoardEntry) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE board_entries SET
  history_id = ?, person_id = ?, operator_id = ?, kind = ?,
  occurred_at_ms = ?, manual_at_ms = ?, note = ?, flagged = ?, vehicle = ?, sector = ?,
  exit_at_ms = ?, exit_operator_id = ?, exit_note = ?, pending_exit = ?
WHERE entry_id = ?;
`,
		e.HistoryID, e.PersonID, e.OperatorID, string(e.Kind),
		toMs(e.OccurredAt), nullableMs(e.ManualAt), e.Note, boolInt(e.Flagged), e.Vehicle, e.Sector,
		nullableMs(e.ExitAt), nullableString(e.ExitOperatorID), e.ExitNote, boolInt(e.PendingExit),
		e.ID,
	)
	if uniqueViolation(err, "board_entries.person_id") {
		return store.ErrPendingExists
	}
	if err != nil {
		return fmt.Errorf("UpdateBoardEntry: %w", err)
	}
	return expectOne(res, "UpdateBoardEntry")
}

func (t *txStore) DeleteBoardEntry(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM board_entries WHERE entry_id = ?;`, id)
	if err != nil {
		return fmt.Errorf("DeleteBoardEntry: %w", err)
	}
	return expectOne(res, "DeleteBoardEntry")
}
