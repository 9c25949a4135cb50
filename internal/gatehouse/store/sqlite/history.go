package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

const historyColumns = `record_id, person_id, operator_id, kind, occurred_at_ms, manual_at_ms,
  justification, note, flagged, vehicle, sector,
  exit_at_ms, exit_operator_id, exit_note, exit_manual, exit_justification, pending_exit,
  revision_status, supersedes_id, revised_at_ms, revised_by`

func scanHistory(row interface{ Scan(...any) error }) (store.HistoryRecord, error) {
	var (
		r                         store.HistoryRecord
		kind, status              string
		occurred                  int64
		manual, exitAt, revisedAt sql.NullInt64
		supersedes                sql.NullInt64
		exitOp, revisedBy         sql.NullString
		flagged, pending          int
		exitManual                int
	)
	err := row.Scan(
		&r.ID, &r.PersonID, &r.OperatorID, &kind, &occurred, &manual,
		&r.Justification, &r.Note, &flagged, &r.Vehicle, &r.Sector,
		&exitAt, &exitOp, &r.ExitNote, &exitManual, &r.ExitJustification, &pending,
		&status, &supersedes, &revisedAt, &revisedBy,
	)
	if err != nil {
		return store.HistoryRecord{}, err
	}
	r.Kind = store.Kind(kind)
	r.Status = store.RevisionStatus(status)
	r.OccurredAt = fromMs(occurred)
	r.ManualAt = timePtr(manual)
	r.ExitAt = timePtr(exitAt)
	r.RevisedAt = timePtr(revisedAt)
	r.ExitOperatorID = exitOp.String
	r.RevisedBy = revisedBy.String
	r.Flagged = flagged == 1
	r.PendingExit = pending == 1
	r.ExitManual = exitManual == 1
	if supersedes.Valid {
		id := supersedes.Int64
		r.Supersedes = &id
	}
	return r, nil
}

func (r reader) GetRecord(ctx context.Context, id int64) (store.HistoryRecord, error) {
	rec, err := scanHistory(r.q.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM history_records WHERE record_id = ?;`, id))
	if isNoRows(err) {
		return store.HistoryRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.HistoryRecord{}, fmt.Errorf("GetRecord: %w", err)
	}
	return rec, nil
}

func (r reader) SuccessorOf(ctx context.Context, id int64) (store.HistoryRecord, error) {
	rec, err := scanHistory(r.q.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM history_records WHERE supersedes_id = ?;`, id))
	if isNoRows(err) {
		return store.HistoryRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.HistoryRecord{}, fmt.Errorf("SuccessorOf: %w", err)
	}
	return rec, nil
}

func (r reader) ListHistory(ctx context.Context, f store.HistoryFilter) ([]store.HistoryRecord, error) {
	q := `SELECT ` + historyColumns + ` FROM history_records WHERE 1 = 1`
	var args []any
	if f.From != nil {
		q += ` AND COALESCE(manual_at_ms, occurred_at_ms) >= ?`
		args = append(args, toMs(*f.From))
	}
	if f.To != nil {
		q += ` AND COALESCE(manual_at_ms, occurred_at_ms) < ?`
		args = append(args, toMs(*f.To))
	}
	if f.PersonIDs != nil {
		if len(f.PersonIDs) == 0 {
			return nil, nil
		}
		q += ` AND person_id IN (?` + strings.Repeat(", ?", len(f.PersonIDs)-1) + `)`
		for _, id := range f.PersonIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY COALESCE(manual_at_ms, occurred_at_ms), COALESCE(revised_at_ms, 0), record_id;`

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListHistory: %w", err)
	}
	defer rows.Close()

	var out []store.HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListHistory scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *txStore) InsertHistory(ctx context.Context, rec store.HistoryRecord) (store.HistoryRecord, error) {
	if rec.Status == "" {
		rec.Status = store.StatusOriginal
	}
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO history_records(
  person_id, operator_id, kind, occurred_at_ms, manual_at_ms,
  justification, note, flagged, vehicle, sector,
  exit_at_ms, exit_operator_id, exit_note, exit_manual, exit_justification, pending_exit,
  revision_status, supersedes_id, revised_at_ms, revised_by
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.PersonID, rec.OperatorID, string(rec.Kind), toMs(rec.OccurredAt), nullableMs(rec.ManualAt),
		rec.Justification, rec.Note, boolInt(rec.Flagged), rec.Vehicle, rec.Sector,
		nullableMs(rec.ExitAt), nullableString(rec.ExitOperatorID), rec.ExitNote,
		boolInt(rec.ExitManual), rec.ExitJustification, boolInt(rec.PendingExit),
		string(rec.Status), nullableID(rec.Supersedes), nullableMs(rec.RevisedAt), nullableString(rec.RevisedBy),
	)
	if uniqueViolation(err, "history_records.supersedes_id") {
		return store.HistoryRecord{}, store.ErrSuperseded
	}
	if err != nil {
		return store.HistoryRecord{}, fmt.Errorf("InsertHistory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.HistoryRecord{}, fmt.Errorf("InsertHistory id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

func (t *txStore) CompleteExit(ctx context.Context, historyID int64, m store.ExitMark) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE history_records
SET exit_at_ms = ?, exit_operator_id = ?, exit_note = ?,
    exit_manual = ?, exit_justification = ?, pending_exit = 0
WHERE record_id = ? AND pending_exit = 1;
`, toMs(m.At), m.OperatorID, m.Note, boolInt(m.Manual), m.Justification, historyID)
	if err != nil {
		return fmt.Errorf("CompleteExit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("CompleteExit rows: %w", err)
	}
	if n == 0 {
		return store.ErrNoPending
	}
	return nil
}
