package sqlite

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

func (r reader) ListAudit(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	q := `SELECT audit_id, actor_id, action, target_type, target_id, detail, created_at_ms
FROM audit_log WHERE 1 = 1`
	var args []any
	if f.Since != nil {
		q += ` AND created_at_ms >= ?`
		args = append(args, toMs(*f.Since))
	}
	q += ` ORDER BY audit_id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.q.QueryContext(ctx, q+`;`, args...)
	if err != nil {
		return nil, fmt.Errorf("ListAudit: %w", err)
	}
	defer rows.Close()

	var out []store.AuditEntry
	for rows.Next() {
		var (
			a      store.AuditEntry
			action string
			at     int64
		)
		if err := rows.Scan(&a.ID, &a.ActorID, &action, &a.TargetType, &a.TargetID, &a.Detail, &at); err != nil {
			return nil, fmt.Errorf("ListAudit scan: %w", err)
		}
		a.Action = store.AuditAction(action)
		a.At = fromMs(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendAudit writes one audit line in the caller's transaction, so the line
// exists if and only if the change it describes was committed.
func (t *txStore) AppendAudit(ctx context.Context, a store.AuditEntry) (store.AuditEntry, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO audit_log(actor_id, action, target_type, target_id, detail, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, a.ActorID, string(a.Action), a.TargetType, a.TargetID, a.Detail, toMs(a.At))
	if err != nil {
		return store.AuditEntry{}, fmt.Errorf("AppendAudit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.AuditEntry{}, fmt.Errorf("AppendAudit id: %w", err)
	}
	a.ID = id
	a.At = a.At.UTC()
	return a, nil
}
