package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// EnsureCycle returns the open board cycle, opening the first one if the
// namespace has never had a cycle. Must run inside the caller's transaction.
func (t *txStore) EnsureCycle(ctx context.Context, actorID string, at time.Time) (store.Cycle, error) {
	c, err := t.OpenCycle(ctx)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Cycle{}, err
	}
	return t.openCycle(ctx, actorID, at)
}

func (t *txStore) openCycle(ctx context.Context, actorID string, at time.Time) (store.Cycle, error) {
	c := store.Cycle{
		ID:       uuid.NewString(),
		Open:     true,
		OpenedAt: at.UTC(),
		OpenedBy: actorID,
	}
	if _, err := t.tx.ExecContext(ctx, `
INSERT INTO board_cycles(cycle_id, is_open, opened_at_ms, opened_by)
VALUES (?, 1, ?, ?);
`, c.ID, toMs(at), actorID); err != nil {
		return store.Cycle{}, fmt.Errorf("openCycle: %w", err)
	}
	return c, nil
}

func (t *txStore) RotateCycle(ctx context.Context, actorID string, at time.Time) (store.Cycle, store.Cycle, int64, error) {
	closed, err := t.EnsureCycle(ctx, actorID, at)
	if err != nil {
		return store.Cycle{}, store.Cycle{}, 0, err
	}

	if _, err := t.tx.ExecContext(ctx, `
UPDATE board_cycles
SET is_open = 0, closed_at_ms = ?, closed_by = ?
WHERE cycle_id = ?;
`, toMs(at), actorID, closed.ID); err != nil {
		return store.Cycle{}, store.Cycle{}, 0, fmt.Errorf("RotateCycle close: %w", err)
	}
	closedAt := at.UTC()
	closed.Open = false
	closed.ClosedAt = &closedAt
	closed.ClosedBy = actorID

	opened, err := t.openCycle(ctx, actorID, at)
	if err != nil {
		return store.Cycle{}, store.Cycle{}, 0, err
	}

	res, err := t.tx.ExecContext(ctx, `
DELETE FROM board_entries WHERE cycle_id = ? AND pending_exit = 0;
`, closed.ID)
	if err != nil {
		return store.Cycle{}, store.Cycle{}, 0, fmt.Errorf("RotateCycle delete: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return store.Cycle{}, store.Cycle{}, 0, fmt.Errorf("RotateCycle rows: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `
UPDATE board_entries SET cycle_id = ? WHERE cycle_id = ?;
`, opened.ID, closed.ID); err != nil {
		return store.Cycle{}, store.Cycle{}, 0, fmt.Errorf("RotateCycle carry pending: %w", err)
	}

	return closed, opened, removed, nil
}

func (r reader) OpenCycle(ctx context.Context) (store.Cycle, error) {
	var (
		c      store.Cycle
		opened int64
	)
	err := r.q.QueryRowContext(ctx, `
SELECT cycle_id, opened_at_ms, opened_by FROM board_cycles WHERE is_open = 1;
`).Scan(&c.ID, &opened, &c.OpenedBy)
	if isNoRows(err) {
		return store.Cycle{}, store.ErrNotFound
	}
	if err != nil {
		return store.Cycle{}, fmt.Errorf("OpenCycle: %w", err)
	}
	c.Open = true
	c.OpenedAt = fromMs(opened)
	return c, nil
}
