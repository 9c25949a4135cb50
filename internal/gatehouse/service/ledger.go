package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// Ledger keeps History and the Board in step. Each write that touches the
// board goes through one store transaction together with its history row,
// so the two never diverge.
type Ledger struct {
	store   store.Store
	set     Settings
	secrets SecretVerifier
	logger  *zap.Logger
}

func NewLedger(st store.Store, set Settings, secrets SecretVerifier, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: st, set: set.withDefaults(), secrets: secrets, logger: logger.Named("ledger")}
}

// atomically runs fn in one transaction and classifies whatever comes out.
func (l *Ledger) atomically(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return classify(l.store.Update(ctx, fn))
}

// appendMirrored writes rec to history and a matching board entry in the
// open cycle. A pending rec for a person who already has a pending entry
// fails on the board insert with store.ErrPendingExists.
func appendMirrored(ctx context.Context, tx store.Tx, rec store.HistoryRecord, at store.Cycle) (store.HistoryRecord, store.BoardEntry, error) {
	rec, err := tx.InsertHistory(ctx, rec)
	if err != nil {
		return store.HistoryRecord{}, store.BoardEntry{}, err
	}
	e, err := tx.InsertBoardEntry(ctx, store.BoardEntry{CycleID: at.ID}.Mirror(rec))
	if err != nil {
		return store.HistoryRecord{}, store.BoardEntry{}, err
	}
	return rec, e, nil
}

// completePending fills the exit on a person's pending entry and refreshes
// its board mirror. check, when set, may veto the exit after seeing the
// pending entry.
func completePending(ctx context.Context, tx store.Tx, personID int64, mark store.ExitMark, check func(store.BoardEntry) error) (store.HistoryRecord, store.BoardEntry, error) {
	e, err := tx.PendingEntry(ctx, personID)
	if err != nil {
		return store.HistoryRecord{}, store.BoardEntry{}, err
	}
	if check != nil {
		if err := check(e); err != nil {
			return store.HistoryRecord{}, store.BoardEntry{}, err
		}
	}
	if err := tx.CompleteExit(ctx, e.HistoryID, mark); err != nil {
		return store.HistoryRecord{}, store.BoardEntry{}, err
	}
	rec, err := tx.GetRecord(ctx, e.HistoryID)
	if err != nil {
		return store.HistoryRecord{}, store.BoardEntry{}, err
	}
	e = e.Mirror(rec)
	if err := tx.UpdateBoardEntry(ctx, e); err != nil {
		return store.HistoryRecord{}, store.BoardEntry{}, err
	}
	return rec, e, nil
}

// Board lists the open cycle's entries by effective time, then id.
func (l *Ledger) Board(ctx context.Context) ([]store.BoardEntry, error) {
	return l.store.ListBoard(ctx)
}

// CurrentCycle returns the open cycle, opening the first one on demand.
func (l *Ledger) CurrentCycle(ctx context.Context, actorID string) (store.Cycle, error) {
	c, err := l.store.OpenCycle(ctx)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return c, err
	}
	err = l.atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err = tx.EnsureCycle(ctx, actorID, l.set.now())
		return err
	})
	return c, err
}

func (l *Ledger) Record(ctx context.Context, id int64) (store.HistoryRecord, error) {
	rec, err := l.store.GetRecord(ctx, id)
	if err != nil {
		return store.HistoryRecord{}, readErr(err, fmt.Sprintf("record %d", id))
	}
	return rec, nil
}

// RecordLineage returns every row of id's lineage, oldest first, ending at
// the current head.
func (l *Ledger) RecordLineage(ctx context.Context, id int64) ([]store.HistoryRecord, error) {
	rec, err := l.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	var back []store.HistoryRecord
	for cur := rec; cur.Supersedes != nil; {
		prev, err := l.store.GetRecord(ctx, *cur.Supersedes)
		if err != nil {
			return nil, err
		}
		back = append(back, prev)
		cur = prev
	}
	out := make([]store.HistoryRecord, 0, len(back)+1)
	for i := len(back) - 1; i >= 0; i-- {
		out = append(out, back[i])
	}
	out = append(out, rec)
	for cur := rec; ; {
		next, err := l.store.SuccessorOf(ctx, cur.ID)
		if errors.Is(err, store.ErrNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		cur = next
	}
}

type ClearResult struct {
	Closed  store.Cycle
	Opened  store.Cycle
	Removed int64
	Kept    int
	Audit   store.AuditEntry
}

// ClearBoard ends the current board cycle. The operator must hold
// CapClearBoard and confirm with their secret. Pending entries carry over
// into the new cycle; everything else leaves the board. History is not
// touched.
func (l *Ledger) ClearBoard(ctx context.Context, op Operator, secret string) (ClearResult, error) {
	if err := Authorize(op, CapClearBoard); err != nil {
		return ClearResult{}, err
	}
	if strings.TrimSpace(secret) == "" {
		return ClearResult{}, invalid("confirmation secret is required")
	}
	if l.secrets == nil {
		return ClearResult{}, ErrBadSecret
	}
	if err := l.secrets.VerifySecret(op.ID, secret); err != nil {
		l.logger.Warn("board clear refused", zap.String("operator", op.ID))
		return ClearResult{}, ErrBadSecret
	}

	var res ClearResult
	err := l.atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		now := l.set.now()
		closed, opened, removed, err := tx.RotateCycle(ctx, op.ID, now)
		if err != nil {
			return err
		}
		kept, err := tx.ListBoard(ctx)
		if err != nil {
			return err
		}
		a, err := tx.AppendAudit(ctx, store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditDelete,
			TargetType: store.TargetBoard,
			TargetID:   closed.ID,
			Detail: fmt.Sprintf("board cleared: removed %d entries, kept %d pending; cycle %s -> %s",
				removed, len(kept), closed.ID, opened.ID),
			At: now,
		})
		if err != nil {
			return err
		}
		res = ClearResult{Closed: closed, Opened: opened, Removed: removed, Kept: len(kept), Audit: a}
		return nil
	})
	if err != nil {
		return ClearResult{}, err
	}
	l.logger.Info("board cleared",
		zap.String("operator", op.ID),
		zap.Int64("removed", res.Removed),
		zap.Int("kept", res.Kept),
		zap.String("cycle", res.Opened.ID))
	return res, nil
}

// Audit lists audit entries, newest last.
func (l *Ledger) Audit(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	return l.store.ListAudit(ctx, f)
}
