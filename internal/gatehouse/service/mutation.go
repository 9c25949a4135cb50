package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// Mutation edits and deletes history rows without rewriting them. Both
// operations append a new row superseding the target, keep the board
// mirror pointed at the newest row, and write one audit entry.
type Mutation struct {
	ledger *Ledger
	set    Settings
	logger *zap.Logger
}

func NewMutation(l *Ledger, set Settings, logger *zap.Logger) *Mutation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mutation{ledger: l, set: set.withDefaults(), logger: logger.Named("mutation")}
}

// Changes overlays a record. Nil fields keep the original value.
type Changes struct {
	Kind     *store.Kind
	ManualAt *time.Time
	Note     *string
	Flagged  *bool
	Vehicle  *string
	Sector   *string
	ExitAt   *time.Time
	ExitNote *string
}

func (c Changes) fields() []string {
	var f []string
	add := func(set bool, name string) {
		if set {
			f = append(f, name)
		}
	}
	add(c.Kind != nil, "kind")
	add(c.ManualAt != nil, "manual_at")
	add(c.Note != nil, "note")
	add(c.Flagged != nil, "flagged")
	add(c.Vehicle != nil, "vehicle")
	add(c.Sector != nil, "sector")
	add(c.ExitAt != nil, "exit_at")
	add(c.ExitNote != nil, "exit_note")
	return f
}

func (c Changes) validate(now time.Time) error {
	if len(c.fields()) == 0 {
		return invalid("no fields to change")
	}
	if c.Kind != nil && !c.Kind.Valid() {
		return invalid("unknown kind %q", *c.Kind)
	}
	if c.ManualAt != nil && c.ManualAt.After(now) {
		return invalid("manual timestamp is in the future")
	}
	if c.ExitAt != nil && c.ExitAt.After(now) {
		return invalid("exit timestamp is in the future")
	}
	return nil
}

func (c Changes) apply(rec store.HistoryRecord, actor string) (store.HistoryRecord, error) {
	if c.Kind != nil {
		rec.Kind = *c.Kind
		if rec.Kind == store.KindExit {
			rec.PendingExit = false
		}
	}
	if c.ManualAt != nil {
		t := *c.ManualAt
		rec.ManualAt = &t
	}
	if c.Note != nil {
		rec.Note = strings.TrimSpace(*c.Note)
	}
	if c.Flagged != nil {
		rec.Flagged = *c.Flagged
	}
	if c.Vehicle != nil {
		rec.Vehicle = strings.TrimSpace(*c.Vehicle)
	}
	if c.Sector != nil {
		rec.Sector = strings.TrimSpace(*c.Sector)
	}
	if c.ExitNote != nil {
		rec.ExitNote = strings.TrimSpace(*c.ExitNote)
	}
	if c.ExitAt != nil {
		t := *c.ExitAt
		if t.Before(rec.EffectiveAt()) {
			return store.HistoryRecord{}, invalid("exit precedes entry")
		}
		rec.ExitAt = &t
		rec.PendingExit = false
		if rec.ExitOperatorID == "" {
			rec.ExitOperatorID = actor
		}
	}
	return rec, nil
}

// head loads id and checks that it can still be revised.
func head(ctx context.Context, tx store.Tx, id int64) (store.HistoryRecord, error) {
	rec, err := tx.GetRecord(ctx, id)
	if err != nil {
		return store.HistoryRecord{}, fmt.Errorf("record %d: %w", id, err)
	}
	if rec.Status == store.StatusDeleted {
		return store.HistoryRecord{}, fmt.Errorf("%w: record %d is deleted", ErrSuperseded, id)
	}
	next, err := tx.SuccessorOf(ctx, id)
	switch {
	case err == nil:
		return store.HistoryRecord{}, fmt.Errorf("%w: record %d was revised by %d", ErrSuperseded, id, next.ID)
	case !errors.Is(err, store.ErrNotFound):
		return store.HistoryRecord{}, err
	}
	return rec, nil
}

func revisionOf(orig store.HistoryRecord, status store.RevisionStatus, justification, actor string, at time.Time) store.HistoryRecord {
	next := orig
	next.ID = 0
	next.Status = status
	prev := orig.ID
	next.Supersedes = &prev
	next.Justification = justification
	next.RevisedAt = &at
	next.RevisedBy = actor
	return next
}

// Edit appends a revision of recordID with changes applied. A board entry
// mirroring recordID is repointed to the revision.
func (m *Mutation) Edit(ctx context.Context, op Operator, recordID int64, changes Changes, justification string) (store.HistoryRecord, error) {
	if err := Authorize(op, CapEdit); err != nil {
		return store.HistoryRecord{}, err
	}
	just := strings.TrimSpace(justification)
	if just == "" {
		return store.HistoryRecord{}, invalid("justification is required")
	}
	if err := changes.validate(m.set.now()); err != nil {
		return store.HistoryRecord{}, err
	}

	var out store.HistoryRecord
	err := m.ledger.atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		now := m.set.now()
		orig, err := head(ctx, tx, recordID)
		if err != nil {
			return err
		}
		next, err := changes.apply(revisionOf(orig, store.StatusEdited, just, op.ID, now), op.ID)
		if err != nil {
			return err
		}
		rec, err := tx.InsertHistory(ctx, next)
		if err != nil {
			return err
		}
		if err := repoint(ctx, tx, orig.ID, &rec); err != nil {
			return err
		}
		if _, err := tx.AppendAudit(ctx, store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditEdit,
			TargetType: store.TargetHistoryRecord,
			TargetID:   fmt.Sprint(orig.ID),
			Detail: fmt.Sprintf("record %d revised as %d, changed %s: %s",
				orig.ID, rec.ID, strings.Join(changes.fields(), ","), just),
			At: now,
		}); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return store.HistoryRecord{}, err
	}
	m.logger.Info("record edited",
		zap.String("operator", op.ID),
		zap.Int64("record_id", recordID),
		zap.Int64("revision_id", out.ID))
	return out, nil
}

// Delete appends a DELETED tombstone copying recordID and removes its board
// mirror. The original row stays as it was.
func (m *Mutation) Delete(ctx context.Context, op Operator, recordID int64, justification string) (store.HistoryRecord, error) {
	if err := Authorize(op, CapDelete); err != nil {
		return store.HistoryRecord{}, err
	}
	just := strings.TrimSpace(justification)
	if just == "" {
		return store.HistoryRecord{}, invalid("justification is required")
	}

	var out store.HistoryRecord
	err := m.ledger.atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		now := m.set.now()
		orig, err := head(ctx, tx, recordID)
		if err != nil {
			return err
		}
		// A tombstone is terminal, so it never reads as an open entry.
		dead := revisionOf(orig, store.StatusDeleted, just, op.ID, now)
		dead.PendingExit = false
		tomb, err := tx.InsertHistory(ctx, dead)
		if err != nil {
			return err
		}
		if err := repoint(ctx, tx, orig.ID, nil); err != nil {
			return err
		}
		if _, err := tx.AppendAudit(ctx, store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditDelete,
			TargetType: store.TargetHistoryRecord,
			TargetID:   fmt.Sprint(orig.ID),
			Detail:     fmt.Sprintf("record %d deleted, tombstone %d: %s", orig.ID, tomb.ID, just),
			At:         now,
		}); err != nil {
			return err
		}
		out = tomb
		return nil
	})
	if err != nil {
		return store.HistoryRecord{}, err
	}
	m.logger.Info("record deleted",
		zap.String("operator", op.ID),
		zap.Int64("record_id", recordID),
		zap.Int64("tombstone_id", out.ID))
	return out, nil
}

// repoint moves the board mirror of historyID to rec, or removes it when
// rec is nil. Records without a mirror are left alone.
func repoint(ctx context.Context, tx store.Tx, historyID int64, rec *store.HistoryRecord) error {
	e, err := tx.BoardEntryFor(ctx, historyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec == nil {
		return tx.DeleteBoardEntry(ctx, e.ID)
	}
	return tx.UpdateBoardEntry(ctx, e.Mirror(*rec))
}
