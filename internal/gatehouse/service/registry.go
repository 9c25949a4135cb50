package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// Registry drives the per-person state machine NONE -> PENDING_EXIT ->
// CLOSED. The "no pending entry" precondition is enforced by the store's
// uniqueness rule, not by a read beforehand.
type Registry struct {
	ledger *Ledger
	set    Settings
	logger *zap.Logger
}

func NewRegistry(l *Ledger, set Settings, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{ledger: l, set: set.withDefaults(), logger: logger.Named("registry")}
}

type EntryRequest struct {
	PersonID int64
	Note     string
	Flagged  bool
	// Vehicle and Sector override the person's defaults when non-empty.
	Vehicle string
	Sector  string
}

type ExitRequest struct {
	PersonID int64
	Note     string
}

type ManualRequest struct {
	PersonID      int64
	Kind          store.Kind
	At            time.Time
	Justification string
	Note          string
	Flagged       bool
	Vehicle       string
	Sector        string
}

type DefinitiveExitRequest struct {
	Name          string
	DocumentID    string
	Justification string
	Note          string
	Sector        string
}

// Transition is the outcome of a registry call.
type Transition struct {
	Record store.HistoryRecord
	Board  store.BoardEntry
	Person store.Person
}

func (r *Registry) RegisterEntry(ctx context.Context, op Operator, req EntryRequest) (Transition, error) {
	if err := Authorize(op, CapRegister); err != nil {
		return Transition{}, err
	}
	return r.openEntry(ctx, op, req.PersonID, func(p store.Person, now time.Time) (store.HistoryRecord, *store.AuditEntry) {
		return store.HistoryRecord{
			PersonID:    p.ID,
			OperatorID:  op.ID,
			Kind:        store.KindEntry,
			OccurredAt:  now,
			Note:        strings.TrimSpace(req.Note),
			Flagged:     req.Flagged,
			Vehicle:     orDefault(req.Vehicle, p.Vehicle),
			Sector:      orDefault(req.Sector, p.Sector),
			PendingExit: true,
			Status:      store.StatusOriginal,
		}, nil
	})
}

func (r *Registry) RegisterExit(ctx context.Context, op Operator, req ExitRequest) (Transition, error) {
	if err := Authorize(op, CapRegister); err != nil {
		return Transition{}, err
	}
	mark := store.ExitMark{OperatorID: op.ID, Note: strings.TrimSpace(req.Note)}
	return r.closeEntry(ctx, op, req.PersonID, mark, nil, nil)
}

// RegisterManual records a back-dated entry or exit. It follows the same
// state machine as the live calls and also leaves an audit row.
func (r *Registry) RegisterManual(ctx context.Context, op Operator, req ManualRequest) (Transition, error) {
	if err := Authorize(op, CapRegister); err != nil {
		return Transition{}, err
	}
	just := strings.TrimSpace(req.Justification)
	if n := utf8.RuneCountInString(just); n < r.set.ManualJustificationMin {
		return Transition{}, invalid("justification must be at least %d characters (got %d)", r.set.ManualJustificationMin, n)
	}
	if req.At.IsZero() {
		return Transition{}, invalid("manual timestamp is required")
	}
	if req.At.After(r.set.now()) {
		return Transition{}, invalid("manual timestamp %s is in the future", req.At.Format(time.RFC3339))
	}
	at := req.At

	switch req.Kind {
	case store.KindEntry:
		return r.openEntry(ctx, op, req.PersonID, func(p store.Person, now time.Time) (store.HistoryRecord, *store.AuditEntry) {
			rec := store.HistoryRecord{
				PersonID:      p.ID,
				OperatorID:    op.ID,
				Kind:          store.KindEntry,
				OccurredAt:    now,
				ManualAt:      &at,
				Justification: just,
				Note:          strings.TrimSpace(req.Note),
				Flagged:       req.Flagged,
				Vehicle:       orDefault(req.Vehicle, p.Vehicle),
				Sector:        orDefault(req.Sector, p.Sector),
				PendingExit:   true,
				Status:        store.StatusOriginal,
			}
			return rec, &store.AuditEntry{
				ActorID:    op.ID,
				Action:     store.AuditCreate,
				TargetType: store.TargetHistoryRecord,
				Detail:     fmt.Sprintf("manual entry for person %d at %s: %s", p.ID, at.Format(time.RFC3339), just),
				At:         now,
			}
		})
	case store.KindExit:
		mark := store.ExitMark{
			At:            at,
			OperatorID:    op.ID,
			Note:          strings.TrimSpace(req.Note),
			Manual:        true,
			Justification: just,
		}
		check := func(e store.BoardEntry) error {
			if at.Before(e.EffectiveAt()) {
				return invalid("manual exit %s precedes its entry at %s",
					at.Format(time.RFC3339), e.EffectiveAt().Format(time.RFC3339))
			}
			return nil
		}
		audit := &store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditCreate,
			TargetType: store.TargetHistoryRecord,
			Detail:     fmt.Sprintf("manual exit for person %d at %s: %s", req.PersonID, at.Format(time.RFC3339), just),
		}
		return r.closeEntry(ctx, op, req.PersonID, mark, check, audit)
	default:
		return Transition{}, invalid("unknown kind %q", req.Kind)
	}
}

// RegisterDefinitiveExit records the permanent departure of someone who may
// never have had a tracked entry. The person is created if the document id
// is new, renamed with the departed marker, and deactivated. A pending entry
// the person still has is closed at the same instant.
func (r *Registry) RegisterDefinitiveExit(ctx context.Context, op Operator, req DefinitiveExitRequest) (Transition, error) {
	if err := Authorize(op, CapDefinitiveExit); err != nil {
		return Transition{}, err
	}
	name := strings.TrimSpace(req.Name)
	doc := strings.TrimSpace(req.DocumentID)
	just := strings.TrimSpace(req.Justification)
	switch {
	case name == "":
		return Transition{}, invalid("name is required")
	case doc == "":
		return Transition{}, invalid("document id is required")
	case just == "":
		return Transition{}, invalid("justification is required")
	}
	display := r.markDeparted(name)

	var out Transition
	err := r.ledger.atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		now := r.set.now()
		p, err := tx.FindPersonByDocument(ctx, doc)
		switch {
		case err == nil:
			p.FullName = r.markDeparted(p.FullName)
			p.Active = false
			p.UpdatedAt = now
			if err := tx.UpdatePerson(ctx, p); err != nil {
				return err
			}
		case errors.Is(err, store.ErrNotFound):
			p, err = tx.CreatePerson(ctx, store.Person{
				FullName:   display,
				DocumentID: doc,
				Sector:     strings.TrimSpace(req.Sector),
				Active:     false,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if err != nil {
				return err
			}
		default:
			return err
		}

		closed := "none"
		pending, _, err := completePending(ctx, tx, p.ID, store.ExitMark{
			At:         now,
			OperatorID: op.ID,
			Note:       "definitive exit: " + just,
		}, nil)
		switch {
		case err == nil:
			closed = fmt.Sprint(pending.ID)
		case !errors.Is(err, store.ErrNoPending):
			return err
		}

		cycle, err := tx.EnsureCycle(ctx, op.ID, now)
		if err != nil {
			return err
		}
		exitAt := now
		rec, e, err := appendMirrored(ctx, tx, store.HistoryRecord{
			PersonID:       p.ID,
			OperatorID:     op.ID,
			Kind:           store.KindExit,
			OccurredAt:     now,
			Justification:  just,
			Note:           strings.TrimSpace(req.Note),
			Sector:         orDefault(req.Sector, p.Sector),
			Vehicle:        p.Vehicle,
			ExitAt:         &exitAt,
			ExitOperatorID: op.ID,
			PendingExit:    false,
			Status:         store.StatusOriginal,
		}, cycle)
		if err != nil {
			return err
		}
		if _, err := tx.AppendAudit(ctx, store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditCreate,
			TargetType: store.TargetHistoryRecord,
			TargetID:   fmt.Sprint(rec.ID),
			Detail:     fmt.Sprintf("definitive exit of %q (%s), pending entry closed: %s: %s", p.FullName, p.DocumentID, closed, just),
			At:         now,
		}); err != nil {
			return err
		}
		out = Transition{Record: rec, Board: e, Person: p}
		return nil
	})
	if err != nil {
		return Transition{}, err
	}
	r.logger.Info("definitive exit registered",
		zap.String("operator", op.ID),
		zap.Int64("person_id", out.Person.ID),
		zap.Int64("record_id", out.Record.ID))
	return out, nil
}

func (r *Registry) markDeparted(name string) string {
	if strings.HasPrefix(name, r.set.DepartedMarker) {
		return name
	}
	return r.set.DepartedMarker + name
}

type recordBuilder func(p store.Person, now time.Time) (store.HistoryRecord, *store.AuditEntry)

func (r *Registry) openEntry(ctx context.Context, op Operator, personID int64, build recordBuilder) (Transition, error) {
	var out Transition
	err := r.ledger.atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := activePerson(ctx, tx, personID)
		if err != nil {
			return err
		}
		now := r.set.now()
		rec, audit := build(p, now)
		cycle, err := tx.EnsureCycle(ctx, op.ID, now)
		if err != nil {
			return err
		}
		rec, e, err := appendMirrored(ctx, tx, rec, cycle)
		if err != nil {
			return err
		}
		if audit != nil {
			audit.TargetID = fmt.Sprint(rec.ID)
			if _, err := tx.AppendAudit(ctx, *audit); err != nil {
				return err
			}
		}
		out = Transition{Record: rec, Board: e, Person: p}
		return nil
	})
	if err != nil {
		r.logger.Debug("entry rejected", zap.Int64("person_id", personID), zap.Error(err))
		return Transition{}, err
	}
	r.logger.Info("entry registered",
		zap.String("operator", op.ID),
		zap.Int64("person_id", personID),
		zap.Int64("record_id", out.Record.ID),
		zap.Bool("manual", out.Record.ManualAt != nil))
	return out, nil
}

func (r *Registry) closeEntry(ctx context.Context, op Operator, personID int64, mark store.ExitMark, check func(store.BoardEntry) error, audit *store.AuditEntry) (Transition, error) {
	var out Transition
	err := r.ledger.atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return fmt.Errorf("person %d: %w", personID, err)
		}
		now := r.set.now()
		m := mark
		if m.At.IsZero() {
			m.At = now
		}
		rec, e, err := completePending(ctx, tx, p.ID, m, check)
		if err != nil {
			return err
		}
		if audit != nil {
			a := *audit
			a.TargetID = fmt.Sprint(rec.ID)
			a.At = now
			if _, err := tx.AppendAudit(ctx, a); err != nil {
				return err
			}
		}
		out = Transition{Record: rec, Board: e, Person: p}
		return nil
	})
	if err != nil {
		r.logger.Debug("exit rejected", zap.Int64("person_id", personID), zap.Error(err))
		return Transition{}, err
	}
	r.logger.Info("exit registered",
		zap.String("operator", op.ID),
		zap.Int64("person_id", personID),
		zap.Int64("record_id", out.Record.ID))
	return out, nil
}

func activePerson(ctx context.Context, tx store.Tx, id int64) (store.Person, error) {
	p, err := tx.GetPerson(ctx, id)
	if err != nil {
		return store.Person{}, fmt.Errorf("person %d: %w", id, err)
	}
	if !p.Active {
		return store.Person{}, invalid("person %d is inactive", id)
	}
	return p, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
