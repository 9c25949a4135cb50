package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

type Roster struct {
	store  store.Store
	set    Settings
	logger *zap.Logger
}

func NewRoster(st store.Store, set Settings, logger *zap.Logger) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roster{store: st, set: set.withDefaults(), logger: logger.Named("roster")}
}

type NewPerson struct {
	FullName   string
	DocumentID string
	Vehicle    string
	Sector     string
	Shift      string
}

func (r *Roster) Add(ctx context.Context, op Operator, np NewPerson) (store.Person, error) {
	if err := Authorize(op, CapRegister); err != nil {
		return store.Person{}, err
	}
	name := strings.TrimSpace(np.FullName)
	doc := strings.TrimSpace(np.DocumentID)
	if name == "" {
		return store.Person{}, invalid("full name is required")
	}
	if doc == "" {
		return store.Person{}, invalid("document id is required")
	}
	shiftName := ""
	if strings.TrimSpace(np.Shift) != "" {
		n, ok := r.set.Clock.Normalize(np.Shift)
		if !ok {
			return store.Person{}, invalid("unknown shift %q", np.Shift)
		}
		shiftName = n
	}

	var p store.Person
	err := classify(r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		now := r.set.now()
		var err error
		p, err = tx.CreatePerson(ctx, store.Person{
			FullName:   name,
			DocumentID: doc,
			Vehicle:    strings.TrimSpace(np.Vehicle),
			Sector:     strings.TrimSpace(np.Sector),
			Shift:      shiftName,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendAudit(ctx, store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditCreate,
			TargetType: store.TargetPerson,
			TargetID:   fmt.Sprint(p.ID),
			Detail:     fmt.Sprintf("person %q (%s) added", p.FullName, p.DocumentID),
			At:         now,
		})
		return err
	}))
	if err != nil {
		return store.Person{}, err
	}
	r.logger.Info("person added", zap.Int64("person_id", p.ID), zap.String("shift", p.Shift))
	return p, nil
}

func (r *Roster) Get(ctx context.Context, id int64) (store.Person, error) {
	p, err := r.store.GetPerson(ctx, id)
	if err != nil {
		return store.Person{}, readErr(err, fmt.Sprintf("person %d", id))
	}
	return p, nil
}

func (r *Roster) ByDocument(ctx context.Context, documentID string) (store.Person, error) {
	p, err := r.store.FindPersonByDocument(ctx, strings.TrimSpace(documentID))
	if err != nil {
		return store.Person{}, readErr(err, fmt.Sprintf("document %q", documentID))
	}
	return p, nil
}

// Search matches active persons whose name or document id contains q,
// ignoring case. At most limit results are returned (20 when limit <= 0).
func (r *Roster) Search(ctx context.Context, q string, limit int) ([]store.Person, error) {
	if limit <= 0 {
		limit = 20
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, invalid("search text is required")
	}
	all, err := r.store.ListPersons(ctx, store.PersonFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var out []store.Person
	for _, p := range all {
		if containsFold(p.FullName, q) || containsFold(p.DocumentID, q) {
			out = append(out, p)
		}
	}
	sortByName(out, func(p store.Person) string { return p.FullName }, func(p store.Person) int64 { return p.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetActive hides a person from the roster or brings them back. Persons are
// never removed.
func (r *Roster) SetActive(ctx context.Context, op Operator, id int64, active bool) error {
	if err := Authorize(op, CapRegister); err != nil {
		return err
	}
	return classify(r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		now := r.set.now()
		if err := tx.SetPersonActive(ctx, id, active, now); err != nil {
			return fmt.Errorf("person %d: %w", id, err)
		}
		_, err := tx.AppendAudit(ctx, store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditEdit,
			TargetType: store.TargetPerson,
			TargetID:   fmt.Sprint(id),
			Detail:     fmt.Sprintf("active=%t", active),
			At:         now,
		})
		return err
	}))
}
