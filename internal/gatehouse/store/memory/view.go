package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

type view struct {
	st *state
}

func (v view) GetPerson(_ context.Context, id int64) (store.Person, error) {
	p, ok := v.st.persons[id]
	if !ok {
		return store.Person{}, store.ErrNotFound
	}
	return p, nil
}

func (v view) FindPersonByDocument(_ context.Context, documentID string) (store.Person, error) {
	documentID = strings.TrimSpace(documentID)
	for _, p := range v.st.persons {
		if p.DocumentID == documentID {
			return p, nil
		}
	}
	return store.Person{}, store.ErrNotFound
}

func (v view) ListPersons(_ context.Context, f store.PersonFilter) ([]store.Person, error) {
	var out []store.Person
	for _, p := range v.st.persons {
		if f.ActiveOnly && !p.Active {
			continue
		}
		if f.Shift != "" && p.Shift != f.Shift {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) GetRecord(_ context.Context, id int64) (store.HistoryRecord, error) {
	if id < 1 || id > int64(len(v.st.history)) {
		return store.HistoryRecord{}, store.ErrNotFound
	}
	return v.st.history[id-1], nil
}

func (v view) SuccessorOf(_ context.Context, id int64) (store.HistoryRecord, error) {
	for _, r := range v.st.history {
		if r.Supersedes != nil && *r.Supersedes == id {
			return r, nil
		}
	}
	return store.HistoryRecord{}, store.ErrNotFound
}

func (v view) ListHistory(_ context.Context, f store.HistoryFilter) ([]store.HistoryRecord, error) {
	var wanted map[int64]bool
	if f.PersonIDs != nil {
		wanted = make(map[int64]bool, len(f.PersonIDs))
		for _, id := range f.PersonIDs {
			wanted[id] = true
		}
	}

	var out []store.HistoryRecord
	for _, r := range v.st.history {
		at := r.EffectiveAt()
		if f.From != nil && at.Before(*f.From) {
			continue
		}
		if f.To != nil && !at.Before(*f.To) {
			continue
		}
		if wanted != nil && !wanted[r.PersonID] {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.EffectiveAt().Equal(b.EffectiveAt()) {
			return a.EffectiveAt().Before(b.EffectiveAt())
		}
		ra, rb := revisedMs(a), revisedMs(b)
		if ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
	return out, nil
}

func revisedMs(r store.HistoryRecord) int64 {
	if r.RevisedAt == nil {
		return 0
	}
	return r.RevisedAt.UnixMilli()
}

func (v view) OpenCycle(_ context.Context) (store.Cycle, error) {
	for _, c := range v.st.cycles {
		if c.Open {
			return c, nil
		}
	}
	return store.Cycle{}, store.ErrNotFound
}

func (v view) ListBoard(ctx context.Context) ([]store.BoardEntry, error) {
	c, err := v.OpenCycle(ctx)
	if err != nil {
		return nil, nil
	}
	var out []store.BoardEntry
	for _, e := range v.st.board {
		if e.CycleID == c.ID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveAt().Equal(out[j].EffectiveAt()) {
			return out[i].EffectiveAt().Before(out[j].EffectiveAt())
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) BoardEntryFor(_ context.Context, historyID int64) (store.BoardEntry, error) {
	for _, e := range v.st.board {
		if e.HistoryID == historyID {
			return e, nil
		}
	}
	return store.BoardEntry{}, store.ErrNotFound
}

func (v view) PendingEntry(_ context.Context, personID int64) (store.BoardEntry, error) {
	for _, e := range v.st.board {
		if e.PersonID == personID && e.PendingExit {
			return e, nil
		}
	}
	return store.BoardEntry{}, store.ErrNoPending
}

func (v view) ListAudit(_ context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	var out []store.AuditEntry
	for _, a := range v.st.audit {
		if f.Since != nil && a.At.Before(*f.Since) {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
