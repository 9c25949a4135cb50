package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

type History struct {
	store  store.Store
	set    Settings
	logger *zap.Logger
}

func NewHistory(st store.Store, set Settings, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{store: st, set: set.withDefaults(), logger: logger.Named("history")}
}

// HistoryQuery filters the ledger. With neither From nor To set the window
// is yesterday and today in the site zone.
type HistoryQuery struct {
	From   *time.Time
	To     *time.Time
	Person string // name or document substring, case-insensitive
	Shift  string
	// HeadsOnly drops rows that a later revision supersedes.
	HeadsOnly bool
}

type HistoryRow struct {
	Record     store.HistoryRecord
	Shift      string
	PersonName string
	DocumentID string
}

type HistoryPage struct {
	Rows    []HistoryRow
	Skipped int
}

func (h *History) Query(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	f := store.HistoryFilter{From: q.From, To: q.To}
	if f.From == nil && f.To == nil {
		loc := h.set.Clock.Location()
		n := h.set.now().In(loc)
		today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
		from, to := today.AddDate(0, 0, -1), today.AddDate(0, 0, 1)
		f.From, f.To = &from, &to
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return HistoryPage{}, invalid("from must be before to")
	}

	shiftName := ""
	if strings.TrimSpace(q.Shift) != "" {
		n, ok := h.set.Clock.Normalize(q.Shift)
		if !ok {
			return HistoryPage{}, invalid("unknown shift %q", q.Shift)
		}
		shiftName = n
	}

	if text := strings.TrimSpace(q.Person); text != "" {
		persons, err := h.store.ListPersons(ctx, store.PersonFilter{})
		if err != nil {
			return HistoryPage{}, err
		}
		f.PersonIDs = []int64{}
		for _, p := range persons {
			if containsFold(p.FullName, text) || containsFold(p.DocumentID, text) {
				f.PersonIDs = append(f.PersonIDs, p.ID)
			}
		}
	}

	recs, err := h.store.ListHistory(ctx, f)
	if err != nil {
		return HistoryPage{}, err
	}

	var page HistoryPage
	people := make(map[int64]store.Person)
	for _, rec := range recs {
		w := h.set.Clock.For(rec.EffectiveAt())
		if shiftName != "" && w.Name != shiftName {
			continue
		}
		if q.HeadsOnly {
			_, err := h.store.SuccessorOf(ctx, rec.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return HistoryPage{}, err
			}
		}
		p, ok := people[rec.PersonID]
		if !ok {
			p, err = h.store.GetPerson(ctx, rec.PersonID)
			if err != nil {
				page.Skipped++
				h.logger.Warn("history row skipped", zap.Int64("record_id", rec.ID), zap.Error(err))
				continue
			}
			people[rec.PersonID] = p
		}
		page.Rows = append(page.Rows, HistoryRow{
			Record:     rec,
			Shift:      w.Name,
			PersonName: p.FullName,
			DocumentID: p.DocumentID,
		})
	}
	return page, nil
}
