package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

// Reports builds attendance lists from the roster and the board. Reports
// are lenient: a row that cannot be built is logged and counted in
// Report.Skipped instead of failing the report.
type Reports struct {
	store  store.Store
	set    Settings
	logger *zap.Logger
}

func NewReports(st store.Store, set Settings, logger *zap.Logger) *Reports {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reports{store: st, set: set.withDefaults(), logger: logger.Named("reports")}
}

type ReportKind string

const (
	ReportAbsentees      ReportKind = "absentees"
	ReportPresentFlagged ReportKind = "present_flagged"
)

type ReportRow struct {
	Ordinal    int
	PersonID   int64
	Name       string
	DocumentID string
	Sector     string
	// EntryAt is set for rows backed by a board entry.
	EntryAt *time.Time
	Note    string
}

type Report struct {
	Kind    ReportKind
	Shift   string
	Day     time.Time // midnight of the report day in the site zone
	Rows    []ReportRow
	Skipped int
}

// Absentees lists the active members of shiftName with no ENTRY on the board
// dated day. namePrefix, when non-empty, narrows the roster by name prefix.
func (r *Reports) Absentees(ctx context.Context, op Operator, shiftName string, day time.Time, namePrefix string) (Report, error) {
	rep, err := r.begin(op, ReportAbsentees, shiftName, day)
	if err != nil {
		return Report{}, err
	}

	roster, err := r.store.ListPersons(ctx, store.PersonFilter{ActiveOnly: true, Shift: rep.Shift})
	if err != nil {
		return Report{}, err
	}
	board, err := r.store.ListBoard(ctx)
	if err != nil {
		return Report{}, err
	}
	present := make(map[int64]bool)
	for _, e := range board {
		if e.Kind == store.KindEntry && r.sameDay(e.EffectiveAt(), rep.Day) {
			present[e.PersonID] = true
		}
	}

	for _, p := range roster {
		if present[p.ID] {
			continue
		}
		if namePrefix != "" && !hasPrefixFold(p.FullName, namePrefix) {
			continue
		}
		row, err := personRow(p)
		if err != nil {
			r.skip(&rep, p.ID, err)
			continue
		}
		rep.Rows = append(rep.Rows, row)
	}
	return r.finish(ctx, op, rep)
}

// PresentFlagged lists board ENTRY rows dated day that carry the flag. The
// flagged are often staff from other rotations, so the list is not narrowed
// to the shift's roster; shiftName labels the report.
func (r *Reports) PresentFlagged(ctx context.Context, op Operator, shiftName string, day time.Time) (Report, error) {
	rep, err := r.begin(op, ReportPresentFlagged, shiftName, day)
	if err != nil {
		return Report{}, err
	}
	board, err := r.store.ListBoard(ctx)
	if err != nil {
		return Report{}, err
	}
	for _, e := range board {
		if e.Kind != store.KindEntry || !e.Flagged || !r.sameDay(e.EffectiveAt(), rep.Day) {
			continue
		}
		p, err := r.store.GetPerson(ctx, e.PersonID)
		if err != nil {
			r.skip(&rep, e.PersonID, fmt.Errorf("board entry %d: %w", e.ID, err))
			continue
		}
		row, err := personRow(p)
		if err != nil {
			r.skip(&rep, p.ID, err)
			continue
		}
		at := e.EffectiveAt()
		row.EntryAt = &at
		row.Note = e.Note
		if e.Sector != "" {
			row.Sector = e.Sector
		}
		rep.Rows = append(rep.Rows, row)
	}
	return r.finish(ctx, op, rep)
}

func (r *Reports) begin(op Operator, kind ReportKind, shiftName string, day time.Time) (Report, error) {
	if err := Authorize(op, CapReport); err != nil {
		return Report{}, err
	}
	name, ok := r.set.Clock.Normalize(shiftName)
	if !ok {
		return Report{}, invalid("unknown shift %q", shiftName)
	}
	if day.IsZero() {
		day = r.set.now()
	}
	loc := r.set.Clock.Location()
	d := day.In(loc)
	return Report{
		Kind:  kind,
		Shift: name,
		Day:   time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc),
	}, nil
}

// finish sorts, numbers and audits the report.
func (r *Reports) finish(ctx context.Context, op Operator, rep Report) (Report, error) {
	sortByName(rep.Rows, func(row ReportRow) string { return row.Name }, func(row ReportRow) int64 { return row.PersonID })
	for i := range rep.Rows {
		rep.Rows[i].Ordinal = i + 1
	}
	err := classify(r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AppendAudit(ctx, store.AuditEntry{
			ActorID:    op.ID,
			Action:     store.AuditView,
			TargetType: store.TargetReport,
			TargetID:   string(rep.Kind),
			Detail: fmt.Sprintf("%s report for shift %s on %s: %d rows, %d skipped",
				rep.Kind, rep.Shift, rep.Day.Format(time.DateOnly), len(rep.Rows), rep.Skipped),
			At: r.set.now(),
		})
		return err
	}))
	if err != nil {
		return Report{}, err
	}
	return rep, nil
}

func (r *Reports) sameDay(t, day time.Time) bool {
	lt := t.In(r.set.Clock.Location())
	return lt.Year() == day.Year() && lt.Month() == day.Month() && lt.Day() == day.Day()
}

func (r *Reports) skip(rep *Report, personID int64, err error) {
	rep.Skipped++
	r.logger.Warn("report row skipped",
		zap.String("report", string(rep.Kind)),
		zap.Int64("person_id", personID),
		zap.Error(err))
}

func personRow(p store.Person) (ReportRow, error) {
	if strings.TrimSpace(p.FullName) == "" {
		return ReportRow{}, fmt.Errorf("person %d has no name", p.ID)
	}
	return ReportRow{
		PersonID:   p.ID,
		Name:       p.FullName,
		DocumentID: p.DocumentID,
		Sector:     p.Sector,
	}, nil
}
