package httpapi

import (
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// ── Outbound ─────────────────────────────────────────────────────────────────

type formatter struct {
	loc *time.Location
}

func (f formatter) ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format(time.RFC3339)
}

func (f formatter) tsPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return f.ts(*t)
}

func (f formatter) person(p store.Person) types.Person {
	return types.Person{
		ID:         p.ID,
		FullName:   p.FullName,
		DocumentID: p.DocumentID,
		Vehicle:    p.Vehicle,
		Sector:     p.Sector,
		Shift:      p.Shift,
		Active:     p.Active,
	}
}

func (f formatter) record(r store.HistoryRecord) types.Record {
	return types.Record{
		ID:                r.ID,
		PersonID:          r.PersonID,
		OperatorID:        r.OperatorID,
		Kind:              string(r.Kind),
		OccurredAt:        f.ts(r.OccurredAt),
		ManualAt:          f.tsPtr(r.ManualAt),
		EffectiveAt:       f.ts(r.EffectiveAt()),
		Justification:     r.Justification,
		Note:              r.Note,
		Flagged:           r.Flagged,
		Vehicle:           r.Vehicle,
		Sector:            r.Sector,
		ExitAt:            f.tsPtr(r.ExitAt),
		ExitOperatorID:    r.ExitOperatorID,
		ExitNote:          r.ExitNote,
		ExitManual:        r.ExitManual,
		ExitJustification: r.ExitJustification,
		PendingExit:       r.PendingExit,
		Status:            string(r.Status),
		Supersedes:        r.Supersedes,
		RevisedAt:         f.tsPtr(r.RevisedAt),
		RevisedBy:         r.RevisedBy,
	}
}

func (f formatter) records(rs []store.HistoryRecord) []types.Record {
	out := make([]types.Record, 0, len(rs))
	for _, r := range rs {
		out = append(out, f.record(r))
	}
	return out
}

func (f formatter) board(e store.BoardEntry) types.BoardEntry {
	return types.BoardEntry{
		ID:             e.ID,
		CycleID:        e.CycleID,
		HistoryID:      e.HistoryID,
		PersonID:       e.PersonID,
		OperatorID:     e.OperatorID,
		Kind:           string(e.Kind),
		EffectiveAt:    f.ts(e.EffectiveAt()),
		Note:           e.Note,
		Flagged:        e.Flagged,
		Vehicle:        e.Vehicle,
		Sector:         e.Sector,
		ExitAt:         f.tsPtr(e.ExitAt),
		ExitOperatorID: e.ExitOperatorID,
		PendingExit:    e.PendingExit,
	}
}

func (f formatter) boardList(es []store.BoardEntry) []types.BoardEntry {
	out := make([]types.BoardEntry, 0, len(es))
	for _, e := range es {
		out = append(out, f.board(e))
	}
	return out
}

func (f formatter) cycle(c store.Cycle) types.Cycle {
	return types.Cycle{
		ID:       c.ID,
		Open:     c.Open,
		OpenedAt: f.ts(c.OpenedAt),
		OpenedBy: c.OpenedBy,
		ClosedAt: f.tsPtr(c.ClosedAt),
		ClosedBy: c.ClosedBy,
	}
}

func (f formatter) transition(t service.Transition) types.TransitionResponse {
	return types.TransitionResponse{
		Record: f.record(t.Record),
		Board:  f.board(t.Board),
		Person: f.person(t.Person),
	}
}

func (f formatter) audit(as []store.AuditEntry) []types.AuditEntry {
	out := make([]types.AuditEntry, 0, len(as))
	for _, a := range as {
		out = append(out, types.AuditEntry{
			ID:         a.ID,
			ActorID:    a.ActorID,
			Action:     string(a.Action),
			TargetType: a.TargetType,
			TargetID:   a.TargetID,
			Detail:     a.Detail,
			At:         f.ts(a.At),
		})
	}
	return out
}

func (f formatter) report(r service.Report) types.Report {
	rows := make([]types.ReportRow, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, types.ReportRow{
			Ordinal:    row.Ordinal,
			PersonID:   row.PersonID,
			Name:       row.Name,
			DocumentID: row.DocumentID,
			Sector:     row.Sector,
			EntryAt:    f.tsPtr(row.EntryAt),
			Note:       row.Note,
		})
	}
	return types.Report{
		Kind:    string(r.Kind),
		Shift:   r.Shift,
		Day:     r.Day.Format(time.DateOnly),
		Rows:    rows,
		Skipped: r.Skipped,
	}
}

func (f formatter) history(p service.HistoryPage) types.HistoryResponse {
	rows := make([]types.HistoryRow, 0, len(p.Rows))
	for _, r := range p.Rows {
		rows = append(rows, types.HistoryRow{
			Record:     f.record(r.Record),
			Shift:      r.Shift,
			PersonName: r.PersonName,
			DocumentID: r.DocumentID,
		})
	}
	return types.HistoryResponse{Rows: rows, Skipped: p.Skipped}
}

func (f formatter) window(w shift.Window, now time.Time) types.ShiftWindow {
	return types.ShiftWindow{
		Name:       w.Name,
		Index:      w.Index,
		Date:       w.Date.Format(time.DateOnly),
		Start:      f.ts(w.Start),
		End:        f.ts(w.End),
		ServerTime: f.ts(now),
	}
}

// ── Inbound ──────────────────────────────────────────────────────────────────

// parseTime accepts RFC 3339, or a zone-less "2006-01-02T15:04" read in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04", s, loc)
}

func parseOptionalTime(s *string, loc *time.Location) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func editChanges(req types.EditRequest, loc *time.Location) (service.Changes, error) {
	c := service.Changes{
		Note:     req.Note,
		Flagged:  req.Flagged,
		Vehicle:  req.Vehicle,
		Sector:   req.Sector,
		ExitNote: req.ExitNote,
	}
	if req.Kind != nil {
		k := store.Kind(strings.ToUpper(strings.TrimSpace(*req.Kind)))
		c.Kind = &k
	}
	var err error
	if c.ManualAt, err = parseOptionalTime(req.ManualAt, loc); err != nil {
		return service.Changes{}, err
	}
	if c.ExitAt, err = parseOptionalTime(req.ExitAt, loc); err != nil {
		return service.Changes{}, err
	}
	return c, nil
}
