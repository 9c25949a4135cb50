package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "validation", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// ── Roster ───────────────────────────────────────────────────────────────────

func (s *Server) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	var req types.PersonRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := svc.Roster.Add(r.Context(), operatorFrom(r.Context()), service.NewPerson{
		FullName:   req.FullName,
		DocumentID: req.DocumentID,
		Vehicle:    req.Vehicle,
		Sector:     req.Sector,
		Shift:      req.Shift,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, s.fmt.person(p))
}

func (s *Server) handleSearchPersons(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if doc := q.Get("document_id"); doc != "" {
		p, err := svc.Roster.ByDocument(r.Context(), doc)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusOK, []types.Person{s.fmt.person(p)})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	ps, err := svc.Roster.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]types.Person, 0, len(ps))
	for _, p := range ps {
		out = append(out, s.fmt.person(p))
	}
	s.respond(w, r, http.StatusOK, out)
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, err := svc.Roster.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.person(p))
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req types.ActiveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := svc.Roster.SetActive(r.Context(), operatorFrom(r.Context()), id, req.Active); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Registry ─────────────────────────────────────────────────────────────────

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	var req types.EntryRequest
	if !s.decode(w, r, &req) {
		return
	}
	tr, err := svc.Registry.RegisterEntry(r.Context(), operatorFrom(r.Context()), service.EntryRequest{
		PersonID: req.PersonID,
		Note:     req.Note,
		Flagged:  req.Flagged,
		Vehicle:  req.Vehicle,
		Sector:   req.Sector,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, s.fmt.transition(tr))
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	var req types.ExitRequest
	if !s.decode(w, r, &req) {
		return
	}
	tr, err := svc.Registry.RegisterExit(r.Context(), operatorFrom(r.Context()), service.ExitRequest{
		PersonID: req.PersonID,
		Note:     req.Note,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.transition(tr))
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	var req types.ManualRequest
	if !s.decode(w, r, &req) {
		return
	}
	at, err := parseTime(req.At, s.clock.Location())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "validation", "at must be RFC 3339")
		return
	}
	tr, err := svc.Registry.RegisterManual(r.Context(), operatorFrom(r.Context()), service.ManualRequest{
		PersonID:      req.PersonID,
		Kind:          store.Kind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		At:            at,
		Justification: req.Justification,
		Note:          req.Note,
		Flagged:       req.Flagged,
		Vehicle:       req.Vehicle,
		Sector:        req.Sector,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, s.fmt.transition(tr))
}

func (s *Server) handleDefinitiveExit(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	var req types.DefinitiveExitRequest
	if !s.decode(w, r, &req) {
		return
	}
	tr, err := svc.Registry.RegisterDefinitiveExit(r.Context(), operatorFrom(r.Context()), service.DefinitiveExitRequest{
		Name:          req.Name,
		DocumentID:    req.DocumentID,
		Justification: req.Justification,
		Note:          req.Note,
		Sector:        req.Sector,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, s.fmt.transition(tr))
}

// ── Board ────────────────────────────────────────────────────────────────────

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	es, err := svc.Ledger.Board(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.boardList(es))
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	c, err := svc.Ledger.CurrentCycle(r.Context(), operatorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.cycle(c))
}

func (s *Server) handleClearBoard(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	var req types.ClearBoardRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := svc.Ledger.ClearBoard(r.Context(), operatorFrom(r.Context()), req.Secret)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, types.ClearBoardResponse{
		ClosedCycle: s.fmt.cycle(res.Closed),
		OpenedCycle: s.fmt.cycle(res.Opened),
		Removed:     res.Removed,
		Kept:        res.Kept,
		AuditID:     res.Audit.ID,
		Detail:      res.Audit.Detail,
	})
}

// ── Records ──────────────────────────────────────────────────────────────────

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rec, err := svc.Ledger.Record(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.record(rec))
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	recs, err := svc.Ledger.RecordLineage(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.records(recs))
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req types.EditRequest
	if !s.decode(w, r, &req) {
		return
	}
	changes, err := editChanges(req, s.clock.Location())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "validation", "timestamps must be RFC 3339")
		return
	}
	rec, err := svc.Mutation.Edit(r.Context(), operatorFrom(r.Context()), id, changes, req.Justification)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.record(rec))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req types.DeleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := svc.Mutation.Delete(r.Context(), operatorFrom(r.Context()), id, req.Justification)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.record(rec))
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	hq := service.HistoryQuery{
		Person:    q.Get("person"),
		Shift:     q.Get("shift"),
		HeadsOnly: q.Get("heads") == "1" || strings.EqualFold(q.Get("heads"), "true"),
	}
	for key, dst := range map[string]**time.Time{"from": &hq.From, "to": &hq.To} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := s.parseDayOrTime(v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "validation", key+" must be a date or RFC 3339 time")
			return
		}
		*dst = &t
	}
	page, err := svc.History.Query(r.Context(), hq)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.history(page))
}

func (s *Server) handleAbsentees(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	day, ok := s.reportDay(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	rep, err := svc.Reports.Absentees(r.Context(), operatorFrom(r.Context()), s.reportShift(q.Get("shift")), day, q.Get("prefix"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.report(rep))
}

func (s *Server) handleFlagged(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	day, ok := s.reportDay(w, r)
	if !ok {
		return
	}
	rep, err := svc.Reports.PresentFlagged(r.Context(), operatorFrom(r.Context()), s.reportShift(r.URL.Query().Get("shift")), day)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.report(rep))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.services(w, r)
	if !ok {
		return
	}
	if err := service.Authorize(operatorFrom(r.Context()), service.CapReport); err != nil {
		s.fail(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	as, err := svc.Ledger.Audit(r.Context(), store.AuditFilter{Limit: limit})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, s.fmt.audit(as))
}

// reportShift defaults to the shift on duty now.
func (s *Server) reportShift(v string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return s.clock.For(s.now()).Name
}

func (s *Server) reportDay(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("day")
	if v == "" {
		return s.now(), true
	}
	d, err := time.ParseInLocation(time.DateOnly, v, s.clock.Location())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "validation", "day must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func (s *Server) parseDayOrTime(v string) (time.Time, error) {
	if d, err := time.ParseInLocation(time.DateOnly, v, s.clock.Location()); err == nil {
		return d, nil
	}
	return parseTime(v, s.clock.Location())
}
