package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// OperatorDirectory resolves the operator id sent by the identity provider.
type OperatorDirectory interface {
	Lookup(id string) (service.Operator, error)
}

type RateLimit struct {
	PerMinute float64 // 0 = unlimited
	Burst     int
}

type Dependencies struct {
	Logger     *zap.Logger
	Addr       string
	Namespaces map[string]*service.Services
	Operators  OperatorDirectory
	Clock      shift.Clock
	RateLimit  RateLimit
	Now        func() time.Time
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	namespaces map[string]*service.Services
	operators  OperatorDirectory
	limiter    *operatorLimiter
	clock      shift.Clock
	now        func() time.Time
	fmt        formatter
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:     logger.Named("httpapi"),
		mux:        mux,
		namespaces: d.Namespaces,
		operators:  d.Operators,
		limiter:    newOperatorLimiter(d.RateLimit.PerMinute, d.RateLimit.Burst),
		clock:      d.Clock,
		now:        now,
		fmt:        formatter{loc: d.Clock.Location()},
	}

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/shift", s.handleShift)

	auth := s.authenticated
	mux.HandleFunc("POST /v1/{ns}/persons", auth(s.handleAddPerson))
	mux.HandleFunc("GET /v1/{ns}/persons", auth(s.handleSearchPersons))
	mux.HandleFunc("GET /v1/{ns}/persons/{id}", auth(s.handleGetPerson))
	mux.HandleFunc("POST /v1/{ns}/persons/{id}/active", auth(s.handleSetActive))

	mux.HandleFunc("POST /v1/{ns}/entries", auth(s.handleEntry))
	mux.HandleFunc("POST /v1/{ns}/exits", auth(s.handleExit))
	mux.HandleFunc("POST /v1/{ns}/manual", auth(s.handleManual))
	mux.HandleFunc("POST /v1/{ns}/definitive-exits", auth(s.handleDefinitiveExit))

	mux.HandleFunc("GET /v1/{ns}/board", auth(s.handleBoard))
	mux.HandleFunc("GET /v1/{ns}/board/cycle", auth(s.handleCycle))
	mux.HandleFunc("POST /v1/{ns}/board/clear", auth(s.handleClearBoard))

	mux.HandleFunc("GET /v1/{ns}/records/{id}", auth(s.handleRecord))
	mux.HandleFunc("GET /v1/{ns}/records/{id}/lineage", auth(s.handleLineage))
	mux.HandleFunc("PATCH /v1/{ns}/records/{id}", auth(s.handleEdit))
	mux.HandleFunc("DELETE /v1/{ns}/records/{id}", auth(s.handleDelete))

	mux.HandleFunc("GET /v1/{ns}/history", auth(s.handleHistory))
	mux.HandleFunc("GET /v1/{ns}/reports/absentees", auth(s.handleAbsentees))
	mux.HandleFunc("GET /v1/{ns}/reports/flagged", auth(s.handleFlagged))
	mux.HandleFunc("GET /v1/{ns}/audit", auth(s.handleAudit))

	handler := loggingMiddleware(s.logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// services resolves the {ns} path segment, writing 404 when unknown.
func (s *Server) services(w http.ResponseWriter, r *http.Request) (*service.Services, bool) {
	svc, ok := s.namespaces[r.PathValue("ns")]
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "unknown_namespace", "no such namespace")
		return nil, false
	}
	return svc, true
}

// ── Encoding ─────────────────────────────────────────────────────────────────

func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	var err error
	if isProtobuf(r) {
		err = readProto(r, dst)
	} else {
		var raw []byte
		raw, err = io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err == nil {
			err = decodeStrict(raw, dst)
		}
	}
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		pv, err := toProto(v)
		if err != nil {
			s.logger.Error("protobuf encode", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: "internal_error", Message: "unexpected server error"})
			return
		}
		writeProto(w, status, pv)
		return
	}
	writeJSON(w, status, v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	s.respond(w, r, status, types.ErrorResponse{Error: code, Message: msg})
}

// fail maps a service error onto a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		s.writeError(w, r, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, service.ErrBadSecret):
		s.writeError(w, r, http.StatusUnauthorized, "bad_secret", err.Error())
	case errors.Is(err, service.ErrForbidden):
		s.writeError(w, r, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, service.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrDuplicateEntry):
		s.writeError(w, r, http.StatusConflict, "duplicate_entry", err.Error())
	case errors.Is(err, service.ErrNoPendingEntry):
		s.writeError(w, r, http.StatusConflict, "no_pending_entry", err.Error())
	case errors.Is(err, service.ErrSuperseded):
		s.writeError(w, r, http.StatusConflict, "superseded", err.Error())
	case errors.Is(err, service.ErrConflict):
		s.writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrIntegrity):
		s.logger.Error("integrity failure", zap.String("path", r.URL.Path), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "integrity", "the operation was rolled back")
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

// ── Misc ─────────────────────────────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShift(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	at := now
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := parseTime(v, s.clock.Location())
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "validation", "at must be RFC 3339")
			return
		}
		at = t
	}
	s.respond(w, r, http.StatusOK, s.fmt.window(s.clock.For(at), now))
}
