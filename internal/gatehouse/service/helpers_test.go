package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
)

const testSecret = "correct horse battery staple"

var manaus = mustLoad("America/Manaus")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// fakeClock is a settable wall clock shared by the services under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	ctx   context.Context
	store *memory.Store
	svc   *service.Services
	clock *fakeClock
	admin service.Operator
	guard service.Operator // register only
}

func allCaps() map[service.Capability]bool {
	return map[service.Capability]bool{
		service.CapRegister:       true,
		service.CapEdit:           true,
		service.CapDelete:         true,
		service.CapClearBoard:     true,
		service.CapDefinitiveExit: true,
		service.CapReport:         true,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk, err := shift.NewClock("2025-01-01", "07:30", []string{"ALFA", "BRAVO", "CHARLIE", "DELTA"}, manaus)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testSecret), bcrypt.MinCost)
	require.NoError(t, err)
	dir, err := service.NewDirectory([]service.OperatorSpec{
		{ID: "sgt.silva", Name: "Sgt Silva", Capabilities: []string{"register", "edit", "delete", "clear_board", "definitive_exit", "report"}, SecretHash: string(hash)},
		{ID: "guard.lima", Capabilities: []string{"register"}},
	})
	require.NoError(t, err)
	admin, err := dir.Lookup("sgt.silva")
	require.NoError(t, err)
	guard, err := dir.Lookup("guard.lima")
	require.NoError(t, err)

	fc := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, manaus)}
	st := memory.New()
	svc := service.New("test", st, service.Settings{Clock: clk, Now: fc.Now}, dir, zap.NewNop())

	return &harness{ctx: context.Background(), store: st, svc: svc, clock: fc, admin: admin, guard: guard}
}

func (h *harness) addPerson(t *testing.T, name, doc, shiftName string) store.Person {
	t.Helper()
	p, err := h.svc.Roster.Add(h.ctx, h.admin, service.NewPerson{FullName: name, DocumentID: doc, Shift: shiftName})
	require.NoError(t, err)
	return p
}

func (h *harness) enter(t *testing.T, p store.Person) service.Transition {
	t.Helper()
	tr, err := h.svc.Registry.RegisterEntry(h.ctx, h.admin, service.EntryRequest{PersonID: p.ID})
	require.NoError(t, err)
	return tr
}

func (h *harness) historyCount(t *testing.T) int {
	t.Helper()
	recs, err := h.store.ListHistory(h.ctx, store.HistoryFilter{})
	require.NoError(t, err)
	return len(recs)
}

func (h *harness) auditActions(t *testing.T) []store.AuditAction {
	t.Helper()
	entries, err := h.store.ListAudit(h.ctx, store.AuditFilter{})
	require.NoError(t, err)
	out := make([]store.AuditAction, 0, len(entries))
	for _, a := range entries {
		out = append(out, a.Action)
	}
	return out
}

func longJustification() string {
	return strings.Repeat("Registro manual por falha no leitor. ", 6)
}
