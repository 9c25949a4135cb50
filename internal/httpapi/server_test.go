package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/httpapi"
)

const secret = "s3nha-forte"

type fixture struct {
	ts  *httptest.Server
	now time.Time
}

// newTestServer wires both namespaces over in-memory stores and returns an
// httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, limit httpapi.RateLimit) *fixture {
	t.Helper()

	loc, err := time.LoadLocation("America/Manaus")
	require.NoError(t, err)
	clk, err := shift.NewClock("2025-01-01", "07:30", []string{"ALFA", "BRAVO", "CHARLIE", "DELTA"}, loc)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	dir, err := service.NewDirectory([]service.OperatorSpec{
		{ID: "chief", Capabilities: []string{"register", "edit", "delete", "clear_board", "definitive_exit", "report"}, SecretHash: string(hash)},
		{ID: "guard", Capabilities: []string{"register"}},
	})
	require.NoError(t, err)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)
	nowFn := func() time.Time { return now }
	set := service.Settings{Clock: clk, Now: nowFn}
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: zap.NewNop(),
		Addr:   ":0",
		Namespaces: map[string]*service.Services{
			"production": service.New("production", memory.New(), set, dir, zap.NewNop()),
			"training":   service.New("training", memory.New(), set, dir, zap.NewNop()),
		},
		Operators: dir,
		Clock:     clk,
		RateLimit: limit,
		Now:       nowFn,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, now: now}
}

func (f *fixture) do(t *testing.T, method, path, operator string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if operator != "" {
		req.Header.Set("X-Operator-ID", operator)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeInto[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) addPerson(t *testing.T, ns, name, doc, shiftName string) types.Person {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/v1/"+ns+"/persons", "chief", types.PersonRequest{FullName: name, DocumentID: doc, Shift: shiftName})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeInto[types.Person](t, resp)
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestEntryExit_Lifecycle(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})
	p := f.addPerson(t, "production", "Ana Souza", "111", "ALFA")

	resp := f.do(t, http.MethodPost, "/v1/production/entries", "guard", types.EntryRequest{PersonID: p.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := decodeInto[types.TransitionResponse](t, resp)
	assert.True(t, entry.Record.PendingExit)
	assert.Equal(t, "ORIGINAL", entry.Record.Status)

	resp = f.do(t, http.MethodPost, "/v1/production/entries", "guard", types.EntryRequest{PersonID: p.ID})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_entry", decodeInto[types.ErrorResponse](t, resp).Error)

	resp = f.do(t, http.MethodPost, "/v1/production/exits", "guard", types.ExitRequest{PersonID: p.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exit := decodeInto[types.TransitionResponse](t, resp)
	assert.Equal(t, entry.Record.ID, exit.Record.ID)
	assert.False(t, exit.Record.PendingExit)

	resp = f.do(t, http.MethodPost, "/v1/production/exits", "guard", types.ExitRequest{PersonID: p.ID})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "no_pending_entry", decodeInto[types.ErrorResponse](t, resp).Error)
}

func TestNamespacesAreIndependent(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})
	p := f.addPerson(t, "training", "Ana Souza", "111", "ALFA")

	resp := f.do(t, http.MethodPost, "/v1/training/entries", "guard", types.EntryRequest{PersonID: p.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/production/board", "guard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeInto[[]types.BoardEntry](t, resp))

	resp = f.do(t, http.MethodGet, "/v1/staging/board", "guard", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOperatorResolution(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})

	resp := f.do(t, http.MethodGet, "/v1/production/board", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/production/board", "intruder", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/production/reports/absentees?shift=ALFA", "guard", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBadBody_400(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/v1/production/entries", bytes.NewReader([]byte(`not json at all`)))
	require.NoError(t, err)
	req.Header.Set("X-Operator-ID", "guard")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := f.do(t, http.MethodPost, "/v1/production/entries", "guard", map[string]any{"person_id": 1, "surprise": true})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode, "unknown fields are rejected")
}

// ── Mutation ─────────────────────────────────────────────────────────────────

func TestEditAndDelete(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})
	p := f.addPerson(t, "production", "Ana Souza", "111", "ALFA")
	resp := f.do(t, http.MethodPost, "/v1/production/entries", "guard", types.EntryRequest{PersonID: p.ID})
	entry := decodeInto[types.TransitionResponse](t, resp)
	path := "/v1/production/records/" + itoa(entry.Record.ID)

	note := "corrigido"
	resp = f.do(t, http.MethodPatch, path, "chief", types.EditRequest{Note: &note})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "justification is mandatory")

	resp = f.do(t, http.MethodPatch, path, "guard", types.EditRequest{Note: &note, Justification: "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPatch, path, "chief", types.EditRequest{Note: &note, Justification: "erro de digitação"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rev := decodeInto[types.Record](t, resp)
	assert.Equal(t, "EDITED", rev.Status)
	require.NotNil(t, rev.Supersedes)
	assert.Equal(t, entry.Record.ID, *rev.Supersedes)

	resp = f.do(t, http.MethodDelete, path, "chief", types.DeleteRequest{Justification: "de novo"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "only the lineage head can be deleted")

	resp = f.do(t, http.MethodDelete, "/v1/production/records/"+itoa(rev.ID), "chief", types.DeleteRequest{Justification: "duplicado"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DELETED", decodeInto[types.Record](t, resp).Status)

	resp = f.do(t, http.MethodGet, path+"/lineage", "guard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[[]types.Record](t, resp), 3)

	resp = f.do(t, http.MethodGet, "/v1/production/records/9999", "guard", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClearBoard(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})
	a := f.addPerson(t, "production", "Ana Souza", "111", "ALFA")
	b := f.addPerson(t, "production", "Bia Rocha", "222", "ALFA")
	for _, p := range []types.Person{a, b} {
		resp := f.do(t, http.MethodPost, "/v1/production/entries", "guard", types.EntryRequest{PersonID: p.ID})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := f.do(t, http.MethodPost, "/v1/production/exits", "guard", types.ExitRequest{PersonID: a.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/production/board/clear", "chief", types.ClearBoardRequest{Secret: "errada"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/production/board/clear", "chief", types.ClearBoardRequest{Secret: secret})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeInto[types.ClearBoardResponse](t, resp)
	assert.EqualValues(t, 1, res.Removed)
	assert.Equal(t, 1, res.Kept)
	assert.True(t, res.OpenedCycle.Open)

	resp = f.do(t, http.MethodGet, "/v1/production/board", "guard", nil)
	board := decodeInto[[]types.BoardEntry](t, resp)
	require.Len(t, board, 1)
	assert.Equal(t, b.ID, board[0].PersonID)
}

// ── Queries ──────────────────────────────────────────────────────────────────

func TestShiftEndpoint(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})

	resp := f.do(t, http.MethodGet, "/v1/shift?at=2025-01-02T07:00:00-04:00", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	w := decodeInto[types.ShiftWindow](t, resp)
	assert.Equal(t, "ALFA", w.Name)
	assert.Equal(t, "2025-01-01T07:30:00-04:00", w.Start)
	assert.Equal(t, "2025-01-02T07:30:00-04:00", w.End)

	resp = f.do(t, http.MethodGet, "/v1/shift?at=2025-01-05T08:00:00-04:00", "", nil)
	assert.Equal(t, "ALFA", decodeInto[types.ShiftWindow](t, resp).Name)

	resp = f.do(t, http.MethodGet, "/v1/shift?at=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAbsenteesReport(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})
	a := f.addPerson(t, "production", "Zeca Prado", "1", "ALFA")
	f.addPerson(t, "production", "Bia Rocha", "2", "ALFA")
	f.addPerson(t, "production", "Ana Souza", "3", "ALFA")
	resp := f.do(t, http.MethodPost, "/v1/production/entries", "guard", types.EntryRequest{PersonID: a.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/production/reports/absentees?shift=alfa&day=2025-03-10", "chief", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decodeInto[types.Report](t, resp)
	assert.Equal(t, "ALFA", rep.Shift)
	assert.Equal(t, "2025-03-10", rep.Day)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "Ana Souza", rep.Rows[0].Name)
	assert.Equal(t, 1, rep.Rows[0].Ordinal)
	assert.Equal(t, "Bia Rocha", rep.Rows[1].Name)
	assert.Equal(t, 2, rep.Rows[1].Ordinal)

	resp = f.do(t, http.MethodGet, "/v1/production/audit", "chief", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	audit := decodeInto[[]types.AuditEntry](t, resp)
	require.NotEmpty(t, audit)
	assert.Equal(t, "VIEW", audit[len(audit)-1].Action)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})
	p := f.addPerson(t, "production", "Ana Souza", "111", "ALFA")
	resp := f.do(t, http.MethodPost, "/v1/production/entries", "guard", types.EntryRequest{PersonID: p.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/v1/production/history?from=2025-03-10&to=2025-03-11&person=souza", "guard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decodeInto[types.HistoryResponse](t, resp)
	require.Len(t, h.Rows, 1)
	assert.Equal(t, "ALFA", h.Rows[0].Shift)
	assert.Equal(t, "Ana Souza", h.Rows[0].PersonName)

	resp = f.do(t, http.MethodGet, "/v1/production/history?from=garbage", "guard", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ── Transport extras ─────────────────────────────────────────────────────────

func TestProtobufEnvelope(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{})
	p := f.addPerson(t, "production", "Ana Souza", "111", "ALFA")

	body, err := structpb.NewStruct(map[string]any{"person_id": float64(p.ID), "note": "via proto"})
	require.NoError(t, err)
	raw, err := proto.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/v1/production/entries", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Accept", "application/x-protobuf")
	req.Header.Set("X-Operator-ID", "guard")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var v structpb.Value
	require.NoError(t, proto.Unmarshal(out, &v))
	rec := v.GetStructValue().GetFields()["record"].GetStructValue().GetFields()
	assert.Equal(t, "via proto", rec["note"].GetStringValue())
	assert.True(t, rec["pending_exit"].GetBoolValue())
}

func TestRateLimitPerOperator(t *testing.T) {
	f := newTestServer(t, httpapi.RateLimit{PerMinute: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodPost, "/v1/production/exits", "guard", types.ExitRequest{PersonID: 1})
		assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
	}
	resp := f.do(t, http.MethodPost, "/v1/production/exits", "guard", types.ExitRequest{PersonID: 1})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Reads and other operators are not throttled.
	resp = f.do(t, http.MethodGet, "/v1/production/board", "guard", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/v1/production/exits", "chief", types.ExitRequest{PersonID: 1})
	assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
