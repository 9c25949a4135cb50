package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

func reportNames(rows []service.ReportRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestAbsentees_RosterMinusPresentSortedWithOrdinals(t *testing.T) {
	h := newHarness(t)
	zeca := h.addPerson(t, "Zeca Prado", "1", "ALFA")
	h.addPerson(t, "Ana Souza", "2", "ALFA")
	h.addPerson(t, "Éder Costa", "3", "ALFA")
	bia := h.addPerson(t, "Bia Rocha", "4", "ALFA")
	h.addPerson(t, "Outro Plantão", "5", "BRAVO")
	h.addPerson(t, "Sem Plantão", "6", "")

	h.enter(t, zeca)
	h.enter(t, bia)
	_, err := h.svc.Registry.RegisterExit(h.ctx, h.admin, service.ExitRequest{PersonID: bia.ID})
	require.NoError(t, err)

	rep, err := h.svc.Reports.Absentees(h.ctx, h.admin, "alfa", time.Time{}, "")
	require.NoError(t, err)

	assert.Equal(t, "ALFA", rep.Shift)
	assert.Equal(t, []string{"Ana Souza", "Éder Costa"}, reportNames(rep.Rows))
	for i, row := range rep.Rows {
		assert.Equal(t, i+1, row.Ordinal)
	}
	assert.Zero(t, rep.Skipped)

	acts := h.auditActions(t)
	assert.Equal(t, store.AuditView, acts[len(acts)-1])
}

func TestAbsentees_OnlyEntriesDatedToday(t *testing.T) {
	h := newHarness(t)
	p := h.addPerson(t, "Ana Souza", "2", "ALFA")
	h.enter(t, p)

	h.clock.Advance(24 * time.Hour)
	rep, err := h.svc.Reports.Absentees(h.ctx, h.admin, "ALFA", time.Time{}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana Souza"}, reportNames(rep.Rows), "yesterday's entry does not count")

	yesterday := h.clock.Now().Add(-24 * time.Hour)
	rep, err = h.svc.Reports.Absentees(h.ctx, h.admin, "ALFA", yesterday, "")
	require.NoError(t, err)
	assert.Empty(t, rep.Rows)
}

func TestAbsentees_NamePrefixAndValidation(t *testing.T) {
	h := newHarness(t)
	h.addPerson(t, "Ana Souza", "2", "ALFA")
	h.addPerson(t, "Antônio Reis", "3", "ALFA")
	h.addPerson(t, "Bia Rocha", "4", "ALFA")

	rep, err := h.svc.Reports.Absentees(h.ctx, h.admin, "ALFA", time.Time{}, "an")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana Souza", "Antônio Reis"}, reportNames(rep.Rows))

	_, err = h.svc.Reports.Absentees(h.ctx, h.admin, "ECHO", time.Time{}, "")
	require.ErrorIs(t, err, service.ErrValidation)

	_, err = h.svc.Reports.Absentees(h.ctx, h.guard, "ALFA", time.Time{}, "")
	require.ErrorIs(t, err, service.ErrForbidden)
}

func TestPresentFlagged(t *testing.T) {
	h := newHarness(t)
	a := h.addPerson(t, "Carlos Melo", "1", "BRAVO")
	b := h.addPerson(t, "Ana Souza", "2", "ALFA")
	c := h.addPerson(t, "Bia Rocha", "3", "ALFA")

	for _, p := range []store.Person{a, b} {
		_, err := h.svc.Registry.RegisterEntry(h.ctx, h.admin, service.EntryRequest{PersonID: p.ID, Flagged: true, Note: "ISV"})
		require.NoError(t, err)
	}
	h.enter(t, c)

	rep, err := h.svc.Reports.PresentFlagged(h.ctx, h.admin, "ALFA", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana Souza", "Carlos Melo"}, reportNames(rep.Rows))
	assert.Equal(t, 1, rep.Rows[0].Ordinal)
	assert.Equal(t, 2, rep.Rows[1].Ordinal)
	require.NotNil(t, rep.Rows[0].EntryAt)
	assert.Equal(t, "ISV", rep.Rows[0].Note)
}

func TestPresentFlagged_SkipsRowsItCannotBuild(t *testing.T) {
	h := newHarness(t)
	a := h.addPerson(t, "Ana Souza", "2", "ALFA")
	_, err := h.svc.Registry.RegisterEntry(h.ctx, h.admin, service.EntryRequest{PersonID: a.ID, Flagged: true})
	require.NoError(t, err)

	// A person renamed to blank cannot be formatted.
	blank := h.addPerson(t, "Temp", "3", "ALFA")
	_, err = h.svc.Registry.RegisterEntry(h.ctx, h.admin, service.EntryRequest{PersonID: blank.ID, Flagged: true})
	require.NoError(t, err)
	require.NoError(t, h.store.Update(h.ctx, func(ctx context.Context, tx store.Tx) error {
		blank.FullName = " "
		return tx.UpdatePerson(ctx, blank)
	}))

	rep, err := h.svc.Reports.PresentFlagged(h.ctx, h.admin, "ALFA", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana Souza"}, reportNames(rep.Rows))
	assert.Equal(t, 1, rep.Skipped)
}
