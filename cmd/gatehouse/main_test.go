package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/gatehouse/internal/config"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestShiftCommand(t *testing.T) {
	cfg := writeConfig(t, "time_zone: America/Manaus\nlog_level: error\n")

	out, err := execute(t, "", "shift", "--config", cfg, "--at", "2025-01-02T07:00:00-04:00")
	require.NoError(t, err)
	assert.Equal(t, "ALFA  2025-01-01T07:30:00-04:00 -> 2025-01-02T07:30:00-04:00\n", out)

	_, err = execute(t, "", "shift", "--config", cfg, "--at", "tomorrow")
	assert.Error(t, err)
}

func TestHashSecretCommand(t *testing.T) {
	out, err := execute(t, "correct horse\n", "hash-secret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))

	_, err = execute(t, "\n", "hash-secret")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gh.db")
	cfg := writeConfig(t, "log_level: error\ndb_path: "+dbPath+"\n")

	out, err := execute(t, "", "migrate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")

	_, err = execute(t, "", "migrate", "--config", cfg, "--training")
	assert.ErrorContains(t, err, "training_db_path")
}

func TestBadConfigIsRejected(t *testing.T) {
	cfg := writeConfig(t, "no_such_key: 1\n")
	_, err := execute(t, "", "shift", "--config", cfg)
	assert.Error(t, err)
}

func TestOverdueNotifiers_OnePerNamespace(t *testing.T) {
	clk, err := shift.NewClock("2025-01-01", "07:30", []string{"ALFA", "BRAVO", "CHARLIE", "DELTA"}, time.UTC)
	require.NoError(t, err)
	entered := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	set := service.Settings{Clock: clk, Now: func() time.Time { return entered }}
	namespaces := map[string]*service.Services{
		"production": service.New("production", memory.New(), set, nil, zap.NewNop()),
		"training":   service.New("training", memory.New(), set, nil, zap.NewNop()),
	}

	op := service.Operator{ID: "op", Capabilities: map[service.Capability]bool{service.CapRegister: true}}
	ctx := context.Background()
	p, err := namespaces["training"].Roster.Add(ctx, op, service.NewPerson{FullName: "Ana Souza", DocumentID: "111"})
	require.NoError(t, err)
	_, err = namespaces["training"].Registry.RegisterEntry(ctx, op, service.EntryRequest{PersonID: p.ID})
	require.NoError(t, err)

	later := func() time.Time { return entered.Add(11 * time.Hour) }
	ns := overdueNotifiers(namespaces, config.Overdue{Threshold: 10 * time.Hour}, later, zap.NewNop())
	require.Len(t, ns, 2)

	found, err := ns["training"].Scan(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].Entry.PersonID)

	found, err = ns["production"].Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, found)
}
