package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	sqlitestore "github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/sqlite"
)

// openTestDB returns an in-memory SQLite connection with the production
// PRAGMAs and schema. The connection is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the database alive while the pool reopens conns.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}
	if err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestStore wires a store over conn with its own writer; both are closed
// when the test finishes.
func newTestStore(t *testing.T, conn *sql.DB) *sqlitestore.Store {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return sqlitestore.NewStore(conn, w)
}

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func seedPerson(t *testing.T, s *sqlitestore.Store, name, doc string) store.Person {
	t.Helper()
	var p store.Person
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.CreatePerson(ctx, store.Person{FullName: name, DocumentID: doc, Shift: "ALFA", Active: true, CreatedAt: t0, UpdatedAt: t0})
		return err
	})
	if err != nil {
		t.Fatalf("seedPerson: %v", err)
	}
	return p
}

func entryFor(p store.Person, at time.Time) store.HistoryRecord {
	return store.HistoryRecord{
		PersonID:    p.ID,
		OperatorID:  "op",
		Kind:        store.KindEntry,
		OccurredAt:  at,
		PendingExit: true,
		Status:      store.StatusOriginal,
	}
}

// seedEntry appends a pending entry and its board mirror.
func seedEntry(t *testing.T, s *sqlitestore.Store, p store.Person, at time.Time) (store.HistoryRecord, store.BoardEntry) {
	t.Helper()
	var (
		rec store.HistoryRecord
		e   store.BoardEntry
	)
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		c, err := tx.EnsureCycle(ctx, "op", at)
		if err != nil {
			return err
		}
		if rec, err = tx.InsertHistory(ctx, entryFor(p, at)); err != nil {
			return err
		}
		e, err = tx.InsertBoardEntry(ctx, store.BoardEntry{CycleID: c.ID}.Mirror(rec))
		return err
	})
	if err != nil {
		t.Fatalf("seedEntry: %v", err)
	}
	return rec, e
}

func countRows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
