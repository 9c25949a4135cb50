package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedPerson struct {
	Name       string
	DocumentID string
	Sector     string
	Shift      string
}

type SeedDevOptions struct {
	// Shift names in rotation order; one starter person is created per shift.
	ShiftNames []string
	// Extra persons to upsert by document id.
	Persons []SeedPerson
}

// SeedDev fills a development database with a small roster so the board and
// attendance reports have something to show. It is idempotent.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	people := make([]SeedPerson, 0, len(opt.ShiftNames)+len(opt.Persons))
	for i, name := range opt.ShiftNames {
		people = append(people, SeedPerson{
			Name:       fmt.Sprintf("Dev Officer %s", name),
			DocumentID: fmt.Sprintf("DEV-%04d", i+1),
			Sector:     "Gate",
			Shift:      name,
		})
	}
	people = append(people, opt.Persons...)

	for _, p := range people {
		if _, err := db.ExecContext(ctx, `
INSERT INTO persons(
  full_name, document_id, sector, shift_name, active,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
  full_name     = excluded.full_name,
  sector        = excluded.sector,
  shift_name    = excluded.shift_name,
  active        = 1,
  updated_at_ms = excluded.updated_at_ms;
`, p.Name, p.DocumentID, p.Sector, p.Shift, now, now); err != nil {
			return fmt.Errorf("seed person %s: %w", p.DocumentID, err)
		}
	}

	return nil
}
