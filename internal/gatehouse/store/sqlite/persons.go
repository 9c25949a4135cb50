package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

const personColumns = `person_id, full_name, document_id, vehicle, sector, shift_name, active, created_at_ms, updated_at_ms`

func scanPerson(row interface{ Scan(...any) error }) (store.Person, error) {
	var (
		p                  store.Person
		active             int
		createdMs, updated int64
	)
	if err := row.Scan(&p.ID, &p.FullName, &p.DocumentID, &p.Vehicle, &p.Sector, &p.Shift, &active, &createdMs, &updated); err != nil {
		return store.Person{}, err
	}
	p.Active = active == 1
	p.CreatedAt = fromMs(createdMs)
	p.UpdatedAt = fromMs(updated)
	return p, nil
}

func (r reader) GetPerson(ctx context.Context, id int64) (store.Person, error) {
	p, err := scanPerson(r.q.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE person_id = ?;`, id))
	if isNoRows(err) {
		return store.Person{}, store.ErrNotFound
	}
	if err != nil {
		return store.Person{}, fmt.Errorf("GetPerson: %w", err)
	}
	return p, nil
}

func (r reader) FindPersonByDocument(ctx context.Context, documentID string) (store.Person, error) {
	p, err := scanPerson(r.q.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE document_id = ?;`, strings.TrimSpace(documentID)))
	if isNoRows(err) {
		return store.Person{}, store.ErrNotFound
	}
	if err != nil {
		return store.Person{}, fmt.Errorf("FindPersonByDocument: %w", err)
	}
	return p, nil
}

func (r reader) ListPersons(ctx context.Context, f store.PersonFilter) ([]store.Person, error) {
	q := `SELECT ` + personColumns + ` FROM persons WHERE 1 = 1`
	var args []any
	if f.ActiveOnly {
		q += ` AND active = 1`
	}
	if f.Shift != "" {
		q += ` AND shift_name = ?`
		args = append(args, f.Shift)
	}
	q += ` ORDER BY full_name, person_id;`

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListPersons: %w", err)
	}
	defer rows.Close()

	var out []store.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPersons scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txStore) CreatePerson(ctx context.Context, p store.Person) (store.Person, error) {
	now := p.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO persons(
  full_name, document_id, vehicle, sector, shift_name, active,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, p.FullName, p.DocumentID, p.Vehicle, p.Sector, p.Shift, boolInt(p.Active), toMs(now), toMs(now))
	if uniqueViolation(err, "persons.document_id") {
		return store.Person{}, store.ErrDuplicateDocument
	}
	if err != nil {
		return store.Person{}, fmt.Errorf("CreatePerson: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Person{}, fmt.Errorf("CreatePerson id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now.UTC()
	p.UpdatedAt = now.UTC()
	return p, nil
}

func (t *txStore) SetPersonActive(ctx context.Context, id int64, active bool, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE persons SET active = ?, updated_at_ms = ? WHERE person_id = ?;
`, boolInt(active), toMs(at), id)
	if err != nil {
		return fmt.Errorf("SetPersonActive: %w", err)
	}
	return expectOne(res, "SetPersonActive")
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *txStore) UpdatePerson(ctx context.Context, p store.Person) error {
	at := p.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE persons SET
  full_name = ?, vehicle = ?, sector = ?, shift_name = ?, active = ?, updated_at_ms = ?
WHERE person_id = ?;
`, p.FullName, p.Vehicle, p.Sector, p.Shift, boolInt(p.Active), toMs(at), p.ID)
	if err != nil {
		return fmt.Errorf("UpdatePerson: %w", err)
	}
	return expectOne(res, "UpdatePerson")
}
