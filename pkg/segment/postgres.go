package segment

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGDirectory reads members from a users table with id, email, name and plan
// text columns. The table belongs to the host application.
type PGDirectory struct {
	db    Querier
	table string
}

// NewPGDirectory creates a directory over table.
func NewPGDirectory(db Querier, table string) *PGDirectory {
	if table == "" {
		table = "users"
	}
	return &PGDirectory{db: db, table: pgx.Identifier{table}.Sanitize()}
}

const memberWhere = `
WHERE (cardinality($1::text[]) = 0 OR plan = ANY($1::text[]))
  AND ($2::text = '' OR id > $2::text)`

// QueryUsers implements Directory.
func (d *PGDirectory) QueryUsers(ctx context.Context, f Filter) ([]Member, error) {
	rows, err := d.db.Query(ctx, `
SELECT id, COALESCE(email, ''), COALESCE(name, ''), COALESCE(plan, '')
FROM `+d.table+memberWhere+`
ORDER BY id
LIMIT NULLIF($3::int, 0)`, plans(f), f.After, f.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Member, error) {
		var m Member
		err := row.Scan(&m.ID, &m.Email, &m.Name, &m.Plan)
		return m, err
	})
}

// CountUsers implements Directory.
func (d *PGDirectory) CountUsers(ctx context.Context, f Filter) (int, error) {
	var n int
	err := d.db.QueryRow(ctx, `SELECT count(*) FROM `+d.table+memberWhere, plans(f), f.After).Scan(&n)
	return n, err
}

func plans(f Filter) []string {
	if f.Plans == nil {
		return []string{}
	}
	return f.Plans
}
