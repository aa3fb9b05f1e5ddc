// Package repository provides storage backends for the persistent store:
// a transactional SQL record table and a directory of JSON documents.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/storage"
)

// Placeholder styles of the supported drivers.
const (
	// DialectSQLite uses "?" placeholders.
	DialectSQLite = "sqlite"
	// DialectPostgres uses "$n" placeholders.
	DialectPostgres = "postgres"
)

// SQLRecordRepository stores every table record as one row of the records
// table, keyed by (tbl, id). A batch of mutations is one transaction.
type SQLRecordRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
	// dialect selects the placeholder style.
	dialect string
	now     func() time.Time
}

var _ storage.Backend = (*SQLRecordRepository)(nil)

// NewSQLRecordRepository creates a SQLRecordRepository using the provided *sql.DB.
// dialect is DialectSQLite or DialectPostgres and must match the driver db was opened with.
func NewSQLRecordRepository(db *sql.DB, dialect string) *SQLRecordRepository {
	return &SQLRecordRepository{DB: db, dialect: dialect, now: time.Now}
}

// Load fetches every record of a table.
//
//	ctx:   context for cancellation and deadlines
//	table: logical table name
//
// Returns the raw JSON documents keyed by id, or an error if the query or scanning fails.
func (r *SQLRecordRepository) Load(ctx context.Context, table string) (map[string][]byte, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(`SELECT id, data FROM records WHERE tbl = ?`), table)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[id] = []byte(data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	return out, nil
}

// Apply writes a batch of mutations within one transaction. Upserts replace
// the stored document; deletions remove the row.
//
//	ctx:  context for cancellation and deadlines
//	muts: record changes, applied in order
//
// Returns an error if any statement or the commit fails; nothing is written in that case.
func (r *SQLRecordRepository) Apply(ctx context.Context, muts []storage.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()
	for _, m := range muts {
		if m.Deleted() {
			_, err = tx.ExecContext(ctx, r.rebind(`
				DELETE FROM records WHERE tbl = ? AND id = ?
			`), m.Table, m.ID)
			if err != nil {
				return fmt.Errorf("delete %s/%s: %w", m.Table, m.ID, err)
			}
			continue
		}
		_, err = tx.ExecContext(ctx, r.rebind(`
			INSERT INTO records (tbl, id, data, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (tbl, id) DO UPDATE SET
				data = excluded.data,
				updated_at = excluded.updated_at
		`), m.Table, m.ID, string(m.Data), now)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", m.Table, m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebind rewrites "?" placeholders for the configured dialect.
func (r *SQLRecordRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
