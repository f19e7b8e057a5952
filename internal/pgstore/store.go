// internal/pgstore/store.go

// Package pgstore implements the ledger store on PostgreSQL for
// deployments that prefer a database over a spreadsheet. The table
// keeps the spreadsheet's shape: one text column per ledger column and
// a serial position as the row identity, so ledger semantics (append,
// snapshot, update one cell) are identical across stores.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"gearledger/internal/ledger"
)

// columnNames maps 1-indexed ledger columns to table columns, in
// ledger column order.
var columnNames = [ledger.ColumnCount]string{
	"recorded_at",
	"person",
	"device",
	"serial",
	"out_date",
	"due_date",
	"issued_by",
	"borrow_ref",
	"returned_at",
	"returned_by",
	"return_ref",
}

const schema = `
CREATE TABLE IF NOT EXISTS loans (
	position    BIGSERIAL PRIMARY KEY,
	recorded_at TEXT NOT NULL DEFAULT '',
	person      TEXT NOT NULL DEFAULT '',
	device      TEXT NOT NULL DEFAULT '',
	serial      TEXT NOT NULL DEFAULT '',
	out_date    TEXT NOT NULL DEFAULT '',
	due_date    TEXT NOT NULL DEFAULT '',
	issued_by   TEXT NOT NULL DEFAULT '',
	borrow_ref  TEXT NOT NULL DEFAULT '',
	returned_at TEXT NOT NULL DEFAULT '',
	returned_by TEXT NOT NULL DEFAULT '',
	return_ref  TEXT NOT NULL DEFAULT ''
)`

// Store implements ledger.Store on a loans table.
type Store struct {
	db *sql.DB
}

// NewStore ensures the loans table exists and returns the store.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Append(ctx context.Context, cells []string) (int, error) {
	values := make([]any, ledger.ColumnCount)
	for i := range values {
		if i < len(cells) {
			values[i] = cells[i]
		} else {
			values[i] = ""
		}
	}

	var position int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO loans (recorded_at, person, device, serial, out_date, due_date,
		                   issued_by, borrow_ref, returned_at, returned_by, return_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING position
	`, values...).Scan(&position)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return 0, fmt.Errorf("pgstore: append row: %s: %w", pqErr.Code, err)
		}
		return 0, fmt.Errorf("pgstore: append row: %w", err)
	}
	return int(position), nil
}

func (s *Store) Snapshot(ctx context.Context) ([]ledger.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, recorded_at, person, device, serial, out_date, due_date,
		       issued_by, borrow_ref, returned_at, returned_by, return_ref
		FROM loans
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query snapshot: %w", err)
	}
	defer rows.Close()

	var out []ledger.Row
	for rows.Next() {
		var position int64
		cells := make([]string, ledger.ColumnCount)
		dest := make([]any, 0, ledger.ColumnCount+1)
		dest = append(dest, &position)
		for i := range cells {
			dest = append(dest, &cells[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("pgstore: scan row: %w", err)
		}

		labelled := make(map[string]string, ledger.ColumnCount)
		for i, label := range ledger.Header {
			labelled[label] = cells[i]
		}
		out = append(out, ledger.Row{Position: int(position), Cells: labelled})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate snapshot: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateCell(ctx context.Context, position, column int, value string) error {
	if column < 1 || column > ledger.ColumnCount {
		return fmt.Errorf("pgstore: no column %d", column)
	}
	query := fmt.Sprintf("UPDATE loans SET %s = $1 WHERE position = $2", columnNames[column-1])
	result, err := s.db.ExecContext(ctx, query, value, position)
	if err != nil {
		return fmt.Errorf("pgstore: update cell: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgstore: update cell result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("pgstore: no row at position %d", position)
	}
	return nil
}
