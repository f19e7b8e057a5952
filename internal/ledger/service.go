// internal/ledger/service.go
package ledger

import "context"

// Row is one data row read back from a store: its 1-indexed position
// and its cells keyed by column label. Labels are human-chosen and not
// guaranteed to match the canonical header, so readers match them
// loosely.
type Row struct {
	Position int
	Cells    map[string]string
}

// Store is the narrow interface to the external ledger: append-only
// with update-by-position semantics. Implementations wrap a remote
// spreadsheet, a SQL table, or an in-memory table for tests.
type Store interface {
	// Append adds one data row and returns its 1-indexed position.
	Append(ctx context.Context, cells []string) (int, error)
	// Snapshot returns all data rows as they are at call time.
	Snapshot(ctx context.Context) ([]Row, error)
	// UpdateCell overwrites a single cell. Position and column are
	// 1-indexed.
	UpdateCell(ctx context.Context, position, column int, value string) error
}

// Service defines the loan ledger operations.
type Service interface {
	// OpenLoan records a new OPEN loan and returns it with its
	// assigned position.
	OpenLoan(ctx context.Context, req BorrowRequest) (LoanRecord, error)
	// CloseLoan marks the most recent open loan for the serial as
	// returned. Returns ErrNoOpenLoan if no open loan matches.
	CloseLoan(ctx context.Context, serial, returnedBy, returnRef string) (LoanRecord, error)
	// Close stops the service's writer goroutine. Pending operations
	// complete first.
	Close()
}
