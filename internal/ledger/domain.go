// internal/ledger/domain.go
package ledger

import (
	"errors"
	"time"
)

var (
	// ErrNoOpenLoan means no open loan exists for the requested serial.
	ErrNoOpenLoan = errors.New("ledger: no open loan for serial")
	// ErrMissingPerson means the borrow request has an empty person field.
	ErrMissingPerson = errors.New("ledger: person is required")
	// ErrDueBeforeOut means the back date precedes the out date.
	ErrDueBeforeOut = errors.New("ledger: back date before out date")
)

// LoanRecord represents one borrow transaction. A record is OPEN while
// ReturnedAt is nil and CLOSED afterwards. Closed records are never
// edited again; the ledger is append-only and records are never deleted
// by this system.
type LoanRecord struct {
	Person    string    `json:"person"`
	Device    string    `json:"device"`
	Serial    string    `json:"serial"`
	OutDate   time.Time `json:"out_date"`
	DueDate   time.Time `json:"due_date"`
	IssuedBy  string    `json:"issued_by"`
	BorrowRef string    `json:"borrow_ref"`
	CreatedAt time.Time `json:"created_at"`

	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	ReturnedBy string     `json:"returned_by,omitempty"`
	ReturnRef  string     `json:"return_ref,omitempty"`

	// Position is the 1-indexed data row in the backing store.
	// Zero until the record has been persisted.
	Position int `json:"position,omitempty"`
}

// Open reports whether the loan has no recorded return.
func (r LoanRecord) Open() bool { return r.ReturnedAt == nil }

// BorrowRequest is a validated borrow command: dates already parsed,
// values trimmed. It produces a new OPEN LoanRecord.
type BorrowRequest struct {
	Person    string
	Device    string
	Serial    string
	OutDate   time.Time
	DueDate   time.Time
	IssuedBy  string
	BorrowRef string
}
