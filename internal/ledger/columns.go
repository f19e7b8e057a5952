// internal/ledger/columns.go
package ledger

import (
	"strings"
	"time"

	"gearledger/internal/dates"
)

// Column layout written by this system, 1-indexed.
const (
	ColTimestamp = iota + 1
	ColPerson
	ColDevice
	ColSerial
	ColOutDate
	ColDueDate
	ColIssuedBy
	ColBorrowRef
	ColReturnedAt
	ColReturnedBy
	ColReturnRef

	ColumnCount = ColReturnRef
)

// Header holds the canonical column labels, in column order. Stores
// that own their schema (postgres, memory) use these labels verbatim;
// the spreadsheet may carry older human-edited variants, which readers
// tolerate.
var Header = [ColumnCount]string{
	"Timestamp",
	"Person",
	"Device",
	"Serial",
	"Out date",
	"Back date",
	"Issued by",
	"Borrow link",
	"Returned at",
	"Returned by",
	"Return link",
}

// encodeRecord renders a fresh OPEN record as a row of cells in column
// order. The three return columns stay empty until CloseLoan fills them.
func encodeRecord(rec LoanRecord) []string {
	return []string{
		rec.CreatedAt.Format(time.RFC3339),
		rec.Person,
		rec.Device,
		rec.Serial,
		rec.OutDate.Format(dates.ISO),
		rec.DueDate.Format(dates.ISO),
		rec.IssuedBy,
		rec.BorrowRef,
		"", "", "",
	}
}

// cellByKeywords returns the first cell whose label contains every
// keyword, matched case-insensitively.
func cellByKeywords(cells map[string]string, keywords ...string) (string, bool) {
	for label, value := range cells {
		lower := strings.ToLower(label)
		match := true
		for _, kw := range keywords {
			if !strings.Contains(lower, kw) {
				match = false
				break
			}
		}
		if match {
			return value, true
		}
	}
	return "", false
}

// rowSerial extracts the serial value from a loosely-labelled row.
func rowSerial(cells map[string]string) string {
	value, _ := cellByKeywords(cells, "serial")
	return strings.TrimSpace(value)
}

// rowClosed reports whether the row already carries a return: any
// "returned ..." cell with a non-empty value.
func rowClosed(cells map[string]string) bool {
	for label, value := range cells {
		if strings.Contains(strings.ToLower(label), "returned") && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

// decodeRecord rebuilds a LoanRecord from a loosely-labelled row.
// Ledger data has been written over time by humans as well as by this
// system, so dates are parsed permissively and missing cells stay zero.
func decodeRecord(row Row) LoanRecord {
	cell := func(keywords ...string) string {
		value, _ := cellByKeywords(row.Cells, keywords...)
		return strings.TrimSpace(value)
	}

	rec := LoanRecord{
		Person:    cell("person"),
		Device:    cell("device"),
		Serial:    cell("serial"),
		IssuedBy:  cell("issued"),
		BorrowRef: cell("borrow"),
		Position:  row.Position,
	}

	if v := cell("timestamp"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			rec.CreatedAt = t
		}
	}
	if v := cell("out"); v != "" {
		if t, err := dates.Parse(v); err == nil {
			rec.OutDate = t
		}
	}
	if v := cell("back"); v != "" {
		if t, err := dates.Parse(v); err == nil {
			rec.DueDate = t
		}
	}
	if v := cell("returned", "at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			rec.ReturnedAt = &t
		}
	}
	rec.ReturnedBy = cell("returned", "by")
	rec.ReturnRef = cell("return", "link")
	return rec
}
