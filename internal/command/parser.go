// internal/command/parser.go
package command

import (
	"regexp"
	"strings"
)

// BorrowRequest carries the raw field values of a recognized borrow
// command. Dates are kept as entered; the orchestrator validates them
// against the strict calendar-date format before opening a loan.
type BorrowRequest struct {
	Person   string
	Device   string
	Serial   string
	OutDate  string
	BackDate string
	IssuedBy string
}

// ReturnRequest carries the raw field values of a recognized return
// command.
type ReturnRequest struct {
	Serial     string
	ReturnedBy string
}

// Outcome classifies a piece of channel text.
type Outcome int

const (
	// NotACommand means the text matches neither command shape and does
	// not start with a command keyword. It is ignored entirely.
	NotACommand Outcome = iota
	// Borrow and Return mean a full command pattern was recognized.
	Borrow
	Return
	// MalformedBorrow and MalformedReturn mean the text starts with a
	// command keyword but does not match the full pattern. The caller
	// should reply with the matching help text.
	MalformedBorrow
	MalformedReturn
)

// Command shapes, pipe-separated with case-insensitive keywords:
//
//	borrow | person: X | device: Y | serial: Z | out: 2025-11-20 | back: 2025-11-22 | by: K
//	return | serial: Z | by: K
//
// The patterns scan the whole message, so a command embedded in longer
// text is still recognized. Values keep their original case and are
// trimmed of surrounding whitespace.
var (
	borrowPattern = regexp.MustCompile(`(?i)borrow\s*\|\s*person:\s*([^|]+)\|` +
		`\s*device:\s*([^|]+)\|` +
		`\s*serial:\s*([^|]+)\|` +
		`\s*out:\s*([^|]+)\|` +
		`\s*back:\s*([^|]+)\|` +
		`\s*by:\s*(.+)`)

	returnPattern = regexp.MustCompile(`(?i)return\s*\|\s*serial:\s*([^|]+)\|\s*by:\s*(.+)`)
)

// Result is the outcome of parsing one message. Exactly one of Borrow
// and Return is non-nil when Outcome is Borrow or Return.
type Result struct {
	Outcome Outcome
	Borrow  *BorrowRequest
	Return  *ReturnRequest
}

// Parse classifies raw channel text. When a message contains both a
// valid borrow and a valid return pattern, borrow wins: the borrow
// pattern is evaluated first.
func Parse(text string) Result {
	if m := borrowPattern.FindStringSubmatch(text); m != nil {
		return Result{
			Outcome: Borrow,
			Borrow: &BorrowRequest{
				Person:   strings.TrimSpace(m[1]),
				Device:   strings.TrimSpace(m[2]),
				Serial:   strings.TrimSpace(m[3]),
				OutDate:  strings.TrimSpace(m[4]),
				BackDate: strings.TrimSpace(m[5]),
				IssuedBy: strings.TrimSpace(m[6]),
			},
		}
	}

	if m := returnPattern.FindStringSubmatch(text); m != nil {
		return Result{
			Outcome: Return,
			Return: &ReturnRequest{
				Serial:     strings.TrimSpace(m[1]),
				ReturnedBy: strings.TrimSpace(m[2]),
			},
		}
	}

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "borrow"):
		return Result{Outcome: MalformedBorrow}
	case strings.HasPrefix(lower, "return"):
		return Result{Outcome: MalformedReturn}
	}
	return Result{Outcome: NotACommand}
}
