// internal/dates/dates.go
package dates

import (
	"errors"
	"strings"
	"time"
)

// ErrUnparseable is returned when a value matches none of the accepted
// date formats.
var ErrUnparseable = errors.New("dates: unparseable date")

// ISO is the canonical calendar-date layout. Borrow commands must use it;
// Normalize emits it.
const ISO = "2006-01-02"

// ledgerLayouts is the ordered list of layouts accepted when reading
// dates back out of the ledger. Humans have edited that data over time,
// so day-first dot and slash forms are accepted after ISO.
var ledgerLayouts = []string{ISO, "02.01.2006", "02/01/2006"}

// ParseStrict parses an ISO calendar date. This is the only format
// accepted on inbound borrow commands, so confirmations are unambiguous.
func ParseStrict(value string) (time.Time, error) {
	t, err := time.Parse(ISO, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrUnparseable
	}
	return t, nil
}

// Parse tries each accepted ledger layout in order and returns the first
// successful parse as a date at midnight UTC.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range ledgerLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseable
}

// Normalize parses permissively and re-renders the date in ISO form.
func Normalize(value string) (string, error) {
	t, err := Parse(value)
	if err != nil {
		return "", err
	}
	return t.Format(ISO), nil
}

// Civil truncates a timestamp to its calendar date (midnight UTC),
// keeping the year, month and day as observed in t's location. Used to
// compare due dates against "today".
func Civil(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
