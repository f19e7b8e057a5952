// internal/command/parser_test.go
package command

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseBorrow(t *testing.T) {
	res := Parse("borrow | person: Alice K | device: Dell XPS 13 | serial: SN-0042 | out: 2025-11-20 | back: 2025-11-22 | by: Bob")
	require.Equal(t, Borrow, res.Outcome)
	require.NotNil(t, res.Borrow)
	assert.Equal(t, "Alice K", res.Borrow.Person)
	assert.Equal(t, "Dell XPS 13", res.Borrow.Device)
	assert.Equal(t, "SN-0042", res.Borrow.Serial)
	assert.Equal(t, "2025-11-20", res.Borrow.OutDate)
	assert.Equal(t, "2025-11-22", res.Borrow.BackDate)
	assert.Equal(t, "Bob", res.Borrow.IssuedBy)
}

func TestParseReturn(t *testing.T) {
	res := Parse("return | serial: SN-0042 | by: Alice")
	require.Equal(t, Return, res.Outcome)
	require.NotNil(t, res.Return)
	assert.Equal(t, "SN-0042", res.Return.Serial)
	assert.Equal(t, "Alice", res.Return.ReturnedBy)
}

func TestParseKeywordsCaseInsensitive(t *testing.T) {
	res := Parse("BORROW | Person: a | DEVICE: b | Serial: c | OUT: 2025-01-01 | Back: 2025-01-02 | BY: d")
	require.Equal(t, Borrow, res.Outcome)
	assert.Equal(t, "a", res.Borrow.Person)

	res = Parse("Return | SERIAL: c | By: d")
	require.Equal(t, Return, res.Outcome)
}

func TestParseEmbeddedInLongerMessage(t *testing.T) {
	res := Parse("hey team, taking the spare laptop: borrow | person: Ann | device: T480 | serial: X1 | out: 2025-02-01 | back: 2025-02-03 | by: Ed")
	require.Equal(t, Borrow, res.Outcome)
	assert.Equal(t, "Ann", res.Borrow.Person)
}

func TestParseBorrowWinsOverReturn(t *testing.T) {
	text := "borrow | person: A | device: B | serial: S1 | out: 2025-01-01 | back: 2025-01-02 | by: C " +
		"and also return | serial: S1 | by: C"
	res := Parse(text)
	assert.Equal(t, Borrow, res.Outcome)
}

func TestParseMalformed(t *testing.T) {
	assert.Equal(t, MalformedBorrow, Parse("borrow please help").Outcome)
	assert.Equal(t, MalformedReturn, Parse("return the thing").Outcome)
	assert.Equal(t, MalformedBorrow, Parse("Borrow | person: A").Outcome)
}

func TestParseNotACommand(t *testing.T) {
	assert.Equal(t, NotACommand, Parse("hello there").Outcome)
	assert.Equal(t, NotACommand, Parse("").Outcome)
	assert.Equal(t, NotACommand, Parse("can someone borrow me a pen").Outcome)
}

// Any well-formed borrow command built from pipe-free field values must
// parse back to exactly those values.
func TestParseBorrowRoundTrip(t *testing.T) {
	field := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9 _.-]{0,20}`)
	rapid.Check(t, func(t *rapid.T) {
		req := BorrowRequest{
			Person:   strings.TrimSpace(field.Draw(t, "person")),
			Device:   strings.TrimSpace(field.Draw(t, "device")),
			Serial:   strings.TrimSpace(field.Draw(t, "serial")),
			OutDate:  "2025-11-20",
			BackDate: "2025-11-22",
			IssuedBy: strings.TrimSpace(field.Draw(t, "by")),
		}
		text := fmt.Sprintf("borrow | person: %s | device: %s | serial: %s | out: %s | back: %s | by: %s",
			req.Person, req.Device, req.Serial, req.OutDate, req.BackDate, req.IssuedBy)

		res := Parse(text)
		if res.Outcome != Borrow {
			t.Fatalf("outcome = %v for %q", res.Outcome, text)
		}
		if *res.Borrow != req {
			t.Fatalf("parsed %+v, want %+v", *res.Borrow, req)
		}
	})
}
