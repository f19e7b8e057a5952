// internal/command/help.go
package command

// Help texts sent back when a message starts with a command keyword but
// does not match the full pattern.
const (
	BorrowHelp = "I could not read this. Use exactly this format:\n" +
		"borrow | person: NAME | device: DEVICE | serial: SERIAL | " +
		"out: YYYY-MM-DD | back: YYYY-MM-DD | by: NAME"

	ReturnHelp = "I could not read this. Use exactly this format:\n" +
		"return | serial: SERIAL | by: NAME"

	// DateHelp is sent when the command shape is fine but a date is not
	// a strict calendar date.
	DateHelp = "Date format must be YYYY-MM-DD, for example: 2025-11-21."
)
