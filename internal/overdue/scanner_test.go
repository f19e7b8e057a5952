// internal/overdue/scanner_test.go
package overdue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearledger/internal/ledger"
)

func rowsFrom(cells ...map[string]string) []ledger.Row {
	rows := make([]ledger.Row, 0, len(cells))
	for i, c := range cells {
		rows = append(rows, ledger.Row{Position: i + 1, Cells: c})
	}
	return rows
}

var evalDay = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestScanFindsOpenPastDueRows(t *testing.T) {
	rows := rowsFrom(
		map[string]string{"Serial": "A1", "Back": "2020-01-01", "Returned at": ""},
		map[string]string{"Serial": "A2", "Back": "2099-01-01", "Returned at": ""},
		map[string]string{"Serial": "A3", "Back": "2020-01-01", "Returned at": "2020-06-01"},
	)

	notices := Scan(rows, evalDay)
	require.Len(t, notices, 1)
	assert.Equal(t, "A1", notices[0].Serial)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), notices[0].DueDate)
}

func TestScanDueTodayIsNotOverdue(t *testing.T) {
	rows := rowsFrom(map[string]string{"Serial": "A1", "Back": "2025-01-01", "Returned at": ""})
	assert.Empty(t, Scan(rows, evalDay))
}

func TestScanReturnedDetectionVariants(t *testing.T) {
	cases := []struct {
		name  string
		cells map[string]string
	}{
		{"status returned", map[string]string{"Serial": "A", "Due": "2020-01-01", "Status": "Returned"}},
		{"status done", map[string]string{"Serial": "A", "Due": "2020-01-01", "Loan status": "done"}},
		{"status closed", map[string]string{"Serial": "A", "Due": "2020-01-01", "status": "CLOSED"}},
		{"returned-by filled", map[string]string{"Serial": "A", "Due": "2020-01-01", "Returned by": "Bob"}},
		{"return timestamp", map[string]string{"Serial": "A", "Due": "2020-01-01", "Return timestamp": "2020-06-01T10:00:00Z"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Empty(t, Scan(rowsFrom(c.cells), evalDay))
		})
	}
}

func TestScanOpenStatusIsNotReturned(t *testing.T) {
	rows := rowsFrom(map[string]string{"Serial": "A", "Due": "2020-01-01", "Status": "out on loan"})
	assert.Len(t, Scan(rows, evalDay), 1)
}

func TestScanHeaderSynonyms(t *testing.T) {
	for _, label := range []string{"Back", "back date", "Due", "Due back", "Expected return date"} {
		rows := rowsFrom(map[string]string{"Serial": "A", label: "2020-01-01"})
		assert.Len(t, Scan(rows, evalDay), 1, label)
	}
}

func TestScanSkipsUnevaluableRows(t *testing.T) {
	// No due-date column at all.
	assert.Empty(t, Scan(rowsFrom(map[string]string{"Serial": "A", "Person": "Ann"}), evalDay))

	// Unparseable and empty due values.
	rows := rowsFrom(
		map[string]string{"Serial": "A", "Back": "next week"},
		map[string]string{"Serial": "B", "Back": ""},
		map[string]string{"Serial": "C", "Back": "01.06.2020"},
	)
	notices := Scan(rows, evalDay)
	require.Len(t, notices, 1)
	assert.Equal(t, "C", notices[0].Serial)
}

func TestScanPermissiveDateFormats(t *testing.T) {
	rows := rowsFrom(
		map[string]string{"Serial": "A", "Person": "Ann", "Device": "Cam", "Back": "20.11.2024"},
		map[string]string{"Serial": "B", "Person": "Bob", "Device": "Mic", "Back": "20/11/2024"},
	)
	notices := Scan(rows, evalDay)
	require.Len(t, notices, 2)
	assert.Equal(t, "Ann", notices[0].Person)
	assert.Equal(t, "Cam", notices[0].Device)
	assert.Equal(t, "B", notices[1].Serial)
}

type failingStore struct{}

func (failingStore) Append(context.Context, []string) (int, error) { return 0, errors.New("nope") }
func (failingStore) Snapshot(context.Context) ([]ledger.Row, error) {
	return nil, errors.New("ledger unreachable")
}
func (failingStore) UpdateCell(context.Context, int, int, string) error { return errors.New("nope") }

// A failed snapshot must be an error, never an empty "nothing overdue"
// result.
func TestSweepSurfacesSnapshotFailure(t *testing.T) {
	s := NewScanner(failingStore{}, ScannerOptions{Now: func() time.Time { return evalDay }})
	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot")
}

func TestSweepAgainstMemoryStore(t *testing.T) {
	store := ledger.NewMemoryStore()
	_, err := store.Append(context.Background(), []string{
		"2024-11-20T10:00:00Z", "Ann", "Camera", "A1", "2024-11-20", "2024-11-22", "Ed", "link", "", "", "",
	})
	require.NoError(t, err)

	s := NewScanner(store, ScannerOptions{Now: func() time.Time { return evalDay }})
	notices, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "A1", notices[0].Serial)
}

func TestFormatSummary(t *testing.T) {
	got := FormatSummary([]Notice{
		{Person: "Ann", Device: "Camera", Serial: "A1", DueDate: time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC)},
	})
	assert.Equal(t, "⚠️ Overdue loans:\n- Ann: Camera (serial A1), due back 2024-11-22", got)
}
