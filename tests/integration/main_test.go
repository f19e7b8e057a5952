// tests/integration/main_test.go
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearledger/internal/ledger"
	"gearledger/internal/overdue"
	"gearledger/internal/reconcile"
)

// recordingChannel captures everything the bot would send back.
type recordingChannel struct {
	replies   []string
	reactions []string
}

func (c *recordingChannel) Reply(_ context.Context, _ reconcile.Message, text string) error {
	c.replies = append(c.replies, text)
	return nil
}

func (c *recordingChannel) React(_ context.Context, _ reconcile.Message, key string) error {
	c.reactions = append(c.reactions, key)
	return nil
}

type harness struct {
	store        *ledger.MemoryStore
	channel      *recordingChannel
	orchestrator *reconcile.Orchestrator
	scanner      *overdue.Scanner
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	store := ledger.NewMemoryStore()
	svc := ledger.NewService(store, ledger.Options{Now: func() time.Time { return now }})
	t.Cleanup(svc.Close)
	channel := &recordingChannel{}
	return &harness{
		store:        store,
		channel:      channel,
		orchestrator: reconcile.New(svc, channel, nil),
		scanner:      overdue.NewScanner(store, overdue.ScannerOptions{Now: func() time.Time { return now }}),
	}
}

func (h *harness) message(id, text string) {
	h.orchestrator.HandleMessage(context.Background(), reconcile.Message{
		ID:     id,
		Sender: "@alice:example.org",
		Text:   text,
		Ref:    "https://matrix.to/#/!room/" + id,
	})
}

func TestBorrowReturnFlow(t *testing.T) {
	h := newHarness(t, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))

	h.message("$m1", "borrow | person: Alice | device: Camera | serial: CAM-1 | out: 2025-11-20 | back: 2025-11-24 | by: Bob")
	require.Equal(t, []string{reconcile.ReactBorrowRecorded}, h.channel.reactions)

	rows, err := h.store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0].Cells["Person"])
	assert.Equal(t, "https://matrix.to/#/!room/$m1", rows[0].Cells["Borrow link"])
	assert.Empty(t, rows[0].Cells["Returned at"])

	h.message("$m2", "return | serial: CAM-1 | by: Alice")
	assert.Equal(t, []string{reconcile.ReactBorrowRecorded, reconcile.ReactReturnRecorded}, h.channel.reactions)

	rows, err = h.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rows[0].Cells["Returned at"])
	assert.Equal(t, "Alice", rows[0].Cells["Returned by"])
	assert.Equal(t, "https://matrix.to/#/!room/$m2", rows[0].Cells["Return link"])

	// A second return for the same serial finds nothing open.
	h.message("$m3", "return | serial: CAM-1 | by: Alice")
	assert.Equal(t, []string{reconcile.NoOpenLoanReply}, h.channel.replies)
	assert.Equal(t, reconcile.ReactAttention, h.channel.reactions[len(h.channel.reactions)-1])
}

func TestRepeatedBorrowsResolveToLatest(t *testing.T) {
	h := newHarness(t, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))

	h.message("$m1", "borrow | person: Alice | device: Camera | serial: CAM-1 | out: 2025-11-20 | back: 2025-11-24 | by: Bob")
	h.message("$m2", "borrow | person: Carol | device: Camera | serial: CAM-1 | out: 2025-11-20 | back: 2025-11-26 | by: Bob")
	h.message("$m3", "return | serial: CAM-1 | by: Carol")

	rows, err := h.store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Empty(t, rows[0].Cells["Returned at"], "first loan stays open")
	assert.Equal(t, "Carol", rows[1].Cells["Returned by"])
}

func TestOverdueSweepAfterLifecycle(t *testing.T) {
	h := newHarness(t, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))

	h.message("$m1", "borrow | person: Alice | device: Camera | serial: CAM-1 | out: 2025-11-20 | back: 2025-11-24 | by: Bob")
	h.message("$m2", "borrow | person: Carol | device: Tripod | serial: TRI-1 | out: 2025-11-20 | back: 2025-12-24 | by: Bob")
	h.message("$m3", "borrow | person: Dave | device: Mic | serial: MIC-1 | out: 2025-11-20 | back: 2025-11-21 | by: Bob")
	h.message("$m4", "return | serial: MIC-1 | by: Dave")

	// Evaluate well past the first due date: the open camera loan is
	// overdue, the tripod is not due yet, the returned mic is closed.
	later := overdue.NewScanner(h.store, overdue.ScannerOptions{
		Now: func() time.Time { return time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC) },
	})
	notices, err := later.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "CAM-1", notices[0].Serial)
	assert.Equal(t, "Alice", notices[0].Person)

	summary := overdue.FormatSummary(notices)
	assert.Contains(t, summary, "Camera (serial CAM-1), due back 2025-11-24")
}

func TestNoiseAndMalformedTrafficLeavesLedgerAlone(t *testing.T) {
	h := newHarness(t, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))

	h.message("$m1", "good morning everyone")
	h.message("$m2", "borrow the camera please")
	h.message("$m3", "return this thing")
	h.message("$m4", "borrow | person: Alice | device: Cam | serial: X | out: tomorrow | back: 2025-11-24 | by: Bob")

	rows, err := h.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	// One help reply per malformed message, none for plain chatter.
	assert.Len(t, h.channel.replies, 3)
}
