// internal/overdue/scanner.go
package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gearledger/internal/dates"
	"gearledger/internal/ledger"
)

// Notice is one overdue open loan, derived from a ledger row at sweep
// time and never persisted.
type Notice struct {
	Person  string    `json:"person"`
	Device  string    `json:"device"`
	Serial  string    `json:"serial"`
	DueDate time.Time `json:"due_date"`
}

// columnMap is the resolved mapping from the snapshot's column labels
// to the semantic fields the scanner needs. The external store does not
// enforce a schema, so labels are matched against synonym keywords, but
// only once per snapshot rather than per row.
type columnMap struct {
	due      string   // due-date label; "" when none could be resolved
	person   string
	device   string
	serial   string
	status   []string // labels whose value may mark the row returned
	returned []string // "returned ..." labels; any value marks the row returned
	stamps   []string // "return" + time/date labels; any value marks the row returned
}

// resolveColumns builds the mapping from one row's label set. All rows
// of a snapshot share a header, so the first row is representative.
func resolveColumns(labels map[string]string) columnMap {
	var m columnMap
	var dueFallback string
	for label := range labels {
		lower := strings.ToLower(label)
		switch {
		case strings.Contains(lower, "back"), strings.Contains(lower, "due"):
			if m.due == "" {
				m.due = label
			}
		case strings.Contains(lower, "return date"):
			dueFallback = label
		}
		if strings.Contains(lower, "status") {
			m.status = append(m.status, label)
		}
		if strings.Contains(lower, "returned") {
			m.returned = append(m.returned, label)
		}
		if strings.Contains(lower, "return") &&
			(strings.Contains(lower, "timestamp") || strings.Contains(lower, "time") || strings.Contains(lower, "date")) {
			m.stamps = append(m.stamps, label)
		}
		if strings.Contains(lower, "person") && m.person == "" {
			m.person = label
		}
		if strings.Contains(lower, "device") && m.device == "" {
			m.device = label
		}
		if strings.Contains(lower, "serial") && m.serial == "" {
			m.serial = label
		}
	}
	if m.due == "" {
		m.due = dueFallback
	}
	// Each label serves one semantic field. A "return date" label
	// promoted to due-date column must not double as a returned
	// marker, or every row with a due date would read as closed.
	for i, label := range m.stamps {
		if label == m.due {
			m.stamps = append(m.stamps[:i], m.stamps[i+1:]...)
			break
		}
	}
	return m
}

// closed reports whether the row already carries a return under any of
// the recognized conventions: a status value of returned/done/closed, a
// non-empty "returned ..." cell, or a non-empty return timestamp/date.
func (m columnMap) closed(cells map[string]string) bool {
	for _, label := range m.status {
		switch strings.ToLower(strings.TrimSpace(cells[label])) {
		case "returned", "done", "closed":
			return true
		}
	}
	for _, label := range m.returned {
		if strings.TrimSpace(cells[label]) != "" {
			return true
		}
	}
	for _, label := range m.stamps {
		if strings.TrimSpace(cells[label]) != "" {
			return true
		}
	}
	return false
}

// Scan finds open rows whose due date is strictly before today. Rows
// whose due date cannot be located or parsed are skipped: they cannot
// be evaluated. Output keeps input order.
func Scan(rows []ledger.Row, today time.Time) []Notice {
	if len(rows) == 0 {
		return nil
	}
	m := resolveColumns(rows[0].Cells)
	if m.due == "" {
		return nil
	}

	today = dates.Civil(today)
	var notices []Notice
	for _, row := range rows {
		if m.closed(row.Cells) {
			continue
		}
		due, err := dates.Parse(row.Cells[m.due])
		if err != nil {
			continue
		}
		if !due.Before(today) {
			continue
		}
		notices = append(notices, Notice{
			Person:  strings.TrimSpace(row.Cells[m.person]),
			Device:  strings.TrimSpace(row.Cells[m.device]),
			Serial:  strings.TrimSpace(row.Cells[m.serial]),
			DueDate: due,
		})
	}
	return notices
}

// Scanner runs sweeps against a ledger store.
type Scanner struct {
	store  ledger.Store
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	found  metric.Int64Counter
}

// ScannerOptions tunes a Scanner. The zero value is usable.
type ScannerOptions struct {
	Logger *slog.Logger
	// Now defaults to time.Now; "today" for a sweep is its calendar
	// date.
	Now func() time.Time
}

func NewScanner(store ledger.Store, opts ScannerOptions) *Scanner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	meter := otel.Meter("gearledger/overdue")
	found, _ := meter.Int64Counter("overdue.notices")
	return &Scanner{
		store:  store,
		logger: opts.Logger,
		tracer: otel.Tracer("gearledger/overdue"),
		now:    opts.Now,
		found:  found,
	}
}

// Sweep takes one snapshot and evaluates it. A failed snapshot is a
// returned error, not an empty result: "the ledger is unreachable" must
// stay distinguishable from "nothing is overdue".
func (s *Scanner) Sweep(ctx context.Context) ([]Notice, error) {
	ctx, span := s.tracer.Start(ctx, "overdue.sweep")
	defer span.End()

	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("overdue: snapshot: %w", err)
	}

	notices := Scan(rows, s.now())
	s.found.Add(ctx, int64(len(notices)))
	span.SetAttributes(
		attribute.Int("sweep.rows", len(rows)),
		attribute.Int("sweep.overdue", len(notices)),
	)
	s.logger.Info("overdue sweep complete", "rows", len(rows), "overdue", len(notices))
	return notices, nil
}

// Run sweeps immediately and then on every tick until the context is
// cancelled. Sweep failures and notification failures are logged and
// the loop continues; a broken ledger must not kill the daemon.
func (s *Scanner) Run(ctx context.Context, interval time.Duration, notify func(context.Context, []Notice) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		notices, err := s.Sweep(ctx)
		switch {
		case err != nil:
			s.logger.Error("overdue sweep failed", "error", err)
		case len(notices) > 0:
			if err := notify(ctx, notices); err != nil {
				s.logger.Error("overdue notification failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FormatSummary renders one sweep's notices as a single chat message.
func FormatSummary(notices []Notice) string {
	var b strings.Builder
	b.WriteString("⚠️ Overdue loans:\n")
	for _, n := range notices {
		fmt.Fprintf(&b, "- %s: %s (serial %s), due back %s\n",
			n.Person, n.Device, n.Serial, n.DueDate.Format(dates.ISO))
	}
	return strings.TrimRight(b.String(), "\n")
}
