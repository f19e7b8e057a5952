// internal/ledger/implementation.go
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Options tunes a ledger service. The zero value is usable.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// PersistTimeout bounds each call to the backing store. Defaults
	// to 15s. The external ledger has no transaction primitive, so a
	// hung call must become a persistence failure rather than block
	// the writer.
	PersistTimeout time.Duration
	// Now defaults to time.Now. Injected by tests.
	Now func() time.Time
}

// service serializes all ledger mutations through a single writer
// goroutine. Two simultaneous return commands for the same serial would
// otherwise both read the loan as open and both close it; funneling
// mutations through one owner makes the single-writer rule structural.
// Reads (snapshots for the overdue sweep) go to the store directly.
type service struct {
	store   Store
	logger  *slog.Logger
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time

	ops chan mutation

	opened metric.Int64Counter
	closed metric.Int64Counter
}

type mutation struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	errc chan error
}

// NewService creates a ledger service and starts its writer goroutine.
// Call Close to stop it.
func NewService(store Store, opts Options) Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	meter := otel.Meter("gearledger/ledger")
	opened, _ := meter.Int64Counter("ledger.loans.opened")
	closed, _ := meter.Int64Counter("ledger.loans.closed")

	s := &service{
		store:   store,
		logger:  opts.Logger,
		tracer:  otel.Tracer("gearledger/ledger"),
		timeout: opts.PersistTimeout,
		now:     opts.Now,
		ops:     make(chan mutation),
		opened:  opened,
		closed:  closed,
	}
	go s.writeLoop()
	return s
}

func (s *service) writeLoop() {
	for m := range s.ops {
		ctx, cancel := context.WithTimeout(m.ctx, s.timeout)
		m.errc <- m.run(ctx)
		cancel()
	}
}

func (s *service) Close() { close(s.ops) }

// submit hands a mutation to the writer goroutine and waits for its
// result. The error channel is buffered so an abandoned caller never
// wedges the writer.
func (s *service) submit(ctx context.Context, run func(ctx context.Context) error) error {
	m := mutation{ctx: ctx, run: run, errc: make(chan error, 1)}
	select {
	case s.ops <- m:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-m.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenLoan validates the request and appends a new OPEN record.
func (s *service) OpenLoan(ctx context.Context, req BorrowRequest) (LoanRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.open_loan",
		trace.WithAttributes(
			attribute.String("loan.serial", req.Serial),
			attribute.String("loan.device", req.Device),
		),
	)
	defer span.End()

	if req.Person == "" {
		return LoanRecord{}, ErrMissingPerson
	}
	if req.DueDate.Before(req.OutDate) {
		return LoanRecord{}, ErrDueBeforeOut
	}

	rec := LoanRecord{
		Person:    req.Person,
		Device:    req.Device,
		Serial:    req.Serial,
		OutDate:   req.OutDate,
		DueDate:   req.DueDate,
		IssuedBy:  req.IssuedBy,
		BorrowRef: req.BorrowRef,
		CreatedAt: s.now().UTC(),
	}

	err := s.submit(ctx, func(ctx context.Context) error {
		position, err := s.store.Append(ctx, encodeRecord(rec))
		if err != nil {
			return fmt.Errorf("ledger: append record: %w", err)
		}
		rec.Position = position
		return nil
	})
	if err != nil {
		return LoanRecord{}, err
	}

	s.opened.Add(ctx, 1)
	span.SetAttributes(attribute.Int("loan.position", rec.Position))
	s.logger.Info("loan opened",
		"serial", rec.Serial, "person", rec.Person, "position", rec.Position)
	return rec, nil
}

// CloseLoan resolves the serial against open loans and records the
// return. When several open loans share the serial (a data error the
// store cannot prevent), the one at the highest row position wins: the
// most recently created loan is the one a return most plausibly refers
// to. This tie-break is a policy choice, kept here in one place.
func (s *service) CloseLoan(ctx context.Context, serial, returnedBy, returnRef string) (LoanRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.close_loan",
		trace.WithAttributes(attribute.String("loan.serial", serial)),
	)
	defer span.End()

	var rec LoanRecord
	err := s.submit(ctx, func(ctx context.Context) error {
		rows, err := s.store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("ledger: snapshot: %w", err)
		}

		match := Row{}
		for _, row := range rows {
			if rowSerial(row.Cells) != serial || rowClosed(row.Cells) {
				continue
			}
			if row.Position > match.Position {
				match = row
			}
		}
		if match.Position == 0 {
			return ErrNoOpenLoan
		}

		returnedAt := s.now().UTC()
		updates := []struct {
			column int
			value  string
		}{
			{ColReturnedAt, returnedAt.Format(time.RFC3339)},
			{ColReturnedBy, returnedBy},
			{ColReturnRef, returnRef},
		}
		for _, u := range updates {
			if err := s.store.UpdateCell(ctx, match.Position, u.column, u.value); err != nil {
				return fmt.Errorf("ledger: update cell %d of row %d: %w", u.column, match.Position, err)
			}
		}

		rec = decodeRecord(match)
		rec.ReturnedAt = &returnedAt
		rec.ReturnedBy = returnedBy
		rec.ReturnRef = returnRef
		return nil
	})
	if err != nil {
		return LoanRecord{}, err
	}

	s.closed.Add(ctx, 1)
	span.SetAttributes(attribute.Int("loan.position", rec.Position))
	s.logger.Info("loan closed",
		"serial", serial, "returned_by", returnedBy, "position", rec.Position)
	return rec, nil
}
