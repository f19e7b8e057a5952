// internal/reconcile/orchestrator.go
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gearledger/internal/command"
	"gearledger/internal/dates"
	"gearledger/internal/ledger"
)

// Message is one inbound channel message, already filtered to the
// configured room and stripped of the bot's own messages.
type Message struct {
	ID     string
	Sender string
	Text   string
	// Ref is an opaque permalink to the message, recorded on the loan
	// as its borrow or return reference.
	Ref string
}

// Channel is the narrow surface the orchestrator needs from the chat
// collaborator: reply to a message and attach a reaction to it.
type Channel interface {
	Reply(ctx context.Context, msg Message, text string) error
	React(ctx context.Context, msg Message, key string) error
}

// Acknowledgment reactions, matching the original channel conventions.
const (
	ReactBorrowRecorded = "✅"
	ReactReturnRecorded = "🔁"
	ReactAttention      = "⚠️"
)

// NoOpenLoanReply is sent when a return command matches no open loan.
const NoOpenLoanReply = "I could not find an open borrow entry for this serial number."

// dueBeforeOutReply is sent when the command's dates parse but the back
// date precedes the out date.
const dueBeforeOutReply = "The back date must not be before the out date."

// Orchestrator turns one inbound message into at most one ledger
// mutation and an acknowledgment. It holds no state of its own; every
// message runs the same terminal sequence: parse, validate, persist,
// acknowledge.
type Orchestrator struct {
	ledger  ledger.Service
	channel Channel
	logger  *slog.Logger
	tracer  trace.Tracer
	handled metric.Int64Counter
}

func New(svc ledger.Service, channel Channel, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("gearledger/reconcile")
	handled, _ := meter.Int64Counter("reconcile.messages.handled")
	return &Orchestrator{
		ledger:  svc,
		channel: channel,
		logger:  logger,
		tracer:  otel.Tracer("gearledger/reconcile"),
		handled: handled,
	}
}

// HandleMessage processes one inbound message to its terminal outcome.
// It never returns an error and never panics out: one bad message must
// not block the ones behind it.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Message) {
	logger := o.logger.With("message_id", msg.ID, "reconcile_id", uuid.NewString())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message handling panicked", "panic", r)
		}
	}()

	res := command.Parse(msg.Text)
	if res.Outcome == command.NotACommand {
		return
	}

	ctx, span := o.tracer.Start(ctx, "reconcile.message",
		trace.WithAttributes(attribute.Int("command.outcome", int(res.Outcome))),
	)
	defer span.End()
	o.handled.Add(ctx, 1)

	switch res.Outcome {
	case command.MalformedBorrow:
		o.attention(ctx, logger, msg, command.BorrowHelp)
	case command.MalformedReturn:
		o.attention(ctx, logger, msg, command.ReturnHelp)
	case command.Borrow:
		o.handleBorrow(ctx, logger, msg, res.Borrow)
	case command.Return:
		o.handleReturn(ctx, logger, msg, res.Return)
	}
}

func (o *Orchestrator) handleBorrow(ctx context.Context, logger *slog.Logger, msg Message, req *command.BorrowRequest) {
	outDate, outErr := dates.ParseStrict(req.OutDate)
	dueDate, dueErr := dates.ParseStrict(req.BackDate)
	if outErr != nil || dueErr != nil {
		o.attention(ctx, logger, msg, command.DateHelp)
		return
	}

	rec, err := o.ledger.OpenLoan(ctx, ledger.BorrowRequest{
		Person:    req.Person,
		Device:    req.Device,
		Serial:    req.Serial,
		OutDate:   outDate,
		DueDate:   dueDate,
		IssuedBy:  req.IssuedBy,
		BorrowRef: msg.Ref,
	})
	switch {
	case errors.Is(err, ledger.ErrMissingPerson):
		o.attention(ctx, logger, msg, command.BorrowHelp)
	case errors.Is(err, ledger.ErrDueBeforeOut):
		o.attention(ctx, logger, msg, dueBeforeOutReply)
	case err != nil:
		// Persistence failure: no retry, the user resends the command.
		logger.Error("failed to persist borrow", "serial", req.Serial, "error", err)
		o.react(ctx, logger, msg, ReactAttention)
	default:
		logger.Info("borrow recorded", "serial", rec.Serial, "position", rec.Position)
		o.react(ctx, logger, msg, ReactBorrowRecorded)
	}
}

func (o *Orchestrator) handleReturn(ctx context.Context, logger *slog.Logger, msg Message, req *command.ReturnRequest) {
	rec, err := o.ledger.CloseLoan(ctx, req.Serial, req.ReturnedBy, msg.Ref)
	switch {
	case errors.Is(err, ledger.ErrNoOpenLoan):
		o.attention(ctx, logger, msg, NoOpenLoanReply)
	case err != nil:
		logger.Error("failed to persist return", "serial", req.Serial, "error", err)
		o.react(ctx, logger, msg, ReactAttention)
	default:
		logger.Info("return recorded", "serial", req.Serial, "position", rec.Position)
		o.react(ctx, logger, msg, ReactReturnRecorded)
	}
}

// attention replies with text and marks the message. Both deliveries
// are best-effort.
func (o *Orchestrator) attention(ctx context.Context, logger *slog.Logger, msg Message, text string) {
	if err := o.channel.Reply(ctx, msg, text); err != nil {
		logger.Warn("reply delivery failed", "error", err)
	}
	o.react(ctx, logger, msg, ReactAttention)
}

func (o *Orchestrator) react(ctx context.Context, logger *slog.Logger, msg Message, key string) {
	if err := o.channel.React(ctx, msg, key); err != nil {
		logger.Warn("reaction delivery failed", "error", err)
	}
}
