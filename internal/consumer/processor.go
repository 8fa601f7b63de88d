package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/approval"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/event"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/outbox"
)

const producerName = "approval-service"

var (
	eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approval_events_processed_total",
		Help: "The total number of booking events applied to a decision",
	})
	duplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approval_duplicate_events_total",
		Help: "The total number of redelivered events skipped by the dedup log",
	})
	deadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approval_dead_lettered_total",
		Help: "The total number of malformed envelopes routed to the dead-letter topic",
	})
	transitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approval_transition_conflicts_total",
		Help: "The total number of events rejected by the decision state machine",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "approval_processing_duration_seconds",
		Help:    "Time taken to process one booking event",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// Store is the approval database as one transactional unit per envelope.
type Store interface {
	// RunIdempotent records eventID in the dedup log and runs fn in the
	// same transaction; fn is skipped for an already-processed event.
	RunIdempotent(ctx context.Context, eventID string, fn func(ctx context.Context) error) (bool, error)
	GetDecision(ctx context.Context, bookingID string) (*approval.Decision, error)
	InsertDecision(ctx context.Context, d *approval.Decision) error
	UpdateDecision(ctx context.Context, d *approval.Decision) error
	AppendOutbox(ctx context.Context, rec *outbox.Record) error
}

// MessageSource is the broker reader with fetch and offset commit split.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DeadLetter receives envelopes that can never be processed.
type DeadLetter interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Config struct {
	MaxRetries int
	Backoff    time.Duration
}

func (c *Config) withDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
}

// Processor consumes booking events and maintains approval decisions with
// exactly-once effect over at-least-once delivery.
type Processor struct {
	source MessageSource
	store  Store
	dlq    DeadLetter
	rules  *Evaluator
	log    *slog.Logger
	cfg    Config
}

func NewProcessor(source MessageSource, store Store, dlq DeadLetter, rules *Evaluator, log *slog.Logger, cfg Config) *Processor {
	cfg.withDefaults()
	return &Processor{
		source: source,
		store:  store,
		dlq:    dlq,
		rules:  rules,
		log:    log,
		cfg:    cfg,
	}
}

// Run fetches until the context is cancelled. An envelope that keeps
// failing on infrastructure is left uncommitted and Run returns, so a
// restart redelivers it; malformed envelopes never take that path.
func (p *Processor) Run(ctx context.Context) error {
	for {
		msg, err := p.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.processWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("giving up on message at offset %d: %w", msg.Offset, err)
		}
	}
}

func (p *Processor) processWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * p.cfg.Backoff
			p.log.Info("retrying message", "attempt", attempt, "max", p.cfg.MaxRetries, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = p.Handle(ctx, msg)
		if lastErr == nil {
			return p.commit(ctx, msg)
		}
		p.log.Error("processing failed", "error", lastErr)
	}

	return lastErr
}

// commit survives shutdown: a fully-processed message must not be
// redelivered just because the context was cancelled after its
// transaction committed.
func (p *Processor) commit(ctx context.Context, msg kafka.Message) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.source.CommitMessages(commitCtx, msg); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}

// Handle applies one envelope. A nil return means the offset may be
// committed; an error means the local transaction rolled back and the
// message must be redelivered.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	started := time.Now()

	env, err := event.Decode(msg.Value)
	if err != nil {
		var de *event.DecodeError
		if errors.As(err, &de) {
			return p.deadLetter(ctx, msg, de)
		}
		return err
	}

	switch env.Type {
	case event.TypeBookingCreated, event.TypeBookingCancelled:
	default:
		// Not for us (e.g. our own ApprovalDecided results); skip.
		return nil
	}

	payload, err := event.BookingPayloadOf(env)
	if err != nil {
		var de *event.DecodeError
		if errors.As(err, &de) {
			return p.deadLetter(ctx, msg, de)
		}
		return err
	}

	ran, err := p.store.RunIdempotent(ctx, env.ID, func(txCtx context.Context) error {
		return p.apply(txCtx, env, payload)
	})
	if err != nil {
		return err
	}
	if !ran {
		duplicatesSkipped.Inc()
		p.log.Info("duplicate event skipped", "event_id", env.ID, "booking_id", payload.BookingID)
		return nil
	}

	processingDuration.Observe(time.Since(started).Seconds())
	eventsProcessed.Inc()
	return nil
}

// apply runs inside the dedup transaction.
func (p *Processor) apply(ctx context.Context, env *event.Envelope, payload *event.BookingPayload) error {
	var target, reason string
	switch env.Type {
	case event.TypeBookingCancelled:
		target, reason = approval.StatusCancelled, "booking cancelled by requester"
	default:
		target, reason = p.rules.Evaluate(payload)
	}

	now := time.Now().UTC()

	cur, err := p.store.GetDecision(ctx, payload.BookingID)
	if err != nil && !errors.Is(err, approval.ErrNotFound) {
		return err
	}

	if cur == nil {
		d := &approval.Decision{
			BookingID: payload.BookingID,
			EventID:   env.ID,
			Status:    target,
			Reason:    reason,
			DecidedAt: now,
		}
		if err := p.store.InsertDecision(ctx, d); err != nil {
			return err
		}
		p.log.Info("approval decided", "booking_id", d.BookingID, "status", d.Status, "event_id", env.ID)
		return p.emitDecision(ctx, d, now)
	}

	if !approval.CanTransition(cur.Status, target) {
		transitionConflicts.Inc()
		p.log.Warn("illegal decision transition rejected",
			"booking_id", cur.BookingID, "from", cur.Status, "to", target, "event_id", env.ID)
		return nil
	}

	cur.EventID = env.ID
	cur.Status = target
	cur.Reason = reason
	cur.DecidedAt = now
	if err := p.store.UpdateDecision(ctx, cur); err != nil {
		if errors.Is(err, approval.ErrVersionConflict) {
			transitionConflicts.Inc()
			p.log.Warn("decision version conflict, leaving decision as-is",
				"booking_id", cur.BookingID, "event_id", env.ID)
			return nil
		}
		return err
	}

	p.log.Info("approval decided", "booking_id", cur.BookingID, "status", cur.Status, "event_id", env.ID)
	return p.emitDecision(ctx, cur, now)
}

// emitDecision records an ApprovalDecided event in the same transaction
// as the decision write so the result reaches the topic through the
// relay, never through a dual write.
func (p *Processor) emitDecision(ctx context.Context, d *approval.Decision, now time.Time) error {
	payload, err := json.Marshal(event.ApprovalPayload{
		BookingID: d.BookingID,
		Status:    d.Status,
		Reason:    d.Reason,
		DecidedAt: d.DecidedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal approval payload: %w", err)
	}

	env := &event.Envelope{
		ID:            uuid.New().String(),
		Type:          event.TypeApprovalDecided,
		SchemaVersion: event.SchemaVersion,
		Producer:      producerName,
		OccurredAt:    now,
		Payload:       payload,
	}
	encoded, err := event.Encode(env)
	if err != nil {
		return err
	}

	return p.store.AppendOutbox(ctx, &outbox.Record{
		EventID:   env.ID,
		BookingID: d.BookingID,
		EventType: env.Type,
		Payload:   encoded,
		Status:    outbox.StatusPending,
		CreatedAt: now,
	})
}

// deadLetter isolates a poison message: it goes to the DLQ topic and the
// main-path offset is committed so the partition keeps moving.
func (p *Processor) deadLetter(ctx context.Context, msg kafka.Message, cause *event.DecodeError) error {
	if err := p.dlq.Publish(ctx, msg.Key, msg.Value); err != nil {
		return fmt.Errorf("publish to dead letter: %w", err)
	}
	deadLettered.Inc()
	p.log.Error("envelope routed to dead letter", "reason", cause.Reason, "partition", msg.Partition, "offset", msg.Offset)
	return nil
}
