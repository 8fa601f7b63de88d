package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meetpatell07/GBC-EventBooking/internal/breaker"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/outbox"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_outbox_events_published_total",
		Help: "The total number of events published to the broker",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_outbox_publish_errors_total",
		Help: "The total number of failed publish attempts",
	})
	shortCircuits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_outbox_short_circuits_total",
		Help: "The total number of publishes skipped because the breaker was open",
	})
)

// Source is the outbox table as the relay sees it.
type Source interface {
	ClaimBatch(ctx context.Context, limit int) ([]*outbox.Record, error)
	MarkPublished(ctx context.Context, seqs []int64) error
	Release(ctx context.Context, seqs []int64) error
}

// Publisher sends one envelope keyed for partition routing.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	PublishTimeout time.Duration
	// Backoff is the base for the exponential retry delay between
	// publish attempts.
	Backoff time.Duration
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
}

// Poller drains pending outbox records to the broker in creation order.
// Records are marked published only after broker acknowledgment, so a
// crash in between republishes and the consumer's dedup log absorbs it.
type Poller struct {
	source Source
	pub    Publisher
	brk    *breaker.Breaker
	log    *slog.Logger
	cfg    Config
}

func New(source Source, pub Publisher, brk *breaker.Breaker, log *slog.Logger, cfg Config) *Poller {
	cfg.withDefaults()
	return &Poller{
		source: source,
		pub:    pub,
		brk:    brk,
		log:    log,
		cfg:    cfg,
	}
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.log.Info("outbox relay started",
		"poll_interval", p.cfg.PollInterval.String(), "batch_size", p.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.ProcessBatch(ctx); err != nil {
				p.log.Error("failed to process batch", "error", err)
			}
		}
	}
}

// ProcessBatch claims one batch and publishes it. Once a record for a
// booking fails, later records for the same booking are released
// unpublished: per-booking order on the partition must hold.
func (p *Poller) ProcessBatch(ctx context.Context) error {
	records, err := p.source.ClaimBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	var publishedSeqs []int64
	var failedSeqs []int64
	failedBookings := make(map[string]bool)

	for _, rec := range records {
		if failedBookings[rec.BookingID] {
			failedSeqs = append(failedSeqs, rec.Seq)
			continue
		}

		if err := p.publish(ctx, rec); err != nil {
			p.log.Error("failed to publish outbox record",
				"event_id", rec.EventID, "booking_id", rec.BookingID, "error", err)
			publishErrors.Inc()
			failedBookings[rec.BookingID] = true
			failedSeqs = append(failedSeqs, rec.Seq)
			continue
		}

		eventsPublished.Inc()
		publishedSeqs = append(publishedSeqs, rec.Seq)
	}

	// Release before reporting a mark failure: failed records must not
	// sit in 'publishing' until a restart rescues them.
	if len(failedSeqs) > 0 {
		if err := p.source.Release(ctx, failedSeqs); err != nil {
			p.log.Error("failed to release outbox records", "error", err)
		}
	}

	if len(publishedSeqs) > 0 {
		if err := p.source.MarkPublished(ctx, publishedSeqs); err != nil {
			return err
		}
	}

	return nil
}

// publish attempts one record with bounded exponential backoff. A call
// short-circuited by the breaker is not retried here; the record goes
// back to pending and a later drain picks it up.
func (p *Poller) publish(ctx context.Context, rec *outbox.Record) error {
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * p.cfg.Backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := p.brk.Do(ctx, func(ctx context.Context) error {
			pubCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
			defer cancel()
			return p.pub.Publish(pubCtx, []byte(rec.BookingID), rec.Payload)
		}, nil)
		if err == nil {
			return nil
		}
		if errors.Is(err, breaker.ErrOpen) {
			shortCircuits.Inc()
			return err
		}
		lastErr = err
	}

	return lastErr
}
