package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/approval"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/event"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/outbox"
)

type fakeStore struct {
	processed map[string]bool
	decisions map[string]*approval.Decision
	outbox    []*outbox.Record

	failRun    error
	failUpdate error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		processed: map[string]bool{},
		decisions: map[string]*approval.Decision{},
	}
}

func (s *fakeStore) RunIdempotent(ctx context.Context, eventID string, fn func(ctx context.Context) error) (bool, error) {
	if s.failRun != nil {
		return false, s.failRun
	}
	if s.processed[eventID] {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		return false, err
	}
	s.processed[eventID] = true
	return true, nil
}

func (s *fakeStore) GetDecision(ctx context.Context, bookingID string) (*approval.Decision, error) {
	d, ok := s.decisions[bookingID]
	if !ok {
		return nil, approval.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStore) InsertDecision(ctx context.Context, d *approval.Decision) error {
	d.Version = 1
	cp := *d
	s.decisions[d.BookingID] = &cp
	return nil
}

func (s *fakeStore) UpdateDecision(ctx context.Context, d *approval.Decision) error {
	if s.failUpdate != nil {
		return s.failUpdate
	}
	d.Version++
	cp := *d
	s.decisions[d.BookingID] = &cp
	return nil
}

func (s *fakeStore) AppendOutbox(ctx context.Context, rec *outbox.Record) error {
	s.outbox = append(s.outbox, rec)
	return nil
}

type fakeDLQ struct {
	published [][]byte
	fail      error
}

func (d *fakeDLQ) Publish(ctx context.Context, key, value []byte) error {
	if d.fail != nil {
		return d.fail
	}
	d.published = append(d.published, value)
	return nil
}

func newTestProcessor(store Store, dlq DeadLetter) *Processor {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProcessor(nil, store, dlq, NewEvaluator(RulesConfig{}), log, Config{})
}

func bookingMessage(t *testing.T, eventID, eventType string, p event.BookingPayload) kafka.Message {
	t.Helper()

	payload, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	value, err := event.Encode(&event.Envelope{
		ID:            eventID,
		Type:          eventType,
		SchemaVersion: event.SchemaVersion,
		Producer:      "booking-service",
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Key: []byte(p.BookingID), Value: value}
}

func TestHandleCreatesDecisionAndEmitsResult(t *testing.T) {
	store := newFakeStore()
	proc := newTestProcessor(store, &fakeDLQ{})

	msg := bookingMessage(t, "ev-1", event.TypeBookingCreated, *basePayload())
	if err := proc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	d, ok := store.decisions["b-1"]
	if !ok {
		t.Fatal("no decision written")
	}
	if d.Status != approval.StatusApproved {
		t.Fatalf("status = %q, want %q", d.Status, approval.StatusApproved)
	}
	if d.EventID != "ev-1" {
		t.Fatalf("decision event id = %q, want ev-1", d.EventID)
	}

	if len(store.outbox) != 1 {
		t.Fatalf("outbox records = %d, want 1", len(store.outbox))
	}
	rec := store.outbox[0]
	if rec.EventType != event.TypeApprovalDecided {
		t.Fatalf("outbox event type = %q", rec.EventType)
	}
	env, err := event.Decode(rec.Payload)
	if err != nil {
		t.Fatalf("decode emitted envelope: %v", err)
	}
	var ap event.ApprovalPayload
	if err := json.Unmarshal(env.Payload, &ap); err != nil {
		t.Fatal(err)
	}
	if ap.BookingID != "b-1" || ap.Status != approval.StatusApproved {
		t.Fatalf("emitted payload = %+v", ap)
	}
}

func TestHandleDuplicateDeliveryIsIdempotent(t *testing.T) {
	store := newFakeStore()
	proc := newTestProcessor(store, &fakeDLQ{})

	msg := bookingMessage(t, "ev-1", event.TypeBookingCreated, *basePayload())
	for i := 0; i < 3; i++ {
		if err := proc.Handle(context.Background(), msg); err != nil {
			t.Fatalf("Handle #%d: %v", i+1, err)
		}
	}

	if got := store.decisions["b-1"].Version; got != 1 {
		t.Fatalf("decision version = %d, want 1 (state re-applied on redelivery)", got)
	}
	if len(store.outbox) != 1 {
		t.Fatalf("outbox records = %d, want 1", len(store.outbox))
	}
}

func TestHandleTerminalDecisionDoesNotRegress(t *testing.T) {
	store := newFakeStore()
	store.decisions["b-1"] = &approval.Decision{
		BookingID: "b-1",
		EventID:   "ev-0",
		Status:    approval.StatusCancelled,
		Version:   2,
	}
	proc := newTestProcessor(store, &fakeDLQ{})

	// A late BookingCreated retry arrives after cancellation.
	msg := bookingMessage(t, "ev-9", event.TypeBookingCreated, *basePayload())
	if err := proc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	d := store.decisions["b-1"]
	if d.Status != approval.StatusCancelled || d.Version != 2 {
		t.Fatalf("decision changed to %+v", d)
	}
	if len(store.outbox) != 0 {
		t.Fatal("conflicting event must not emit a decision")
	}
	if !store.processed["ev-9"] {
		t.Fatal("conflicting event must still be marked processed")
	}
}

func TestHandleCancellationOverridesApproval(t *testing.T) {
	store := newFakeStore()
	proc := newTestProcessor(store, &fakeDLQ{})

	created := bookingMessage(t, "ev-1", event.TypeBookingCreated, *basePayload())
	cancelled := bookingMessage(t, "ev-2", event.TypeBookingCancelled, *basePayload())

	if err := proc.Handle(context.Background(), created); err != nil {
		t.Fatal(err)
	}
	if err := proc.Handle(context.Background(), cancelled); err != nil {
		t.Fatal(err)
	}

	d := store.decisions["b-1"]
	if d.Status != approval.StatusCancelled {
		t.Fatalf("status = %q, want %q", d.Status, approval.StatusCancelled)
	}
	if d.Version != 2 {
		t.Fatalf("version = %d, want 2", d.Version)
	}
	if len(store.outbox) != 2 {
		t.Fatalf("outbox records = %d, want 2", len(store.outbox))
	}
}

func TestHandleMalformedEnvelopeGoesToDeadLetter(t *testing.T) {
	store := newFakeStore()
	dlq := &fakeDLQ{}
	proc := newTestProcessor(store, dlq)

	msg := kafka.Message{Key: []byte("b-1"), Value: []byte("{not json")}
	if err := proc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v (poison message must not block the partition)", err)
	}

	if len(dlq.published) != 1 {
		t.Fatalf("dead-lettered = %d, want 1", len(dlq.published))
	}
	if string(dlq.published[0]) != "{not json" {
		t.Fatal("dead letter must carry the original bytes")
	}
	if len(store.decisions) != 0 || len(store.outbox) != 0 {
		t.Fatal("malformed envelope must not touch the store")
	}
}

func TestHandleDeadLetterFailureIsRetriable(t *testing.T) {
	dlq := &fakeDLQ{fail: errors.New("broker down")}
	proc := newTestProcessor(newFakeStore(), dlq)

	msg := kafka.Message{Value: []byte("{not json")}
	if err := proc.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error so the offset stays uncommitted")
	}
}

func TestHandleStoreFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.failRun = errors.New("connection reset")
	proc := newTestProcessor(store, &fakeDLQ{})

	msg := bookingMessage(t, "ev-1", event.TypeBookingCreated, *basePayload())
	if err := proc.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected store error to propagate for redelivery")
	}
	if store.processed["ev-1"] {
		t.Fatal("failed event must not be marked processed")
	}
}

func TestHandleVersionConflictIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.decisions["b-1"] = &approval.Decision{
		BookingID: "b-1",
		Status:    approval.StatusPending,
		Version:   1,
	}
	store.failUpdate = approval.ErrVersionConflict
	proc := newTestProcessor(store, &fakeDLQ{})

	msg := bookingMessage(t, "ev-1", event.TypeBookingCreated, *basePayload())
	if err := proc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v (version conflict is not retriable)", err)
	}
	if len(store.outbox) != 0 {
		t.Fatal("conflicted update must not emit a decision")
	}
}

func TestHandleIgnoresForeignEventTypes(t *testing.T) {
	store := newFakeStore()
	proc := newTestProcessor(store, &fakeDLQ{})

	payload, _ := json.Marshal(event.ApprovalPayload{BookingID: "b-1", Status: approval.StatusApproved})
	value, err := event.Encode(&event.Envelope{
		ID:            "ev-own",
		Type:          event.TypeApprovalDecided,
		SchemaVersion: event.SchemaVersion,
		Producer:      "approval-service",
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := proc.Handle(context.Background(), kafka.Message{Value: value}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.decisions) != 0 || len(store.processed) != 0 {
		t.Fatal("foreign event type must be a no-op")
	}
}
