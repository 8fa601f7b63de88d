package outbox

import (
	"context"
	"time"
)

const (
	StatusPending   = "pending"
	StatusPublished = "published"
)

// Record pairs a domain state change with the event that describes it.
// Exactly one record exists per published envelope; Seq gives the relay
// a creation-order drain key.
type Record struct {
	Seq         int64     `json:"seq"`
	EventID     string    `json:"event_id"`
	BookingID   string    `json:"booking_id"`
	EventType   string    `json:"event_type"`
	Payload     []byte    `json:"payload"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

type Repository interface {
	Append(ctx context.Context, rec *Record) error
	ClaimBatch(ctx context.Context, limit int) ([]*Record, error)
	MarkPublished(ctx context.Context, seqs []int64) error
	Release(ctx context.Context, seqs []int64) error
}
