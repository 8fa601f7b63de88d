package approval

import (
	"errors"
	"time"
)

const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

var (
	ErrNotFound = errors.New("approval decision not found")
	// ErrVersionConflict means the row changed under an optimistic update.
	ErrVersionConflict = errors.New("approval decision version conflict")
)

// Decision is the approval service's record for one booking. One row per
// booking, mutated in place as events for that booking arrive; Version
// guards concurrent writers.
type Decision struct {
	BookingID string    `json:"booking_id"`
	EventID   string    `json:"event_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}
