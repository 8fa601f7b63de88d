package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types carried on the booking-events topic.
const (
	TypeBookingCreated   = "BookingCreated"
	TypeBookingCancelled = "BookingCancelled"
	TypeApprovalDecided  = "ApprovalDecided"
)

// SchemaVersion is the version stamped on envelopes this service produces.
// Decode accepts any version up to and including it.
const SchemaVersion = 1

// Envelope is the versioned wrapper published to Kafka.
// Payload is kept as raw JSON produced by the originating service so
// consumers can decode it per Type, and unknown payload fields survive
// a decode/re-encode round trip.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	SchemaVersion int             `json:"schema_version"`
	Producer      string          `json:"producer"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// BookingPayload is the payload for BookingCreated and BookingCancelled.
type BookingPayload struct {
	BookingID         string    `json:"booking_id"`
	RoomID            int       `json:"room_id"`
	RequesterID       string    `json:"requester_id"`
	RequesterType     string    `json:"requester_type"`
	Purpose           string    `json:"purpose"`
	ExpectedAttendees int       `json:"expected_attendees"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

// ApprovalPayload is the payload for ApprovalDecided.
type ApprovalPayload struct {
	BookingID string    `json:"booking_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// DecodeError marks an envelope that cannot be processed and must go to
// the dead-letter topic instead of blocking the partition.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode envelope: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes an envelope for publishing.
func Encode(env *Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Decode parses a wire envelope. Unknown top-level fields are ignored.
// Malformed JSON, a missing id/type, or a schema version newer than this
// build understands all produce a *DecodeError.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed json", Err: err}
	}
	if env.ID == "" {
		return nil, &DecodeError{Reason: "missing event id"}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing event type"}
	}
	if env.SchemaVersion > SchemaVersion {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported schema version %d", env.SchemaVersion)}
	}
	return &env, nil
}

// BookingPayloadOf decodes the booking payload of a created/cancelled event.
func BookingPayloadOf(env *Envelope) (*BookingPayload, error) {
	var p BookingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, &DecodeError{Reason: "malformed booking payload", Err: err}
	}
	if p.BookingID == "" {
		return nil, &DecodeError{Reason: "missing booking id in payload"}
	}
	return &p, nil
}
