package booking

import (
	"errors"
	"time"
)

const (
	StatusPending   = "PENDING"
	StatusCancelled = "CANCELLED"
)

var (
	ErrNotFound = errors.New("booking not found")
	// ErrRoomUnavailable means the room is already booked for an
	// overlapping time window.
	ErrRoomUnavailable = errors.New("room not available for the requested time")
)

type Booking struct {
	ID                string    `json:"id"`
	RoomID            int       `json:"room_id"`
	RequesterID       string    `json:"requester_id"`
	RequesterType     string    `json:"requester_type"`
	Purpose           string    `json:"purpose"`
	ExpectedAttendees int       `json:"expected_attendees"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
