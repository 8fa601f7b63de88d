package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/booking"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/event"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/outbox"
	"github.com/meetpatell07/GBC-EventBooking/internal/infrastructure/postgres"
)

const producerName = "booking-service"

// ErrValidation marks request errors the caller can fix; everything else
// coming out of a usecase is infrastructure.
var ErrValidation = errors.New("validation failed")

// BookingWriter is the slice of the booking repository the write path needs.
type BookingWriter interface {
	Create(ctx context.Context, b *booking.Booking) error
	UpdateStatus(ctx context.Context, id string, status string) error
	CountOverlapping(ctx context.Context, roomID int, start, end time.Time) (int, error)
}

// OutboxAppender records the event intent in the same transaction as the
// state change.
type OutboxAppender interface {
	Append(ctx context.Context, rec *outbox.Record) error
}

type CreateBooking struct {
	txManager   postgres.Transactor
	bookingRepo BookingWriter
	outboxRepo  OutboxAppender
}

func NewCreateBooking(
	txManager postgres.Transactor,
	bookingRepo BookingWriter,
	outboxRepo OutboxAppender,
) *CreateBooking {
	return &CreateBooking{
		txManager:   txManager,
		bookingRepo: bookingRepo,
		outboxRepo:  outboxRepo,
	}
}

type CreateBookingParams struct {
	RoomID            int       `json:"room_id"`
	RequesterID       string    `json:"requester_id"`
	RequesterType     string    `json:"requester_type"`
	Purpose           string    `json:"purpose"`
	ExpectedAttendees int       `json:"expected_attendees"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

func (p CreateBookingParams) validate() error {
	switch {
	case p.RoomID <= 0:
		return fmt.Errorf("%w: room_id is required", ErrValidation)
	case p.RequesterID == "":
		return fmt.Errorf("%w: requester_id is required", ErrValidation)
	case p.RequesterType == "":
		return fmt.Errorf("%w: requester_type is required", ErrValidation)
	case p.StartTime.IsZero() || p.EndTime.IsZero():
		return fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	case !p.EndTime.After(p.StartTime):
		return fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	case p.ExpectedAttendees < 0:
		return fmt.Errorf("%w: expected_attendees must not be negative", ErrValidation)
	}
	return nil
}

// Execute creates the booking and its outbox record in one transaction
// and returns the new booking id. Approval is asynchronous: the caller
// gets PENDING and polls the approval service for the decision.
func (uc *CreateBooking) Execute(ctx context.Context, params CreateBookingParams) (string, error) {
	if err := params.validate(); err != nil {
		return "", err
	}

	overlapping, err := uc.bookingRepo.CountOverlapping(ctx, params.RoomID, params.StartTime, params.EndTime)
	if err != nil {
		return "", fmt.Errorf("check room availability: %w", err)
	}
	if overlapping > 0 {
		return "", booking.ErrRoomUnavailable
	}

	now := time.Now().UTC()
	newBooking := &booking.Booking{
		ID:                uuid.New().String(),
		RoomID:            params.RoomID,
		RequesterID:       params.RequesterID,
		RequesterType:     params.RequesterType,
		Purpose:           params.Purpose,
		ExpectedAttendees: params.ExpectedAttendees,
		StartTime:         params.StartTime,
		EndTime:           params.EndTime,
		Status:            booking.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	rec, err := bookingEventRecord(event.TypeBookingCreated, newBooking, now)
	if err != nil {
		return "", err
	}

	err = uc.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.bookingRepo.Create(txCtx, newBooking); err != nil {
			return err
		}
		return uc.outboxRepo.Append(txCtx, rec)
	})
	if err != nil {
		return "", fmt.Errorf("transaction failed: %w", err)
	}

	return newBooking.ID, nil
}

// bookingEventRecord wraps a booking into an encoded envelope ready for
// the outbox. The envelope id doubles as the downstream dedup key.
func bookingEventRecord(eventType string, b *booking.Booking, now time.Time) (*outbox.Record, error) {
	payload, err := json.Marshal(event.BookingPayload{
		BookingID:         b.ID,
		RoomID:            b.RoomID,
		RequesterID:       b.RequesterID,
		RequesterType:     b.RequesterType,
		Purpose:           b.Purpose,
		ExpectedAttendees: b.ExpectedAttendees,
		StartTime:         b.StartTime,
		EndTime:           b.EndTime,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal booking payload: %w", err)
	}

	env := &event.Envelope{
		ID:            uuid.New().String(),
		Type:          eventType,
		SchemaVersion: event.SchemaVersion,
		Producer:      producerName,
		OccurredAt:    now,
		Payload:       payload,
	}

	encoded, err := event.Encode(env)
	if err != nil {
		return nil, err
	}

	return &outbox.Record{
		EventID:   env.ID,
		BookingID: b.ID,
		EventType: eventType,
		Payload:   encoded,
		Status:    outbox.StatusPending,
		CreatedAt: now,
	}, nil
}
