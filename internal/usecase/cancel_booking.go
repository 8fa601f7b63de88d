package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/booking"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/event"
	"github.com/meetpatell07/GBC-EventBooking/internal/infrastructure/postgres"
)

// BookingReader is the read slice of the booking repository.
type BookingReader interface {
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*booking.Booking, error)
}

type CancelBooking struct {
	txManager   postgres.Transactor
	bookingRepo BookingWriter
	reader      BookingReader
	outboxRepo  OutboxAppender
}

func NewCancelBooking(
	txManager postgres.Transactor,
	bookingRepo BookingWriter,
	reader BookingReader,
	outboxRepo OutboxAppender,
) *CancelBooking {
	return &CancelBooking{
		txManager:   txManager,
		bookingRepo: bookingRepo,
		reader:      reader,
		outboxRepo:  outboxRepo,
	}
}

// Execute marks the booking cancelled and records a BookingCancelled
// event in the same transaction. Cancelling a booking that is already
// cancelled is a no-op.
func (uc *CancelBooking) Execute(ctx context.Context, bookingID string) error {
	b, err := uc.reader.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status == booking.StatusCancelled {
		return nil
	}

	now := time.Now().UTC()
	rec, err := bookingEventRecord(event.TypeBookingCancelled, b, now)
	if err != nil {
		return err
	}

	err = uc.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.bookingRepo.UpdateStatus(txCtx, bookingID, booking.StatusCancelled); err != nil {
			return err
		}
		return uc.outboxRepo.Append(txCtx, rec)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}
