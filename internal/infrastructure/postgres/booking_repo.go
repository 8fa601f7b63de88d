package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/booking"
)

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	const sql = `
		INSERT INTO bookings (
			id, room_id, requester_id, requester_type, purpose,
			expected_attendees, start_time, end_time, status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	_, err := executor.Exec(ctx, sql,
		b.ID, b.RoomID, b.RequesterID, b.RequesterType, nullIfEmpty(b.Purpose),
		b.ExpectedAttendees, b.StartTime, b.EndTime, b.Status,
		b.CreatedAt, b.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	return nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	const sql = `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	cmdTag, err := executor.Exec(ctx, sql, id, status)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}

	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	const sql = `
		SELECT
			id, room_id, requester_id, requester_type,
			COALESCE(purpose, ''),
			expected_attendees, start_time, end_time, status,
			created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	var b booking.Booking
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&b.ID, &b.RoomID, &b.RequesterID, &b.RequesterType,
		&b.Purpose, &b.ExpectedAttendees, &b.StartTime, &b.EndTime, &b.Status,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return &b, nil
}

func (r *BookingRepository) ListByRequester(ctx context.Context, requesterID string) ([]*booking.Booking, error) {
	const sql = `
		SELECT
			id, room_id, requester_id, requester_type,
			COALESCE(purpose, ''),
			expected_attendees, start_time, end_time, status,
			created_at, updated_at
		FROM bookings
		WHERE requester_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, sql, requesterID)
	if err != nil {
		return nil, fmt.Errorf("query bookings by requester: %w", err)
	}
	defer rows.Close()

	var bookings []*booking.Booking
	for rows.Next() {
		b := &booking.Booking{}
		if err := rows.Scan(
			&b.ID, &b.RoomID, &b.RequesterID, &b.RequesterType,
			&b.Purpose, &b.ExpectedAttendees, &b.StartTime, &b.EndTime, &b.Status,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	return bookings, nil
}

// CountOverlapping returns how many live bookings for the room overlap the
// given window. Cancelled bookings do not block the room.
func (r *BookingRepository) CountOverlapping(ctx context.Context, roomID int, start, end time.Time) (int, error) {
	const sql = `
		SELECT COUNT(*)
		FROM bookings
		WHERE room_id = $1
		  AND status <> 'CANCELLED'
		  AND end_time > $2
		  AND start_time < $3
	`

	var count int
	if err := r.pool.QueryRow(ctx, sql, roomID, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count overlapping bookings: %w", err)
	}

	return count, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
