package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/approval"
)

type ApprovalRepository struct {
	pool *pgxpool.Pool
}

func NewApprovalRepository(pool *pgxpool.Pool) *ApprovalRepository {
	return &ApprovalRepository{pool: pool}
}

func (r *ApprovalRepository) GetByBookingID(ctx context.Context, bookingID string) (*approval.Decision, error) {
	const sql = `
		SELECT booking_id, event_id, status, COALESCE(reason, ''), decided_at, version, created_at
		FROM approvals
		WHERE booking_id = $1
	`

	var row interface {
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		row = tx
	}

	var d approval.Decision
	err := row.QueryRow(ctx, sql, bookingID).Scan(
		&d.BookingID, &d.EventID, &d.Status, &d.Reason, &d.DecidedAt, &d.Version, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, approval.ErrNotFound
		}
		return nil, fmt.Errorf("get decision by booking id: %w", err)
	}

	return &d, nil
}

// Insert creates the decision row for a booking's first event.
func (r *ApprovalRepository) Insert(ctx context.Context, d *approval.Decision) error {
	const sql = `
		INSERT INTO approvals (booking_id, event_id, status, reason, decided_at, version, created_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW())
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	_, err := executor.Exec(ctx, sql,
		d.BookingID, d.EventID, d.Status, nullIfEmpty(d.Reason), d.DecidedAt)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	d.Version = 1
	return nil
}

// Update mutates the decision in place, guarded by the version the caller
// read. Zero rows affected means another writer got there first.
func (r *ApprovalRepository) Update(ctx context.Context, d *approval.Decision) error {
	const sql = `
		UPDATE approvals
		SET event_id = $2, status = $3, reason = $4, decided_at = $5, version = version + 1
		WHERE booking_id = $1 AND version = $6
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	tag, err := executor.Exec(ctx, sql,
		d.BookingID, d.EventID, d.Status, nullIfEmpty(d.Reason), d.DecidedAt, d.Version)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return approval.ErrVersionConflict
	}

	d.Version++
	return nil
}

// CancelStalePending flips PENDING decisions older than the TTL to
// CANCELLED. Used by the optional approval-timeout sweeper.
func (r *ApprovalRepository) CancelStalePending(ctx context.Context, olderThan string) (int64, error) {
	const sql = `
		UPDATE approvals
		SET status = 'CANCELLED', reason = 'approval window expired',
		    decided_at = NOW(), version = version + 1
		WHERE status = 'PENDING' AND created_at < NOW() - $1::interval
	`

	tag, err := r.pool.Exec(ctx, sql, olderThan)
	if err != nil {
		return 0, fmt.Errorf("cancel stale pending decisions: %w", err)
	}

	return tag.RowsAffected(), nil
}
