package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/outbox"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Append writes an event-intent record. It is meant to be called inside
// the same transaction as the state change it describes.
func (r *OutboxRepository) Append(ctx context.Context, rec *outbox.Record) error {
	const sql = `
		INSERT INTO booking_outbox (event_id, booking_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	_, err := executor.Exec(ctx, sql,
		rec.EventID, rec.BookingID, rec.EventType, rec.Payload, rec.Status, rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}

	return nil
}

// ClaimBatch marks up to limit pending records as in-flight and returns
// them in creation-sequence order. SKIP LOCKED keeps concurrent relay
// instances off each other's claims.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int) ([]*outbox.Record, error) {
	const sql = `
		WITH claimed AS (
			SELECT seq
			FROM booking_outbox
			WHERE status = 'pending'
			ORDER BY seq ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE booking_outbox
		SET status = 'publishing'
		WHERE seq IN (SELECT seq FROM claimed)
		RETURNING seq, event_id, booking_id, event_type, payload, status, created_at
	`

	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		rec := &outbox.Record{}
		if err := rows.Scan(&rec.Seq, &rec.EventID, &rec.BookingID, &rec.EventType, &rec.Payload, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		records = append(records, rec)
	}

	// UPDATE ... RETURNING does not promise order; restore it.
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	return records, nil
}

// MarkPublished records broker acknowledgment for the given records.
func (r *OutboxRepository) MarkPublished(ctx context.Context, seqs []int64) error {
	const sql = `
		UPDATE booking_outbox
		SET status = 'published', published_at = NOW()
		WHERE seq = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, seqs); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// Release returns claimed records to pending so a later drain retries them.
func (r *OutboxRepository) Release(ctx context.Context, seqs []int64) error {
	const sql = `
		UPDATE booking_outbox
		SET status = 'pending'
		WHERE seq = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, seqs); err != nil {
		return fmt.Errorf("release outbox records: %w", err)
	}
	return nil
}

// ReleaseStale rescues records stuck in 'publishing' after a relay crash.
func (r *OutboxRepository) ReleaseStale(ctx context.Context) (int64, error) {
	const sql = `
		UPDATE booking_outbox
		SET status = 'pending'
		WHERE status = 'publishing'
	`
	tag, err := r.pool.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("release stale outbox records: %w", err)
	}
	return tag.RowsAffected(), nil
}
