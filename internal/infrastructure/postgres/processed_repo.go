package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProcessedEventRepository struct {
	pool *pgxpool.Pool
}

func NewProcessedEventRepository(pool *pgxpool.Pool) *ProcessedEventRepository {
	return &ProcessedEventRepository{pool: pool}
}

// SaveIfNotExists returns true if the event was recorded (is new), false
// if it was already processed by this consumer group. Must run inside the
// same transaction as the effect it guards.
func (r *ProcessedEventRepository) SaveIfNotExists(ctx context.Context, groupID, eventID string) (bool, error) {
	const sql = `
		INSERT INTO processed_events (group_id, event_id, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_id, event_id) DO NOTHING
	`

	var executor interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	} = r.pool

	if tx := GetTx(ctx); tx != nil {
		executor = tx
	}

	tag, err := executor.Exec(ctx, sql, groupID, eventID)
	if err != nil {
		return false, fmt.Errorf("insert processed event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
