package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/approval"
	"github.com/meetpatell07/GBC-EventBooking/internal/domain/outbox"
)

// ApprovalStore is the consumer's view of the approval database: the
// dedup log, the decision table and the approval-side outbox, all mutated
// inside one transaction per envelope.
type ApprovalStore struct {
	txManager *TxManager
	approvals *ApprovalRepository
	processed *ProcessedEventRepository
	outbox    *OutboxRepository
	groupID   string
}

func NewApprovalStore(pool *pgxpool.Pool, groupID string) *ApprovalStore {
	return &ApprovalStore{
		txManager: NewTxManager(pool),
		approvals: NewApprovalRepository(pool),
		processed: NewProcessedEventRepository(pool),
		outbox:    NewOutboxRepository(pool),
		groupID:   groupID,
	}
}

// RunIdempotent begins a transaction, records eventID in the processed
// log and runs fn inside the same transaction. If the event was already
// processed, fn is skipped and the empty transaction commits; the caller
// still commits the offset. Returns whether fn ran.
func (s *ApprovalStore) RunIdempotent(ctx context.Context, eventID string, fn func(ctx context.Context) error) (bool, error) {
	var isNew bool

	err := s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		isNew, err = s.processed.SaveIfNotExists(txCtx, s.groupID, eventID)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}
		return fn(txCtx)
	})
	if err != nil {
		return false, fmt.Errorf("idempotent run for event %s: %w", eventID, err)
	}

	return isNew, nil
}

func (s *ApprovalStore) GetDecision(ctx context.Context, bookingID string) (*approval.Decision, error) {
	return s.approvals.GetByBookingID(ctx, bookingID)
}

func (s *ApprovalStore) InsertDecision(ctx context.Context, d *approval.Decision) error {
	return s.approvals.Insert(ctx, d)
}

func (s *ApprovalStore) UpdateDecision(ctx context.Context, d *approval.Decision) error {
	return s.approvals.Update(ctx, d)
}

func (s *ApprovalStore) AppendOutbox(ctx context.Context, rec *outbox.Record) error {
	return s.outbox.Append(ctx, rec)
}
