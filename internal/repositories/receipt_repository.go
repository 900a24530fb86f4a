package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"rtc-service/internal/models"
)

// ReceiptRepository tracks per-recipient delivery and read progress.
type ReceiptRepository interface {
	MarkDelivered(ctx context.Context, messageID int, userID string) (models.Receipt, error)
	MarkRead(ctx context.Context, messageID int, userID string) (models.Receipt, error)
	ListReceipts(ctx context.Context, messageID int) ([]models.Receipt, error)
}

// ReceiptRepo is a sqlx-backed implementation.
type ReceiptRepo struct {
	db *sqlx.DB
}

// NewReceiptRepo constructs a ReceiptRepo.
func NewReceiptRepo(db *sqlx.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// MarkDelivered upserts the recipient's delivery record and promotes the
// aggregate status to 'delivered' once any recipient has one. Re-delivery
// refreshes the timestamp instead of duplicating the row.
func (r *ReceiptRepo) MarkDelivered(ctx context.Context, messageID int, userID string) (models.Receipt, error) {
	var receipt models.Receipt
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `INSERT INTO message_receipts (message_id, user_id, delivered_at)
            VALUES ($1, $2, NOW())
            ON CONFLICT (message_id, user_id) DO UPDATE SET delivered_at = EXCLUDED.delivered_at
            RETURNING message_id, user_id, delivered_at, read_at`, messageID, userID).
			StructScan(&receipt); err != nil {
			return fmt.Errorf("upsert delivery receipt: %w", err)
		}

		// Guarded update keeps the aggregate monotonic.
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET status='delivered' WHERE id=$1 AND status='sent'`, messageID); err != nil {
			return fmt.Errorf("promote message status: %w", err)
		}
		return nil
	})
	return receipt, err
}

// MarkRead upserts the recipient's read record. Read presupposes delivery, so
// a missing delivered_at is filled in as well. The aggregate moves to 'read'
// and never regresses.
func (r *ReceiptRepo) MarkRead(ctx context.Context, messageID int, userID string) (models.Receipt, error) {
	var receipt models.Receipt
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `INSERT INTO message_receipts (message_id, user_id, delivered_at, read_at)
            VALUES ($1, $2, NOW(), NOW())
            ON CONFLICT (message_id, user_id) DO UPDATE SET
                read_at = EXCLUDED.read_at,
                delivered_at = COALESCE(message_receipts.delivered_at, EXCLUDED.delivered_at)
            RETURNING message_id, user_id, delivered_at, read_at`, messageID, userID).
			StructScan(&receipt); err != nil {
			return fmt.Errorf("upsert read receipt: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE messages SET status='read' WHERE id=$1 AND status IN ('sent', 'delivered')`, messageID); err != nil {
			return fmt.Errorf("promote message status: %w", err)
		}
		return nil
	})
	return receipt, err
}

// ListReceipts returns every receipt of a message.
func (r *ReceiptRepo) ListReceipts(ctx context.Context, messageID int) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.SelectContext(ctx, &receipts, `SELECT message_id, user_id, delivered_at, read_at
        FROM message_receipts WHERE message_id=$1 ORDER BY user_id`, messageID)
	return receipts, err
}

func (r *ReceiptRepo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
