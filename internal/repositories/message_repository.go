package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rtc-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageDeleted  = errors.New("message deleted")
)

const messageColumns = `id, target_kind, target_id, sender_id, content, media, reply_to, status, is_pinned, is_edited, is_deleted, created_at, edited_at`

// MessageRepository defines interactions for conversation and channel messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, kind models.TargetKind, targetID, senderID, content string, media []string, replyTo *int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListMessages(ctx context.Context, kind models.TargetKind, targetID string, beforeID *int, limit int) ([]models.Message, error)
	ListPinned(ctx context.Context, kind models.TargetKind, targetID string) ([]models.Message, error)
	EditMessage(ctx context.Context, messageID int, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int) error
	TogglePin(ctx context.Context, messageID int) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message with aggregate status 'sent'. The optimistic
// 'sending' state is client-local and never reaches storage.
func (r *MessageRepo) CreateMessage(ctx context.Context, kind models.TargetKind, targetID, senderID, content string, media []string, replyTo *int) (models.Message, error) {
	if media == nil {
		media = []string{}
	}
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (target_kind, target_id, sender_id, content, media, reply_to)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		kind, targetID, senderID, content, pq.Array(media), replyTo).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns a newest-first page. The cursor is the last-seen
// message id, so the page is stable under concurrent inserts.
func (r *MessageRepo) ListMessages(ctx context.Context, kind models.TargetKind, targetID string, beforeID *int, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE target_kind=$1 AND target_id=$2
        AND ($3::int IS NULL OR (created_at, id) < (SELECT created_at, id FROM messages WHERE id=$3))
        ORDER BY created_at DESC, id DESC
        LIMIT $4`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, kind, targetID, beforeID, limit)
	return msgs, err
}

// ListPinned returns the pinned, non-deleted messages of a target.
func (r *MessageRepo) ListPinned(ctx context.Context, kind models.TargetKind, targetID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE target_kind=$1 AND target_id=$2 AND is_pinned = TRUE AND is_deleted = FALSE
        ORDER BY created_at DESC, id DESC`, kind, targetID)
	return msgs, err
}

// EditMessage replaces the content and stamps the edit. Soft-deleted messages
// cannot be edited.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET content=$2, is_edited = TRUE, edited_at = NOW()
        WHERE id=$1 AND is_deleted = FALSE RETURNING `+messageColumns, messageID, content).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing row from a deleted one.
		if _, getErr := r.GetMessage(ctx, messageID); getErr != nil {
			return models.Message{}, getErr
		}
		return models.Message{}, ErrMessageDeleted
	}
	return msg, err
}

// SoftDeleteMessage flags the message as deleted. Content is retained but must
// never be rendered once the flag is set.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// TogglePin flips the pinned flag. Role checks happen before this call.
func (r *MessageRepo) TogglePin(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET is_pinned = NOT is_pinned
        WHERE id=$1 AND is_deleted = FALSE RETURNING `+messageColumns, messageID).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetMessage(ctx, messageID); getErr != nil {
			return models.Message{}, getErr
		}
		return models.Message{}, ErrMessageDeleted
	}
	return msg, err
}
