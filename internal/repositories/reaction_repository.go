package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"rtc-service/internal/models"
)

// ReactionRepository manages the emoji -> users mapping on a message.
type ReactionRepository interface {
	AddReaction(ctx context.Context, messageID int, userID, emoji string) error
	RemoveReaction(ctx context.Context, messageID int, userID, emoji string) error
	ListReactions(ctx context.Context, messageID int) ([]models.ReactionGroup, error)
}

// ReactionRepo is a sqlx-backed implementation.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// AddReaction records the reaction. The primary key gives set semantics:
// reacting twice with the same emoji is a no-op.
func (r *ReactionRepo) AddReaction(ctx context.Context, messageID int, userID, emoji string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji)
        VALUES ($1, $2, $3) ON CONFLICT (message_id, user_id, emoji) DO NOTHING`, messageID, userID, emoji)
	return err
}

// RemoveReaction drops the user's reaction. Removing an absent reaction is a
// no-op; once the last user for an emoji is gone the group disappears from the
// grouped view.
func (r *ReactionRepo) RemoveReaction(ctx context.Context, messageID int, userID, emoji string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	return err
}

// ListReactions returns the grouped emoji view of a message.
func (r *ReactionRepo) ListReactions(ctx context.Context, messageID int) ([]models.ReactionGroup, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT emoji, user_id FROM message_reactions
        WHERE message_id=$1 ORDER BY emoji, created_at`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.ReactionGroup
	indexByEmoji := map[string]int{}
	for rows.Next() {
		var emoji, userID string
		if err := rows.Scan(&emoji, &userID); err != nil {
			return nil, err
		}
		idx, ok := indexByEmoji[emoji]
		if !ok {
			idx = len(groups)
			indexByEmoji[emoji] = idx
			groups = append(groups, models.ReactionGroup{Emoji: emoji})
		}
		groups[idx].Users = append(groups[idx].Users, userID)
		groups[idx].Count++
	}
	return groups, rows.Err()
}
