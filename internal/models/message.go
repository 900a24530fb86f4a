package models

import (
	"time"

	"github.com/lib/pq"
)

// TargetKind says which kind of container owns a message. A message belongs
// to exactly one conversation or channel, never both.
type TargetKind string

const (
	TargetConversation TargetKind = "conversation"
	TargetChannel      TargetKind = "channel"
)

// MessageStatus is the coarse aggregate delivery state. Per-recipient truth
// lives in the receipts; the aggregate follows an "any recipient" policy.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Message is a conversation or channel message.
type Message struct {
	ID         int            `db:"id" json:"id"`
	TargetKind TargetKind     `db:"target_kind" json:"target_kind"`
	TargetID   string         `db:"target_id" json:"target_id"`
	SenderID   string         `db:"sender_id" json:"sender_id"`
	Content    string         `db:"content" json:"content"`
	Media      pq.StringArray `db:"media" json:"media,omitempty"`
	ReplyTo    *int           `db:"reply_to" json:"reply_to,omitempty"`
	Status     MessageStatus  `db:"status" json:"status"`
	IsPinned   bool           `db:"is_pinned" json:"is_pinned"`
	IsEdited   bool           `db:"is_edited" json:"is_edited"`
	IsDeleted  bool           `db:"is_deleted" json:"is_deleted"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	EditedAt   *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
}

// Receipt records per-recipient delivery and read progress for a message.
type Receipt struct {
	MessageID   int        `db:"message_id" json:"message_id"`
	UserID      string     `db:"user_id" json:"user_id"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// ReactionGroup is the grouped view of one emoji on a message. Groups with no
// users are never materialized.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}
