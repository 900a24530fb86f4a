package models

// Scope is a fan-out routing key: every committed state delta is addressed to
// one scope and delivered to whoever is currently subscribed to it.
type Scope string

func SessionScope(id string) Scope      { return Scope("session:" + id) }
func ConversationScope(id string) Scope { return Scope("conversation:" + id) }
func ChannelScope(id string) Scope      { return Scope("channel:" + id) }
func UserScope(id string) Scope         { return Scope("user:" + id) }

// TargetScope maps a message container to its scope.
func TargetScope(kind TargetKind, id string) Scope {
	if kind == TargetChannel {
		return ChannelScope(id)
	}
	return ConversationScope(id)
}

// Event is the envelope broadcast over websockets and mirrored to the
// notification exchange after a mutation commits.
type Event struct {
	Type      string          `json:"type"`
	Session   *Session        `json:"session,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	Receipt   *Receipt        `json:"receipt,omitempty"`
	Reactions []ReactionGroup `json:"reactions,omitempty"`
	MessageID int             `json:"message_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
}
