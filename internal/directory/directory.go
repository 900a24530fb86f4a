// Package directory holds the contracts this service consumes from the rest
// of the platform: identity, profile lookup, message recipients and parent
// community authorization. The engine decides what happened and who should
// hear about it; everything about users themselves lives behind these
// interfaces.
package directory

import (
	"context"
	"errors"

	"rtc-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// Profile is the roster display view of a user.
type Profile struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Avatar     string  `json:"avatar,omitempty"`
	TrustScore float64 `json:"trust_score"`
}

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// ProfileDirectory resolves user profiles, batched by id list.
type ProfileDirectory interface {
	BulkProfiles(ctx context.Context, ids []string) ([]Profile, error)
}

// RecipientLister returns the members of a conversation or channel. It is the
// membership source for message fan-out and the sender membership check.
type RecipientLister interface {
	ListRecipients(ctx context.Context, kind models.TargetKind, targetID string) ([]string, error)
}

// CommunityAuthorizer answers privileged-action predicates computed by the
// parent community structure, e.g. whether a user may pin channel messages.
type CommunityAuthorizer interface {
	IsCommunityAdmin(ctx context.Context, kind models.TargetKind, targetID, userID string) (bool, error)
}
