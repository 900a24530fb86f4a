package models

import "time"

// SessionKind distinguishes ephemeral calls from persistent rooms.
type SessionKind string

const (
	SessionKindCall SessionKind = "call"
	SessionKindRoom SessionKind = "room"
)

// MediaMode is the media profile a session was created with.
type MediaMode string

const (
	MediaModeAudio MediaMode = "audio"
	MediaModeVideo MediaMode = "video"
)

// Visibility controls how a session admits participants.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityAdmission Visibility = "admission"
)

// SessionStatus is the lifecycle state. Transitions only move forward:
// waiting -> active -> ended.
type SessionStatus string

const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
)

// Role of a participant. Calls use host/participant, rooms use
// admin/speaker/listener.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
	RoleSpeaker     Role = "speaker"
	RoleListener    Role = "listener"
)

// Privileged reports whether the role may end sessions, approve requests and
// move other participants between roles.
func (r Role) Privileged() bool {
	return r == RoleHost || r == RoleAdmin
}

// Session is a live call or room coordinated by this service.
type Session struct {
	ID              string        `json:"id"`
	Kind            SessionKind   `json:"kind"`
	OwnerID         string        `json:"owner_id"`
	Topic           string        `json:"topic,omitempty"`
	MediaMode       MediaMode     `json:"media_mode"`
	Visibility      Visibility    `json:"visibility"`
	Capacity        int           `json:"capacity"`
	InviteCode      string        `json:"invite_code,omitempty"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`

	Participants []Participant `json:"participants"`
	JoinRequests []JoinRequest `json:"join_requests,omitempty"`
}

// Participant is one membership record in a session roster. Leaving closes
// the record; a re-join appends a new one instead of reopening it.
type Participant struct {
	UserID        string     `json:"user_id"`
	Role          Role       `json:"role"`
	JoinedAt      time.Time  `json:"joined_at"`
	LeftAt        *time.Time `json:"left_at,omitempty"`
	Muted         bool       `json:"muted"`
	VideoOff      bool       `json:"video_off"`
	ScreenSharing bool       `json:"screen_sharing"`
	HandRaised    bool       `json:"hand_raised"`
}

// Active reports whether the participant is currently in the session.
func (p Participant) Active() bool {
	return p.LeftAt == nil
}

// JoinRequest is a pending entry request for an admission-gated room. It never
// implies membership until approved.
type JoinRequest struct {
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}
