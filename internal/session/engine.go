package session

import (
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"rtc-service/internal/models"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrForbidden         = errors.New("not allowed")
	ErrSessionFull       = errors.New("session is full")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotParticipant    = errors.New("not an active participant")
	ErrRequestNotFound   = errors.New("join request not found")
	ErrNotRoom           = errors.New("not a room session")
	ErrCapacityTooSmall  = errors.New("capacity must be at least 2")
)

const (
	idAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	idLength       = 8
	inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteLength   = 6
)

// Engine owns the session lifecycle state machine. All roster mutations go
// through it so the invariants hold under concurrent requests.
type Engine struct {
	store *Store
	now   func() time.Time
}

// NewEngine builds an Engine over the given store.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// CreateParams are the caller-supplied attributes of a new session.
type CreateParams struct {
	OwnerID    string
	Kind       models.SessionKind
	MediaMode  models.MediaMode
	Visibility models.Visibility
	Capacity   int
	Topic      string
}

// Create registers a new session with the owner seeded as its sole
// participant in the privileged role. The session stays `waiting` until a
// second party actually joins.
func (e *Engine) Create(p CreateParams) (models.Session, error) {
	if p.Capacity < 2 {
		return models.Session{}, ErrCapacityTooSmall
	}

	id, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return models.Session{}, fmt.Errorf("generate session id: %w", err)
	}

	sess := models.Session{
		ID:         id,
		Kind:       p.Kind,
		OwnerID:    p.OwnerID,
		Topic:      p.Topic,
		MediaMode:  p.MediaMode,
		Visibility: p.Visibility,
		Capacity:   p.Capacity,
		Status:     models.SessionStatusWaiting,
		CreatedAt:  e.now(),
	}

	if p.Visibility == models.VisibilityPrivate {
		code, err := gonanoid.Generate(inviteAlphabet, inviteLength)
		if err != nil {
			return models.Session{}, fmt.Errorf("generate invite code: %w", err)
		}
		sess.InviteCode = code
	}

	ownerRole := models.RoleHost
	if p.Kind == models.SessionKindRoom {
		ownerRole = models.RoleAdmin
	}
	sess.Participants = []models.Participant{{
		UserID:   p.OwnerID,
		Role:     ownerRole,
		JoinedAt: sess.CreatedAt,
	}}

	e.store.put(sess)
	return snapshot(sess), nil
}

// Join admits a user into a session. Joining twice is an idempotent success.
// Admission-gated rooms refuse direct joins; entry goes through RequestJoin
// and Approve. The session flips waiting -> active the moment a second active
// participant exists.
func (e *Engine) Join(sessionID, userID, presentedCode string) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	if sess.Status == models.SessionStatusEnded {
		return models.Session{}, ErrSessionNotFound
	}
	if sess.Visibility == models.VisibilityPrivate && presentedCode != sess.InviteCode {
		return models.Session{}, ErrForbidden
	}
	if activeParticipant(sess, userID) != nil {
		return snapshot(*sess), nil
	}
	// Admission-gated rooms admit only through the request/approve queue.
	if sess.Visibility == models.VisibilityAdmission {
		return models.Session{}, ErrForbidden
	}
	if activeCount(sess) >= sess.Capacity {
		return models.Session{}, ErrSessionFull
	}

	e.admit(sess, userID)
	return snapshot(*sess), nil
}

// Leave closes the caller's active participant record. Leaving twice is a
// no-op. When the last active participant leaves, the session ends.
func (e *Engine) Leave(sessionID, userID string) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	p := activeParticipant(sess, userID)
	if p == nil || sess.Status == models.SessionStatusEnded {
		return snapshot(*sess), nil
	}

	now := e.now()
	p.LeftAt = &now
	if activeCount(sess) == 0 {
		e.end(sess, now)
	}
	return snapshot(*sess), nil
}

// End force-terminates a session, closing every active participant record.
// Only the owner or an active privileged participant may call it.
func (e *Engine) End(sessionID, callerID string) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	if !e.privileged(sess, callerID) {
		return models.Session{}, ErrForbidden
	}
	if sess.Status == models.SessionStatusEnded {
		return models.Session{}, ErrInvalidTransition
	}

	now := e.now()
	for i := range sess.Participants {
		if sess.Participants[i].LeftAt == nil {
			sess.Participants[i].LeftAt = &now
		}
	}
	e.end(sess, now)
	return snapshot(*sess), nil
}

// FlagUpdate carries the transient flags a participant may set on their own
// record. Nil fields are left untouched.
type FlagUpdate struct {
	Muted         *bool
	VideoOff      *bool
	ScreenSharing *bool
}

// SetFlags updates the caller's own transient flags.
func (e *Engine) SetFlags(sessionID, userID string, upd FlagUpdate) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	if sess.Status == models.SessionStatusEnded {
		return models.Session{}, ErrSessionNotFound
	}
	p := activeParticipant(sess, userID)
	if p == nil {
		return models.Session{}, ErrNotParticipant
	}

	if upd.Muted != nil {
		p.Muted = *upd.Muted
	}
	if upd.VideoOff != nil {
		p.VideoOff = *upd.VideoOff
	}
	if upd.ScreenSharing != nil {
		p.ScreenSharing = *upd.ScreenSharing
	}
	return snapshot(*sess), nil
}

// Promote moves a room listener to speaker. Privileged callers only.
func (e *Engine) Promote(sessionID, callerID, targetID string) (models.Session, error) {
	return e.setSpeaking(sessionID, callerID, targetID, true)
}

// Demote moves a room speaker back to listener and lowers their hand.
func (e *Engine) Demote(sessionID, callerID, targetID string) (models.Session, error) {
	return e.setSpeaking(sessionID, callerID, targetID, false)
}

func (e *Engine) setSpeaking(sessionID, callerID, targetID string, speaker bool) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	if sess.Kind != models.SessionKindRoom {
		return models.Session{}, ErrNotRoom
	}
	if sess.Status == models.SessionStatusEnded {
		return models.Session{}, ErrSessionNotFound
	}
	if !e.privileged(sess, callerID) {
		return models.Session{}, ErrForbidden
	}
	target := activeParticipant(sess, targetID)
	if target == nil {
		return models.Session{}, ErrNotParticipant
	}
	if target.Role == models.RoleAdmin {
		return models.Session{}, ErrForbidden
	}

	if speaker {
		target.Role = models.RoleSpeaker
	} else {
		target.Role = models.RoleListener
		target.HandRaised = false
	}
	return snapshot(*sess), nil
}

// ToggleHand flips the hand-raised flag on a listener's own record. A raised
// hand is the implicit request to be promoted to speaker; privileged
// participants read it off the roster.
func (e *Engine) ToggleHand(sessionID, userID string) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	if sess.Kind != models.SessionKindRoom {
		return models.Session{}, ErrNotRoom
	}
	if sess.Status == models.SessionStatusEnded {
		return models.Session{}, ErrSessionNotFound
	}
	p := activeParticipant(sess, userID)
	if p == nil {
		return models.Session{}, ErrNotParticipant
	}
	if p.Role != models.RoleListener {
		return models.Session{}, ErrForbidden
	}

	p.HandRaised = !p.HandRaised
	return snapshot(*sess), nil
}

// Get returns a snapshot of the session.
func (e *Engine) Get(sessionID string) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return snapshot(rec.session), nil
}

// ListForUser returns snapshots of every session the user is currently an
// active participant of.
func (e *Engine) ListForUser(userID string) []models.Session {
	var out []models.Session
	for _, rec := range e.store.all() {
		rec.mu.Lock()
		if rec.session.Status != models.SessionStatusEnded && activeParticipant(&rec.session, userID) != nil {
			out = append(out, snapshot(rec.session))
		}
		rec.mu.Unlock()
	}
	return out
}

// admit appends a new active participant with the default role and runs the
// two-party activation check in the same critical section.
func (e *Engine) admit(sess *models.Session, userID string) {
	role := models.RoleParticipant
	if sess.Kind == models.SessionKindRoom {
		role = models.RoleListener
	}
	now := e.now()
	sess.Participants = append(sess.Participants, models.Participant{
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
	})

	if sess.Status == models.SessionStatusWaiting && activeCount(sess) >= 2 {
		sess.Status = models.SessionStatusActive
		sess.StartedAt = &now
	}
}

func (e *Engine) end(sess *models.Session, now time.Time) {
	sess.Status = models.SessionStatusEnded
	sess.EndedAt = &now
	if sess.StartedAt != nil {
		sess.DurationSeconds = int(now.Sub(*sess.StartedAt) / time.Second)
	}
	sess.JoinRequests = nil
}

// privileged reports whether the caller may run destructive or promotion
// actions: the owner always may, otherwise an active host/admin record wins.
func (e *Engine) privileged(sess *models.Session, userID string) bool {
	if sess.OwnerID == userID {
		return true
	}
	p := activeParticipant(sess, userID)
	return p != nil && p.Role.Privileged()
}

func activeParticipant(sess *models.Session, userID string) *models.Participant {
	for i := range sess.Participants {
		if sess.Participants[i].UserID == userID && sess.Participants[i].LeftAt == nil {
			return &sess.Participants[i]
		}
	}
	return nil
}

func activeCount(sess *models.Session) int {
	n := 0
	for i := range sess.Participants {
		if sess.Participants[i].LeftAt == nil {
			n++
		}
	}
	return n
}
