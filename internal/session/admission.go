package session

import (
	"rtc-service/internal/models"
)

// RequestJoin queues an entry request for an admission-gated room. Requesting
// again just refreshes the timestamp. A user already in the roster gets an
// idempotent success with no request queued.
func (e *Engine) RequestJoin(sessionID, userID string) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	if sess.Kind != models.SessionKindRoom || sess.Visibility != models.VisibilityAdmission {
		return models.Session{}, ErrNotRoom
	}
	if sess.Status == models.SessionStatusEnded {
		return models.Session{}, ErrSessionNotFound
	}
	if activeParticipant(sess, userID) != nil {
		return snapshot(*sess), nil
	}
	if activeCount(sess) >= sess.Capacity {
		return models.Session{}, ErrSessionFull
	}

	now := e.now()
	for i := range sess.JoinRequests {
		if sess.JoinRequests[i].UserID == userID {
			sess.JoinRequests[i].RequestedAt = now
			return snapshot(*sess), nil
		}
	}
	sess.JoinRequests = append(sess.JoinRequests, models.JoinRequest{
		UserID:      userID,
		RequestedAt: now,
	})
	return snapshot(*sess), nil
}

// Approve admits a pending requester, bypassing the visibility gate: the
// approved request itself was the gate. Capacity still applies, and a full
// room leaves the request pending.
func (e *Engine) Approve(sessionID, callerID, targetID string) (models.Session, error) {
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
	if !e.privileged(sess, callerID) {
		return models.Session{}, ErrForbidden
	}
	idx := requestIndex(sess, targetID)
	if idx < 0 {
		return models.Session{}, ErrRequestNotFound
	}
	if activeCount(sess) >= sess.Capacity {
		return models.Session{}, ErrSessionFull
	}

	sess.JoinRequests = append(sess.JoinRequests[:idx], sess.JoinRequests[idx+1:]...)
	e.admit(sess, targetID)
	return snapshot(*sess), nil
}

// Reject drops a pending request. Privileged participants may reject anyone;
// a requester may cancel their own. Rejecting an absent request is a no-op.
func (e *Engine) Reject(sessionID, callerID, targetID string) (models.Session, error) {
	rec, ok := e.store.get(sessionID)
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	sess := &rec.session
	if callerID != targetID && !e.privileged(sess, callerID) {
		return models.Session{}, ErrForbidden
	}

	if idx := requestIndex(sess, targetID); idx >= 0 {
		sess.JoinRequests = append(sess.JoinRequests[:idx], sess.JoinRequests[idx+1:]...)
	}
	return snapshot(*sess), nil
}

func requestIndex(sess *models.Session, userID string) int {
	for i := range sess.JoinRequests {
		if sess.JoinRequests[i].UserID == userID {
			return i
		}
	}
	return -1
}
