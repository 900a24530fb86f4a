package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rtc-service/internal/directory"
	"rtc-service/internal/events"
	"rtc-service/internal/models"
	"rtc-service/internal/observability"
	"rtc-service/internal/session"
	"rtc-service/internal/telemetry"
)

// SessionHandler manages call and room lifecycle endpoints.
type SessionHandler struct {
	engine   *session.Engine
	store    *session.Store
	profiles directory.ProfileDirectory
	broker   *events.Broker
	audit    *telemetry.AuditEmitter
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(engine *session.Engine, store *session.Store, profiles directory.ProfileDirectory, broker *events.Broker, audit *telemetry.AuditEmitter) *SessionHandler {
	return &SessionHandler{
		engine:   engine,
		store:    store,
		profiles: profiles,
		broker:   broker,
		audit:    audit,
	}
}

// CreateSession handles POST /sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Kind       string `json:"kind" binding:"required,oneof=call room"`
		MediaMode  string `json:"media_mode" binding:"required,oneof=audio video"`
		Visibility string `json:"visibility" binding:"required,oneof=public private admission"`
		Capacity   int    `json:"capacity" binding:"required,min=2"`
		Topic      string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Visibility == string(models.VisibilityAdmission) && req.Kind != string(models.SessionKindRoom) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admission gating is only available for rooms"})
		return
	}

	sess, err := h.engine.Create(session.CreateParams{
		OwnerID:    userID,
		Kind:       models.SessionKind(req.Kind),
		MediaMode:  models.MediaMode(req.MediaMode),
		Visibility: models.Visibility(req.Visibility),
		Capacity:   req.Capacity,
		Topic:      req.Topic,
	})
	if err != nil {
		status := sessionErrStatus(err)
		if status == http.StatusInternalServerError {
			h.emitAudit(c, "ERROR", "internal error")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	observability.IncSessionEvent(req.Kind, "created")
	observability.SetSessionsLive(h.store.Len())
	h.broker.Publish(models.UserScope(userID), models.Event{Type: "session_created", Session: &sess})
	h.emitAudit(c, "INFO", "Session created")
	c.JSON(http.StatusCreated, sess)
}

// GetSession returns the session snapshot with resolved participant profiles.
// The invite code and the pending request queue are visible to the owner and
// privileged participants only; anyone holding the shareable id gets the rest.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.engine.Get(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if !canModerate(sess, c.GetString("userID")) {
		sess.InviteCode = ""
		sess.JoinRequests = nil
	}

	ids := make([]string, 0, len(sess.Participants))
	seen := map[string]struct{}{}
	for _, p := range sess.Participants {
		if _, ok := seen[p.UserID]; !ok {
			seen[p.UserID] = struct{}{}
			ids = append(ids, p.UserID)
		}
	}

	profiles, err := h.profiles.BulkProfiles(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load profiles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess, "profiles": profiles})
}

// ListMySessions returns the sessions the caller currently belongs to.
func (h *SessionHandler) ListMySessions(c *gin.Context) {
	userID := c.GetString("userID")
	sessions := h.engine.ListForUser(userID)
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// JoinSession handles POST /sessions/:session_id/join.
func (h *SessionHandler) JoinSession(c *gin.Context) {
	var req struct {
		InviteCode string `json:"invite_code"`
	}
	// The body is optional for public sessions.
	_ = c.ShouldBindJSON(&req)

	userID := c.GetString("userID")
	sess, err := h.engine.Join(c.Param("session_id"), userID, req.InviteCode)
	if err != nil {
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	observability.IncSessionEvent(string(sess.Kind), "joined")
	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: "participant_joined", Session: &sess, UserID: userID})
	c.JSON(http.StatusOK, sess)
}

// LeaveSession handles POST /sessions/:session_id/leave.
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	userID := c.GetString("userID")
	sess, err := h.engine.Leave(c.Param("session_id"), userID)
	if err != nil {
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	observability.IncSessionEvent(string(sess.Kind), "left")
	eventType := "participant_left"
	if sess.Status == models.SessionStatusEnded {
		eventType = "session_ended"
		observability.IncSessionEvent(string(sess.Kind), "ended")
	}
	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: eventType, Session: &sess, UserID: userID})
	c.JSON(http.StatusOK, sess)
}

// EndSession force-terminates a session. Owner or privileged roles only.
func (h *SessionHandler) EndSession(c *gin.Context) {
	userID := c.GetString("userID")
	sess, err := h.engine.End(c.Param("session_id"), userID)
	if err != nil {
		if errors.Is(err, session.ErrForbidden) {
			h.emitAudit(c, "ERROR", "not allowed to end session")
		}
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	observability.IncSessionEvent(string(sess.Kind), "ended")
	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: "session_ended", Session: &sess, UserID: userID})
	h.emitAudit(c, "INFO", "Session ended")
	c.JSON(http.StatusOK, sess)
}

// UpdateFlags mutates the caller's own transient flags.
func (h *SessionHandler) UpdateFlags(c *gin.Context) {
	var req struct {
		Muted         *bool `json:"muted"`
		VideoOff      *bool `json:"video_off"`
		ScreenSharing *bool `json:"screen_sharing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	sess, err := h.engine.SetFlags(c.Param("session_id"), userID, session.FlagUpdate{
		Muted:         req.Muted,
		VideoOff:      req.VideoOff,
		ScreenSharing: req.ScreenSharing,
	})
	if err != nil {
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: "flags_updated", Session: &sess, UserID: userID})
	c.JSON(http.StatusOK, sess)
}

// PromoteParticipant moves a room listener to speaker.
func (h *SessionHandler) PromoteParticipant(c *gin.Context) {
	h.changeRole(c, true)
}

// DemoteParticipant moves a room speaker back to listener.
func (h *SessionHandler) DemoteParticipant(c *gin.Context) {
	h.changeRole(c, false)
}

func (h *SessionHandler) changeRole(c *gin.Context, promote bool) {
	userID := c.GetString("userID")
	targetID := c.Param("user_id")

	var (
		sess models.Session
		err  error
	)
	if promote {
		sess, err = h.engine.Promote(c.Param("session_id"), userID, targetID)
	} else {
		sess, err = h.engine.Demote(c.Param("session_id"), userID, targetID)
	}
	if err != nil {
		if errors.Is(err, session.ErrForbidden) {
			h.emitAudit(c, "ERROR", "not allowed to change roles")
		}
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: "role_changed", Session: &sess, UserID: targetID})
	h.emitAudit(c, "INFO", "Participant role changed")
	c.JSON(http.StatusOK, sess)
}

// ToggleHand flips the caller's hand-raised flag.
func (h *SessionHandler) ToggleHand(c *gin.Context) {
	userID := c.GetString("userID")
	sess, err := h.engine.ToggleHand(c.Param("session_id"), userID)
	if err != nil {
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: "hand_toggled", Session: &sess, UserID: userID})
	c.JSON(http.StatusOK, sess)
}

// RequestJoin queues an admission request for a gated room.
func (h *SessionHandler) RequestJoin(c *gin.Context) {
	userID := c.GetString("userID")
	sess, err := h.engine.RequestJoin(c.Param("session_id"), userID)
	if err != nil {
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: "join_requested", Session: &sess, UserID: userID})
	c.JSON(http.StatusOK, sess)
}

// ApproveRequest admits a pending requester.
func (h *SessionHandler) ApproveRequest(c *gin.Context) {
	userID := c.GetString("userID")
	targetID := c.Param("user_id")
	sess, err := h.engine.Approve(c.Param("session_id"), userID, targetID)
	if err != nil {
		if errors.Is(err, session.ErrForbidden) {
			h.emitAudit(c, "ERROR", "not allowed to approve requests")
		}
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	observability.IncSessionEvent(string(sess.Kind), "joined")
	h.broker.Publish(models.SessionScope(sess.ID), models.Event{Type: "request_approved", Session: &sess, UserID: targetID})
	h.broker.Publish(models.UserScope(targetID), models.Event{Type: "request_approved", Session: &sess, UserID: targetID})
	h.emitAudit(c, "INFO", "Join request approved")
	c.JSON(http.StatusOK, sess)
}

// RejectRequest drops a pending request. Privileged callers may reject
// anyone; a requester may cancel their own.
func (h *SessionHandler) RejectRequest(c *gin.Context) {
	userID := c.GetString("userID")
	targetID := c.Param("user_id")
	sess, err := h.engine.Reject(c.Param("session_id"), userID, targetID)
	if err != nil {
		c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.broker.Publish(models.UserScope(targetID), models.Event{Type: "request_rejected", Session: &sess, UserID: targetID})
	h.emitAudit(c, "INFO", "Join request rejected")
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// canModerate mirrors the engine's privilege rule: the owner, or an active
// host/admin participant.
func canModerate(sess models.Session, userID string) bool {
	if sess.OwnerID == userID {
		return true
	}
	for _, p := range sess.Participants {
		if p.UserID == userID && p.Active() && p.Role.Privileged() {
			return true
		}
	}
	return false
}

func sessionErrStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrNotParticipant),
		errors.Is(err, session.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrSessionFull),
		errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotRoom),
		errors.Is(err, session.ErrCapacityTooSmall):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
