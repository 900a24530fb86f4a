package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rtc-service/internal/directory"
	"rtc-service/internal/events"
	"rtc-service/internal/models"
	"rtc-service/internal/repositories"
	"rtc-service/internal/telemetry"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageHandler manages conversation and channel message endpoints.
type MessageHandler struct {
	messageRepo  repositories.MessageRepository
	receiptRepo  repositories.ReceiptRepository
	reactionRepo repositories.ReactionRepository
	recipients   directory.RecipientLister
	authorizer   directory.CommunityAuthorizer
	profiles     directory.ProfileDirectory
	broker       *events.Broker
	audit        *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(
	messageRepo repositories.MessageRepository,
	receiptRepo repositories.ReceiptRepository,
	reactionRepo repositories.ReactionRepository,
	recipients directory.RecipientLister,
	authorizer directory.CommunityAuthorizer,
	profiles directory.ProfileDirectory,
	broker *events.Broker,
	audit *telemetry.AuditEmitter,
) *MessageHandler {
	return &MessageHandler{
		messageRepo:  messageRepo,
		receiptRepo:  receiptRepo,
		reactionRepo: reactionRepo,
		recipients:   recipients,
		authorizer:   authorizer,
		profiles:     profiles,
		broker:       broker,
		audit:        audit,
	}
}

// PostMessage stores a message and broadcasts it to the target's scope.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	kind, targetID, ok := parseTarget(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	member, status := h.checkMembership(c, kind, targetID, userID)
	if status != 0 {
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	var req struct {
		Content string   `json:"content" binding:"required"`
		Media   []string `json:"media"`
		ReplyTo *int     `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ReplyTo != nil {
		parent, err := h.messageRepo.GetMessage(c.Request.Context(), *req.ReplyTo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reply target not found"})
			return
		}
		if parent.TargetKind != kind || parent.TargetID != targetID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reply target belongs to another conversation"})
			return
		}
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), kind, targetID, userID, req.Content, req.Media, req.ReplyTo)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.broker.Publish(models.TargetScope(kind, targetID), models.Event{Type: "message", Message: &msg})
	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns a newest-first page of messages with resolved sender
// names. The cursor is the last-seen message id.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	kind, targetID, ok := parseTarget(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	member, status := h.checkMembership(c, kind, targetID, userID)
	if status != 0 {
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}

	var cursor *int
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		cursor = &parsed
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), kind, targetID, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := make([]string, 0, len(msgs))
	seen := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	nameByID := map[string]string{}
	if len(senderIDs) > 0 {
		profiles, err := h.profiles.BulkProfiles(c.Request.Context(), senderIDs)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load senders"})
			return
		}
		for _, p := range profiles {
			nameByID[p.ID] = p.Name
		}
	}

	type messageResponse struct {
		models.Message
		SenderName string `json:"sender_name,omitempty"`
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{Message: redactDeleted(m), SenderName: nameByID[m.SenderID]})
	}

	var nextCursor *int
	if len(msgs) == limit {
		last := msgs[len(msgs)-1].ID
		nextCursor = &last
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp, "next_cursor": nextCursor})
}

// ListPinned returns the pinned messages of a target.
func (h *MessageHandler) ListPinned(c *gin.Context) {
	kind, targetID, ok := parseTarget(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	member, status := h.checkMembership(c, kind, targetID, userID)
	if status != 0 {
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	msgs, err := h.messageRepo.ListPinned(c.Request.Context(), kind, targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load pinned messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkDelivered records a delivery receipt for the caller.
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	h.markReceipt(c, false)
}

// MarkRead records a read receipt for the caller. Read implies delivered.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	h.markReceipt(c, true)
}

func (h *MessageHandler) markReceipt(c *gin.Context, read bool) {
	msg, ok := h.loadMessageForMember(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	var (
		receipt models.Receipt
		err     error
	)
	if read {
		receipt, err = h.receiptRepo.MarkRead(c.Request.Context(), msg.ID, userID)
	} else {
		receipt, err = h.receiptRepo.MarkDelivered(c.Request.Context(), msg.ID, userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record receipt"})
		return
	}

	eventType := "receipt_delivered"
	if read {
		eventType = "receipt_read"
	}
	h.broker.Publish(models.TargetScope(msg.TargetKind, msg.TargetID), models.Event{Type: eventType, Receipt: &receipt, MessageID: msg.ID})
	c.JSON(http.StatusOK, receipt)
}

// AddReaction handles PUT /messages/:message_id/reactions/:emoji.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	h.mutateReaction(c, true)
}

// RemoveReaction handles DELETE /messages/:message_id/reactions/:emoji.
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	h.mutateReaction(c, false)
}

func (h *MessageHandler) mutateReaction(c *gin.Context, add bool) {
	msg, ok := h.loadMessageForMember(c)
	if !ok {
		return
	}

	emoji := c.Param("emoji")
	if emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji is required"})
		return
	}

	userID := c.GetString("userID")
	var err error
	if add {
		err = h.reactionRepo.AddReaction(c.Request.Context(), msg.ID, userID, emoji)
	} else {
		err = h.reactionRepo.RemoveReaction(c.Request.Context(), msg.ID, userID, emoji)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update reaction"})
		return
	}

	reactions, err := h.reactionRepo.ListReactions(c.Request.Context(), msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reactions"})
		return
	}

	eventType := "reaction_added"
	if !add {
		eventType = "reaction_removed"
	}
	h.broker.Publish(models.TargetScope(msg.TargetKind, msg.TargetID), models.Event{Type: eventType, MessageID: msg.ID, UserID: userID, Reactions: reactions})
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// TogglePin flips the pinned flag. Whether the caller may pin is the parent
// community's call, not this engine's.
func (h *MessageHandler) TogglePin(c *gin.Context) {
	msg, ok := h.loadMessageForMember(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	allowed, err := h.authorizer.IsCommunityAdmin(c.Request.Context(), msg.TargetKind, msg.TargetID, userID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to check authorization"})
		return
	}
	if !allowed {
		h.emitAudit(c, "ERROR", "not allowed to pin")
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to pin"})
		return
	}

	updated, err := h.messageRepo.TogglePin(c.Request.Context(), msg.ID)
	if err != nil {
		c.JSON(messageErrStatus(err), gin.H{"error": "could not toggle pin"})
		return
	}

	h.broker.Publish(models.TargetScope(updated.TargetKind, updated.TargetID), models.Event{Type: "message_pinned", Message: &updated})
	h.emitAudit(c, "INFO", "Message pin toggled")
	c.JSON(http.StatusOK, updated)
}

// EditMessage replaces the content of the caller's own message.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	msg, ok := h.loadMessageForMember(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender may edit"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.messageRepo.EditMessage(c.Request.Context(), msg.ID, req.Content)
	if err != nil {
		c.JSON(messageErrStatus(err), gin.H{"error": "could not edit message"})
		return
	}

	h.broker.Publish(models.TargetScope(updated.TargetKind, updated.TargetID), models.Event{Type: "message_edited", Message: &updated})
	c.JSON(http.StatusOK, updated)
}

// DeleteMessage soft-deletes the caller's own message. Content is retained
// internally and blanked on every read from here on.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	msg, ok := h.loadMessageForMember(c)
	if !ok {
		return
	}

	userID := c.GetString("userID")
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender may delete"})
		return
	}

	if err := h.messageRepo.SoftDeleteMessage(c.Request.Context(), msg.ID); err != nil {
		c.JSON(messageErrStatus(err), gin.H{"error": "could not delete message"})
		return
	}

	h.broker.Publish(models.TargetScope(msg.TargetKind, msg.TargetID), models.Event{Type: "message_deleted", MessageID: msg.ID})
	c.Status(http.StatusNoContent)
}

// GetReceipts returns the per-recipient delivery truth for a message.
func (h *MessageHandler) GetReceipts(c *gin.Context) {
	msg, ok := h.loadMessageForMember(c)
	if !ok {
		return
	}

	receipts, err := h.receiptRepo.ListReceipts(c.Request.Context(), msg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load receipts"})
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// loadMessageForMember fetches the message and verifies the caller belongs to
// its target. It writes the error response itself when something fails.
func (h *MessageHandler) loadMessageForMember(c *gin.Context) (models.Message, bool) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return models.Message{}, false
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return models.Message{}, false
	}

	userID := c.GetString("userID")
	member, status := h.checkMembership(c, msg.TargetKind, msg.TargetID, userID)
	if status != 0 {
		return models.Message{}, false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return models.Message{}, false
	}
	return msg, true
}

// checkMembership asks the membership source whether the user belongs to the
// target. A non-zero status means the response was already written.
func (h *MessageHandler) checkMembership(c *gin.Context, kind models.TargetKind, targetID, userID string) (bool, int) {
	recipients, err := h.recipients.ListRecipients(c.Request.Context(), kind, targetID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to verify membership"})
		return false, http.StatusBadGateway
	}
	for _, id := range recipients {
		if id == userID {
			return true, 0
		}
	}
	return false, 0
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func parseTarget(c *gin.Context) (models.TargetKind, string, bool) {
	switch models.TargetKind(c.Param("target_kind")) {
	case models.TargetConversation:
		return models.TargetConversation, c.Param("target_id"), true
	case models.TargetChannel:
		return models.TargetChannel, c.Param("target_id"), true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target kind"})
	return "", "", false
}

func redactDeleted(msg models.Message) models.Message {
	if msg.IsDeleted {
		msg.Content = ""
		msg.Media = nil
	}
	return msg
}

func messageErrStatus(err error) int {
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, repositories.ErrMessageDeleted):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
