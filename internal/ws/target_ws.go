package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"rtc-service/internal/directory"
	"rtc-service/internal/models"
	"rtc-service/internal/observability"
)

// TargetSocketHandler subscribes clients to message-state updates of a
// conversation or channel.
type TargetSocketHandler struct {
	hub        *Hub
	recipients directory.RecipientLister
	validator  directory.TokenValidator
}

// NewTargetSocketHandler constructs a TargetSocketHandler.
func NewTargetSocketHandler(hub *Hub, recipients directory.RecipientLister, validator directory.TokenValidator) *TargetSocketHandler {
	return &TargetSocketHandler{hub: hub, recipients: recipients, validator: validator}
}

// Handle upgrades the connection and registers the client under the target
// scope. Only members of the conversation or channel may subscribe.
func (h *TargetSocketHandler) Handle(c *gin.Context) {
	kind, ok := parseTargetKind(c.Param("target_kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target kind"})
		return
	}
	targetID := c.Param("target_id")

	ctx, span := otel.Tracer("rtc-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := resolveToken(ctx, h.validator, c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	recipients, err := h.recipients.ListRecipients(ctx, kind, targetID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to verify membership"})
		return
	}
	if !contains(recipients, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	scope := models.TargetScope(kind, targetID)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(scope, conn, info)

	observability.IncWSActive(string(kind))
	publishLifecycleEvent(ctx, scope, "ws_connect", "", info)

	go readLoop(ctx, h.hub, scope, conn, info)
}

func parseTargetKind(raw string) (models.TargetKind, bool) {
	switch models.TargetKind(raw) {
	case models.TargetConversation:
		return models.TargetConversation, true
	case models.TargetChannel:
		return models.TargetChannel, true
	}
	return "", false
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
