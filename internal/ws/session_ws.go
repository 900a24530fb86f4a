package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"rtc-service/internal/directory"
	"rtc-service/internal/models"
	"rtc-service/internal/observability"
	"rtc-service/internal/session"
)

// SessionSocketHandler subscribes clients to the roster updates of a session.
type SessionSocketHandler struct {
	hub       *Hub
	engine    *session.Engine
	validator directory.TokenValidator
}

// NewSessionSocketHandler constructs a SessionSocketHandler.
func NewSessionSocketHandler(hub *Hub, engine *session.Engine, validator directory.TokenValidator) *SessionSocketHandler {
	return &SessionSocketHandler{hub: hub, engine: engine, validator: validator}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client under the session
// scope. Only active participants may subscribe.
func (h *SessionSocketHandler) Handle(c *gin.Context) {
	sessionID := c.Param("session_id")

	ctx, span := otel.Tracer("rtc-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := resolveToken(ctx, h.validator, c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	sess, err := h.engine.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !isActiveParticipant(sess, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a session participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	scope := models.SessionScope(sessionID)
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

	observability.IncWSActive("session")
	publishLifecycleEvent(ctx, scope, "ws_connect", "", info)

	go readLoop(ctx, h.hub, scope, conn, info)
}

// readLoop keeps the connection alive and cleans up on close. Incoming frames
// carry no commands; mutations go through HTTP.
func readLoop(ctx context.Context, hub *Hub, scope models.Scope, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		hub.RemoveClient(scope, conn)
		observability.DecWSActive(scopeKind(scope))
		publishLifecycleEvent(ctx, scope, "ws_disconnect", closeReason, info)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycleEvent(ctx, scope, "ws_error", closeReason, info)
			}
			return
		}
	}
}

func resolveToken(ctx context.Context, validator directory.TokenValidator, c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			header = "Bearer " + token
		}
	}

	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return validator.Validate(ctx, parts[1])
	}
	return "", fmt.Errorf("invalid token")
}

func isActiveParticipant(sess models.Session, userID string) bool {
	for _, p := range sess.Participants {
		if p.UserID == userID && p.Active() {
			return true
		}
	}
	return false
}
