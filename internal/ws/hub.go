package ws

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rtc-service/internal/models"
	"rtc-service/internal/observability"
)

// Hub maintains the active websocket subscribers per fan-out scope. Sessions,
// conversations, channels and user-targeted notices all share the same map;
// the scope key carries the kind.
type Hub struct {
	rooms    map[models.Scope]map[*websocket.Conn]bool
	connInfo map[models.Scope]map[*websocket.Conn]ConnInfo
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[models.Scope]map[*websocket.Conn]bool),
		connInfo: make(map[models.Scope]map[*websocket.Conn]ConnInfo),
	}
}

// AddClient registers a websocket connection under a scope.
func (h *Hub) AddClient(scope models.Scope, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[scope]; !ok {
		h.rooms[scope] = make(map[*websocket.Conn]bool)
	}
	h.rooms[scope][conn] = true
	if _, ok := h.connInfo[scope]; !ok {
		h.connInfo[scope] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[scope][conn] = info
}

// RemoveClient removes a connection from a scope, dropping the scope entry
// once the last subscriber is gone.
func (h *Hub) RemoveClient(scope models.Scope, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[scope]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, scope)
		}
	}
	if infos, ok := h.connInfo[scope]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, scope)
		}
	}
}

// Subscribers reports how many connections a scope currently has.
func (h *Hub) Subscribers(scope models.Scope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[scope])
}

// Broadcast sends the event to every connection subscribed to the scope.
// Failed writes close and evict the connection.
func (h *Hub) Broadcast(scope models.Scope, event models.Event) {
	h.mu.RLock()
	conns := h.rooms[scope]
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveClient(scope, conn)
			h.publishWSError(scope, conn, err)
		}
	}
}

func (h *Hub) publishWSError(scope models.Scope, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(scope, conn)
	if !ok {
		return
	}

	kind := scopeKind(scope)
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"scope":       string(scope),
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events."+kind, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent(kind, "ws_error")
}

func (h *Hub) getConnInfo(scope models.Scope, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[scope]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

func scopeKind(scope models.Scope) string {
	if idx := strings.IndexByte(string(scope), ':'); idx > 0 {
		return string(scope)[:idx]
	}
	return "unknown"
}
