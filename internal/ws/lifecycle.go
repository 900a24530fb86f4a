package ws

import (
	"context"
	"time"

	"rtc-service/internal/models"
	"rtc-service/internal/observability"
)

// publishLifecycleEvent mirrors a connect/disconnect/error transition of a
// websocket subscriber onto the observability exchange.
func publishLifecycleEvent(ctx context.Context, scope models.Scope, event, reason string, info ConnInfo) {
	kind := scopeKind(scope)
	durationMS := int64(0)
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}

	observability.IncWSEvent(kind, event)
	_ = observability.PublishEvent(ctx, "ws_events."+kind, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"scope":       string(scope),
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": durationMS,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
