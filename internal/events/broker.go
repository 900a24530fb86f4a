package events

import (
	"context"
	"log"
	"strings"
	"sync"

	"rtc-service/internal/models"
	"rtc-service/internal/observability"
	"rtc-service/internal/ws"
)

const defaultQueueSize = 1024

// Broker distributes committed state deltas to connected subscribers and to
// the external notification exchange. Publish never blocks and never fails
// the mutation that produced the event: the state change is already the
// source of truth, presence notification is best effort.
type Broker struct {
	hub   *ws.Hub
	queue chan envelope
	done  chan struct{}
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

type envelope struct {
	scope models.Scope
	event models.Event
}

// NewBroker starts the delivery worker.
func NewBroker(hub *ws.Hub) *Broker {
	b := &Broker{
		hub:   hub,
		queue: make(chan envelope, defaultQueueSize),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Publish enqueues the event for delivery. On overflow, or once the broker is
// shut down, the event is dropped and counted; connected clients resync
// through the query endpoints.
func (b *Broker) Publish(scope models.Scope, event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		observability.IncFanoutDropped()
		return
	}

	select {
	case b.queue <- envelope{scope: scope, event: event}:
	default:
		observability.IncFanoutDropped()
		log.Printf("fanout queue full, dropped event scope=%s type=%s", scope, event.Type)
	}
}

// Close drains the queue and stops the worker. In-flight Publish calls finish
// before the queue closes; later ones drop their events.
func (b *Broker) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.queue)
		<-b.done
	})
}

func (b *Broker) run() {
	defer close(b.done)
	for env := range b.queue {
		b.hub.Broadcast(env.scope, env.event)
		observability.IncFanoutDelivered(scopeKind(env.scope), env.event.Type)

		// Mirror to the notification exchange so the external push system
		// can reach parties without a live socket. Failures are counted and
		// swallowed inside PublishEvent.
		_ = observability.PublishEvent(context.Background(), "rtc_events."+scopeKind(env.scope), observability.EventEnvelope{
			EventType: "rtc_events",
			EventName: env.event.Type,
			Payload: map[string]interface{}{
				"scope": string(env.scope),
				"event": env.event,
			},
		}, nil)
	}
}

func scopeKind(scope models.Scope) string {
	if idx := strings.IndexByte(string(scope), ':'); idx > 0 {
		return string(scope)[:idx]
	}
	return "unknown"
}
