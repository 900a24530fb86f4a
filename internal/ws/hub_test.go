package ws

import (
	"testing"

	"rtc-service/internal/models"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()
	scope := models.SessionScope("abc12345")

	hub.AddClient(scope, nil, ConnInfo{ConnID: "c1", UserID: "alice"})
	if hub.Subscribers(scope) != 1 {
		t.Fatalf("expected one subscriber")
	}

	hub.RemoveClient(scope, nil)
	if len(hub.rooms) != 0 {
		t.Fatalf("expected scope to be removed")
	}
	if len(hub.connInfo) != 0 {
		t.Fatalf("expected conn info to be removed")
	}
}

func TestHubScopesAreIndependent(t *testing.T) {
	hub := NewHub()

	hub.AddClient(models.ConversationScope("7"), nil, ConnInfo{ConnID: "c1"})
	hub.AddClient(models.ChannelScope("7"), nil, ConnInfo{ConnID: "c2"})

	if hub.Subscribers(models.ConversationScope("7")) != 1 {
		t.Fatalf("expected conversation subscriber")
	}
	if hub.Subscribers(models.ChannelScope("7")) != 1 {
		t.Fatalf("expected channel subscriber")
	}

	hub.RemoveClient(models.ConversationScope("7"), nil)
	if hub.Subscribers(models.ChannelScope("7")) != 1 {
		t.Fatalf("removing one scope must not touch the other")
	}
}

func TestScopeKind(t *testing.T) {
	if got := scopeKind(models.SessionScope("x")); got != "session" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := scopeKind(models.UserScope("u1")); got != "user" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := scopeKind(models.Scope("bare")); got != "unknown" {
		t.Fatalf("unexpected kind %q", got)
	}
}
