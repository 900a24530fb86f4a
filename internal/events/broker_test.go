package events

import (
	"testing"

	"github.com/stretchr/testify/mock"

	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
	"rtc-service/internal/observability"
	"rtc-service/internal/ws"
)

func TestBrokerMirrorsToExchange(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("PublishJSON", mock.Anything, "rtc_events.session", mock.Anything, mock.Anything).Return(nil).Once()
	observability.SetPublisher(publisher)
	defer observability.SetPublisher(observability.NewPublisher("", ""))

	broker := NewBroker(ws.NewHub())
	broker.Publish(models.SessionScope("abc12345"), models.Event{Type: "session_created"})
	broker.Close()

	publisher.AssertExpectations(t)
}

func TestBrokerCloseIsIdempotent(t *testing.T) {
	broker := NewBroker(ws.NewHub())
	broker.Close()
	broker.Close()
}

func TestBrokerDropsPublishAfterClose(t *testing.T) {
	broker := NewBroker(ws.NewHub())
	broker.Close()

	broker.Publish(models.UserScope("u1"), models.Event{Type: "session_created"})
}

func TestScopeKindSplitsOnColon(t *testing.T) {
	if got := scopeKind(models.ConversationScope("42")); got != "conversation" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := scopeKind(models.Scope("weird")); got != "unknown" {
		t.Fatalf("unexpected kind %q", got)
	}
}
