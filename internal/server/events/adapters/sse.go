package adapters

import (
	"fmt"

	"github.com/Leshauts/milo/internal/server/events"
	"github.com/Leshauts/milo/internal/server/sse"
)

// SSESubscriber adapts the SSE broadcaster to the Subscriber interface.
type SSESubscriber struct {
	broadcaster *sse.Broadcaster
}

// NewSSESubscriber creates a new SSE subscriber.
func NewSSESubscriber(broadcaster *sse.Broadcaster) *SSESubscriber {
	return &SSESubscriber{broadcaster: broadcaster}
}

// Send delivers an event to all SSE clients.
func (s *SSESubscriber) Send(event events.Event) error {
	s.broadcaster.Broadcast(sse.Event{
		Event: string(event.Kind),
		ID:    fmt.Sprintf("%d", event.Timestamp),
		Data:  event,
	})
	return nil
}

// Close is a no-op for SSE (broadcaster manages its own lifecycle).
func (s *SSESubscriber) Close() error {
	return nil
}
