package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Leshauts/milo/internal/server/events"
)

func testHub() (*Hub, context.CancelFunc) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (at %d)", want, hub.ClientCount())
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub, cancel := testHub()
	defer cancel()

	client := NewClient("c1", hub, nil)
	hub.Register(client)
	waitForCount(t, hub, 1)

	event := events.New(events.VolumeChanged, map[string]any{"level": 40}, "coordinator")
	hub.Broadcast(event)

	select {
	case got := <-client.send:
		if got.Kind != events.VolumeChanged {
			t.Errorf("expected %s, got %s", events.VolumeChanged, got.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, cancel := testHub()
	defer cancel()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = NewClient("c", hub, nil)
		hub.Register(clients[i])
	}
	waitForCount(t, hub, 3)

	hub.Broadcast(events.New(events.StateChanged, nil, "system"))

	for i, client := range clients {
		select {
		case <-client.send:
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d never received the event", i)
		}
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub, cancel := testHub()
	defer cancel()

	client := NewClient("slow", hub, nil)
	hub.Register(client)
	waitForCount(t, hub, 1)

	// Fill the client's buffer so the next delivery cannot proceed
	filler := events.New(events.VolumeChanged, nil, "test")
	for i := 0; i < cap(client.send); i++ {
		client.send <- filler
	}

	hub.Broadcast(events.New(events.VolumeChanged, nil, "test"))

	// The hub drops clients it cannot deliver to
	waitForCount(t, hub, 0)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := testHub()

	client := NewClient("c1", hub, nil)
	hub.Register(client)
	waitForCount(t, hub, 1)

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-client.send:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("send channel never closed on shutdown")
		}
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	// No Run loop draining the broadcast channel

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast(events.New(events.VolumeChanged, nil, "test"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full channel")
	}
}
