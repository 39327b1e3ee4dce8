package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Subscription names a consumer of real-time events. Kinds filters
// delivery to the listed "category.type" kinds; an empty list means
// every event. Handler is called from the channel's read goroutine, so
// it must not block.
type Subscription struct {
	ID      string
	Kinds   []string
	Handler func(Event)
}

// Registry manages the event channel by subscriber count: the first
// Subscribe opens it, the last Unsubscribe closes it and drops the
// cached state. Subscribers that join while the channel is already
// open are caught up with a synchronous snapshot fetch so they never
// start from a blank state.
type Registry struct {
	api     *Client
	channel *Channel
	logger  *zerolog.Logger

	mu   sync.Mutex
	subs map[string]Subscription
}

// NewRegistry creates a registry around a REST client and a WebSocket
// URL. The channel is not opened until the first subscription.
func NewRegistry(api *Client, wsURL string, logger *zerolog.Logger) *Registry {
	r := &Registry{
		api:    api,
		logger: logger,
		subs:   make(map[string]Subscription),
	}
	r.channel = NewChannel(wsURL, r.dispatch, logger)
	r.channel.OnReconnect(r.resync)
	return r
}

// Subscribe registers a subscription. Adding an ID that is already
// registered is a no-op. If this is the first subscription the channel
// is opened; the opening handshake delivers the initial snapshot over
// the socket. If the channel is already open, the new subscriber alone
// receives a synthetic state_changed built from a fresh REST snapshot.
func (r *Registry) Subscribe(sub Subscription) error {
	r.mu.Lock()
	if _, exists := r.subs[sub.ID]; exists {
		r.mu.Unlock()
		return nil
	}
	first := len(r.subs) == 0
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	if first {
		if err := r.channel.Connect(); err != nil {
			r.mu.Lock()
			delete(r.subs, sub.ID)
			r.mu.Unlock()
			return err
		}
		return nil
	}

	// Late joiner: the snapshot events already went out before this
	// handler existed, so fetch one and hand it over directly.
	st, err := r.snapshot()
	if err != nil {
		r.logger.Warn().Err(err).Str("subscription", sub.ID).
			Msg("Catch-up snapshot fetch failed")
		return nil
	}
	deliver(sub, syntheticStateChanged(st))
	return nil
}

// Unsubscribe removes a subscription by ID. Unknown IDs are a no-op.
// Removing the last subscription closes the channel.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	if _, exists := r.subs[id]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.subs, id)
	last := len(r.subs) == 0
	r.mu.Unlock()

	if last {
		r.channel.Close()
	}
}

// Count returns the number of active subscriptions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// CachedState returns the channel's most recent full state, or nil.
func (r *Registry) CachedState() *State {
	return r.channel.CachedState()
}

// dispatch fans one event out to every matching subscription.
func (r *Registry) dispatch(evt Event) {
	r.mu.Lock()
	targets := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		targets = append(targets, sub)
	}
	r.mu.Unlock()

	for _, sub := range targets {
		deliver(sub, evt)
	}
}

// resync runs after a reconnect. Events emitted during the outage are
// gone, so every subscriber gets a fresh snapshot to rebase on. The
// server also sends its own snapshot frame on connect; delivering the
// REST one too is harmless because state_changed is absolute.
func (r *Registry) resync() {
	st, err := r.snapshot()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Post-reconnect snapshot fetch failed")
		return
	}
	r.dispatch(syntheticStateChanged(st))
}

func (r *Registry) snapshot() (*State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.api.State(ctx)
}

func deliver(sub Subscription, evt Event) {
	if len(sub.Kinds) > 0 {
		kind := evt.Kind()
		match := false
		for _, k := range sub.Kinds {
			if k == kind {
				match = true
				break
			}
		}
		if !match {
			return
		}
	}
	sub.Handler(evt)
}

// syntheticStateChanged wraps a REST snapshot in the same shape the
// server uses on the wire, so handlers cannot tell the two apart.
func syntheticStateChanged(st *State) Event {
	return Event{
		Category:  "system",
		Type:      "state_changed",
		Data:      map[string]any{"full_state": st},
		Source:    "client",
		Timestamp: time.Now().UnixMilli(),
	}
}
