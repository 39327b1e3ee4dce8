package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Leshauts/milo/pkg/errors"
)

const (
	// pongWait is how long the channel waits for any traffic (events or
	// pong frames) before declaring the connection dead.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so the server has time
	// to answer before the deadline fires.
	pingPeriod = 20 * time.Second

	writeWait = 10 * time.Second

	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Channel maintains one WebSocket connection to the server's event
// endpoint and delivers every incoming event to a single callback.
// While open, it reconnects on its own with bounded exponential
// backoff; the only reconnect signal surfaced to callers is the
// OnReconnect hook, which fires after a new connection is established.
type Channel struct {
	url     string
	logger  *zerolog.Logger
	onEvent func(Event)

	mu          sync.Mutex
	conn        *websocket.Conn
	cancel      context.CancelFunc
	running     bool
	connected   bool
	onReconnect func()

	stateMu sync.RWMutex
	cached  *State
}

// NewChannel creates a channel for the given WebSocket URL, e.g.
// "ws://milo.local:8080/api/v1/events/ws". Events are delivered to
// onEvent in connection order.
func NewChannel(url string, onEvent func(Event), logger *zerolog.Logger) *Channel {
	return &Channel{
		url:     url,
		onEvent: onEvent,
		logger:  logger,
	}
}

// OnReconnect sets the hook called after every reconnection (not the
// initial connect). Must be set before Connect.
func (c *Channel) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

// Connect dials the server and starts the read loop. The first dial is
// synchronous so the caller learns immediately whether the server is
// reachable; after that the channel keeps itself connected until Close.
// Calling Connect on an open channel is a no-op.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}

	conn, err := c.dial()
	if err != nil {
		c.mu.Unlock()
		return errors.Wrap(err, "connecting event channel")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.running = true
	c.connected = true
	c.mu.Unlock()

	go c.run(ctx, conn)
	return nil
}

// Close shuts the channel down and drops the cached state. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.connected = false
	c.cancel()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.stateMu.Lock()
	c.cached = nil
	c.stateMu.Unlock()
}

// Connected reports whether the channel currently has a live connection.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.connected
}

// CachedState returns the most recent full state seen on the channel,
// or nil if none has arrived since the channel opened.
func (c *Channel) CachedState() *State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.cached == nil {
		return nil
	}
	st := *c.cached
	return &st
}

func (c *Channel) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.url, nil)
	return conn, err
}

// run owns the connection lifecycle: read until failure, then
// reconnect with backoff while the channel is still open.
func (c *Channel) run(ctx context.Context, conn *websocket.Conn) {
	for {
		c.readLoop(ctx, conn)

		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			return
		}
		c.connected = false
		c.mu.Unlock()

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}
	}
}

// reconnect dials with exponential backoff until it succeeds or the
// channel is closed. Fires the OnReconnect hook on success.
func (c *Channel) reconnect(ctx context.Context) *websocket.Conn {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		conn, err := c.dial()
		if err == nil {
			c.mu.Lock()
			if !c.running {
				c.mu.Unlock()
				_ = conn.Close()
				return nil
			}
			c.conn = conn
			c.connected = true
			hook := c.onReconnect
			c.mu.Unlock()

			c.logger.Info().Str("url", c.url).Msg("Event channel reconnected")
			if hook != nil {
				hook()
			}
			return conn
		}

		c.logger.Debug().Err(err).Dur("backoff", backoff).Msg("Event channel reconnect failed")
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// readLoop reads events until the connection fails or the channel
// closes. A ping ticker keeps the connection verified; any read
// resets the deadline.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)

	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			select {
			case <-ctx.Done():
			default:
				c.logger.Debug().Err(err).Msg("Event channel read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if st := evt.FullState(); st != nil {
			c.stateMu.Lock()
			c.cached = st
			c.stateMu.Unlock()
		}

		if c.onEvent != nil {
			c.onEvent(evt)
		}
	}
}

func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
