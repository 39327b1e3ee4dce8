// Package snapcast provides a minimal JSON-RPC client for the snapcast
// multiroom server. Only the calls the appliance needs are implemented:
// server status, stream inspection, and client volume/mute.
package snapcast

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Leshauts/milo/pkg/errors"
)

const dialTimeout = 5 * time.Second

// Client is a connection to the snapcast control port. A nil *Client is
// safe to use; every call returns ErrNotConnected.
type Client struct {
	addr   string
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int
}

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	ID      int            `json:"id"`
	JSONRpc string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// response is the JSON-RPC 2.0 response envelope.
type response struct {
	ID      int             `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StreamStatus describes one snapcast stream.
type StreamStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // idle, playing, disabled
}

// ClientStatus describes one snapcast client on the bus.
type ClientStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Volume    int    `json:"volume"`
	Muted     bool   `json:"muted"`
}

// ServerStatus is the subset of Server.GetStatus the appliance uses.
type ServerStatus struct {
	Streams []StreamStatus `json:"streams"`
	Clients []ClientStatus `json:"clients"`
}

// New creates a client for the given control address. No connection is
// made until the first call.
func New(addr string) *Client {
	return &Client{addr: addr, nextID: 1}
}

// Connect dials the control port. Idempotent while connected.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return errors.ErrNotConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return errors.WrapRPC("snapcast", 0, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Status fetches the server status and flattens streams and clients out
// of snapcast's nested group structure.
func (c *Client) Status(ctx context.Context) (ServerStatus, error) {
	raw, err := c.call(ctx, "Server.GetStatus", nil)
	if err != nil {
		return ServerStatus{}, err
	}

	var payload struct {
		Server struct {
			Streams []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"streams"`
			Groups []struct {
				Clients []struct {
					ID        string `json:"id"`
					Connected bool   `json:"connected"`
					Config    struct {
						Name   string `json:"name"`
						Volume struct {
							Percent int  `json:"percent"`
							Muted   bool `json:"muted"`
						} `json:"volume"`
					} `json:"config"`
					Host struct {
						Name string `json:"name"`
					} `json:"host"`
				} `json:"clients"`
			} `json:"groups"`
		} `json:"server"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ServerStatus{}, errors.WrapRPC("snapcast", 0, err)
	}

	status := ServerStatus{}
	for _, s := range payload.Server.Streams {
		status.Streams = append(status.Streams, StreamStatus{ID: s.ID, Status: s.Status})
	}
	for _, g := range payload.Server.Groups {
		for _, cl := range g.Clients {
			name := cl.Config.Name
			if name == "" {
				name = cl.Host.Name
			}
			status.Clients = append(status.Clients, ClientStatus{
				ID:        cl.ID,
				Name:      name,
				Connected: cl.Connected,
				Volume:    cl.Config.Volume.Percent,
				Muted:     cl.Config.Volume.Muted,
			})
		}
	}
	return status, nil
}

// SetClientVolume sets one client's volume percent and mute flag.
func (c *Client) SetClientVolume(ctx context.Context, clientID string, percent int, muted bool) error {
	_, err := c.call(ctx, "Client.SetVolume", map[string]any{
		"id": clientID,
		"volume": map[string]any{
			"percent": percent,
			"muted":   muted,
		},
	})
	return err
}

// SetAllVolumes applies the same volume to every connected client. Used
// when the appliance's single system volume changes in multiroom mode.
func (c *Client) SetAllVolumes(ctx context.Context, percent int, muted bool) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	for _, cl := range status.Clients {
		if !cl.Connected {
			continue
		}
		if err := c.SetClientVolume(ctx, cl.ID, percent, muted); err != nil {
			return err
		}
	}
	return nil
}

// call performs one serialized request/response exchange. Snapcast sends
// newline-delimited JSON on the control port.
func (c *Client) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if c == nil {
		return nil, errors.ErrNotConnected
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errors.ErrNotConnected
	}

	id := c.nextID
	c.nextID++

	req := request{ID: id, JSONRpc: "2.0", Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	deadline := time.Now().Add(dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.dropConn(err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return nil, c.dropConn(err)
	}

	// Messages are newline-delimited, one JSON object per line, and a
	// single read may carry several. Notifications (no matching id) are
	// skipped until our response arrives.
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			return nil, c.dropConn(err)
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, c.dropConn(fmt.Errorf("malformed control message: %w", err))
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, errors.WrapRPC("snapcast", resp.Error.Code,
				fmt.Errorf("%s: %s", method, resp.Error.Message))
		}
		return resp.Result, nil
	}
}

// dropConn closes the connection after a transport error so the next
// call redials.
func (c *Client) dropConn(err error) error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	return errors.WrapRPC("snapcast", 0, err)
}
