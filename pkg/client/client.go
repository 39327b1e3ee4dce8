package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Leshauts/milo/pkg/errors"
)

const defaultTimeout = 10 * time.Second

// Client is the REST client for the milo command API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a REST client. baseURL is the server root including the
// API prefix, e.g. "http://milo.local:8080/api/v1".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// State fetches the current full state snapshot.
func (c *Client) State(ctx context.Context) (*State, error) {
	var st State
	if err := c.do(ctx, http.MethodGet, "/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Sources lists the selectable sources and which one is active.
func (c *Client) Sources(ctx context.Context) ([]SourceInfo, error) {
	var out []SourceInfo
	if err := c.do(ctx, http.MethodGet, "/sources", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActivateSource requests a switch to the given source. The server
// acknowledges acceptance; the outcome arrives as events.
func (c *Client) ActivateSource(ctx context.Context, source string) error {
	return c.do(ctx, http.MethodPost, "/sources/"+source+"/activate", nil, nil)
}

// Playback sends a playback command (play, pause, next, previous, seek)
// to the given source. positionMs is only meaningful for seek.
func (c *Client) Playback(ctx context.Context, source, command string, positionMs int64) error {
	var body any
	if positionMs > 0 {
		body = map[string]int64{"position_ms": positionMs}
	}
	return c.do(ctx, http.MethodPost, "/sources/"+source+"/playback/"+command, body, nil)
}

// SetVolume applies a volume change and returns the resulting volume.
func (c *Client) SetVolume(ctx context.Context, req VolumeRequest) (*Volume, error) {
	var vol Volume
	if err := c.do(ctx, http.MethodPost, "/volume", req, &vol); err != nil {
		return nil, err
	}
	return &vol, nil
}

// SetMultiroom enables or disables multiroom routing.
func (c *Client) SetMultiroom(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPost, "/routing/multiroom", map[string]bool{"enabled": enabled}, nil)
}

// SetEqualizer enables or disables the equalizer stage.
func (c *Client) SetEqualizer(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPost, "/routing/equalizer", map[string]bool{"enabled": enabled}, nil)
}

// Stats fetches the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do issues one request and decodes the response envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrapf(err, "decoding response from %s %s", method, path)
	}
	if env.Error != nil {
		return mapAPIError(resp.StatusCode, env.Error)
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "decoding response data")
		}
	}
	return nil
}

// mapAPIError translates wire error codes back into the package's
// sentinel errors so callers can use errors.Is.
func mapAPIError(status int, apiErr *apiError) error {
	switch apiErr.Code {
	case "BUSY":
		return errors.Wrap(errors.ErrBusy, apiErr.Message)
	case "NOT_FOUND":
		return errors.Wrap(errors.ErrInvalidSource, apiErr.Message)
	case "BAD_REQUEST":
		return errors.Wrap(errors.ErrInvalidInput, apiErr.Message)
	case "NO_ACTIVE_SOURCE":
		return errors.Wrap(errors.ErrNoActiveSource, apiErr.Message)
	case "SERVICE_UNAVAILABLE":
		return errors.Wrap(errors.ErrBackend, apiErr.Message)
	}
	return errors.Errorf("status %d: %s", status, apiErr.Error())
}
