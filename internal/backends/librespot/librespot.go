// Package librespot provides a REST client for the go-librespot daemon's
// local API: playback transport commands and a status fetch mapped onto
// the appliance's playback metadata.
package librespot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Leshauts/milo/internal/state"
	"github.com/Leshauts/milo/pkg/errors"
)

// Client talks to one go-librespot daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the daemon at addr (host:port).
func New(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// status is the subset of go-librespot's GET /status payload we use.
type status struct {
	Username string `json:"username"`
	DeviceID string `json:"device_id"`
	Stopped  bool   `json:"stopped"`
	Paused   bool   `json:"paused"`
	Track    *struct {
		Name        string   `json:"name"`
		ArtistNames []string `json:"artist_names"`
		AlbumName   string   `json:"album_name"`
		AlbumCover  string   `json:"album_cover_url"`
		Position    int64    `json:"position"`
		Duration    int64    `json:"duration"`
	} `json:"track"`
}

// Status fetches the daemon state as playback metadata.
func (c *Client) Status(ctx context.Context) (state.PlaybackMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return state.PlaybackMetadata{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return state.PlaybackMetadata{}, errors.WrapRPC("librespot", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return state.PlaybackMetadata{}, errors.WrapRPC("librespot", resp.StatusCode,
			fmt.Errorf("GET /status: %s", resp.Status))
	}

	var st status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return state.PlaybackMetadata{}, errors.WrapRPC("librespot", 0, err)
	}

	meta := state.PlaybackMetadata{
		Connected: st.Username != "",
		Playing:   !st.Stopped && !st.Paused,
		UpdatedAt: time.Now(),
	}
	if st.Track != nil {
		meta.Title = st.Track.Name
		if len(st.Track.ArtistNames) > 0 {
			meta.Artist = st.Track.ArtistNames[0]
		}
		meta.Album = st.Track.AlbumName
		meta.ArtworkURL = st.Track.AlbumCover
		meta.Position = st.Track.Position
		meta.Duration = st.Track.Duration
	}
	return meta, nil
}

// Play resumes playback.
func (c *Client) Play(ctx context.Context) error {
	return c.post(ctx, "/player/resume", nil)
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/player/pause", nil)
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	return c.post(ctx, "/player/next", nil)
}

// Previous skips to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	return c.post(ctx, "/player/prev", nil)
}

// Seek moves playback to the given position.
func (c *Client) Seek(ctx context.Context, positionMs int64) error {
	return c.post(ctx, "/player/seek", map[string]any{"position": positionMs})
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapRPC("librespot", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return errors.WrapRPC("librespot", resp.StatusCode,
			fmt.Errorf("POST %s: %s", path, resp.Status))
	}
	return nil
}
