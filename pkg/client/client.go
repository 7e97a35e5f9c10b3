// Package client talks to a molviz server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
)

// Client is a molviz server client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Presets is the server's preset catalogue.
type Presets struct {
	Presets []molviz.PresetConfig `json:"presets"`
	Default string                `json:"default"`
}

// Styles lists the render styles the server accepts.
type Styles struct {
	Styles  []molviz.RenderStyle `json:"styles"`
	Default molviz.RenderStyle   `json:"default"`
}

func (c *Client) do(ctx context.Context, method string, path []string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method string, path []string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, nil, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Presets fetches the preset catalogue.
func (c *Client) Presets(ctx context.Context) (Presets, error) {
	var p Presets
	err := c.doJSON(ctx, http.MethodGet, []string{"presets"}, nil, &p)
	return p, err
}

// Styles fetches the style list.
func (c *Client) Styles(ctx context.Context) (Styles, error) {
	var s Styles
	err := c.doJSON(ctx, http.MethodGet, []string{"styles"}, nil, &s)
	return s, err
}

// CreateSession opens a session and returns its ID.
func (c *Client) CreateSession(ctx context.Context) (molviz.SessionID, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, []string{"sessions"}, nil, &out); err != nil {
		return "", err
	}
	return molviz.SessionID(out.ID), nil
}

// ListSessions returns every open session.
func (c *Client) ListSessions(ctx context.Context) ([]molviz.SessionID, error) {
	var out struct {
		Sessions []molviz.SessionID `json:"sessions"`
	}
	err := c.doJSON(ctx, http.MethodGet, []string{"sessions"}, nil, &out)
	return out.Sessions, err
}

// DeleteSession closes a session.
func (c *Client) DeleteSession(ctx context.Context, id molviz.SessionID) error {
	return c.doJSON(ctx, http.MethodDelete, []string{"session", string(id)}, nil, nil)
}

// Status returns a session's selection, latest token and last error.
func (c *Client) Status(ctx context.Context, id molviz.SessionID) (molviz.SessionStatus, error) {
	var st molviz.SessionStatus
	err := c.doJSON(ctx, http.MethodGet, []string{"session", string(id), "selection"}, nil, &st)
	return st, err
}

// SelectMolecule switches a session to a preset.
func (c *Client) SelectMolecule(ctx context.Context, id molviz.SessionID, preset string) (molviz.SessionStatus, error) {
	var st molviz.SessionStatus
	err := c.doJSON(ctx, http.MethodPost, []string{"session", string(id), "molecule"},
		map[string]string{"preset": preset}, &st)
	return st, err
}

// SelectStyle switches a session's render style.
func (c *Client) SelectStyle(ctx context.Context, id molviz.SessionID, style molviz.RenderStyle) (molviz.SessionStatus, error) {
	var st molviz.SessionStatus
	err := c.doJSON(ctx, http.MethodPost, []string{"session", string(id), "style"},
		map[string]string{"style": style.String()}, &st)
	return st, err
}

// Upload sends a PDB file. The server rejects names without a .pdb extension.
func (c *Client) Upload(ctx context.Context, id molviz.SessionID, fileName string, r io.Reader) (molviz.SessionStatus, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return molviz.SessionStatus{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return molviz.SessionStatus{}, fmt.Errorf("reading upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return molviz.SessionStatus{}, err
	}

	resp, err := c.do(ctx, http.MethodPost, []string{"session", string(id), "upload"}, nil, &buf, mw.FormDataContentType())
	if err != nil {
		return molviz.SessionStatus{}, err
	}
	defer resp.Body.Close()

	var st molviz.SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return molviz.SessionStatus{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return st, nil
}

// Scene fetches the session's current scene graph.
func (c *Client) Scene(ctx context.Context, id molviz.SessionID) (*molviz.SceneGraph, error) {
	var g molviz.SceneGraph
	if err := c.doJSON(ctx, http.MethodGet, []string{"session", string(id), "scene"}, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// WaitForScene polls until the session's scene carries at least token.
func (c *Client) WaitForScene(ctx context.Context, id molviz.SessionID, token uint64, poll time.Duration) (*molviz.SceneGraph, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		g, err := c.Scene(ctx, id)
		if err == nil && g.Token >= token {
			return g, nil
		}
		if se, ok := err.(*StatusError); err != nil && (!ok || se.StatusCode != http.StatusNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Frame returns the session's current frame as PNG bytes.
func (c *Client) Frame(ctx context.Context, id molviz.SessionID) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, []string{"session", string(id), "frame.png"}, nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Resize changes the session's viewport.
func (c *Client) Resize(ctx context.Context, id molviz.SessionID, v molviz.Viewport) error {
	return c.doJSON(ctx, http.MethodPost, []string{"session", string(id), "viewport"}, v, nil)
}

// Start runs the session's render loop at interval.
func (c *Client) Start(ctx context.Context, id molviz.SessionID, interval time.Duration) error {
	q := url.Values{"interval": {strconv.FormatInt(interval.Milliseconds(), 10)}}
	resp, err := c.do(ctx, http.MethodPost, []string{"session", string(id), "start"}, q, nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Stop pauses the session's render loop.
func (c *Client) Stop(ctx context.Context, id molviz.SessionID) error {
	return c.doJSON(ctx, http.MethodPost, []string{"session", string(id), "stop"}, nil, nil)
}

// SaveSnapshot asks the server to write the session's scene and returns the
// server-side path.
func (c *Client) SaveSnapshot(ctx context.Context, id molviz.SessionID) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	err := c.doJSON(ctx, http.MethodPost, []string{"session", string(id), "snapshot"}, nil, &out)
	return out.Path, err
}

// Snapshot reads the last snapshot written for the session.
func (c *Client) Snapshot(ctx context.Context, id molviz.SessionID) (molviz.Snapshot, error) {
	var s molviz.Snapshot
	err := c.doJSON(ctx, http.MethodGet, []string{"session", string(id), "snapshot"}, nil, &s)
	return s, err
}

// RegisterWebhook registers a webhook notifier. With no kinds every event
// kind is delivered.
func (c *Client) RegisterWebhook(ctx context.Context, id, hookURL string, kinds ...molviz.EventKind) error {
	cfg := map[string]any{"url": hookURL}
	if len(kinds) > 0 {
		cfg["events"] = kinds
	}
	req := map[string]any{"type": "webhook", "id": id, "config": cfg}
	return c.doJSON(ctx, http.MethodPost, []string{"notifiers"}, req, nil)
}

// UnregisterNotifier removes a notifier.
func (c *Client) UnregisterNotifier(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, []string{"notifiers", id}, nil, nil)
}
