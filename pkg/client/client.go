// Package client is the Go SDK for a zerobase server. A Client is bound to one
// project and authenticates every call with that project's API key; Admin
// covers the dashboard-facing project endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/model"
)

// Re-exported wire types.
type (
	Project            = model.Project
	ProvisionedProject = model.ProvisionedProject
	Document           = model.Document
	Table              = model.Table
	Column             = model.Column
	Index              = model.Index
	Extension          = model.Extension
	LogEntry           = model.LogEntry
	AuthResult         = model.AuthResult
	StorageInfo        = model.StorageInfo
	FileInfo           = model.FileInfo
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("zerobase: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("zerobase: %d: %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// Option configures a Client or Admin.
type Option func(*transport)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *transport) { t.hc = hc }
}

// WithOrigin sends an Origin header, as a browser on that origin would.
func WithOrigin(origin string) Option {
	return func(t *transport) { t.origin = origin }
}

// WithLogger sets the logger used by the realtime connection.
func WithLogger(log *zap.Logger) Option {
	return func(t *transport) { t.log = log }
}

type transport struct {
	base   string
	hc     *http.Client
	origin string
	log    *zap.Logger
	header func(h http.Header)
}

func newTransport(baseURL string, opts []Option) transport {
	t := transport{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
		log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(&t)
	}
	return t
}

func (t *transport) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := t.base + "/api" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if t.origin != "" {
		req.Header.Set("Origin", t.origin)
	}
	if t.header != nil {
		t.header(req.Header)
	}
	return req, nil
}

// doJSON sends in (when non-nil) as JSON and decodes the response into out (when non-nil).
func (t *transport) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := t.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return t.send(req, out)
}

func (t *transport) send(req *http.Request, out any) error {
	resp, err := t.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeJSON(resp.Body, out)
}

// decodeJSON keeps numbers as json.Number so large ids survive.
func decodeJSON(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &e) != nil {
		e.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Message: e.Error}
}

// Client talks to one project.
type Client struct {
	transport
	projectID string
	apiKey    string

	mu      sync.RWMutex
	session string

	Database *Database
	Auth     *Auth
	Storage  *Storage
	Realtime *Realtime
}

// New returns a Client for projectID authenticated by apiKey.
func New(baseURL, projectID, apiKey string, opts ...Option) *Client {
	c := &Client{transport: newTransport(baseURL, opts), projectID: projectID, apiKey: apiKey}
	c.header = func(h http.Header) { h.Set("X-API-Key", apiKey) }
	c.Database = &Database{c: c}
	c.Auth = &Auth{c: c}
	c.Storage = &Storage{c: c}
	c.Realtime = newRealtime(c)
	return c
}

// ProjectID returns the project the client is bound to.
func (c *Client) ProjectID() string { return c.projectID }

// SetSession stores the tenant session token used by session routes.
func (c *Client) SetSession(token string) {
	c.mu.Lock()
	c.session = token
	c.mu.Unlock()
}

// Session returns the stored tenant session token.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) projectQuery(extra url.Values) url.Values {
	q := url.Values{"projectId": {c.projectID}}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

// Logs returns the project's activity log, newest first.
func (c *Client) Logs(ctx context.Context, limit, offset int) ([]LogEntry, error) {
	q := c.projectQuery(url.Values{"limit": {fmt.Sprint(limit)}, "offset": {fmt.Sprint(offset)}})
	var out []LogEntry
	err := c.doJSON(ctx, http.MethodGet, "/logs", q, nil, &out)
	return out, err
}

// RealtimeStats reports live websocket connections for the project.
type RealtimeStats struct {
	ProjectID   string         `json:"projectId"`
	Connections int            `json:"connections"`
	Tables      map[string]int `json:"tables"`
}

// Stats returns the server-side realtime counters of the project.
func (c *Client) Stats(ctx context.Context) (RealtimeStats, error) {
	var out RealtimeStats
	err := c.doJSON(ctx, http.MethodGet, "/realtime/stats", c.projectQuery(nil), nil, &out)
	return out, err
}
