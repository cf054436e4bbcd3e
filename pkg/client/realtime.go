package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Close codes the server uses to refuse a handshake. They end Run instead of
// triggering a reconnect.
const (
	CloseMissingCredentials = 4001
	CloseInvalidKey         = 4003
	CloseProjectNotFound    = 4004
)

// Event is a frame received from the realtime channel.
type Event struct {
	Type  string          `json:"type"`
	Table string          `json:"table,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    int64           `json:"ts,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Handler receives change events for a subscribed table. It runs on the
// connection's read loop and should not block.
type Handler func(Event)

type frame struct {
	Type  string `json:"type"`
	Table string `json:"table"`
}

// Realtime is the project's change feed. Subscriptions survive reconnects.
type Realtime struct {
	c       *Client
	dialer  *websocket.Dialer
	base    time.Duration
	ceiling time.Duration

	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	conn   *websocket.Conn

	writeMu sync.Mutex
}

func newRealtime(c *Client) *Realtime {
	return &Realtime{
		c:       c,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		base:    time.Second,
		ceiling: 30 * time.Second,
		subs:    make(map[string]map[int]Handler),
	}
}

// SetBackoff overrides the reconnect backoff (1s doubling up to 30s).
func (r *Realtime) SetBackoff(base, ceiling time.Duration) {
	r.base, r.ceiling = base, ceiling
}

// Subscribe registers h for change events on table and returns a function
// that removes it. The subscribe frame is sent immediately when connected and
// again after every reconnect.
func (r *Realtime) Subscribe(table string, h Handler) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	set, ok := r.subs[table]
	if !ok {
		set = make(map[int]Handler)
		r.subs[table] = set
	}
	set[id] = h
	conn := r.conn
	r.mu.Unlock()

	if !ok && conn != nil {
		r.write(conn, frame{Type: "subscribe", Table: table})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs[table], id)
			last := len(r.subs[table]) == 0
			if last {
				delete(r.subs, table)
			}
			conn := r.conn
			r.mu.Unlock()
			if last && conn != nil {
				r.write(conn, frame{Type: "unsubscribe", Table: table})
			}
		})
	}
}

// Connected reports whether a connection is currently established.
func (r *Realtime) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Run keeps a connection open until ctx is done, reconnecting with
// exponential backoff. It returns ctx.Err() on cancellation, or the close
// error when the server refuses the credentials.
func (r *Realtime) Run(ctx context.Context) error {
	for {
		conn, err := r.connect(ctx)
		if err != nil {
			return err
		}
		err = r.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.c.log.Warn("realtime: connection lost", zap.Error(err))
	}
}

func isPermanent(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case CloseMissingCredentials, CloseInvalidKey, CloseProjectNotFound:
		return true
	}
	return false
}

// connect dials with a fresh backoff so a healthy session resets the delay.
func (r *Realtime) connect(ctx context.Context) (*websocket.Conn, error) {
	b := retry.WithCappedDuration(r.ceiling, retry.NewExponential(r.base))
	var conn *websocket.Conn
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		c, err := r.dial(ctx)
		if err != nil {
			if isPermanent(err) {
				return err
			}
			r.c.log.Debug("realtime: dial failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *Realtime) wsURL() (string, error) {
	u, err := url.Parse(r.c.base)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"projectId": {r.c.projectID}, "apiKey": {r.c.apiKey}}.Encode()
	return u.String(), nil
}

// dial opens a connection, waits for the connected frame and replays subscriptions.
func (r *Realtime) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := r.wsURL()
	if err != nil {
		return nil, err
	}
	hdr := http.Header{}
	if r.c.origin != "" {
		hdr.Set("Origin", r.c.origin)
	}
	conn, _, err := r.dialer.DialContext(ctx, u, hdr)
	if err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello Event
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	if hello.Type != "connected" {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: unexpected first frame %q", hello.Type)
	}

	r.mu.Lock()
	r.conn = conn
	tables := make([]string, 0, len(r.subs))
	for t := range r.subs {
		tables = append(tables, t)
	}
	r.mu.Unlock()
	for _, t := range tables {
		r.write(conn, frame{Type: "subscribe", Table: t})
	}
	r.c.log.Debug("realtime: connected", zap.Int("subscriptions", len(tables)))
	return conn, nil
}

func (r *Realtime) write(conn *websocket.Conn, f frame) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(f); err != nil {
		r.c.log.Debug("realtime: write", zap.String("type", f.Type), zap.Error(err))
	}
}

func (r *Realtime) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			r.writeMu.Unlock()
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		switch ev.Type {
		case "change":
			r.dispatch(ev)
		case "error":
			r.c.log.Warn("realtime: server error", zap.String("table", ev.Table), zap.String("error", ev.Error))
		}
	}
}

func (r *Realtime) dispatch(ev Event) {
	r.mu.Lock()
	hs := make([]Handler, 0, len(r.subs[ev.Table]))
	for _, h := range r.subs[ev.Table] {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}
