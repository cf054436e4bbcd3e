// Package realtime keeps the per-project registry of websocket subscribers
// and fans change events out to them.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/metrics"
)

// Message types exchanged over the realtime channel.
const (
	TypeConnected    = "connected"
	TypeSubscribe    = "subscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribe  = "unsubscribe"
	TypeUnsubscribed = "unsubscribed"
	TypeChange       = "change"
	TypeError        = "error"
)

// Message is the JSON frame sent and received on a connection.
type Message struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
	Table     string `json:"table,omitempty"`
	Event     string `json:"event,omitempty"`
	Data      any    `json:"data,omitempty"`
	TS        int64  `json:"ts,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client is one registered connection. Its send channel is closed by the hub
// on Unregister or Shutdown.
type Client struct {
	projectID string
	send      chan []byte
	tables    map[string]struct{}
}

// ProjectID returns the project the client authenticated for.
func (c *Client) ProjectID() string { return c.projectID }

// Send returns the outbound queue drained by the connection writer.
func (c *Client) Send() <-chan []byte { return c.send }

// Stats summarizes one project's subscribers.
type Stats struct {
	Connections int            `json:"connections"`
	Tables      map[string]int `json:"tables"`
}

// Hub is the registry project id -> live clients. All methods are safe for
// concurrent use.
type Hub struct {
	mu       sync.RWMutex
	projects map[string]map[*Client]struct{}
	closed   bool

	buffer int
	log    *zap.Logger
	now    func() time.Time
}

// NewHub constructs a Hub whose clients queue up to buffer outbound frames.
func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		projects: map[string]map[*Client]struct{}{},
		buffer:   buffer,
		log:      log,
		now:      time.Now,
	}
}

// Register adds a client for projectID. It returns nil after Shutdown.
func (h *Hub) Register(projectID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &Client{projectID: projectID, send: make(chan []byte, h.buffer), tables: map[string]struct{}{}}
	set, ok := h.projects[projectID]
	if !ok {
		set = map[*Client]struct{}{}
		h.projects[projectID] = set
	}
	set[c] = struct{}{}
	metrics.RealtimeConnections.Inc()
	return c
}

// Unregister removes c and closes its queue. Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	set, ok := h.projects[c.projectID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.projects, c.projectID)
	}
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

// Subscribe adds table to c's subscriptions. Repeating it is a no-op.
func (h *Hub) Subscribe(c *Client, table string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.tables[table] = struct{}{}
}

// Unsubscribe removes table from c's subscriptions.
func (h *Hub) Unsubscribe(c *Client, table string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.tables, table)
}

// Broadcast queues a change frame for every client of projectID subscribed to
// table. It never blocks: a client whose queue is full misses the frame.
func (h *Hub) Broadcast(projectID, table, event string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.projects[projectID]
	if len(set) == 0 {
		return
	}
	frame, err := json.Marshal(Message{Type: TypeChange, Event: event, Table: table, Data: data, TS: h.now().UnixMilli()})
	if err != nil {
		h.log.Warn("realtime: encode change", zap.String("project_id", projectID), zap.String("table", table), zap.Error(err))
		return
	}
	for c := range set {
		if _, ok := c.tables[table]; !ok {
			continue
		}
		select {
		case c.send <- frame:
			metrics.RealtimeMessagesTotal.WithLabelValues("sent").Inc()
		default:
			metrics.RealtimeMessagesTotal.WithLabelValues("dropped").Inc()
		}
	}
}

// reply queues a control frame to c without blocking.
func (h *Hub) reply(c *Client, m Message) bool {
	frame, err := json.Marshal(m)
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.projects[c.projectID][c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Stats reports connection and per-table subscriber counts for projectID.
func (h *Hub) Stats(projectID string) Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{Tables: map[string]int{}}
	for c := range h.projects[projectID] {
		st.Connections++
		for t := range c.tables {
			st.Tables[t]++
		}
	}
	return st
}

// Shutdown unregisters every client. Register returns nil afterwards.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.projects {
		for c := range set {
			h.removeLocked(c)
		}
	}
}
