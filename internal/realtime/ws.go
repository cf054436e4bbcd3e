package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/access"
	"github.com/and161185/zerobase/internal/crypto"
	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
)

// Close codes sent when a handshake is refused.
const (
	CloseMissingCredentials = 4001
	CloseInvalidKey         = 4003
	CloseProjectNotFound    = 4004
	CloseAuthError          = 4500
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Server upgrades /ws requests, authenticates them once by API key and
// serves subscribe/unsubscribe frames.
type Server struct {
	hub      *Hub
	projects access.ProjectLookup
	log      *zap.Logger
	upgrader websocket.Upgrader
	verify   func(raw, hash string) bool
}

// NewServer constructs a Server.
func NewServer(hub *Hub, projects access.ProjectLookup, log *zap.Logger) *Server {
	return &Server{
		hub:      hub,
		projects: projects,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the API key authenticates the connection, not the Origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		verify: crypto.VerifyAPIKey,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("realtime: upgrade failed", zap.Error(err))
		return
	}

	projectID := r.URL.Query().Get("projectId")
	apiKey := r.URL.Query().Get("apiKey")
	if code, reason := s.authenticate(r, projectID, apiKey); code != 0 {
		s.refuse(conn, code, reason)
		return
	}

	c := s.hub.Register(projectID)
	if c == nil {
		s.refuse(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}
	s.hub.reply(c, Message{Type: TypeConnected, ProjectID: projectID})

	go s.writePump(conn, c)
	s.readPump(conn, c)
}

// authenticate returns a close code and reason, or 0 when the handshake is accepted.
func (s *Server) authenticate(r *http.Request, projectID, apiKey string) (int, string) {
	if projectID == "" || apiKey == "" {
		return CloseMissingCredentials, "Missing projectId or apiKey"
	}
	p, err := s.projects.Access(r.Context(), projectID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return CloseProjectNotFound, "Project not found"
	case err != nil:
		s.log.Warn("realtime: project lookup failed", zap.String("project_id", projectID), zap.Error(err))
		return CloseAuthError, "Auth error"
	case !s.verify(apiKey, p.APIKeyHash):
		return CloseInvalidKey, "Invalid API key"
	}
	return 0, ""
}

func (s *Server) refuse(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = conn.Close()
}

func (s *Server) readPump(conn *websocket.Conn, c *Client) {
	defer func() {
		s.hub.Unregister(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("realtime: read", zap.String("project_id", c.projectID), zap.Error(err))
			}
			return
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		s.handle(c, m)
	}
}

func (s *Server) handle(c *Client, m Message) {
	if m.Type != TypeSubscribe && m.Type != TypeUnsubscribe {
		return
	}
	if _, err := ident.Parse(m.Table); err != nil {
		s.hub.reply(c, Message{Type: TypeError, Table: m.Table, Error: "invalid table name"})
		return
	}
	if m.Type == TypeSubscribe {
		s.hub.Subscribe(c, m.Table)
		s.hub.reply(c, Message{Type: TypeSubscribed, Table: m.Table})
		return
	}
	s.hub.Unsubscribe(c, m.Table)
	s.hub.reply(c, Message{Type: TypeUnsubscribed, Table: m.Table})
}

func (s *Server) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
