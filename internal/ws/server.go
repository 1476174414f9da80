package ws

import (
	"log/slog"
	"net/http"
	"time"

	"proptalk/internal/content"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 16 * 1024

type tokenVerifier interface {
	GetUserID(token string) (string, error)
}

type ServerConfig struct {
	// TrustUserID accepts the ?userId= query parameter without a token.
	TrustUserID  bool
	SendBuffer   int
	WriteTimeout time.Duration
}

type Server struct {
	auth     tokenVerifier
	hub      *Hub
	router   messageRouter
	cfg      ServerConfig
	upgrader *websocket.Upgrader
}

func NewServer(auth tokenVerifier, hub *Hub, router messageRouter, cfg ServerConfig) *Server {
	return &Server{
		auth:   auth,
		hub:    hub,
		router: router,
		cfg:    cfg,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleConnections upgrades the request and serves the live connection until it closes.
// Requests without a usable identity become anonymous observers.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID := s.resolveIdentity(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("error upgrading to websocket", "error", err)
		return
	}

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := NewConnection(s.hub, s.router, conn, userID, ConnectionConfig{
		SendBuffer:   s.cfg.SendBuffer,
		WriteTimeout: s.cfg.WriteTimeout,
	})
	if err := c.Handle(r.Context()); err != nil && !isNormalClose(err) {
		slog.Debug("live connection ended", "user_id", userID, "error", err)
	}
}

func (s *Server) resolveIdentity(r *http.Request) string {
	q := r.URL.Query()
	if token := q.Get("token"); token != "" {
		userID, err := s.auth.GetUserID(token)
		if err != nil {
			slog.Debug("live connection with invalid token", "error", err)
			return ""
		}
		return userID
	}

	if !s.cfg.TrustUserID {
		return ""
	}
	userID := q.Get("userId")
	if !content.ValidIdentity(userID) {
		return ""
	}
	return userID
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
