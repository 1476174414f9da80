package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"proptalk/internal/api"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIServer routes the user-facing API. live upgrades /api/live to a websocket.
func NewAPIServer(apiHandlers *api.API, live http.HandlerFunc, addr string) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)

	mux.HandleFunc("POST /api/logoff", apiHandlers.LogoffHandler)
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("GET /api/friends", apiHandlers.RequireAuth(apiHandlers.ListFriendsHandler))
	mux.HandleFunc("POST /api/friends", apiHandlers.RequireAuth(apiHandlers.AddFriendHandler))
	mux.HandleFunc("POST /api/messages", apiHandlers.RequireAuth(apiHandlers.SendMessageHandler))
	mux.HandleFunc("GET /api/messages/{peerId}", apiHandlers.RequireAuth(apiHandlers.HistoryHandler))
	mux.HandleFunc("GET /api/presence", apiHandlers.RequireAuth(apiHandlers.PresenceHandler))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/live", live)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: Logging(mux),
		},
	}
}

func (s *APIServer) Start() error {
	slog.Info("API server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}
