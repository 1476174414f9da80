package ws

import (
	"log/slog"
	"sync"

	"proptalk/internal/models"
)

type activityMarker interface {
	MarkActive(id string) error
	MarkInactive(id string) error
}

// presenceSink receives every presence change, in order.
type presenceSink interface {
	Publish(id string, online bool)
}

type HubConfig struct {
	Registry *Registry
	Users    activityMarker
	// Mirror is optional.
	Mirror presenceSink
}

// Hub drives the open/close lifecycle of live connections.
// Each registry change and the broadcast that follows it happen under one
// mutex, so clients see presence updates in the same order as the changes.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	users       activityMarker
	mirror      presenceSink

	mu sync.Mutex
}

func NewHub(cfg HubConfig) *Hub {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Hub{
		registry:    registry,
		broadcaster: NewBroadcaster(),
		users:       cfg.Users,
		mirror:      cfg.Mirror,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Open attaches a new connection. Identified connections replace any earlier
// connection of the same user, which is then closed.
func (h *Hub) Open(c Handle) {
	id := c.Identity()

	h.mu.Lock()
	h.broadcaster.Attach(c)
	if id == "" {
		// Anonymous observers only get the current state; nothing changed for anyone else.
		if err := c.Push(onlineUsers(h.registry.Snapshot())); err != nil {
			slog.Debug("initial presence push failed", "error", err)
		}
		h.mu.Unlock()
		return
	}

	prev := h.registry.Register(id, c)
	h.markActivity(id, true)
	h.broadcaster.Announce(h.registry.Snapshot())
	h.publish(id, true)
	h.mu.Unlock()

	if prev != nil {
		slog.Info("live connection superseded", "user_id", id)
		prev.Close()
	}
	slog.Info("user online", "user_id", id)
}

// Close detaches a connection. Only the user's current connection changes presence.
func (h *Hub) Close(c Handle) {
	id := c.Identity()

	h.mu.Lock()
	h.broadcaster.Detach(c)
	removed := id != "" && h.registry.Unregister(id, c)
	if removed {
		h.markActivity(id, false)
		h.broadcaster.Announce(h.registry.Snapshot())
		h.publish(id, false)
	}
	h.mu.Unlock()

	if removed {
		slog.Info("user offline", "user_id", id)
	}
}

// Snapshot returns the current online set.
func (h *Hub) Snapshot() []string {
	return h.registry.Snapshot()
}

// DisconnectUser closes the user's live connection, if any.
// Presence changes once the connection has wound down.
func (h *Hub) DisconnectUser(id string) bool {
	c, ok := h.registry.Lookup(id)
	if !ok {
		return false
	}
	c.Close()
	return true
}

// Shutdown closes every open connection. Their Close calls follow as they wind down.
func (h *Hub) Shutdown() {
	for _, c := range h.broadcaster.Members() {
		c.Close()
	}
}

func (h *Hub) markActivity(id string, active bool) {
	if h.users == nil {
		return
	}
	var err error
	if active {
		err = h.users.MarkActive(id)
	} else {
		err = h.users.MarkInactive(id)
	}
	if err != nil {
		slog.Warn("failed to update activity marker", "user_id", id, "active", active, "error", err)
	}
}

func (h *Hub) publish(id string, online bool) {
	if h.mirror != nil {
		h.mirror.Publish(id, online)
	}
}

func onlineUsers(ids []string) models.ServerMessage {
	return models.ServerMessage{
		Type:   models.ServerMessageTypeOnlineUsers,
		Online: ids,
	}
}
