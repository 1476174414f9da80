package ws

import (
	"log/slog"
	"sync"
)

// Broadcaster fans presence updates out to every open connection,
// including anonymous observers that never made it into the registry.
type Broadcaster struct {
	mu       sync.RWMutex
	audience map[Handle]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		audience: make(map[Handle]struct{}),
	}
}

func (b *Broadcaster) Attach(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audience[h] = struct{}{}
}

func (b *Broadcaster) Detach(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.audience, h)
}

func (b *Broadcaster) Members() []Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members := make([]Handle, 0, len(b.audience))
	for h := range b.audience {
		members = append(members, h)
	}
	return members
}

// Announce pushes the online set to every member and returns how many accepted it.
// A member that fails is skipped.
func (b *Broadcaster) Announce(online []string) int {
	msg := onlineUsers(online)
	delivered := 0
	for _, h := range b.Members() {
		if err := h.Push(msg); err != nil {
			slog.Debug("presence push failed", "user_id", h.Identity(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
