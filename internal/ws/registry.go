package ws

import (
	"sort"
	"sync"

	"proptalk/internal/models"
)

// Handle is a live connection as seen by the registry and the broadcaster.
type Handle interface {
	// Identity returns the user the connection belongs to, or "" for anonymous observers.
	Identity() string
	// Push enqueues an event for the client without blocking.
	Push(msg models.ServerMessage) error
	// Close asks the connection to shut down. It is safe to call more than once.
	Close()
}

// Registry maps each online user to their single live connection.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]Handle),
	}
}

// Register installs h as the connection of id and returns the handle it replaced, if any.
// The replaced handle is not closed here.
func (r *Registry) Register(id string, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.handles[id]
	r.handles[id] = h
	if prev == h {
		return nil
	}
	return prev
}

// Unregister removes id only while h is still its current handle.
// It reports whether anything was removed.
func (r *Registry) Unregister(id string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.handles[id]
	if !ok || cur != h {
		return false
	}
	delete(r.handles, id)
	return true
}

func (r *Registry) Lookup(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Snapshot returns the sorted set of online user IDs at this moment.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
