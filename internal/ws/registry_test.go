package ws

import (
	"fmt"
	"sync"
	"testing"

	"proptalk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHandle struct {
	id     string
	mu     sync.Mutex
	pushed []models.ServerMessage
	closed bool
	err    error
}

func newMockHandle(id string) *mockHandle {
	return &mockHandle{id: id}
}

func (m *mockHandle) Identity() string { return m.id }

func (m *mockHandle) Push(msg models.ServerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pushed = append(m.pushed, msg)
	return nil
}

func (m *mockHandle) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockHandle) messages() []models.ServerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ServerMessage(nil), m.pushed...)
}

func (m *mockHandle) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	h1 := newMockHandle("a")
	h2 := newMockHandle("a")

	assert.Nil(t, r.Register("a", h1))
	prev := r.Register("a", h2)
	assert.Same(t, h1, prev)

	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Same(t, h2, got)

	// Re-registering the same handle is not a replacement.
	assert.Nil(t, r.Register("a", h2))
	assert.False(t, h1.isClosed(), "registry must not close transports")
}

func TestRegistry_StaleHandleGuard(t *testing.T) {
	r := NewRegistry()
	h1 := newMockHandle("a")
	h2 := newMockHandle("a")

	r.Register("a", h1)
	r.Register("a", h2)

	assert.False(t, r.Unregister("a", h1))
	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Same(t, h2, got)

	assert.True(t, r.Unregister("a", h2))
	_, ok = r.Lookup("a")
	assert.False(t, ok)

	assert.False(t, r.Unregister("a", h2), "second unregister is a no-op")
	assert.False(t, r.Unregister("nobody", h2))
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Register("b", newMockHandle("b"))
	r.Register("a", newMockHandle("a"))

	snap := r.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap)

	r.Register("c", newMockHandle("c"))
	assert.Equal(t, []string{"a", "b"}, snap)
	assert.Empty(t, NewRegistry().Snapshot())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("user-%d", i%10)
		wg.Go(func() {
			h := newMockHandle(id)
			r.Register(id, h)
			r.Lookup(id)
			r.Snapshot()
			r.Unregister(id, h)
		})
	}
	wg.Wait()

	// The last handle registered for each id was removed by its owner.
	assert.Empty(t, r.Snapshot())
}
