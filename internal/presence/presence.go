package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"

	DefaultTTL    = 120 * time.Second
	defaultBuffer = 1024
)

type backend interface {
	SetOnline(ctx context.Context, userID string, ttl time.Duration) error
	SetOffline(ctx context.Context, userID string) error
}

type event struct {
	userID string
	online bool
}

// Mirror copies local presence transitions into a shared store so other
// processes can see who is connected here. It never feeds back into local
// presence. Entries carry a TTL and are refreshed while the user stays
// connected, so a crashed process ages out on its own.
type Mirror struct {
	backend backend
	ttl     time.Duration
	events  chan event
	online  map[string]struct{}
}

func NewMirror(client redis.UniversalClient, ttl time.Duration) *Mirror {
	return newMirror(&redisBackend{client: client}, ttl, defaultBuffer)
}

func newMirror(b backend, ttl time.Duration, buffer int) *Mirror {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Mirror{
		backend: b,
		ttl:     ttl,
		events:  make(chan event, buffer),
		online:  make(map[string]struct{}),
	}
}

// Publish queues a transition without blocking the caller.
func (m *Mirror) Publish(userID string, online bool) {
	select {
	case m.events <- event{userID: userID, online: online}:
	default:
		slog.Warn("presence mirror queue full, dropping update", "user_id", userID, "online", online)
	}
}

// Run applies queued transitions until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case ev := <-m.events:
			m.apply(ctx, ev)
		case <-ticker.C:
			m.refresh(ctx)
		case <-ctx.Done():
			m.drain()
			return nil
		}
	}
}

func (m *Mirror) apply(ctx context.Context, ev event) {
	var err error
	if ev.online {
		m.online[ev.userID] = struct{}{}
		err = m.backend.SetOnline(ctx, ev.userID, m.ttl)
	} else {
		delete(m.online, ev.userID)
		err = m.backend.SetOffline(ctx, ev.userID)
	}
	if err != nil {
		slog.Warn("presence mirror update failed", "user_id", ev.userID, "online", ev.online, "error", err)
	}
}

func (m *Mirror) refresh(ctx context.Context) {
	for id := range m.online {
		if err := m.backend.SetOnline(ctx, id, m.ttl); err != nil {
			slog.Warn("presence mirror refresh failed", "user_id", id, "error", err)
		}
	}
}

// drain withdraws everything this process still claims, on a fresh context
// because the run context is already cancelled.
func (m *Mirror) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for len(m.events) > 0 {
		ev := <-m.events
		if ev.online {
			m.online[ev.userID] = struct{}{}
		} else {
			delete(m.online, ev.userID)
		}
	}

	for id := range m.online {
		if err := m.backend.SetOffline(ctx, id); err != nil {
			slog.Warn("presence mirror cleanup failed", "user_id", id, "error", err)
		}
		delete(m.online, id)
	}
}

type redisBackend struct {
	client redis.UniversalClient
}

func (r *redisBackend) SetOnline(ctx context.Context, userID string, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+userID, time.Now().Unix(), ttl)
	pipe.SAdd(ctx, onlineSetKey, userID)
	pipe.Expire(ctx, onlineSetKey, ttl*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

func (r *redisBackend) SetOffline(ctx context.Context, userID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, presenceKeyPrefix+userID)
	pipe.SRem(ctx, onlineSetKey, userID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}
	return nil
}

// NewRedisClient connects to url and checks the connection.
func NewRedisClient(ctx context.Context, url string, db int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opt.DB = db

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
