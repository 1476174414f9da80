package friends

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"proptalk/internal/models"
)

type edgeStore interface {
	EnsureFriendship(a, b string, createdAt int64) (models.Friendship, bool, error)
	ListFriendIDs(id string) ([]string, error)
	HasFriendship(a, b string) (bool, error)
}

type directory interface {
	FindByID(id string) (models.User, error)
	Exists(id string) (bool, error)
}

// Graph stores the symmetric "may message" relation.
type Graph struct {
	edges edgeStore
	users directory
	now   func() time.Time
}

func NewGraph(edges edgeStore, users directory) *Graph {
	return &Graph{
		edges: edges,
		users: users,
		now:   time.Now,
	}
}

// Establish makes a and b friends in both directions. Calling it again for the
// same pair, in either order, returns the existing relation with created=false.
func (g *Graph) Establish(a, b string) (models.Friendship, bool, error) {
	if a == "" || b == "" {
		return models.Friendship{}, false, fmt.Errorf("missing user id: %w", models.ErrInvalidArgument)
	}
	if a == b {
		return models.Friendship{}, false, fmt.Errorf("cannot befriend yourself: %w", models.ErrInvalidArgument)
	}

	for _, id := range []string{a, b} {
		ok, err := g.users.Exists(id)
		if err != nil {
			return models.Friendship{}, false, err
		}
		if !ok {
			return models.Friendship{}, false, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
	}

	rel, created, err := g.edges.EnsureFriendship(a, b, g.now().UnixMilli())
	if err != nil {
		return models.Friendship{}, false, fmt.Errorf("failed to store friendship: %w: %w", models.ErrPersistence, err)
	}
	if created {
		slog.Info("friendship established", "owner_id", a, "peer_id", b)
	}
	return rel, created, nil
}

// ListFriends returns the public profiles of everyone id may message,
// sorted by display name.
func (g *Graph) ListFriends(id string) ([]models.PublicProfile, error) {
	if id == "" {
		return nil, fmt.Errorf("missing user id: %w", models.ErrInvalidArgument)
	}

	ids, err := g.edges.ListFriendIDs(id)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w: %w", models.ErrPersistence, err)
	}

	profiles := make([]models.PublicProfile, 0, len(ids))
	for _, peerID := range ids {
		u, err := g.users.FindByID(peerID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				slog.Warn("friend record without identity", "user_id", id, "peer_id", peerID)
				continue
			}
			return nil, err
		}
		profiles = append(profiles, u.Profile())
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].DisplayName < profiles[j].DisplayName
	})
	return profiles, nil
}

func (g *Graph) AreFriends(a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	ok, err := g.edges.HasFriendship(a, b)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w: %w", models.ErrPersistence, err)
	}
	return ok, nil
}
