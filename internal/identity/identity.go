// Package identity is the boundary to the account component: it resolves
// identities, reports whether they exist and keeps their activity markers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proptalk/internal/content"
	"proptalk/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

type userStore interface {
	GetUser(id string) (models.User, error)
	CreateUser(user models.User) error
	SetActivity(id string, active bool, lastSeen int64) error
}

// Directory is a read-through cache in front of the identity records.
// Cache fills and activity updates take the cache's write lock, so a slow
// read can never put a record back after a newer marker was written.
type Directory struct {
	store userStore
	cache *geche.Locker[string, models.User]
	now   func() time.Time
}

func NewDirectory(ctx context.Context, store userStore, cacheTTL time.Duration) *Directory {
	return &Directory{
		store: store,
		cache: geche.NewLocker[string, models.User](geche.NewMapTTLCache[string, models.User](ctx, cacheTTL, time.Minute)),
		now:   time.Now,
	}
}

func (d *Directory) FindByID(id string) (models.User, error) {
	if id == "" {
		return models.User{}, fmt.Errorf("empty user id: %w", models.ErrInvalidArgument)
	}
	rtx := d.cache.RLock()
	u, err := rtx.Get(id)
	rtx.Unlock()
	if err == nil {
		return u, nil
	}

	tx := d.cache.Lock()
	defer tx.Unlock()
	if u, err := tx.Get(id); err == nil {
		return u, nil
	}

	u, err = d.store.GetUser(id)
	if err != nil {
		return models.User{}, err
	}
	tx.Set(id, u)
	return u, nil
}

func (d *Directory) Exists(id string) (bool, error) {
	_, err := d.FindByID(id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// MarkActive records that the user just opened a live connection.
func (d *Directory) MarkActive(id string) error {
	return d.setActivity(id, true)
}

// MarkInactive records that the user's live connection went away.
func (d *Directory) MarkInactive(id string) error {
	return d.setActivity(id, false)
}

func (d *Directory) setActivity(id string, active bool) error {
	tx := d.cache.Lock()
	defer tx.Unlock()

	err := d.store.SetActivity(id, active, d.now().Unix())
	_ = tx.Del(id)
	return err
}

// Create registers a new identity. It stands in for the account component
// on the admin API.
func (d *Directory) Create(userName, displayName, avatarURL string) (models.User, error) {
	if err := content.ValidateUsername(userName); err != nil {
		return models.User{}, fmt.Errorf("%v: %w", err, models.ErrInvalidArgument)
	}

	if displayName == "" {
		displayName = userName
	}
	u := models.User{
		ID:          uuid.NewString(),
		UserName:    userName,
		DisplayName: content.Sanitize(displayName),
		AvatarURL:   avatarURL,
		Presence:    models.Presence{LastSeen: d.now().Unix()},
	}
	if err := d.store.CreateUser(u); err != nil {
		if errors.Is(err, models.ErrUserExists) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("failed to store user: %w: %w", models.ErrPersistence, err)
	}
	return u, nil
}
