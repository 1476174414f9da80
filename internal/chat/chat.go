package chat

import (
	"context"
	"fmt"
	"log/slog"

	"proptalk/internal/content"
	"proptalk/internal/models"
	"proptalk/internal/ws"
)

type messageStore interface {
	Append(senderID, receiverID, body string) (models.Message, error)
	History(a, b string) ([]models.Message, error)
}

type friendChecker interface {
	AreFriends(a, b string) (bool, error)
}

type directory interface {
	Exists(id string) (bool, error)
}

type liveLookup interface {
	Lookup(id string) (ws.Handle, bool)
}

type Config struct {
	Store   messageStore
	Friends friendChecker
	Users   directory
	Live    liveLookup
	// RequireFriendship rejects sends between users who are not friends.
	RequireFriendship bool
}

// Router persists direct messages and pushes them to an online recipient.
// A message counts as sent once it is stored; the live push is only a courtesy.
type Router struct {
	store             messageStore
	friends           friendChecker
	users             directory
	live              liveLookup
	requireFriendship bool
}

func New(cfg Config) *Router {
	return &Router{
		store:             cfg.Store,
		friends:           cfg.Friends,
		users:             cfg.Users,
		live:              cfg.Live,
		requireFriendship: cfg.RequireFriendship,
	}
}

func (r *Router) Send(ctx context.Context, senderID, receiverID, body string) (models.Message, error) {
	if senderID == "" || receiverID == "" {
		return models.Message{}, fmt.Errorf("missing participant: %w", models.ErrInvalidArgument)
	}
	if senderID == receiverID {
		return models.Message{}, fmt.Errorf("cannot message yourself: %w", models.ErrInvalidArgument)
	}
	if _, err := content.NormalizeBody(body); err != nil {
		return models.Message{}, fmt.Errorf("%v: %w", err, models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	ok, err := r.users.Exists(receiverID)
	if err != nil {
		return models.Message{}, err
	}
	if !ok {
		return models.Message{}, fmt.Errorf("user %s: %w", receiverID, models.ErrNotFound)
	}

	if r.requireFriendship {
		friends, err := r.friends.AreFriends(senderID, receiverID)
		if err != nil {
			return models.Message{}, err
		}
		if !friends {
			return models.Message{}, models.ErrNotFriends
		}
	}

	msg, err := r.store.Append(senderID, receiverID, body)
	if err != nil {
		return models.Message{}, err
	}

	r.deliver(msg)
	return msg, nil
}

// deliver pushes msg to the receiver's live connection, if there is one.
// Failures are logged and never reach the sender.
func (r *Router) deliver(msg models.Message) {
	h, online := r.live.Lookup(msg.ReceiverID)
	if !online {
		return
	}

	err := h.Push(models.ServerMessage{
		Type:    models.ServerMessageTypeMessage,
		Message: &msg,
	})
	if err != nil {
		slog.Warn("live delivery failed", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err)
	}
}

// History returns the conversation between a and b, oldest first.
func (r *Router) History(ctx context.Context, a, b string) ([]models.Message, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("missing participant: %w", models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.History(a, b)
}
