package messages

import (
	"fmt"
	"time"

	"proptalk/internal/content"
	"proptalk/internal/models"

	"github.com/google/uuid"
)

type messageStore interface {
	AppendMessage(message models.Message) (models.Message, error)
	ListMessages(a, b string) ([]models.Message, error)
}

// Store is the append-only record of direct messages.
type Store struct {
	db  messageStore
	now func() time.Time
}

func NewStore(db messageStore) *Store {
	return &Store{db: db, now: time.Now}
}

// Append validates and durably saves a message. The returned record carries
// the assigned ID, sequence and timestamp.
func (s *Store) Append(senderID, receiverID, body string) (models.Message, error) {
	if senderID == "" || receiverID == "" {
		return models.Message{}, fmt.Errorf("missing participant: %w", models.ErrInvalidArgument)
	}
	body, err := content.NormalizeBody(body)
	if err != nil {
		return models.Message{}, fmt.Errorf("%v: %w", err, models.ErrInvalidArgument)
	}

	html, err := content.Render(body)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to render message: %w", err)
	}

	msg, err := s.db.AppendMessage(models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		HTML:       html,
		CreatedAt:  s.now().UnixMilli(),
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w: %w", models.ErrPersistence, err)
	}
	return msg, nil
}

// History returns the conversation between a and b, oldest first.
// The slice is empty, not nil, when they never talked.
func (s *Store) History(a, b string) ([]models.Message, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("missing participant: %w", models.ErrInvalidArgument)
	}
	msgs, err := s.db.ListMessages(a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w: %w", models.ErrPersistence, err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}
