package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"proptalk/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers    = []byte("users")
	bucketFriends  = []byte("friends")
	bucketMessages = []byte("messages")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketFriends, bucketMessages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new identity record. The username check and the write
// share one transaction, so two users can never end up with the same name.
func (s *BboltStorage) CreateUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.ID)) != nil {
			return fmt.Errorf("user %s: %w", user.ID, models.ErrUserExists)
		}

		err := b.ForEach(func(k, v []byte) error {
			var existing DBUser
			if err := existing.UnmarshalBinary(v); err != nil {
				return err
			}
			if existing.UserName == user.UserName {
				return fmt.Errorf("username %s: %w", user.UserName, models.ErrUserExists)
			}
			return nil
		})
		if err != nil {
			return err
		}

		return put(b, &DBUser{
			ID:          user.ID,
			UserName:    user.UserName,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
			Active:      user.Presence.Online,
			LastSeen:    user.Presence.LastSeen,
		})
	})
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = dbUser.toModel()
		return nil
	})
	return user, err
}

// SetActivity updates the presence markers of an existing user.
func (s *BboltStorage) SetActivity(id string, active bool, lastSeen int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		dbUser.Active = active
		dbUser.LastSeen = lastSeen

		return put(b, &dbUser)
	})
}

// EnsureFriendship writes both directed edges between a and b in one transaction.
// If either edge already exists the stored relation is returned with created=false
// and a missing reverse edge is restored.
func (s *BboltStorage) EnsureFriendship(a, b string, createdAt int64) (models.Friendship, bool, error) {
	var (
		result  models.Friendship
		created bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketFriends)
		aBucket, err := root.CreateBucketIfNotExists([]byte(a))
		if err != nil {
			return fmt.Errorf("failed to create friends bucket: %w", err)
		}
		bBucket, err := root.CreateBucketIfNotExists([]byte(b))
		if err != nil {
			return fmt.Errorf("failed to create friends bucket: %w", err)
		}

		forward, err := getEdge(aBucket, b)
		if err != nil {
			return err
		}
		reverse, err := getEdge(bBucket, a)
		if err != nil {
			return err
		}

		switch {
		case forward != nil:
			result = forward.toModel()
		case reverse != nil:
			// The relation is owned by whoever created it first.
			result = models.Friendship{OwnerID: b, PeerID: a, CreatedAt: reverse.CreatedAt}
		default:
			created = true
			result = models.Friendship{OwnerID: a, PeerID: b, CreatedAt: createdAt}
		}

		if forward == nil {
			if err := put(aBucket, &DBFriendship{OwnerID: a, PeerID: b, CreatedAt: result.CreatedAt}); err != nil {
				return err
			}
		}
		if reverse == nil {
			if err := put(bBucket, &DBFriendship{OwnerID: b, PeerID: a, CreatedAt: result.CreatedAt}); err != nil {
				return err
			}
		}
		return nil
	})
	return result, created, err
}

// ListFriendIDs returns peers reachable from id.
func (s *BboltStorage) ListFriendIDs(id string) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFriends).Bucket([]byte(id))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BboltStorage) HasFriendship(a, b string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketFriends).Bucket([]byte(a))
		if bucket == nil {
			return nil
		}
		found = bucket.Get([]byte(b)) != nil
		return nil
	})
	return found, err
}

// AppendMessage saves a message into the conversation bucket of its sender and receiver.
// Seq is assigned from the bucket sequence and CreatedAt is never earlier than
// the previous message of the same conversation.
func (s *BboltStorage) AppendMessage(message models.Message) (models.Message, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if message.SenderID == "" || message.ReceiverID == "" {
			return errors.New("message missing participants")
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(conversationKey(message.SenderID, message.ReceiverID))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		if _, last := chatBucket.Cursor().Last(); last != nil {
			var prev DBMessage
			if err := prev.UnmarshalBinary(last); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			if message.CreatedAt < prev.CreatedAt {
				message.CreatedAt = prev.CreatedAt
			}
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		message.Seq = int64(seq)

		dbMessage := DBMessage{
			ID:         message.ID,
			Seq:        message.Seq,
			SenderID:   message.SenderID,
			ReceiverID: message.ReceiverID,
			Body:       message.Body,
			HTML:       message.HTML,
			CreatedAt:  message.CreatedAt,
		}
		if err := put(chatBucket, &dbMessage); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListMessages returns the conversation between a and b ordered by sequence.
func (s *BboltStorage) ListMessages(a, b string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket(conversationKey(a, b))
		if chatBucket == nil {
			return nil // No messages for this conversation
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.toModel())
			return nil
		})
	})
	return messages, err
}

func getEdge(b *bbolt.Bucket, peerID string) (*DBFriendship, error) {
	data := b.Get([]byte(peerID))
	if data == nil {
		return nil, nil
	}
	var edge DBFriendship
	if err := edge.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal friendship: %w", err)
	}
	return &edge, nil
}

func put(b *bbolt.Bucket, item Storeable) error {
	data, err := item.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(item.Key(), data)
}

// conversationKey is the same for (a, b) and (b, a).
func conversationKey(a, b string) []byte {
	ids := []string{a, b}
	sort.Strings(ids)
	return []byte(ids[0] + ":" + ids[1])
}

func (u *DBUser) toModel() models.User {
	return models.User{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Presence: models.Presence{
			Online:   u.Active,
			LastSeen: u.LastSeen,
		},
	}
}

func (f *DBFriendship) toModel() models.Friendship {
	return models.Friendship{
		OwnerID:   f.OwnerID,
		PeerID:    f.PeerID,
		CreatedAt: f.CreatedAt,
	}
}

func (m *DBMessage) toModel() models.Message {
	return models.Message{
		ID:         m.ID,
		Seq:        m.Seq,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		HTML:       m.HTML,
		CreatedAt:  m.CreatedAt,
	}
}
