package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID          string `msgpack:"id"`
	UserName    string `msgpack:"userName"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
	Active      bool   `msgpack:"active"`
	LastSeen    int64  `msgpack:"lastSeen"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

// DBFriendship is one directed edge, stored under the owner's bucket.
type DBFriendship struct {
	OwnerID   string `msgpack:"ownerId"`
	PeerID    string `msgpack:"peerId"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (f *DBFriendship) Key() []byte {
	return []byte(f.PeerID)
}

func (f *DBFriendship) MarshalBinary() (data []byte, err error) {
	type alias DBFriendship
	return msgpack.Marshal((*alias)(f))
}

func (f *DBFriendship) UnmarshalBinary(data []byte) error {
	type alias DBFriendship
	return msgpack.Unmarshal(data, (*alias)(f))
}

type DBMessage struct {
	ID         string `msgpack:"id"`
	Seq        int64  `msgpack:"seq"`
	SenderID   string `msgpack:"senderId"`
	ReceiverID string `msgpack:"receiverId"`
	Body       string `msgpack:"body"`
	HTML       string `msgpack:"html"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(m.Seq))
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
