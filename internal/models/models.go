package models

import (
	"encoding/json"
	"errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFriends      = errors.New("users are not friends")
	ErrPersistence     = errors.New("persistence failure")
	ErrUserExists      = errors.New("user already exists")
)

// User is the identity record owned by the account component.
// This service only reads it and touches the presence markers.
type User struct {
	ID          string   `json:"id"`
	UserName    string   `json:"userName"`
	DisplayName string   `json:"displayName"`
	AvatarURL   string   `json:"avatarUrl"`
	Presence    Presence `json:"presence"`
}

// Presence represents the last known activity of a user.
type Presence struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen"` // Unix timestamp (seconds)
}

// PublicProfile is the minimal projection of a user shown to other users.
type PublicProfile struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Online      bool   `json:"online"`
	LastSeen    int64  `json:"lastSeen"`
}

func (u User) Profile() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Online:      u.Presence.Online,
		LastSeen:    u.Presence.LastSeen,
	}
}

// Friendship is the symmetric "may message" relation between two users.
// OwnerID is the side that requested it.
type Friendship struct {
	OwnerID   string `json:"ownerId"`
	PeerID    string `json:"peerId"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp (milliseconds)
}

// Message represents a persisted direct message.
type Message struct {
	ID         string `json:"id"`
	Seq        int64  `json:"seq"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
	HTML       string `json:"html"`
	CreatedAt  int64  `json:"createdAt"` // Unix timestamp (milliseconds)
}

// ClientMessage represents a frame sent from the client over the live connection.
type ClientMessage struct {
	Type       ClientMessageType `json:"type"`
	ReceiverID string            `json:"receiverId,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// ServerMessage represents an event pushed to the client.
type ServerMessage struct {
	Type    ServerMessageType `json:"type"`
	Online  []string          `json:"online,omitempty"`
	Message *Message          `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// MarshalJSON always writes the online list of a presence event, even when nobody is online.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	type alias ServerMessage
	if m.Type != ServerMessageTypeOnlineUsers {
		return json.Marshal(alias(m))
	}
	online := m.Online
	if online == nil {
		online = []string{}
	}
	return json.Marshal(struct {
		Type   ServerMessageType `json:"type"`
		Online []string          `json:"online"`
	}{m.Type, online})
}

type ClientMessageType string

const (
	ClientMessageTypeSend ClientMessageType = "send"
)

type ServerMessageType string

const (
	ServerMessageTypeOnlineUsers ServerMessageType = "getOnlineUsers"
	ServerMessageTypeMessage     ServerMessageType = "message"
	ServerMessageTypeSent        ServerMessageType = "sent"
	ServerMessageTypeError       ServerMessageType = "error"
)

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type FriendshipResponse struct {
	APIResponse
	Created    bool       `json:"created"`
	Friendship Friendship `json:"friendship"`
}

type FriendsResponse struct {
	APIResponse
	Friends []PublicProfile `json:"friends"`
}

type MessageResponse struct {
	APIResponse
	Message Message `json:"message"`
}

// HistoryResponse carries Empty=true instead of an error when
// two users never exchanged a message.
type HistoryResponse struct {
	APIResponse
	Empty    bool      `json:"empty"`
	Messages []Message `json:"messages"`
}

type PresenceResponse struct {
	APIResponse
	Online []string `json:"online"`
}

type UserResponse struct {
	APIResponse
	User  PublicProfile `json:"user"`
	Token string        `json:"token,omitempty"`
}
