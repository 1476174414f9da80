package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"proptalk/internal/models"
)

const maxRequestBody = 64 << 10

type tokenAuth interface {
	GetUserID(token string) (string, error)
	Logoff(token string) error
}

type friendGraph interface {
	Establish(a, b string) (models.Friendship, bool, error)
	ListFriends(id string) ([]models.PublicProfile, error)
}

type messenger interface {
	Send(ctx context.Context, senderID, receiverID, body string) (models.Message, error)
	History(ctx context.Context, a, b string) ([]models.Message, error)
}

type userDirectory interface {
	FindByID(id string) (models.User, error)
}

type presenceView interface {
	Snapshot() []string
}

type Services struct {
	Auth     tokenAuth
	Friends  friendGraph
	Chat     messenger
	Users    userDirectory
	Presence presenceView
}

type API struct {
	auth     tokenAuth
	friends  friendGraph
	chat     messenger
	users    userDirectory
	presence presenceView
}

func New(s Services) *API {
	return &API{
		auth:     s.Auth,
		friends:  s.Friends,
		chat:     s.Chat,
		users:    s.Users,
		presence: s.Presence,
	}
}

type userIDKey struct{}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// getToken accepts a bearer token, a "token" header or the "token" cookie.
func getToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

// RequireAuth rejects requests without a valid token and puts the caller's id into the context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.GetUserID(getToken(r))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, models.APIResponse{
				Success: false,
				Message: "Unauthorized",
			})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	}
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	token := getToken(r)
	if token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.users.FindByID(UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.UserResponse{
		APIResponse: models.APIResponse{Success: true},
		User:        user.Profile(),
	})
}

type addFriendRequest struct {
	FriendID string `json:"friendId"`
}

func (a *API) AddFriendHandler(w http.ResponseWriter, r *http.Request) {
	var req addFriendRequest
	if !decode(w, r, &req) {
		return
	}

	friendship, created, err := a.friends.Establish(UserIDFromContext(r.Context()), req.FriendID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.FriendshipResponse{
		APIResponse: models.APIResponse{Success: true},
		Created:     created,
		Friendship:  friendship,
	})
}

func (a *API) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	friends, err := a.friends.ListFriends(UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.FriendsResponse{
		APIResponse: models.APIResponse{Success: true},
		Friends:     friends,
	})
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := a.chat.Send(r.Context(), UserIDFromContext(r.Context()), req.ReceiverID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.MessageResponse{
		APIResponse: models.APIResponse{Success: true},
		Message:     msg,
	})
}

func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := a.chat.History(r.Context(), UserIDFromContext(r.Context()), r.PathValue("peerId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.HistoryResponse{
		APIResponse: models.APIResponse{Success: true},
		Empty:       len(messages) == 0,
		Messages:    messages,
	})
}

func (a *API) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.PresenceResponse{
		APIResponse: models.APIResponse{Success: true},
		Online:      a.presence.Snapshot(),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{
			Success: false,
			Message: "Invalid request body",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := models.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, models.APIResponse{
		Success: false,
		Message: models.PublicMessage(err),
	})
}
