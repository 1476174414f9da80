package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"proptalk/internal/auth"
	"proptalk/internal/chat"
	"proptalk/internal/friends"
	"proptalk/internal/identity"
	"proptalk/internal/messages"
	"proptalk/internal/models"
	"proptalk/internal/storage"
	"proptalk/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	mux   *http.ServeMux
	auth  *auth.AuthService
	users *identity.Directory
	hub   *ws.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	authService, err := auth.NewAuthService(ctx, auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte("test-secret")),
		TokenExpiry: time.Hour,
	})
	require.NoError(t, err)

	users := identity.NewDirectory(ctx, db, time.Minute)
	graph := friends.NewGraph(db, users)
	hub := ws.NewHub(ws.HubConfig{Users: users})
	router := chat.New(chat.Config{
		Store:             messages.NewStore(db),
		Friends:           graph,
		Users:             users,
		Live:              hub.Registry(),
		RequireFriendship: true,
	})

	a := New(Services{
		Auth:     authService,
		Friends:  graph,
		Chat:     router,
		Users:    users,
		Presence: hub,
	})
	admin := NewAdminHandler(authService, users, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/logoff", a.LogoffHandler)
	mux.HandleFunc("GET /api/me", a.RequireAuth(a.MeHandler))
	mux.HandleFunc("POST /api/friends", a.RequireAuth(a.AddFriendHandler))
	mux.HandleFunc("GET /api/friends", a.RequireAuth(a.ListFriendsHandler))
	mux.HandleFunc("POST /api/messages", a.RequireAuth(a.SendMessageHandler))
	mux.HandleFunc("GET /api/messages/{peerId}", a.RequireAuth(a.HistoryHandler))
	mux.HandleFunc("GET /api/presence", a.RequireAuth(a.PresenceHandler))
	mux.HandleFunc("POST /admin/users", admin.AddUserHandler)
	mux.HandleFunc("POST /admin/tokens", admin.IssueTokenHandler)
	mux.HandleFunc("POST /admin/disconnect", admin.DisconnectHandler)

	return &testEnv{mux: mux, auth: authService, users: users, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createUser(t *testing.T, name string) models.UserResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/admin/users", "", AddUserRequest{UserName: name, DisplayName: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.UserResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestAPI_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/me", "/api/friends", "/api/presence", "/api/messages/x"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := env.do(t, http.MethodGet, "/api/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_TokenSources(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("token", alice.Token)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: alice.Token})
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	me := decodeBody[models.UserResponse](t, rec)
	assert.Equal(t, alice.User.ID, me.User.ID)
	assert.Equal(t, "alice", me.User.UserName)
}

func TestAPI_Logoff(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	rec := env.do(t, http.MethodPost, "/api/logoff", alice.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/me", alice.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_FriendsAndMessages(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	// Not friends yet.
	rec := env.do(t, http.MethodPost, "/api/messages", alice.Token, sendMessageRequest{ReceiverID: bob.User.ID, Body: "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/friends", alice.Token, addFriendRequest{FriendID: bob.User.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fr := decodeBody[models.FriendshipResponse](t, rec)
	assert.True(t, fr.Created)
	assert.Equal(t, alice.User.ID, fr.Friendship.OwnerID)

	// Repeating from the other side converges on the same relation.
	rec = env.do(t, http.MethodPost, "/api/friends", bob.Token, addFriendRequest{FriendID: alice.User.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	fr = decodeBody[models.FriendshipResponse](t, rec)
	assert.False(t, fr.Created)

	rec = env.do(t, http.MethodGet, "/api/friends", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[models.FriendsResponse](t, rec)
	require.Len(t, list.Friends, 1)
	assert.Equal(t, alice.User.ID, list.Friends[0].ID)

	rec = env.do(t, http.MethodGet, "/api/messages/"+bob.User.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[models.HistoryResponse](t, rec)
	assert.True(t, history.Empty)
	assert.Empty(t, history.Messages)

	rec = env.do(t, http.MethodPost, "/api/messages", alice.Token, sendMessageRequest{ReceiverID: bob.User.ID, Body: "Is the flat *still* available?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decodeBody[models.MessageResponse](t, rec)
	assert.Equal(t, alice.User.ID, sent.Message.SenderID)
	assert.Contains(t, sent.Message.HTML, "<em>still</em>")

	rec = env.do(t, http.MethodPost, "/api/messages", bob.Token, sendMessageRequest{ReceiverID: alice.User.ID, Body: "Yes"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/messages/"+alice.User.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history = decodeBody[models.HistoryResponse](t, rec)
	assert.False(t, history.Empty)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, sent.Message.ID, history.Messages[0].ID)
	assert.Equal(t, "Yes", history.Messages[1].Body)
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"Self friendship", http.MethodPost, "/api/friends", addFriendRequest{FriendID: alice.User.ID}, http.StatusBadRequest},
		{"Unknown friend", http.MethodPost, "/api/friends", addFriendRequest{FriendID: "6f1c1e8e-0000-4000-8000-000000000000"}, http.StatusNotFound},
		{"Unknown receiver", http.MethodPost, "/api/messages", sendMessageRequest{ReceiverID: "6f1c1e8e-0000-4000-8000-000000000000", Body: "hi"}, http.StatusNotFound},
		{"Missing receiver", http.MethodPost, "/api/messages", sendMessageRequest{Body: "hi"}, http.StatusBadRequest},
		{"Malformed body", http.MethodPost, "/api/messages", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, alice.Token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			resp := decodeBody[models.APIResponse](t, rec)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestAPI_Presence(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	rec := env.do(t, http.MethodGet, "/api/presence", alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"online":[]}`, rec.Body.String())
}

func TestAdmin_Users(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	userID, err := env.auth.GetUserID(alice.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.User.ID, userID)

	rec := env.do(t, http.MethodPost, "/admin/users", "", AddUserRequest{UserName: "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/users", "", AddUserRequest{UserName: "bad name!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/tokens?id="+alice.User.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	issued := decodeBody[models.UserResponse](t, rec)
	userID, err = env.auth.GetUserID(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.User.ID, userID)

	rec = env.do(t, http.MethodPost, "/admin/tokens?id=6f1c1e8e-0000-4000-8000-000000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/tokens", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenRegistry struct{}

func (brokenRegistry) Create(userName, displayName, avatarURL string) (models.User, error) {
	return models.User{}, fmt.Errorf("failed to store user: %w: %w",
		models.ErrPersistence, errors.New("open /var/lib/proptalk/users.db: read-only file system"))
}

func (brokenRegistry) FindByID(id string) (models.User, error) {
	return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
}

func TestAdmin_AddUserHidesStorageErrors(t *testing.T) {
	env := newTestEnv(t)
	h := NewAdminHandler(env.auth, brokenRegistry{}, env.hub)

	body, err := json.Marshal(AddUserRequest{UserName: "alice"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/users", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.AddUserHandler(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	raw := rec.Body.String()
	assert.NotContains(t, raw, "read-only file system")
	assert.NotContains(t, raw, "/var/lib")

	resp := decodeBody[models.APIResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "internal error", resp.Message)
}

func TestAdmin_Disconnect(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/disconnect?id=nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/disconnect", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
