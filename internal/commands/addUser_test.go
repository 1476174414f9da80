package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"proptalk/internal/api"
	"proptalk/internal/config"
	"proptalk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/users", r.URL.Path)

		var req api.AddUserRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.UserName)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.UserResponse{
			APIResponse: models.APIResponse{Success: true},
			User:        models.PublicProfile{ID: "id-1", UserName: "alice"},
			Token:       "tok",
		})
	}))
	defer srv.Close()

	cfg := &config.Config{
		AdminAddr: strings.TrimPrefix(srv.URL, "http://"),
		BaseURL:   "http://example.com/",
	}

	var out bytes.Buffer
	require.NoError(t, AddUser(&out, "alice", cfg))
	assert.Contains(t, out.String(), "id-1")
	assert.Contains(t, out.String(), "http://example.com/api/live?token=tok")
}

func TestAddUser_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"message":"Failed to create user: user already exists"}`))
	}))
	defer srv.Close()

	cfg := &config.Config{AdminAddr: strings.TrimPrefix(srv.URL, "http://")}

	err := AddUser(&bytes.Buffer{}, "alice", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}
