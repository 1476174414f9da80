package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"proptalk/internal/models"
)

type tokenIssuer interface {
	IssueToken(userID string) (string, int64, error)
}

type userRegistry interface {
	Create(userName, displayName, avatarURL string) (models.User, error)
	FindByID(id string) (models.User, error)
}

type liveDisconnector interface {
	DisconnectUser(id string) bool
}

type AdminHandler struct {
	tokens tokenIssuer
	users  userRegistry
	hub    liveDisconnector
}

func NewAdminHandler(tokens tokenIssuer, users userRegistry, hub liveDisconnector) *AdminHandler {
	return &AdminHandler{tokens: tokens, users: users, hub: hub}
}

type AddUserRequest struct {
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.users.Create(req.UserName, req.DisplayName, req.AvatarURL)
	if err != nil {
		writeError(w, err)
		return
	}

	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *AdminHandler) IssueTokenHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("id")
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	user, err := h.users.FindByID(userID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

func (h *AdminHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("id")
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	if !h.hub.DisconnectUser(userID) {
		writeJSON(w, http.StatusNotFound, models.APIResponse{
			Success: false,
			Message: "User is not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("User %s disconnected", userID),
	})
}

func (h *AdminHandler) respondWithToken(w http.ResponseWriter, status int, user models.User) {
	token, _, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		slog.Error("failed to issue token", "user_id", user.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Message: "internal error",
		})
		return
	}

	writeJSON(w, status, models.UserResponse{
		APIResponse: models.APIResponse{Success: true},
		User:        user.Profile(),
		Token:       token,
	})
}
