package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"proptalk/internal/api"
	"proptalk/internal/config"
	"proptalk/internal/models"
)

// AddUser creates an identity through the running server's admin API and
// prints its id and a token the user can connect with.
func AddUser(out io.Writer, username string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.AddUserRequest{UserName: username})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result models.UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	_, _ = fmt.Fprintf(out, "\nUser Created Successfully!\n")
	_, _ = fmt.Fprintf(out, "Username:   %s\n", result.User.UserName)
	_, _ = fmt.Fprintf(out, "User ID:    %s\n", result.User.ID)
	_, _ = fmt.Fprintf(out, "Token:      %s\n\n", result.Token)
	_, _ = fmt.Fprintf(out, "Live endpoint: %s/api/live?token=%s\n", baseURL, result.Token)
	return nil
}
