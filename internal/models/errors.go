package models

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error from the messaging components to a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotFriends):
		return http.StatusForbidden
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns text that is safe to show to the caller.
// Storage and other internal failures are not described.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrPersistence):
		return "internal error"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrNotFound), errors.Is(err, ErrNotFriends),
		errors.Is(err, ErrUserExists):
		return err.Error()
	default:
		return "internal error"
	}
}
