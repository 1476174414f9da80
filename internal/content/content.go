package content

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// MaxBodyLength is the maximum message length in runes.
const MaxBodyLength = 4096

var (
	policy        = bluemonday.UGCPolicy()
	markdown      = goldmark.New()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Render converts a Markdown message body into sanitized HTML.
func Render(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}

// NormalizeBody trims the body and checks it is non-empty and not too long.
func NormalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", errors.New("message body cannot be empty")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", errors.New("message body is too long")
	}
	return body, nil
}

// ValidIdentity reports whether id looks like an identity issued by the account component.
func ValidIdentity(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
