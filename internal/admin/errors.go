package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrSessionExpired means the access token was rejected and could not be
	// renewed. Callers should send the user back to login.
	ErrSessionExpired = errors.New("session expired: token refresh failed")

	// ErrNotAuthenticated means no access token is available at all.
	ErrNotAuthenticated = errors.New("not authenticated: log in first")
)

// AuthError is a rejected login.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// RequestError is a non-success response to an authenticated request.
type RequestError struct {
	Path    string
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// Unwrap lets a 401 that survived a refresh match ErrSessionExpired.
func (e *RequestError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	return nil
}

// IsAuthFailure reports whether err means the caller has to log in again.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotAuthenticated)
}

const maxMessageLength = 300

// serverMessage extracts a human-readable message from an error body. JSON
// bodies are searched for the usual detail/message/error keys; anything else
// is returned as trimmed text.
func serverMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if value, ok := fields[key].(string); ok && value != "" {
				return value
			}
		}
	}

	if len(text) > maxMessageLength {
		text = text[:maxMessageLength] + "..."
	}
	return text
}

func requestFailed(path string, status int, body []byte) *RequestError {
	message := serverMessage(body)
	if message == "" {
		message = fmt.Sprintf("request failed: %d", status)
	}
	return &RequestError{Path: path, Status: status, Message: message}
}
