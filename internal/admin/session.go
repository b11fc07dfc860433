// Package admin holds the admin reporting session: password login, bearer
// authenticated requests and a single silent token refresh when the backend
// rejects an expired access token.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"unipulse/internal/storage"
)

const (
	PathLogin   = "/api/analytics/auth/login"
	PathRefresh = "/api/auth/token/refresh"
)

// TokenPair is the credential pair issued at login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Session authenticates requests against the admin API. Tokens live in the
// durable store so they survive restarts.
type Session struct {
	baseURL     string
	client      *http.Client
	store       storage.Store
	staticToken string
	logger      *slog.Logger

	refreshes singleflight.Group
}

// NewSession creates a session. staticToken, when set, is used whenever the
// store holds no access token.
func NewSession(baseURL string, client *http.Client, store storage.Store, staticToken string, logger *slog.Logger) *Session {
	if client == nil {
		client = http.DefaultClient
	}
	return &Session{
		baseURL:     baseURL,
		client:      client,
		store:       store,
		staticToken: staticToken,
		logger:      logger,
	}
}

// Login exchanges credentials for a token pair and stores it. On failure the
// stored tokens are left untouched.
func (s *Session) Login(ctx context.Context, username, password string) (TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return TokenPair{}, err
	}

	status, body, err := s.post(ctx, PathLogin, payload)
	if err != nil {
		return TokenPair{}, fmt.Errorf("login request failed: %w", err)
	}
	if status < 200 || status >= 300 {
		message := serverMessage(body)
		if message == "" {
			message = "login failed"
		}
		s.logger.Info("Admin login rejected", slog.Int("status", status))
		return TokenPair{}, &AuthError{Status: status, Message: message}
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil || pair.Access == "" {
		return TokenPair{}, &AuthError{Status: status, Message: "login failed: no access token in response"}
	}

	if err := s.store.Set(storage.KeyAdminAccessToken, pair.Access); err != nil {
		return TokenPair{}, fmt.Errorf("failed to store access token: %w", err)
	}
	if pair.Refresh != "" {
		if err := s.store.Set(storage.KeyAdminRefreshToken, pair.Refresh); err != nil {
			return TokenPair{}, fmt.Errorf("failed to store refresh token: %w", err)
		}
	}

	s.logger.Info("Admin logged in", slog.String("username", username))
	return pair, nil
}

// Logout forgets both stored tokens.
func (s *Session) Logout() error {
	return errors.Join(
		s.store.Delete(storage.KeyAdminAccessToken),
		s.store.Delete(storage.KeyAdminRefreshToken),
	)
}

// AccessToken returns the stored access token, or the static token if none
// is stored.
func (s *Session) AccessToken() string {
	if token, ok := storage.Lookup(s.store, storage.KeyAdminAccessToken); ok {
		return token
	}
	return s.staticToken
}

// Authenticated reports whether an access token is available.
func (s *Session) Authenticated() bool {
	return s.AccessToken() != ""
}

// Fetch GETs path and decodes the JSON response into out.
func (s *Session) Fetch(ctx context.Context, path string, out any) error {
	body, err := s.FetchRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// FetchRaw GETs path with the bearer token. A 401 triggers one refresh and
// one retry; a second 401 is returned as a *RequestError that matches
// ErrSessionExpired.
func (s *Session) FetchRaw(ctx context.Context, path string) ([]byte, error) {
	token := s.AccessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	status, body, err := s.get(ctx, path, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		s.logger.Debug("Access token rejected, refreshing", slog.String("path", path))
		token, err = s.refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		status, body, err = s.get(ctx, path, token)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		return nil, requestFailed(path, status, body)
	}
	return body, nil
}

// refresh renews the access token. Concurrent callers holding the same stale
// token share one refresh request.
func (s *Session) refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.refreshes.Do("refresh", func() (any, error) {
		// Someone else may have refreshed while this caller was waiting.
		if current := s.AccessToken(); current != "" && current != stale {
			return current, nil
		}

		refreshToken, ok := storage.Lookup(s.store, storage.KeyAdminRefreshToken)
		if !ok {
			return "", ErrSessionExpired
		}

		payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
		if err != nil {
			return "", err
		}
		status, body, err := s.post(ctx, PathRefresh, payload)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		if status < 200 || status >= 300 {
			s.logger.Info("Token refresh rejected", slog.Int("status", status))
			return "", ErrSessionExpired
		}

		var pair TokenPair
		if err := json.Unmarshal(body, &pair); err != nil || pair.Access == "" {
			return "", ErrSessionExpired
		}
		if err := s.store.Set(storage.KeyAdminAccessToken, pair.Access); err != nil {
			s.logger.Warn("Failed to store refreshed access token", slog.Any("error", err))
		}
		// Rotating backends also hand out a new refresh token.
		if pair.Refresh != "" {
			if err := s.store.Set(storage.KeyAdminRefreshToken, pair.Refresh); err != nil {
				s.logger.Warn("Failed to store rotated refresh token", slog.Any("error", err))
			}
		}
		return pair.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) get(ctx context.Context, path, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return s.do(req)
}

func (s *Session) post(ctx context.Context, path string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *Session) do(req *http.Request) (int, []byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
