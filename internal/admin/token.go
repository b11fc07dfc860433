package admin

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token claims the CLI shows. The backend puts the
// user id in a custom claim next to the registered ones.
type Claims struct {
	UserID any `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenInfo describes the current access token.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Expired   bool
	Static    bool // the token came from configuration, not from login
}

// TokenInfo decodes the access token without verifying its signature; the
// result is for display only.
func (s *Session) TokenInfo(now time.Time) (*TokenInfo, error) {
	token := s.AccessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}

	info := &TokenInfo{
		Subject: claims.Subject,
		Static:  token == s.staticToken,
	}
	if info.Subject == "" && claims.UserID != nil {
		info.Subject = fmt.Sprint(claims.UserID)
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
		info.Expired = !now.Before(info.ExpiresAt)
	}
	return info, nil
}
