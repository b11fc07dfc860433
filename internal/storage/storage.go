// Package storage abstracts the two client-side storage scopes the analytics
// client relies on: a durable scope that survives restarts (visitor id,
// consent, admin tokens) and a session scope that lives as long as one
// browsing session (session id, visit state, page cursor).
package storage

import "errors"

// ErrNotFound is returned by Get when the key has no value in the scope.
var ErrNotFound = errors.New("storage: key not found")

// Store is a string key/value scope. Implementations must be safe for
// concurrent use; no cross-call atomicity is promised.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Durable scope keys
const (
	KeyVisitorID         = "analyticsVisitorId"
	KeyGeoConsent        = "analyticsGeoConsent"
	KeyAdminAccessToken  = "analyticsAdminToken"
	KeyAdminRefreshToken = "analyticsAdminRefreshToken"
	KeyGeoLiteUpdatedAt  = "geoliteLastUpdate"
)

// Session scope keys
const (
	KeySessionID     = "analyticsSessionId"
	KeyVisitStarted  = "analyticsVisitStarted"
	KeyPagePath      = "analyticsPagePath"
	KeyPageTitle     = "analyticsPageTitle"
	KeyPageEnteredAt = "analyticsPageEnteredAt"
	KeyVisitLanding  = "analyticsVisitLanding"
)

// SessionKeys lists every key kept in the session scope.
var SessionKeys = []string{
	KeySessionID,
	KeyVisitStarted,
	KeyPagePath,
	KeyPageTitle,
	KeyPageEnteredAt,
	KeyVisitLanding,
}

// Lookup returns the value for key and whether it is present. Read errors
// other than ErrNotFound are reported as absent.
func Lookup(s Store, key string) (string, bool) {
	value, err := s.Get(key)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}
