// Package http hosts the visit tracker behind a Fiber server. Browser storage
// scopes map onto cookies, so every request gets a tracker over that
// visitor's own state.
package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"unipulse/internal/geo"
	"unipulse/internal/storage"
	"unipulse/internal/visit"
)

// Tracking builds request-scoped trackers.
type Tracking struct {
	tracker *visit.Tracker
	geo     geo.ClientLocator
	logger  *slog.Logger
}

// NewTracking wraps a base tracker. When clientGeo is non-nil, locations are
// resolved from each request's client address instead of the tracker's own
// locator.
func NewTracking(tracker *visit.Tracker, clientGeo geo.ClientLocator, logger *slog.Logger) *Tracking {
	return &Tracking{tracker: tracker, geo: clientGeo, logger: logger}
}

// For returns the tracker for the visitor behind c. It must not be used
// after the handler returns.
func (h *Tracking) For(c *fiber.Ctx) *visit.Tracker {
	t := h.tracker.WithScopes(storage.NewDurableCookies(c), storage.NewSessionCookies(c))
	if h.geo != nil {
		t = t.WithLocator(h.geo.Locator(ClientIP(c)))
	}
	return t
}
