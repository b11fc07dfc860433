// Package identity resolves the visitor and session identifiers that every
// analytics payload carries.
package identity

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"unipulse/internal/storage"
)

// Store hands out the durable visitor id and the per-session id, creating and
// persisting them on first use.
type Store struct {
	durable storage.Store
	session storage.Store
	logger  *slog.Logger
}

// New creates an identity store over the given scopes.
func New(durable, session storage.Store, logger *slog.Logger) *Store {
	return &Store{durable: durable, session: session, logger: logger}
}

// VisitorID returns the visitor id, generating one if the durable scope has none.
func (s *Store) VisitorID() string {
	return s.getOrCreate(s.durable, storage.KeyVisitorID)
}

// SessionID returns the session id, generating one if the session scope has none.
func (s *Store) SessionID() string {
	return s.getOrCreate(s.session, storage.KeySessionID)
}

// Resolve returns both ids, visitor first.
func (s *Store) Resolve() (visitorID, sessionID string) {
	return s.VisitorID(), s.SessionID()
}

func (s *Store) getOrCreate(scope storage.Store, key string) string {
	value, err := scope.Get(key)
	if err == nil && value != "" {
		return value
	}
	if err != nil && err != storage.ErrNotFound {
		s.logger.Debug("Failed to read identity", slog.String("key", key), slog.Any("error", err))
	}

	id := NewID()
	if err := scope.Set(key, id); err != nil {
		// The id is still usable for this call; the next call may mint another.
		s.logger.Debug("Failed to persist identity", slog.String("key", key), slog.Any("error", err))
	}
	return id
}

var newRandom = uuid.NewRandom

// NewID returns a random v4 UUID. If the secure random source fails it falls
// back to a UUID-shaped id built from the clock and a pseudo-random fragment.
func NewID() string {
	id, err := newRandom()
	if err != nil {
		return fallbackID(time.Now(), rand.Uint64())
	}
	return id.String()
}

func fallbackID(now time.Time, r uint64) string {
	nano := uint64(now.UnixNano())
	return fmt.Sprintf("%08x-%04x-4%03x-%04x-%012x",
		uint32(nano>>32),
		uint16(nano>>16),
		uint16(nano)&0x0fff,
		uint16(r>>48)&0x3fff|0x8000,
		r&0xffffffffffff,
	)
}
