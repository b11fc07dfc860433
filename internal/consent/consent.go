// Package consent persists the visitor's geolocation permission.
package consent

import (
	"errors"
	"fmt"
	"strings"

	"unipulse/internal/storage"
)

// State is the visitor's geolocation consent.
type State string

const (
	Unset   State = "unset"
	Granted State = "granted"
	Denied  State = "denied"
)

// ErrInvalidState is returned by ParseState for unrecognised input.
var ErrInvalidState = errors.New("invalid consent state")

// ParseState parses user input. Besides the state names it accepts the
// legacy "true"/"false" values.
func ParseState(value string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(Granted), "true", "yes":
		return Granted, nil
	case string(Denied), "false", "no":
		return Denied, nil
	case string(Unset), "":
		return Unset, nil
	}
	return Unset, fmt.Errorf("%w: %q", ErrInvalidState, value)
}

func fromStored(value string) State {
	switch value {
	case string(Granted), "true":
		return Granted
	case string(Denied), "false":
		return Denied
	default:
		return Unset
	}
}

// Gate reads and writes consent in the durable scope.
type Gate struct {
	store storage.Store
}

// NewGate creates a gate over the durable scope.
func NewGate(store storage.Store) *Gate {
	return &Gate{store: store}
}

// Get returns the stored consent; a missing or unreadable value is Unset.
func (g *Gate) Get() State {
	value, _ := storage.Lookup(g.store, storage.KeyGeoConsent)
	return fromStored(value)
}

// Set stores the consent. Setting Unset forgets any earlier answer.
func (g *Gate) Set(state State) error {
	switch state {
	case Granted, Denied:
		if err := g.store.Set(storage.KeyGeoConsent, string(state)); err != nil {
			return fmt.Errorf("failed to store consent: %w", err)
		}
	case Unset:
		if err := g.store.Delete(storage.KeyGeoConsent); err != nil {
			return fmt.Errorf("failed to clear consent: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	return nil
}

// Granted reports whether geolocation is allowed.
func (g *Gate) Granted() bool {
	return g.Get() == Granted
}
