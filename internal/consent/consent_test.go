package consent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unipulse/internal/consent"
	"unipulse/internal/storage"
)

func TestGateReadsStoredValues(t *testing.T) {
	tests := []struct {
		stored   string
		expected consent.State
	}{
		{"granted", consent.Granted},
		{"denied", consent.Denied},
		{"true", consent.Granted},
		{"false", consent.Denied},
		{"maybe", consent.Unset},
		{"GRANTED", consent.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.stored, func(t *testing.T) {
			store := storage.NewMemoryStore()
			require.NoError(t, store.Set(storage.KeyGeoConsent, tt.stored))

			assert.Equal(t, tt.expected, consent.NewGate(store).Get())
		})
	}

	t.Run("missing", func(t *testing.T) {
		gate := consent.NewGate(storage.NewMemoryStore())
		assert.Equal(t, consent.Unset, gate.Get())
		assert.False(t, gate.Granted())
	})
}

func TestGateSet(t *testing.T) {
	store := storage.NewMemoryStore()
	gate := consent.NewGate(store)

	require.NoError(t, gate.Set(consent.Denied))
	assert.Equal(t, consent.Denied, gate.Get())

	require.NoError(t, gate.Set(consent.Granted))
	assert.True(t, gate.Granted())
	stored, _ := storage.Lookup(store, storage.KeyGeoConsent)
	assert.Equal(t, "granted", stored)

	require.NoError(t, gate.Set(consent.Unset))
	assert.Equal(t, consent.Unset, gate.Get())

	assert.ErrorIs(t, gate.Set(consent.State("later")), consent.ErrInvalidState)
}

func TestParseState(t *testing.T) {
	tests := []struct {
		input    string
		expected consent.State
		wantErr  bool
	}{
		{"granted", consent.Granted, false},
		{" Denied ", consent.Denied, false},
		{"true", consent.Granted, false},
		{"no", consent.Denied, false},
		{"", consent.Unset, false},
		{"perhaps", consent.Unset, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			state, err := consent.ParseState(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, consent.ErrInvalidState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state)
		})
	}
}
