package geo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pariz/gountries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unipulse/internal/geo"
	"unipulse/internal/logging"
)

func TestIPAPILookup(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected *geo.Location
	}{
		{
			name:     "success",
			status:   http.StatusOK,
			body:     `{"ip":"203.0.113.9","city":"Lisbon","country_name":"Portugal","country":"PT"}`,
			expected: &geo.Location{Country: "Portugal", City: "Lisbon"},
		},
		{
			name:     "country only",
			status:   http.StatusOK,
			body:     `{"country_name":"Chile"}`,
			expected: &geo.Location{Country: "Chile"},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":true,"reason":"RateLimited"}`,
		},
		{
			name:   "error flag with ok status",
			status: http.StatusOK,
			body:   `{"error":true,"reason":"Reserved IP Address"}`,
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `<html>`,
		},
		{
			name:   "empty result",
			status: http.StatusOK,
			body:   `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			locator := geo.NewIPAPI(server.URL, server.Client(), logging.Discard())
			assert.Equal(t, tt.expected, locator.Lookup(context.Background()))
		})
	}

	t.Run("network failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		locator := geo.NewIPAPI(url, &http.Client{Timeout: time.Second}, logging.Discard())
		assert.Nil(t, locator.Lookup(context.Background()))
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"country_name":"Portugal"}`))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		locator := geo.NewIPAPI(server.URL, server.Client(), logging.Discard())
		assert.Nil(t, locator.Lookup(ctx))
	})
}

func TestIPAPILocator(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		ip       string
		expected string
	}{
		{"default shape", "/json/", "203.0.113.9", "/203.0.113.9/json/"},
		{"without trailing slash", "/json", "198.51.100.4", "/198.51.100.4/json/"},
		{"prefixed endpoint", "/geo/json/", "203.0.113.9", "/geo/203.0.113.9/json/"},
		{"bare host", "", "203.0.113.9", "/203.0.113.9/json/"},
		{"ipv6 address", "/json/", "2001:db8::1", "/2001:db8::1/json/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requested string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requested = r.URL.Path
				w.Write([]byte(`{"country_name":"Portugal"}`))
			}))
			defer server.Close()

			ipapi := geo.NewIPAPI(server.URL+tt.path, server.Client(), logging.Discard())
			loc := ipapi.Locator(tt.ip).Lookup(context.Background())

			assert.Equal(t, &geo.Location{Country: "Portugal"}, loc)
			assert.Equal(t, tt.expected, requested)
		})
	}

	t.Run("distinct addresses resolve distinct locations", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/81.2.69.142/json/":
				w.Write([]byte(`{"country_name":"United Kingdom","city":"London"}`))
			case "/175.16.199.1/json/":
				w.Write([]byte(`{"country_name":"China","city":"Changchun"}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		ipapi := geo.NewIPAPI(server.URL+"/json/", server.Client(), logging.Discard())
		assert.Equal(t, &geo.Location{Country: "United Kingdom", City: "London"},
			ipapi.Locator("81.2.69.142").Lookup(context.Background()))
		assert.Equal(t, &geo.Location{Country: "China", City: "Changchun"},
			ipapi.Locator("175.16.199.1").Lookup(context.Background()))
	})

	t.Run("unknown address resolves nothing", func(t *testing.T) {
		var calls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Write([]byte(`{"country_name":"Portugal"}`))
		}))
		defer server.Close()

		ipapi := geo.NewIPAPI(server.URL+"/json/", server.Client(), logging.Discard())
		assert.Nil(t, ipapi.Locator("").Lookup(context.Background()))
		assert.Zero(t, calls)
	})
}

func TestDisabled(t *testing.T) {
	assert.Nil(t, geo.Disabled.Lookup(context.Background()))
}

func TestLocationEmpty(t *testing.T) {
	var missing *geo.Location
	assert.True(t, missing.Empty())
	assert.True(t, (&geo.Location{}).Empty())
	assert.False(t, (&geo.Location{City: "Porto"}).Empty())
}

func TestOpenDatabase(t *testing.T) {
	logger := logging.Discard()

	t.Run("unconfigured path disables lookups", func(t *testing.T) {
		db := geo.OpenDatabase("", logger)
		assert.Nil(t, db)
		assert.Nil(t, db.Lookup("8.8.8.8"))
		assert.Nil(t, db.Locator("8.8.8.8").Lookup(context.Background()))
		assert.NoError(t, db.Close())
	})

	t.Run("missing file disables lookups until reloaded", func(t *testing.T) {
		db := geo.OpenDatabase(filepath.Join(t.TempDir(), "GeoLite2-City.mmdb"), logger)
		require.NotNil(t, db)
		assert.False(t, db.Loaded())
		assert.Nil(t, db.Lookup("8.8.8.8"))

		err := db.Reload()
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.False(t, db.Loaded())
		assert.NoError(t, db.Close())
	})

	t.Run("corrupt file is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")
		require.NoError(t, os.WriteFile(path, []byte("not a maxmind database"), 0o644))

		db := geo.OpenDatabase(path, logger)
		require.NotNil(t, db)
		assert.False(t, db.Loaded())
		assert.Error(t, db.Reload())
	})
}

func TestCountryName(t *testing.T) {
	countries := gountries.New()

	tests := []struct {
		iso      string
		expected string
	}{
		{"US", "United States"},
		{"PT", "Portugal"},
		{"", ""},
		{"ZZ", "ZZ"},
	}

	for _, tt := range tests {
		t.Run(tt.iso, func(t *testing.T) {
			require.NotNil(t, countries)
			assert.Equal(t, tt.expected, geo.CountryName(countries, tt.iso))
		})
	}
}
