package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unipulse/internal/admin"
	"unipulse/internal/logging"
	"unipulse/internal/storage"
)

// fakeAuthServer accepts exactly one access token at a time.
type fakeAuthServer struct {
	mu           sync.Mutex
	validAccess  string
	validRefresh string
	nextAccess   string
	refreshCalls atomic.Int32
	refreshDelay time.Duration
	alwaysReject bool
}

func (f *fakeAuthServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+admin.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["username"] != "admin" || creds["password"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
			return
		}
		json.NewEncoder(w).Encode(admin.TokenPair{Access: "access-1", Refresh: "refresh-1"})
	})
	mux.HandleFunc("POST "+admin.PathRefresh, func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		defer f.mu.Unlock()
		if body["refresh"] != f.validRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Token is invalid or expired"}`))
			return
		}
		f.validAccess = f.nextAccess
		json.NewEncoder(w).Encode(map[string]string{"access": f.nextAccess})
	})
	mux.HandleFunc("GET /api/analytics/admin/overview", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		valid := r.Header.Get("Authorization") == "Bearer "+f.validAccess && !f.alwaysReject
		f.mu.Unlock()
		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"range":"7d","totals":{"sessions":12}}`))
	})
	mux.HandleFunc("GET /api/analytics/admin/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /api/analytics/admin/invalid", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("range must be one of today, 7d"))
	})
	return mux
}

func newSession(t *testing.T, f *fakeAuthServer, static string) (*admin.Session, *storage.MemoryStore) {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	store := storage.NewMemoryStore()
	return admin.NewSession(server.URL, server.Client(), store, static, logging.Discard()), store
}

type overview struct {
	Range  string `json:"range"`
	Totals struct {
		Sessions int `json:"sessions"`
	} `json:"totals"`
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the token pair", func(t *testing.T) {
		session, store := newSession(t, &fakeAuthServer{}, "")

		pair, err := session.Login(ctx, "admin", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, "access-1", pair.Access)

		access, _ := storage.Lookup(store, storage.KeyAdminAccessToken)
		refresh, _ := storage.Lookup(store, storage.KeyAdminRefreshToken)
		assert.Equal(t, "access-1", access)
		assert.Equal(t, "refresh-1", refresh)
		assert.True(t, session.Authenticated())
	})

	t.Run("rejection leaves tokens untouched", func(t *testing.T) {
		session, store := newSession(t, &fakeAuthServer{}, "")
		require.NoError(t, store.Set(storage.KeyAdminAccessToken, "previous"))

		_, err := session.Login(ctx, "admin", "wrong")
		var authErr *admin.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusUnauthorized, authErr.Status)
		assert.Equal(t, "No active account found with the given credentials", authErr.Error())
		assert.Equal(t, "previous", session.AccessToken())
	})
}

func TestFetchRefreshesOnceOn401(t *testing.T) {
	f := &fakeAuthServer{validAccess: "access-2", validRefresh: "refresh-1", nextAccess: "access-2"}
	session, store := newSession(t, f, "")
	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "access-1"))
	require.NoError(t, store.Set(storage.KeyAdminRefreshToken, "refresh-1"))

	var out overview
	require.NoError(t, session.Fetch(context.Background(), "/api/analytics/admin/overview", &out))

	assert.Equal(t, 12, out.Totals.Sessions)
	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, "access-2", session.AccessToken(), "refreshed token is persisted")
}

func TestFetchWithoutRefreshTokenExpires(t *testing.T) {
	f := &fakeAuthServer{validAccess: "other"}
	session, store := newSession(t, f, "")
	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "access-1"))

	_, err := session.FetchRaw(context.Background(), "/api/analytics/admin/overview")
	assert.ErrorIs(t, err, admin.ErrSessionExpired)
	assert.True(t, admin.IsAuthFailure(err))
	assert.Contains(t, err.Error(), "expired")
	assert.Zero(t, f.refreshCalls.Load())
}

func TestFetchWithRejectedRefreshExpires(t *testing.T) {
	f := &fakeAuthServer{validAccess: "other", validRefresh: "refresh-2"}
	session, store := newSession(t, f, "")
	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "access-1"))
	require.NoError(t, store.Set(storage.KeyAdminRefreshToken, "refresh-1"))

	_, err := session.FetchRaw(context.Background(), "/api/analytics/admin/overview")
	assert.ErrorIs(t, err, admin.ErrSessionExpired)
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestSecond401IsNotRetried(t *testing.T) {
	f := &fakeAuthServer{validRefresh: "refresh-1", nextAccess: "access-2", alwaysReject: true}
	session, store := newSession(t, f, "")
	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "access-1"))
	require.NoError(t, store.Set(storage.KeyAdminRefreshToken, "refresh-1"))

	_, err := session.FetchRaw(context.Background(), "/api/analytics/admin/overview")

	var reqErr *admin.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	assert.ErrorIs(t, err, admin.ErrSessionExpired)
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	f := &fakeAuthServer{validAccess: "access-2", validRefresh: "refresh-1", nextAccess: "access-2", refreshDelay: 50 * time.Millisecond}
	session, store := newSession(t, f, "")
	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "access-1"))
	require.NoError(t, store.Set(storage.KeyAdminRefreshToken, "refresh-1"))

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = session.FetchRaw(context.Background(), "/api/analytics/admin/overview")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestFetchErrors(t *testing.T) {
	session, store := newSession(t, &fakeAuthServer{}, "")
	ctx := context.Background()

	_, err := session.FetchRaw(ctx, "/api/analytics/admin/overview")
	assert.ErrorIs(t, err, admin.ErrNotAuthenticated)

	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "access-1"))

	_, err = session.FetchRaw(ctx, "/api/analytics/admin/broken")
	var reqErr *admin.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "request failed: 500", err.Error())
	assert.False(t, admin.IsAuthFailure(err))

	_, err = session.FetchRaw(ctx, "/api/analytics/admin/invalid")
	assert.EqualError(t, err, "range must be one of today, 7d")
}

func TestStaticTokenAndLogout(t *testing.T) {
	session, store := newSession(t, &fakeAuthServer{}, "from-env")
	assert.Equal(t, "from-env", session.AccessToken())

	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "stored"))
	require.NoError(t, store.Set(storage.KeyAdminRefreshToken, "refresh"))
	assert.Equal(t, "stored", session.AccessToken(), "stored token wins over the static one")

	require.NoError(t, session.Logout())
	_, ok := storage.Lookup(store, storage.KeyAdminRefreshToken)
	assert.False(t, ok)
	assert.Equal(t, "from-env", session.AccessToken())
}

func TestTokenInfo(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	claims := admin.Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(4 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	session, store := newSession(t, &fakeAuthServer{}, "")
	_, err = session.TokenInfo(now)
	assert.ErrorIs(t, err, admin.ErrNotAuthenticated)

	require.NoError(t, store.Set(storage.KeyAdminAccessToken, signed))
	info, err := session.TokenInfo(now)
	require.NoError(t, err)
	assert.Equal(t, "7", info.Subject)
	assert.False(t, info.Expired)
	assert.False(t, info.Static)
	assert.True(t, info.ExpiresAt.Equal(now.Add(4*time.Minute)))

	info, err = session.TokenInfo(now.Add(5 * time.Minute))
	require.NoError(t, err)
	assert.True(t, info.Expired)

	require.NoError(t, store.Set(storage.KeyAdminAccessToken, "not-a-jwt"))
	_, err = session.TokenInfo(now)
	assert.Error(t, err)
}
