package storage

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DurableCookieTTL is how long durable-scope cookies are kept by the browser.
const DurableCookieTTL = 2 * 365 * 24 * time.Hour

// CookieStore maps a storage scope onto browser cookies for a single request.
// Session-scope cookies carry no expiry, so the browser drops them with the
// browsing session exactly like sessionStorage. Values written during the
// request are visible to later reads of the same request.
//
// A CookieStore must not be used after the request handler returns.
type CookieStore struct {
	c          *fiber.Ctx
	persistent bool
	secure     bool

	mu      sync.Mutex
	pending map[string]*string
}

// NewSessionCookies returns the session scope for the request.
func NewSessionCookies(c *fiber.Ctx) *CookieStore {
	return newCookieStore(c, false)
}

// NewDurableCookies returns the durable scope for the request.
func NewDurableCookies(c *fiber.Ctx) *CookieStore {
	return newCookieStore(c, true)
}

func newCookieStore(c *fiber.Ctx, persistent bool) *CookieStore {
	return &CookieStore{
		c:          c,
		persistent: persistent,
		secure:     c.Protocol() == "https",
		pending:    make(map[string]*string),
	}
}

func (s *CookieStore) Get(key string) (string, error) {
	s.mu.Lock()
	if value, ok := s.pending[key]; ok {
		s.mu.Unlock()
		if value == nil {
			return "", ErrNotFound
		}
		return *value, nil
	}
	s.mu.Unlock()

	// fasthttp reuses the request buffer, so the value must be copied.
	raw := strings.Clone(s.c.Cookies(key))
	if raw == "" {
		return "", ErrNotFound
	}
	value, err := url.QueryUnescape(raw)
	if err != nil {
		return raw, nil
	}
	return value, nil
}

func (s *CookieStore) Set(key, value string) error {
	cookie := &fiber.Cookie{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     "/",
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if s.persistent {
		cookie.Expires = time.Now().Add(DurableCookieTTL)
	} else {
		cookie.SessionOnly = true
	}
	s.c.Cookie(cookie)

	s.mu.Lock()
	s.pending[key] = &value
	s.mu.Unlock()
	return nil
}

func (s *CookieStore) Delete(key string) error {
	s.c.ClearCookie(key)

	s.mu.Lock()
	s.pending[key] = nil
	s.mu.Unlock()
	return nil
}
