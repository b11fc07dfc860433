package middleware

import (
	"bytes"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"

	"unipulse/internal/pkg/user_agent"
	"unipulse/internal/visit"
)

// BeaconPrefix is the path space of the tracker's own endpoints.
const BeaconPrefix = "/_pulse"

// titleScanLimit bounds how much of a page is searched for its title.
const titleScanLimit = 64 << 10

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// TrackerSource hands out the tracker for the visitor behind a request.
type TrackerSource interface {
	For(c *fiber.Ctx) *visit.Tracker
}

// TrackPages records successful HTML page loads as navigations. The first
// tracked page of a session opens the visit. Bots, prefetches and the
// tracker's own endpoints are ignored.
func TrackPages(source TrackerSource, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isPageRequest(c) {
			return c.Next()
		}
		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusBadRequest || !isHTMLResponse(c) {
			return nil
		}

		t := source.For(c)
		ctx := c.UserContext()
		if t.StartIfNeeded(ctx, landingFrom(c)) {
			logger.Debug("Opened visit", slog.String("path", c.Path()))
		}
		t.Navigate(ctx, visit.Page{
			Path:  c.Path(),
			Title: pageTitle(c.Response().Body()),
		})
		return nil
	}
}

func isPageRequest(c *fiber.Ctx) bool {
	if c.Method() != fiber.MethodGet {
		return false
	}
	if strings.HasPrefix(c.Path(), BeaconPrefix) {
		return false
	}
	if purpose := c.Get("Sec-Purpose", c.Get("Purpose")); strings.Contains(purpose, "prefetch") {
		return false
	}
	return !user_agent.ParseUserAgent(c.Get(fiber.HeaderUserAgent)).Bot
}

func isHTMLResponse(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Response().Header.ContentType()), fiber.MIMETextHTML)
}

func landingFrom(c *fiber.Ctx) visit.Landing {
	return visit.Landing{
		URL:           c.OriginalURL(),
		Referrer:      c.Get(fiber.HeaderReferer),
		Language:      primaryLanguage(c.Get(fiber.HeaderAcceptLanguage)),
		ViewportWidth: viewportWidth(c),
		UserAgent:     c.Get(fiber.HeaderUserAgent),
	}
}

// primaryLanguage returns the visitor's preferred language tag.
func primaryLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}

// viewportWidth reads the viewport client hint, 0 when absent.
func viewportWidth(c *fiber.Ctx) int {
	raw := c.Get("Sec-CH-Viewport-Width", c.Get("Viewport-Width"))
	width, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || width < 0 {
		return 0
	}
	return width
}

func pageTitle(body []byte) string {
	if len(body) > titleScanLimit {
		body = body[:titleScanLimit]
	}
	match := titlePattern.FindSubmatch(body)
	if match == nil {
		return ""
	}
	title := bytes.Join(bytes.Fields(match[1]), []byte(" "))
	return html.UnescapeString(string(title))
}
