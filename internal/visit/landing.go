package visit

import (
	"net/url"
	"strings"

	"unipulse/internal/pkg/user_agent"
)

// Viewport breakpoints, inclusive.
const (
	MobileMaxWidth = 768
	TabletMaxWidth = 1024
)

// Landing describes the first page of a visit.
type Landing struct {
	URL           string // path and query of the landing page
	Referrer      string
	Language      string
	ViewportWidth int // 0 when unknown
	UserAgent     string
}

// Page is one navigation target.
type Page struct {
	Path  string
	Title string
}

// UTM holds the campaign parameters of a landing URL.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// DeviceType classifies the visitor's device. The viewport width decides when
// known; otherwise the user agent is used.
func DeviceType(viewportWidth int, userAgent string) string {
	switch {
	case viewportWidth > 0 && viewportWidth <= MobileMaxWidth:
		return user_agent.DeviceMobile
	case viewportWidth > 0 && viewportWidth <= TabletMaxWidth:
		return user_agent.DeviceTablet
	case viewportWidth > 0:
		return user_agent.DeviceDesktop
	}

	ua := user_agent.ParseUserAgent(userAgent)
	if ua.Bot {
		return user_agent.DeviceDesktop
	}
	return ua.Device
}

// splitURL returns the path and campaign parameters of a landing URL.
func splitURL(raw string) (string, UTM) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "/", UTM{}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	q := u.Query()
	return path, UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
}

// knownOrEmpty drops the classifier's placeholder for unrecognised values.
func knownOrEmpty(value string) string {
	if value == "Unknown" {
		return ""
	}
	return value
}
