package ingest

import (
	"strings"
	"time"

	"unipulse/internal/geo"
)

// Ingestion paths, relative to the analytics base URL.
const (
	PathVisitStart  = "/api/analytics/visit/start"
	PathVisitEnd    = "/api/analytics/visit/end"
	PathPageView    = "/api/analytics/pageview"
	PathEvent       = "/api/analytics/event"
	PathPerformance = "/api/analytics/perf"
	PathError       = "/api/analytics/error"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp serializes as RFC 3339 in UTC with millisecond precision.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(timestampLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	parsed, err := time.Parse(time.RFC3339Nano, strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// VisitStart opens a visit. Sending it again for the same session updates the
// visit; the backend keeps the first started_at and only overwrites geo
// fields with non-empty values.
type VisitStart struct {
	SessionID   string    `json:"session_id"`
	VisitorID   string    `json:"visitor_id"`
	StartedAt   Timestamp `json:"started_at"`
	Referrer    string    `json:"referrer"`
	LandingPath string    `json:"landing_path"`
	DeviceType  string    `json:"device_type"`
	Browser     string    `json:"browser,omitempty"`
	OS          string    `json:"os,omitempty"`
	Language    string    `json:"language"`
	UTMSource   string    `json:"utm_source"`
	UTMMedium   string    `json:"utm_medium"`
	UTMCampaign string    `json:"utm_campaign"`
	UTMTerm     string    `json:"utm_term"`
	UTMContent  string    `json:"utm_content"`
	Country     *string   `json:"country,omitempty"`
	City        *string   `json:"city,omitempty"`
}

// WithLocation returns a copy of v carrying the non-empty parts of loc.
func (v VisitStart) WithLocation(loc *geo.Location) VisitStart {
	if loc.Empty() {
		return v
	}
	if loc.Country != "" {
		country := loc.Country
		v.Country = &country
	}
	if loc.City != "" {
		city := loc.City
		v.City = &city
	}
	return v
}

// VisitEnd closes a visit.
type VisitEnd struct {
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	EndedAt   Timestamp `json:"ended_at"`
}

// PageView records time spent on a page. Views are sent when the page is left
// or the visit unloads, never on entry, so the tracker always sets
// DurationMS; it stays optional on the wire for other producers.
type PageView struct {
	SessionID  string    `json:"session_id"`
	VisitorID  string    `json:"visitor_id"`
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	CreatedAt  Timestamp `json:"created_at"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
}

// Event is a free-form interaction such as a form submission or a click on
// a call to action.
type Event struct {
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	Label     string    `json:"label,omitempty"`
	Path      string    `json:"path"`
	CreatedAt Timestamp `json:"created_at"`
	Value     *float64  `json:"value,omitempty"`
}

// Performance carries web vitals for one page load.
type Performance struct {
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	Path      string    `json:"path"`
	CreatedAt Timestamp `json:"created_at"`
	TTFBMS    *float64  `json:"ttfb_ms,omitempty"`
	FCPMS     *float64  `json:"fcp_ms,omitempty"`
	LCPMS     *float64  `json:"lcp_ms,omitempty"`
	CLS       *float64  `json:"cls,omitempty"`
}

// ErrorReport is a client-side error.
type ErrorReport struct {
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	Path      string    `json:"path"`
	CreatedAt Timestamp `json:"created_at"`
}
