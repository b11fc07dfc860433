package dashboard

import "unipulse/internal/timeframe"

// Wire shapes of the admin report endpoints.

type Totals struct {
	Sessions       int     `json:"sessions" yaml:"sessions"`
	UniqueVisitors int     `json:"unique_visitors" yaml:"unique_visitors"`
	Pageviews      int     `json:"pageviews" yaml:"pageviews"`
	AvgTimeSec     float64 `json:"avg_time_sec" yaml:"avg_time_sec"`
	BounceRate     float64 `json:"bounce_rate" yaml:"bounce_rate"`
	Conversions    int     `json:"conversions" yaml:"conversions"`
}

// Change holds relative changes against the previous window (0.25 = +25%).
type Change struct {
	Sessions  float64 `json:"sessions" yaml:"sessions"`
	Pageviews float64 `json:"pageviews" yaml:"pageviews"`
}

type Overview struct {
	Range        string `json:"range"`
	Totals       Totals `json:"totals"`
	ChangeVsPrev Change `json:"change_vs_prev"`
}

type SeriesPoint struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
}

type Series struct {
	Metric string        `json:"metric"`
	Points []SeriesPoint `json:"points"`
}

type TopPage struct {
	Path           string  `json:"path" yaml:"path"`
	Pageviews      int     `json:"pageviews" yaml:"pageviews"`
	UniqueVisitors int     `json:"unique_visitors" yaml:"unique_visitors"`
	AvgTimeSec     float64 `json:"avg_time_sec" yaml:"avg_time_sec"`
	ExitRate       float64 `json:"exit_rate" yaml:"exit_rate"`
}

type ReferrerRow struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

type GeoRow struct {
	Country string `json:"country" yaml:"country"`
	City    string `json:"city" yaml:"city"`
	Count   int    `json:"count" yaml:"count"`
}

type DeviceRow struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Devices struct {
	Devices  []DeviceRow  `json:"devices"`
	Browsers []NamedCount `json:"browsers"`
	OS       []NamedCount `json:"os"`
}

type Conversion struct {
	Name  string  `json:"name" yaml:"name"`
	Count int     `json:"count" yaml:"count"`
	Rate  float64 `json:"rate" yaml:"rate"`
}

type PerformanceRow struct {
	Path      string  `json:"path" yaml:"path"`
	TTFBP75MS float64 `json:"ttfb_p75_ms" yaml:"ttfb_p75_ms"`
	FCPP75MS  float64 `json:"fcp_p75_ms" yaml:"fcp_p75_ms"`
	LCPP75MS  float64 `json:"lcp_p75_ms" yaml:"lcp_p75_ms"`
	CLSP75    float64 `json:"cls_p75" yaml:"cls_p75"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

// Display shapes.

// TrafficPoint is one day of the merged sessions/pageviews series.
type TrafficPoint struct {
	Date      string `json:"date" yaml:"date"`
	Sessions  int    `json:"sessions" yaml:"sessions"`
	Pageviews int    `json:"pageviews" yaml:"pageviews"`
}

// Slice is a labelled count in a breakdown chart.
type Slice struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// ReportSet is everything the dashboard renders for one range.
type ReportSet struct {
	Range         timeframe.RangeKey `json:"range" yaml:"range"`
	Label         string             `json:"label" yaml:"label"`
	Totals        Totals             `json:"totals" yaml:"totals"`
	Change        *Change            `json:"change_vs_prev,omitempty" yaml:"change_vs_prev,omitempty"`
	Traffic       []TrafficPoint     `json:"traffic" yaml:"traffic"`
	SessionsTrend float64            `json:"sessions_trend" yaml:"sessions_trend"`
	TopPages      []TopPage          `json:"top_pages" yaml:"top_pages"`
	Referrers     []Slice            `json:"referrers" yaml:"referrers"`
	Geo           []GeoRow           `json:"geo" yaml:"geo"`
	TopCountries  []Slice            `json:"top_countries" yaml:"top_countries"`
	Devices       []Slice            `json:"devices" yaml:"devices"`
	Browsers      []Slice            `json:"browsers" yaml:"browsers"`
	OS            []Slice            `json:"os" yaml:"os"`
	Conversions   []Conversion       `json:"conversions" yaml:"conversions"`
	Performance   []PerformanceRow   `json:"performance" yaml:"performance"`
}
