package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"unipulse/internal/geo"
	"unipulse/internal/pkg/referrers"
)

// TopCountriesLimit is how many countries the dashboard highlights.
const TopCountriesLimit = 4

const unknownName = "Unknown"

var countryQuery = sync.OnceValue(gountries.New)

// MergeSeries joins the sessions and pageviews series on their date key.
// Dates present in only one series get zero for the other metric. The
// result is sorted by date ascending.
func MergeSeries(sessions, pageviews []SeriesPoint) []TrafficPoint {
	byDate := make(map[string]*TrafficPoint, len(sessions)+len(pageviews))
	point := func(date string) *TrafficPoint {
		p, ok := byDate[date]
		if !ok {
			p = &TrafficPoint{Date: date}
			byDate[date] = p
		}
		return p
	}

	for _, s := range sessions {
		point(s.Date).Sessions += s.Value
	}
	for _, s := range pageviews {
		point(s.Date).Pageviews += s.Value
	}

	merged := make([]TrafficPoint, 0, len(byDate))
	for _, p := range byDate {
		merged = append(merged, *p)
	}
	// ISO dates sort lexically.
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	return merged
}

// TopCountries sums geo rows per country and returns the n largest, ties
// broken by name. Rows without a country count as "Unknown".
func TopCountries(rows []GeoRow, n int) []Slice {
	counts := make(map[string]int)
	for _, row := range rows {
		counts[countryName(row.Country)] += row.Count
	}

	result := make([]Slice, 0, len(counts))
	for name, count := range counts {
		result = append(result, Slice{Name: name, Count: count})
	}
	sortSlices(result)

	if n >= 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// countryName turns a stored country into its display name. Some backends
// store ISO alpha-2 codes, which are resolved to common names.
func countryName(country string) string {
	country = strings.TrimSpace(country)
	if country == "" {
		return unknownName
	}
	if len(country) == 2 {
		return geo.CountryName(countryQuery(), strings.ToUpper(country))
	}
	return country
}

func convertReferrers(rows []ReferrerRow) []Slice {
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[referrers.DisplayName(row.Source)] += row.Count
	}
	return slicesFromCounts(counts)
}

func convertDevices(rows []DeviceRow) []Slice {
	caser := cases.Title(language.AmericanEnglish)

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[titleOrUnknown(caser, row.Type)] += row.Count
	}
	return slicesFromCounts(counts)
}

func convertBrowsers(rows []NamedCount) []Slice {
	caser := cases.Title(language.AmericanEnglish)

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[titleOrUnknown(caser, row.Name)] += row.Count
	}
	return slicesFromCounts(counts)
}

func convertOS(rows []NamedCount) []Slice {
	caser := cases.Title(language.AmericanEnglish)

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		name := row.Name
		// Keep the vendor spelling for Apple platforms.
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "ios", "iphone os":
			name = "iOS"
		case "ipados":
			name = "iPadOS"
		case "macos", "mac os", "mac os x", "mac", "darwin":
			name = "macOS"
		default:
			name = titleOrUnknown(caser, name)
		}
		counts[name] += row.Count
	}
	return slicesFromCounts(counts)
}

func titleOrUnknown(caser cases.Caser, name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "unknown") {
		return unknownName
	}
	return caser.String(name)
}

func slicesFromCounts(counts map[string]int) []Slice {
	result := make([]Slice, 0, len(counts))
	for name, count := range counts {
		result = append(result, Slice{Name: name, Count: count})
	}
	sortSlices(result)
	return result
}

func sortSlices(s []Slice) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Name < s[j].Name
	})
}

func seriesValues(points []TrafficPoint) []int {
	values := make([]int, len(points))
	for i, p := range points {
		values[i] = p.Sessions
	}
	return values
}

// FormatDuration renders seconds as "1m 5s" or "42s".
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "0s"
	}
	minutes := int(seconds / 60)
	remaining := int(math.Round(math.Mod(seconds, 60)))
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, remaining)
	}
	return fmt.Sprintf("%ds", remaining)
}

// FormatPercent renders a ratio (0.125) as "12.5%".
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatChange renders a relative change with its sign, e.g. "+12.5%".
func FormatChange(ratio float64) string {
	if ratio > 0 {
		return "+" + FormatPercent(ratio)
	}
	return FormatPercent(ratio)
}
