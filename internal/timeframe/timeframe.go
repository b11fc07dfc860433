package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// RangeKey is a coarse relative window applied uniformly to every report.
type RangeKey string

const (
	RangeToday      RangeKey = "today"
	RangeLast7Days  RangeKey = "7d"
	RangeLast30Days RangeKey = "30d"
	RangeLast90Days RangeKey = "90d"
	RangeLastYear   RangeKey = "1y"
)

// DefaultRange is the dashboard's initial selection.
const DefaultRange = RangeLast7Days

var rangeDays = map[RangeKey]int{
	RangeLast7Days:  7,
	RangeLast30Days: 30,
	RangeLast90Days: 90,
	RangeLastYear:   365,
}

var rangeLabels = map[RangeKey]string{
	RangeToday:      "Today",
	RangeLast7Days:  "Last 7 days",
	RangeLast30Days: "Last 30 days",
	RangeLast90Days: "Last 90 days",
	RangeLastYear:   "Last 12 months",
}

// Ranges lists the recognized keys, shortest first.
func Ranges() []RangeKey {
	return []RangeKey{RangeToday, RangeLast7Days, RangeLast30Days, RangeLast90Days, RangeLastYear}
}

// ParseRange validates a range key. An empty string selects DefaultRange.
func ParseRange(value string) (RangeKey, error) {
	key := RangeKey(strings.ToLower(strings.TrimSpace(value)))
	if key == "" {
		return DefaultRange, nil
	}
	if _, ok := rangeLabels[key]; !ok {
		return "", fmt.Errorf("invalid range %q: expected one of %s", value, joinRanges())
	}
	return key, nil
}

func joinRanges() string {
	keys := Ranges()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

// Label returns the human-readable name of the range.
func (k RangeKey) Label() string {
	if label, ok := rangeLabels[k]; ok {
		return label
	}
	return string(k)
}

func (k RangeKey) String() string {
	return string(k)
}

// Window is the absolute interval a range key resolves to at a given instant.
type Window struct {
	Key   RangeKey
	Start time.Time
	End   time.Time
}

// Resolve returns the window ending at now. "today" starts at local
// midnight; the others reach back a fixed number of days.
func (k RangeKey) Resolve(now time.Time) Window {
	if k == RangeToday {
		y, m, d := now.Date()
		return Window{Key: k, Start: time.Date(y, m, d, 0, 0, 0, 0, now.Location()), End: now}
	}
	days, ok := rangeDays[k]
	if !ok {
		days = rangeDays[DefaultRange]
	}
	return Window{Key: k, Start: now.AddDate(0, 0, -days), End: now}
}

// Previous returns the window of equal length immediately before w.
func (w Window) Previous() Window {
	length := w.End.Sub(w.Start)
	return Window{Key: w.Key, Start: w.Start.Add(-length), End: w.Start}
}

// CalculateTrend returns the least-squares slope of values over their index.
// A positive result means the series is growing.
func CalculateTrend(values []int) float64 {
	if len(values) < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(values))

	for i, v := range values {
		x := float64(i)
		y := float64(v)

		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	return (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
}
