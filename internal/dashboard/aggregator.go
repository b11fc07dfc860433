// Package dashboard loads the admin analytics reports for a range and
// reshapes them for display.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"unipulse/internal/admin"
	"unipulse/internal/pkg/async"
	"unipulse/internal/timeframe"
)

const (
	PathOverview    = "/api/analytics/admin/overview"
	PathTimeseries  = "/api/analytics/admin/timeseries"
	PathTopPages    = "/api/analytics/admin/top-pages"
	PathReferrers   = "/api/analytics/admin/referrers"
	PathGeo         = "/api/analytics/admin/geo"
	PathDevices     = "/api/analytics/admin/devices"
	PathConversions = "/api/analytics/admin/conversions"
	PathPerformance = "/api/analytics/admin/performance"
	PathExport      = "/api/analytics/admin/export.csv"
)

// DefaultWorkers is enough to run every report fetch at once.
const DefaultWorkers = 9

// Fetcher performs authenticated admin requests. *admin.Session is the
// production implementation.
type Fetcher interface {
	Authenticated() bool
	Fetch(ctx context.Context, path string, out any) error
	FetchRaw(ctx context.Context, path string) ([]byte, error)
}

// LoadError fails a whole report load. Op names the report that failed.
type LoadError struct {
	Range string
	Op    string
	Err   error
}

func (e *LoadError) Error() string {
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type loadOptions struct {
	compare bool
}

// Option tunes a LoadReport call.
type Option func(*loadOptions)

// WithComparison asks the overview for the change against the previous
// window of the same length.
func WithComparison() Option {
	return func(o *loadOptions) {
		o.compare = true
	}
}

// Aggregator loads dashboard reports.
type Aggregator struct {
	fetcher Fetcher
	pool    *async.Pool
	logger  *slog.Logger
}

func NewAggregator(fetcher Fetcher, workers int, logger *slog.Logger) *Aggregator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Aggregator{
		fetcher: fetcher,
		pool:    async.NewPool(workers),
		logger:  logger,
	}
}

// LoadReport fetches all reports for rangeKey concurrently. Any failure
// cancels the outstanding fetches and fails the load; there is no partial
// result.
func (a *Aggregator) LoadReport(ctx context.Context, rangeKey string, opts ...Option) (*ReportSet, error) {
	key, err := timeframe.ParseRange(rangeKey)
	if err != nil {
		return nil, &LoadError{Range: rangeKey, Op: "range", Err: err}
	}
	if !a.fetcher.Authenticated() {
		return nil, &LoadError{Range: key.String(), Op: "auth", Err: admin.ErrNotAuthenticated}
	}

	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	overviewQuery := url.Values{"range": {key.String()}}
	if o.compare {
		overviewQuery.Set("compare", "prev")
	}

	tasks := []async.Task{
		fetchTask[Overview](a.fetcher, "overview", PathOverview+"?"+overviewQuery.Encode()),
		fetchTask[Series](a.fetcher, "sessions", timeseriesPath("sessions", key)),
		fetchTask[Series](a.fetcher, "pageviews", timeseriesPath("pageviews", key)),
		fetchTask[itemsResponse[TopPage]](a.fetcher, "topPages", rangePath(PathTopPages, key)),
		fetchTask[itemsResponse[ReferrerRow]](a.fetcher, "referrers", rangePath(PathReferrers, key)),
		fetchTask[itemsResponse[GeoRow]](a.fetcher, "geo", rangePath(PathGeo, key)),
		fetchTask[Devices](a.fetcher, "devices", rangePath(PathDevices, key)),
		fetchTask[itemsResponse[Conversion]](a.fetcher, "conversions", rangePath(PathConversions, key)),
		fetchTask[itemsResponse[PerformanceRow]](a.fetcher, "performance", rangePath(PathPerformance, key)),
	}

	a.logger.Debug("Loading dashboard", slog.String("range", key.String()), slog.Bool("compare", o.compare))

	results, err := a.pool.Execute(ctx, tasks)
	if err != nil {
		loadErr := &LoadError{Range: key.String(), Err: err}
		var taskErr *async.TaskError
		if errors.As(err, &taskErr) {
			loadErr.Op = taskErr.Name
			loadErr.Err = taskErr.Err
		}
		a.logger.Error("Failed to load dashboard",
			slog.String("range", key.String()),
			slog.String("report", loadErr.Op),
			slog.Any("error", loadErr.Err))
		return nil, loadErr
	}

	overview := results["overview"].Data.(*Overview)
	sessions := results["sessions"].Data.(*Series)
	pageviews := results["pageviews"].Data.(*Series)
	devices := results["devices"].Data.(*Devices)
	geoRows := orEmpty(results["geo"].Data.(*itemsResponse[GeoRow]).Items)

	report := &ReportSet{
		Range:        key,
		Label:        key.Label(),
		Totals:       overview.Totals,
		Traffic:      MergeSeries(sessions.Points, pageviews.Points),
		TopPages:     orEmpty(results["topPages"].Data.(*itemsResponse[TopPage]).Items),
		Referrers:    convertReferrers(results["referrers"].Data.(*itemsResponse[ReferrerRow]).Items),
		Geo:          geoRows,
		TopCountries: TopCountries(geoRows, TopCountriesLimit),
		Devices:      convertDevices(devices.Devices),
		Browsers:     convertBrowsers(devices.Browsers),
		OS:           convertOS(devices.OS),
		Conversions:  orEmpty(results["conversions"].Data.(*itemsResponse[Conversion]).Items),
		Performance:  orEmpty(results["performance"].Data.(*itemsResponse[PerformanceRow]).Items),
	}
	report.SessionsTrend = timeframe.CalculateTrend(seriesValues(report.Traffic))
	if o.compare {
		change := overview.ChangeVsPrev
		report.Change = &change
	}
	return report, nil
}

// Export downloads the CSV export of the top pages for rangeKey.
func (a *Aggregator) Export(ctx context.Context, rangeKey string) ([]byte, error) {
	key, err := timeframe.ParseRange(rangeKey)
	if err != nil {
		return nil, &LoadError{Range: rangeKey, Op: "range", Err: err}
	}

	data, err := a.fetcher.FetchRaw(ctx, rangePath(PathExport, key))
	if err != nil {
		return nil, &LoadError{Range: key.String(), Op: "export", Err: err}
	}
	a.logger.Debug("Exported report", slog.String("range", key.String()), slog.Int("bytes", len(data)))
	return data, nil
}

func fetchTask[T any](fetcher Fetcher, name, path string) async.Task {
	return async.Task{
		Name: name,
		Execute: func(ctx context.Context) (any, error) {
			out := new(T)
			if err := fetcher.Fetch(ctx, path, out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

func rangePath(path string, key timeframe.RangeKey) string {
	return fmt.Sprintf("%s?range=%s", path, url.QueryEscape(key.String()))
}

func timeseriesPath(metric string, key timeframe.RangeKey) string {
	return fmt.Sprintf("%s?metric=%s&range=%s", PathTimeseries, metric, url.QueryEscape(key.String()))
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
