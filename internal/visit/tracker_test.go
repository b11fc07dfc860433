package visit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unipulse/internal/consent"
	"unipulse/internal/geo"
	"unipulse/internal/ingest"
	"unipulse/internal/logging"
	"unipulse/internal/storage"
	"unipulse/internal/visit"
)

type recordingSink struct {
	mu          sync.Mutex
	visitStarts []ingest.VisitStart
	visitEnds   []ingest.VisitEnd
	pageViews   []ingest.PageView
	events      []ingest.Event
	perf        []ingest.Performance
	errors      []ingest.ErrorReport
}

func (s *recordingSink) SendVisitStart(p ingest.VisitStart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visitStarts = append(s.visitStarts, p)
}

func (s *recordingSink) SendVisitEnd(p ingest.VisitEnd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visitEnds = append(s.visitEnds, p)
}

func (s *recordingSink) SendPageView(p ingest.PageView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageViews = append(s.pageViews, p)
}

func (s *recordingSink) SendEvent(p ingest.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, p)
}

func (s *recordingSink) SendPerformance(p ingest.Performance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perf = append(s.perf, p)
}

func (s *recordingSink) SendError(p ingest.ErrorReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, p)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now(loc *time.Location) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.In(loc)
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingLocator struct {
	calls atomic.Int32
	loc   *geo.Location
}

func (l *countingLocator) Lookup(context.Context) *geo.Location {
	l.calls.Add(1)
	return l.loc
}

type fixture struct {
	tracker *visit.Tracker
	sink    *recordingSink
	clock   *manualClock
	locator *countingLocator
	durable *storage.MemoryStore
	session *storage.MemoryStore
}

func newFixture(t *testing.T, consentRequired bool, loc *geo.Location) *fixture {
	t.Helper()
	f := &fixture{
		sink:    &recordingSink{},
		clock:   &manualClock{now: time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)},
		locator: &countingLocator{loc: loc},
		durable: storage.NewMemoryStore(),
		session: storage.NewMemoryStore(),
	}
	f.tracker = visit.NewTracker(visit.Deps{
		Durable:         f.durable,
		Session:         f.session,
		Locator:         f.locator,
		Sink:            f.sink,
		Clock:           f.clock,
		ConsentRequired: consentRequired,
		Logger:          logging.Discard(),
	})
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.tracker.Flush(ctx))
}

var landing = visit.Landing{
	URL:           "/en/apply?utm_source=newsletter&utm_medium=email&utm_campaign=spring",
	Referrer:      "https://www.google.com/",
	Language:      "en-GB",
	ViewportWidth: 1440,
	UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

func TestStartIfNeededIsAtMostOncePerSession(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx := context.Background()

	assert.Equal(t, visit.Idle, f.tracker.State())
	assert.True(t, f.tracker.StartIfNeeded(ctx, landing))
	for i := 0; i < 5; i++ {
		assert.False(t, f.tracker.StartIfNeeded(ctx, landing))
	}
	assert.Equal(t, visit.Started, f.tracker.State())
	f.flush(t)

	require.Len(t, f.sink.visitStarts, 1)
	record := f.sink.visitStarts[0]
	assert.Equal(t, f.tracker.VisitorID(), record.VisitorID)
	assert.Equal(t, f.tracker.SessionID(), record.SessionID)
	assert.Equal(t, "/en/apply", record.LandingPath)
	assert.Equal(t, "newsletter", record.UTMSource)
	assert.Equal(t, "email", record.UTMMedium)
	assert.Equal(t, "spring", record.UTMCampaign)
	assert.Empty(t, record.UTMTerm)
	assert.Equal(t, "desktop", record.DeviceType)
	assert.Equal(t, "Firefox", record.Browser)
	assert.Equal(t, "Mac", record.OS)
	assert.Equal(t, "en-GB", record.Language)
	assert.Equal(t, "https://www.google.com/", record.Referrer)
	assert.True(t, f.clock.now.Equal(record.StartedAt.Time()))

	stored, _ := storage.Lookup(f.session, storage.KeyVisitStarted)
	assert.Equal(t, "true", stored)
}

func TestNewSessionStartsAnotherVisit(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx := context.Background()

	f.tracker.StartIfNeeded(ctx, landing)
	firstSession := f.tracker.SessionID()
	visitor := f.tracker.VisitorID()

	f.session.Clear()
	assert.Equal(t, visit.Idle, f.tracker.State())
	assert.True(t, f.tracker.StartIfNeeded(ctx, landing))
	f.flush(t)

	require.Len(t, f.sink.visitStarts, 2)
	assert.NotEqual(t, firstSession, f.sink.visitStarts[1].SessionID)
	assert.Equal(t, visitor, f.sink.visitStarts[1].VisitorID)
}

func TestNavigationDurations(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx := context.Background()

	f.tracker.StartIfNeeded(ctx, visit.Landing{URL: "/en"})
	f.tracker.Navigate(ctx, visit.Page{Path: "/en", Title: "Home"})
	assert.Empty(t, f.sink.pageViews, "entering a page sends nothing yet")

	f.clock.Advance(5000 * time.Millisecond)
	f.tracker.Navigate(ctx, visit.Page{Path: "/en/about", Title: "About"})

	f.clock.Advance(1250 * time.Millisecond)
	f.tracker.Unload(ctx)
	f.flush(t)

	require.Len(t, f.sink.pageViews, 2)
	first, last := f.sink.pageViews[0], f.sink.pageViews[1]

	assert.Equal(t, "/en", first.Path)
	assert.Equal(t, "Home", first.Title)
	require.NotNil(t, first.DurationMS)
	assert.Equal(t, int64(5000), *first.DurationMS)

	assert.Equal(t, "/en/about", last.Path)
	require.NotNil(t, last.DurationMS)
	assert.Equal(t, int64(1250), *last.DurationMS)

	for _, view := range f.sink.pageViews {
		assert.Equal(t, f.tracker.VisitorID(), view.VisitorID)
		assert.Equal(t, f.tracker.SessionID(), view.SessionID)
	}

	require.Len(t, f.sink.visitEnds, 1)
	assert.Equal(t, f.tracker.SessionID(), f.sink.visitEnds[0].SessionID)
	assert.Empty(t, f.tracker.CurrentPath(), "unload clears the page cursor")
}

func TestNavigateSamePathCountsAsNewView(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx := context.Background()

	f.tracker.Navigate(ctx, visit.Page{Path: "/en/news"})
	f.clock.Advance(time.Second)
	f.tracker.Navigate(ctx, visit.Page{Path: "/en/news"})
	f.flush(t)

	require.Len(t, f.sink.visitStarts, 1, "navigation starts the visit when needed")
	assert.Equal(t, "/en/news", f.sink.visitStarts[0].LandingPath)
	require.Len(t, f.sink.pageViews, 1)
	assert.Equal(t, int64(1000), *f.sink.pageViews[0].DurationMS)
}

func TestUnloadWithoutVisitSendsNothing(t *testing.T) {
	f := newFixture(t, true, nil)
	f.tracker.Unload(context.Background())
	f.flush(t)

	assert.Empty(t, f.sink.pageViews)
	assert.Empty(t, f.sink.visitEnds)
}

func TestGeoEnrichment(t *testing.T) {
	lisbon := &geo.Location{Country: "Portugal", City: "Lisbon"}

	tests := []struct {
		name            string
		consentRequired bool
		consent         consent.State
		location        *geo.Location
		wantLookup      bool
		wantCountry     string
	}{
		{"consent policy with granted consent", true, consent.Granted, lisbon, true, "Portugal"},
		{"consent policy with unset consent", true, consent.Unset, lisbon, false, ""},
		{"consent policy with denied consent", true, consent.Denied, lisbon, false, ""},
		{"always policy with unset consent", false, consent.Unset, lisbon, true, "Portugal"},
		{"always policy respects denial", false, consent.Denied, lisbon, false, ""},
		{"lookup failure", false, consent.Granted, nil, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.consentRequired, tt.location)
			require.NoError(t, consent.NewGate(f.durable).Set(tt.consent))

			f.tracker.StartIfNeeded(context.Background(), landing)
			f.flush(t)

			require.Len(t, f.sink.visitStarts, 1, "visit start is sent even without geo")
			record := f.sink.visitStarts[0]
			if tt.wantLookup {
				assert.Equal(t, int32(1), f.locator.calls.Load())
			} else {
				assert.Zero(t, f.locator.calls.Load())
			}
			if tt.wantCountry == "" {
				assert.Nil(t, record.Country)
				assert.Nil(t, record.City)
			} else {
				require.NotNil(t, record.Country)
				assert.Equal(t, tt.wantCountry, *record.Country)
			}
		})
	}
}

func TestGrantGeoConsentResendsVisitStart(t *testing.T) {
	f := newFixture(t, true, &geo.Location{Country: "Chile", City: "Santiago"})
	ctx := context.Background()

	f.tracker.StartIfNeeded(ctx, landing)
	f.tracker.Navigate(ctx, visit.Page{Path: "/en/programs"})
	f.flush(t)
	require.Len(t, f.sink.visitStarts, 1)
	assert.Zero(t, f.locator.calls.Load())

	require.NoError(t, f.tracker.GrantGeoConsent(ctx))
	f.flush(t)

	assert.Equal(t, consent.Granted, f.tracker.Consent())
	require.Len(t, f.sink.visitStarts, 2)
	update := f.sink.visitStarts[1]
	assert.Equal(t, "/en/apply", update.LandingPath, "the original landing is re-sent, not the current page")
	assert.True(t, f.sink.visitStarts[0].StartedAt.Time().Equal(update.StartedAt.Time()))
	require.NotNil(t, update.City)
	assert.Equal(t, "Santiago", *update.City)
}

func TestGrantGeoConsentBeforeVisit(t *testing.T) {
	f := newFixture(t, true, &geo.Location{Country: "Chile"})

	require.NoError(t, f.tracker.GrantGeoConsent(context.Background()))
	f.flush(t)
	assert.Empty(t, f.sink.visitStarts)
	assert.Zero(t, f.locator.calls.Load())
}

func TestDeniedConsentNeverLooksUp(t *testing.T) {
	f := newFixture(t, true, &geo.Location{Country: "Chile"})
	ctx := context.Background()

	require.NoError(t, f.tracker.DenyGeoConsent())
	assert.Equal(t, consent.Denied, f.tracker.Consent())

	f.tracker.StartIfNeeded(ctx, landing)
	f.tracker.Navigate(ctx, visit.Page{Path: "/en"})
	f.tracker.Unload(ctx)
	f.flush(t)

	assert.Zero(t, f.locator.calls.Load())
}

func TestTrackFreeFormPayloads(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx := context.Background()
	f.tracker.Navigate(ctx, visit.Page{Path: "/en/apply"})

	value := 1.0
	lcp := 2400.0
	f.tracker.TrackEvent(visit.Event{Category: "apply", Action: "submit", Label: "bachelor", Value: &value})
	f.tracker.TrackPerformance(visit.Vitals{Path: "/en", LCPMS: &lcp})
	f.tracker.TrackError(visit.ClientError{Message: "TypeError: x is undefined"})
	f.flush(t)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, "/en/apply", f.sink.events[0].Path, "path defaults to the current page")
	assert.Equal(t, "bachelor", f.sink.events[0].Label)
	assert.Equal(t, f.tracker.SessionID(), f.sink.events[0].SessionID)

	require.Len(t, f.sink.perf, 1)
	assert.Equal(t, "/en", f.sink.perf[0].Path)
	assert.Equal(t, 2400.0, *f.sink.perf[0].LCPMS)
	assert.Nil(t, f.sink.perf[0].CLS)

	require.Len(t, f.sink.errors, 1)
	assert.Equal(t, "/en/apply", f.sink.errors[0].Path)
	assert.Equal(t, f.tracker.VisitorID(), f.sink.errors[0].VisitorID)
}

func TestWithScopesSharesBackgroundWork(t *testing.T) {
	f := newFixture(t, true, nil)
	other := f.tracker.WithScopes(storage.NewMemoryStore(), storage.NewMemoryStore())

	other.StartIfNeeded(context.Background(), landing)
	f.flush(t)

	require.Len(t, f.sink.visitStarts, 1)
	assert.NotEqual(t, f.tracker.VisitorID(), f.sink.visitStarts[0].VisitorID)
}
