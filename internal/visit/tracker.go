// Package visit drives the per-session visit lifecycle: it opens a visit once
// per session, turns navigations into page views with durations, and closes
// the visit on unload.
package visit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"unipulse/internal/consent"
	"unipulse/internal/geo"
	"unipulse/internal/identity"
	"unipulse/internal/ingest"
	"unipulse/internal/pkg/user_agent"
	"unipulse/internal/storage"
	"unipulse/internal/timeframe"
)

// State is the lifecycle state of the current session.
type State string

const (
	Idle    State = "idle"
	Started State = "started"
)

// startedValue is what the session scope holds once the visit has started.
const startedValue = "true"

// geoTimeout bounds a single location lookup.
const geoTimeout = 5 * time.Second

// Sink receives analytics payloads. ingest.Dispatcher is the production sink.
type Sink interface {
	SendVisitStart(ingest.VisitStart)
	SendVisitEnd(ingest.VisitEnd)
	SendPageView(ingest.PageView)
	SendEvent(ingest.Event)
	SendPerformance(ingest.Performance)
	SendError(ingest.ErrorReport)
}

// Deps are the collaborators of a Tracker.
type Deps struct {
	Durable storage.Store
	Session storage.Store
	Locator geo.Locator
	Sink    Sink
	Clock   timeframe.TimeProvider
	// ConsentRequired gates geo lookups behind granted consent. When false,
	// lookups run unless consent was explicitly denied.
	ConsentRequired bool
	Logger          *slog.Logger
}

// Tracker is the visit lifecycle of one session. It is cheap to build; hosts
// that serve many sessions create one per request over that request's
// storage scopes.
type Tracker struct {
	ids             *identity.Store
	consent         *consent.Gate
	session         storage.Store
	locator         geo.Locator
	sink            Sink
	clock           timeframe.TimeProvider
	consentRequired bool
	logger          *slog.Logger

	// background is shared by trackers built from the same Deps value so a
	// host can wait for enrichment started by earlier requests.
	background *sync.WaitGroup
}

// NewTracker creates a tracker. Missing Locator and Clock default to
// geo.Disabled and the system clock.
func NewTracker(d Deps) *Tracker {
	if d.Locator == nil {
		d.Locator = geo.Disabled
	}
	if d.Clock == nil {
		d.Clock = &timeframe.DefaultTimeProvider{}
	}
	return &Tracker{
		ids:             identity.New(d.Durable, d.Session, d.Logger),
		consent:         consent.NewGate(d.Durable),
		session:         d.Session,
		locator:         d.Locator,
		sink:            d.Sink,
		clock:           d.Clock,
		consentRequired: d.ConsentRequired,
		logger:          d.Logger,
		background:      &sync.WaitGroup{},
	}
}

// WithScopes returns a tracker sharing t's collaborators and background work
// but reading and writing the given storage scopes.
func (t *Tracker) WithScopes(durable, session storage.Store) *Tracker {
	clone := *t
	clone.ids = identity.New(durable, session, t.logger)
	clone.consent = consent.NewGate(durable)
	clone.session = session
	return &clone
}

// WithLocator returns a tracker that resolves geo through l, for hosts that
// know the visitor's address per request.
func (t *Tracker) WithLocator(l geo.Locator) *Tracker {
	clone := *t
	clone.locator = l
	return &clone
}

// State reports whether the session's visit has started.
func (t *Tracker) State() State {
	if value, ok := storage.Lookup(t.session, storage.KeyVisitStarted); ok && value == startedValue {
		return Started
	}
	return Idle
}

// VisitorID returns the visitor id, creating it if needed.
func (t *Tracker) VisitorID() string {
	return t.ids.VisitorID()
}

// SessionID returns the session id, creating it if needed.
func (t *Tracker) SessionID() string {
	return t.ids.SessionID()
}

// Consent returns the stored geo consent.
func (t *Tracker) Consent() consent.State {
	return t.consent.Get()
}

func (t *Tracker) now() time.Time {
	return t.clock.Now(time.UTC)
}

// StartIfNeeded opens the visit if this session has not done so yet and
// reports whether it did. The state flips to Started before any network
// work, so concurrent or repeated calls never send a second visit start.
// Geo enrichment and delivery continue in the background.
func (t *Tracker) StartIfNeeded(ctx context.Context, landing Landing) bool {
	if t.State() == Started {
		return false
	}

	visitorID, sessionID := t.ids.Resolve()
	t.set(storage.KeyVisitStarted, startedValue)

	record := t.visitRecord(visitorID, sessionID, landing)
	if snapshot, err := json.Marshal(record); err == nil {
		t.set(storage.KeyVisitLanding, string(snapshot))
	}

	locate := t.geoAllowed()
	t.goBackground(ctx, func(ctx context.Context) {
		payload := record
		if locate {
			payload = payload.WithLocation(t.lookup(ctx))
		}
		t.sink.SendVisitStart(payload)
	})

	t.logger.Debug("Visit started",
		slog.String("visitor", identity.Alias(visitorID)),
		slog.String("landing_path", record.LandingPath),
		slog.Bool("geo", locate))
	return true
}

func (t *Tracker) visitRecord(visitorID, sessionID string, landing Landing) ingest.VisitStart {
	path, utm := splitURL(landing.URL)
	ua := user_agent.ParseUserAgent(landing.UserAgent)

	return ingest.VisitStart{
		SessionID:   sessionID,
		VisitorID:   visitorID,
		StartedAt:   ingest.Timestamp(t.now()),
		Referrer:    landing.Referrer,
		LandingPath: path,
		DeviceType:  DeviceType(landing.ViewportWidth, landing.UserAgent),
		Browser:     knownOrEmpty(ua.Browser),
		OS:          knownOrEmpty(ua.OS),
		Language:    landing.Language,
		UTMSource:   utm.Source,
		UTMMedium:   utm.Medium,
		UTMCampaign: utm.Campaign,
		UTMTerm:     utm.Term,
		UTMContent:  utm.Content,
	}
}

func (t *Tracker) geoAllowed() bool {
	state := t.consent.Get()
	if t.consentRequired {
		return state == consent.Granted
	}
	return state != consent.Denied
}

func (t *Tracker) lookup(ctx context.Context) *geo.Location {
	ctx, cancel := context.WithTimeout(ctx, geoTimeout)
	defer cancel()
	return t.locator.Lookup(ctx)
}

// Navigate records a move to page. The page being left, if any, is sent as a
// page view carrying the time spent on it. A visit is started first if the
// session has none.
func (t *Tracker) Navigate(ctx context.Context, page Page) {
	if t.State() == Idle {
		t.StartIfNeeded(ctx, Landing{URL: page.Path})
	}

	now := t.now()
	if view, ok := t.leave(now); ok {
		t.sink.SendPageView(view)
	}

	t.set(storage.KeyPagePath, page.Path)
	t.set(storage.KeyPageTitle, page.Title)
	t.set(storage.KeyPageEnteredAt, strconv.FormatInt(now.UnixMilli(), 10))
}

// Unload flushes the current page's duration and closes the visit. Browsers
// do not reliably report unloads, so both events are best effort.
func (t *Tracker) Unload(ctx context.Context) {
	if t.State() == Idle {
		return
	}

	now := t.now()
	if view, ok := t.leave(now); ok {
		t.sink.SendPageView(view)
	}
	t.del(storage.KeyPagePath)
	t.del(storage.KeyPageTitle)
	t.del(storage.KeyPageEnteredAt)

	visitorID, sessionID := t.ids.Resolve()
	t.sink.SendVisitEnd(ingest.VisitEnd{
		SessionID: sessionID,
		VisitorID: visitorID,
		EndedAt:   ingest.Timestamp(now),
	})
}

// leave builds the page view for the page currently recorded in the cursor.
func (t *Tracker) leave(now time.Time) (ingest.PageView, bool) {
	path, ok := storage.Lookup(t.session, storage.KeyPagePath)
	if !ok {
		return ingest.PageView{}, false
	}
	title, _ := storage.Lookup(t.session, storage.KeyPageTitle)

	visitorID, sessionID := t.ids.Resolve()
	view := ingest.PageView{
		SessionID: sessionID,
		VisitorID: visitorID,
		Path:      path,
		Title:     title,
		CreatedAt: ingest.Timestamp(now),
	}

	if raw, ok := storage.Lookup(t.session, storage.KeyPageEnteredAt); ok {
		if enteredAt, err := strconv.ParseInt(raw, 10, 64); err == nil {
			duration := max(now.UnixMilli()-enteredAt, 0)
			view.DurationMS = &duration
		}
	}
	return view, true
}

// CurrentPath returns the page the session is on, if known.
func (t *Tracker) CurrentPath() string {
	path, _ := storage.Lookup(t.session, storage.KeyPagePath)
	return path
}

// GrantGeoConsent stores granted consent and, when the visit has already
// started, looks up the location and re-sends the original visit start with
// it so the backend can attach geo to the existing visit.
func (t *Tracker) GrantGeoConsent(ctx context.Context) error {
	if err := t.consent.Set(consent.Granted); err != nil {
		return err
	}
	if t.State() == Idle {
		return nil
	}

	raw, ok := storage.Lookup(t.session, storage.KeyVisitLanding)
	if !ok {
		return nil
	}
	var record ingest.VisitStart
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.logger.Debug("Failed to decode landing snapshot", slog.Any("error", err))
		return nil
	}

	t.goBackground(ctx, func(ctx context.Context) {
		loc := t.lookup(ctx)
		if loc.Empty() {
			return
		}
		t.sink.SendVisitStart(record.WithLocation(loc))
	})
	return nil
}

// DenyGeoConsent stores denied consent. No lookup is made afterwards.
func (t *Tracker) DenyGeoConsent() error {
	return t.consent.Set(consent.Denied)
}

// ResetGeoConsent forgets the stored choice so the visitor is asked again.
func (t *Tracker) ResetGeoConsent() error {
	return t.consent.Set(consent.Unset)
}

// Event is a custom interaction to record.
type Event struct {
	Category string
	Action   string
	Label    string
	Path     string // defaults to the current page
	Value    *float64
}

// TrackEvent sends a custom event.
func (t *Tracker) TrackEvent(e Event) {
	visitorID, sessionID := t.ids.Resolve()
	t.sink.SendEvent(ingest.Event{
		SessionID: sessionID,
		VisitorID: visitorID,
		Category:  e.Category,
		Action:    e.Action,
		Label:     e.Label,
		Path:      t.pathOr(e.Path),
		CreatedAt: ingest.Timestamp(t.now()),
		Value:     e.Value,
	})
}

// Vitals are web performance measurements for one page load.
type Vitals struct {
	Path   string
	TTFBMS *float64
	FCPMS  *float64
	LCPMS  *float64
	CLS    *float64
}

// TrackPerformance sends a performance sample.
func (t *Tracker) TrackPerformance(v Vitals) {
	visitorID, sessionID := t.ids.Resolve()
	t.sink.SendPerformance(ingest.Performance{
		SessionID: sessionID,
		VisitorID: visitorID,
		Path:      t.pathOr(v.Path),
		CreatedAt: ingest.Timestamp(t.now()),
		TTFBMS:    v.TTFBMS,
		FCPMS:     v.FCPMS,
		LCPMS:     v.LCPMS,
		CLS:       v.CLS,
	})
}

// ClientError is an error raised in the visitor's browser.
type ClientError struct {
	Message string
	Stack   string
	Path    string
}

// TrackError sends a client error report.
func (t *Tracker) TrackError(e ClientError) {
	visitorID, sessionID := t.ids.Resolve()
	t.sink.SendError(ingest.ErrorReport{
		SessionID: sessionID,
		VisitorID: visitorID,
		Message:   e.Message,
		Stack:     e.Stack,
		Path:      t.pathOr(e.Path),
		CreatedAt: ingest.Timestamp(t.now()),
	})
}

func (t *Tracker) pathOr(path string) string {
	if path != "" {
		return path
	}
	return t.CurrentPath()
}

// Flush waits for background enrichment and, if the sink supports it, for
// in-flight deliveries.
func (t *Tracker) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.background.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if f, ok := t.sink.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}
	return nil
}

// goBackground runs fn detached from ctx's cancellation so work started by a
// request outlives the request.
func (t *Tracker) goBackground(ctx context.Context, fn func(context.Context)) {
	t.background.Add(1)
	go func() {
		defer t.background.Done()
		fn(context.WithoutCancel(ctx))
	}()
}

func (t *Tracker) set(key, value string) {
	if err := t.session.Set(key, value); err != nil {
		t.logger.Debug("Failed to write session state", slog.String("key", key), slog.Any("error", err))
	}
}

func (t *Tracker) del(key string) {
	if err := t.session.Delete(key); err != nil {
		t.logger.Debug("Failed to clear session state", slog.String("key", key), slog.Any("error", err))
	}
}
