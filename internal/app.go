// Package internal wires the analytics client together from configuration.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"unipulse/internal/admin"
	"unipulse/internal/config"
	"unipulse/internal/dashboard"
	"unipulse/internal/geo"
	"unipulse/internal/ingest"
	"unipulse/internal/logging"
	"unipulse/internal/storage"
	"unipulse/internal/timeframe"
	"unipulse/internal/visit"
)

// Client is the explicitly constructed analytics context: one tracker, one
// dispatcher, one admin session. Nothing in it is global.
type Client struct {
	Config     *config.Config
	Logger     *slog.Logger
	HTTP       *http.Client
	Dispatcher *ingest.Dispatcher
	Tracker    *visit.Tracker
	Admin      *admin.Session
	Dashboard  *dashboard.Aggregator

	// ClientGeo resolves a location from a client address. Hosts that know
	// the address bind it per request; nil leaves the tracker's own locator.
	ClientGeo geo.ClientLocator
	// GeoDB is set when the geoip provider is configured.
	GeoDB *geo.Database
	// GeoUpdater downloads the GeoLite2 file to the configured path.
	GeoUpdater *geo.Updater
}

var errNoConfig = errors.New("configuration is required")

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	durable    storage.Store
	session    storage.Store
	clock      timeframe.TimeProvider
	locator    geo.Locator
}

// Option customizes NewClient.
type Option func(*options)

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the outbound HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithStores sets the durable and session scopes. Both default to memory.
func WithStores(durable, session storage.Store) Option {
	return func(o *options) {
		o.durable = durable
		o.session = session
	}
}

// WithClock replaces the system clock.
func WithClock(clock timeframe.TimeProvider) Option {
	return func(o *options) { o.clock = clock }
}

// WithLocator replaces the configured geo provider.
func WithLocator(locator geo.Locator) Option {
	return func(o *options) { o.locator = locator }
}

// NewClient builds the client described by cfg.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("failed to create client: %w", errNoConfig)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.NewLogger(cfg)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	if o.durable == nil {
		o.durable = storage.NewMemoryStore()
	}
	if o.session == nil {
		o.session = storage.NewMemoryStore()
	}

	c := &Client{
		Config: cfg,
		Logger: o.logger,
		HTTP:   o.httpClient,
	}

	locator := o.locator
	if locator == nil {
		locator = c.configureGeo()
	}

	c.Dispatcher = ingest.NewDispatcher(cfg.AnalyticsAPIBase, cfg.IngestKey, o.httpClient, o.logger)
	c.Tracker = visit.NewTracker(visit.Deps{
		Durable:         o.durable,
		Session:         o.session,
		Locator:         locator,
		Sink:            c.Dispatcher,
		Clock:           o.clock,
		ConsentRequired: cfg.GeoConsentRequired(),
		Logger:          o.logger,
	})
	// Archive downloads outlast the API timeout; the caller's context bounds them.
	downloads := &http.Client{Transport: o.httpClient.Transport}
	c.GeoUpdater = geo.NewUpdater(cfg.GeoDBPath, cfg.GeoLiteLicenseKey, cfg.GeoLiteDownloadURL, downloads, o.durable, o.logger)

	c.Admin = admin.NewSession(cfg.AdminAPIBase, o.httpClient, o.durable, cfg.AdminToken, o.logger)
	c.Dashboard = dashboard.NewAggregator(c.Admin, cfg.DashboardWorkers, o.logger)

	o.logger.Debug("Analytics client ready",
		slog.String("analytics_api", cfg.AnalyticsAPIBase),
		slog.String("geo_provider", cfg.GeoProvider),
		slog.String("geo_policy", cfg.GeoPolicy))
	return c, nil
}

// configureGeo selects the locator for the configured provider. The base
// locator serves callers without a client address, such as the CLI, where
// ipapi resolves the caller itself. The geoip provider needs an address, so
// the base tracker gets none.
func (c *Client) configureGeo() geo.Locator {
	switch c.Config.GeoProvider {
	case config.GeoProviderIPAPI:
		ipapi := geo.NewIPAPI(c.Config.GeoEndpoint, c.HTTP, c.Logger)
		c.ClientGeo = ipapi
		return ipapi
	case config.GeoProviderGeoIP:
		c.GeoDB = geo.OpenDatabase(c.Config.GeoDBPath, c.Logger)
		if c.GeoDB != nil {
			c.ClientGeo = c.GeoDB
		}
		return geo.Disabled
	default:
		return geo.Disabled
	}
}

// Shutdown waits for pending enrichment and deliveries, then releases the
// geo database.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.Tracker.Flush(ctx)
	return errors.Join(err, c.GeoDB.Close())
}
