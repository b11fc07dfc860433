package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"unipulse/internal/http"
	"unipulse/internal/http/middleware"
)

// NewServer returns a Fiber app serving the public site with page tracking.
func NewServer(client *Client) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:                 client.Config.AppName,
		DisableStartupMessage:   client.Config.IsTest(),
		EnableTrustedProxyCheck: true,
		TrustedProxies:          client.Config.TrustedProxies,
	})
	MountRoutes(app, client)
	return app
}

// MountRoutes mounts the health check, the beacon relay, the page tracker
// and the static site on app.
func MountRoutes(app *fiber.App, client *Client) {
	cfg := client.Config
	tracking := http.NewTracking(client.Tracker, client.ClientGeo, client.Logger)

	// Rate limiting would interfere with local testing.
	beaconLimiter := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.IsProduction() {
		beaconLimiter = cartridgemiddleware.RateLimiter(
			cartridgemiddleware.WithMax(120),
			cartridgemiddleware.WithDuration(time.Minute),
		)
	}

	app.Use(recover.New())

	app.Get("/_health", http.HealthIndexAction(cfg.GeoPolicy))

	// === BEACON RELAY ===
	beacons := app.Group(middleware.BeaconPrefix, beaconLimiter)
	beacons.Post("/unload", tracking.UnloadAction)
	beacons.Get("/consent", tracking.ConsentShowAction)
	beacons.Post("/consent", tracking.ConsentUpdateAction)
	beacons.Post("/event", tracking.EventAction)
	beacons.Post("/perf", tracking.PerfAction)
	beacons.Post("/error", tracking.ErrorAction)

	// === TRACKED SITE ===
	app.Use(middleware.TrackPages(tracking, client.Logger))
	app.Static("/", cfg.PublicDirectory, fiber.Static{
		Index: "index.html",
	})
}
