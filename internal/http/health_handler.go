package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	GeoPolicy string    `json:"geo_policy"`
}

// HealthIndexAction returns a handler reporting liveness and the geo policy
// the server runs with.
func HealthIndexAction(geoPolicy string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(HealthStatus{
			Status:    "ok",
			Timestamp: time.Now(),
			GeoPolicy: geoPolicy,
		})
	}
}
