package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"unipulse/internal/geo"
)

// checkInterval is how often the job asks the updater whether a download is
// due; the updater itself enforces geo.UpdateInterval.
const checkInterval = 24 * time.Hour

// GeoLiteUpdate returns a job that refreshes the GeoLite2 file and reloads
// db after a download. A missing license key is not an error; the job just
// does nothing.
func GeoLiteUpdate(updater *geo.Updater, db *geo.Database, logger *slog.Logger) Job {
	return Job{
		Name:     "geolite_update",
		Interval: checkInterval,
		Run: func(ctx context.Context) error {
			updated, err := updater.Update(ctx, false)
			if errors.Is(err, geo.ErrNoLicenseKey) {
				logger.Debug("GeoLite license key not configured, skipping update")
				return nil
			}
			if err != nil || !updated {
				return err
			}
			return db.Reload()
		},
	}
}
