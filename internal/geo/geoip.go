package geo

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
)

// Database resolves client IPs against a local MaxMind GeoLite2 City
// database. It is used by the server host, which knows the client address.
type Database struct {
	path      string
	countries *gountries.Query
	logger    *slog.Logger

	mu     sync.RWMutex
	reader *geoip2.Reader
}

// OpenDatabase opens the GeoLite2 file at path. It returns nil when no path
// is configured. A missing or unreadable file yields a Database that finds
// nothing until Reload succeeds; geo enrichment is optional.
func OpenDatabase(path string, logger *slog.Logger) *Database {
	if path == "" {
		logger.Debug("GeoIP database path not configured - GeoIP lookups disabled")
		return nil
	}

	d := &Database{path: path, countries: gountries.New(), logger: logger}
	if err := d.Reload(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("GeoLite2 database not found - GeoIP lookups disabled",
				slog.String("path", path),
				slog.String("hint", "Run 'pulsectl geoip-update' or download from https://www.maxmind.com/en/geolite2/signup"))
		} else {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", path),
				slog.Any("error", err))
		}
	}
	return d
}

// Reload reopens the file, replacing the reader in use. The old reader is
// kept when the new file cannot be opened.
func (d *Database) Reload() error {
	if d == nil {
		return nil
	}
	if _, err := os.Stat(d.path); err != nil {
		return err
	}

	reader, err := geoip2.Open(d.path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.reader
	d.reader = reader
	d.mu.Unlock()

	if old != nil {
		old.Close()
	}
	d.logger.Info("GeoLite2 database loaded", slog.String("path", d.path))
	return nil
}

// Loaded reports whether a database file is open.
func (d *Database) Loaded() bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reader != nil
}

// Lookup resolves ip. Unknown, private or malformed addresses yield nil.
func (d *Database) Lookup(ip string) *Location {
	if d == nil {
		return nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.reader == nil {
		return nil
	}

	record, err := d.reader.City(parsed)
	if err != nil {
		d.logger.Debug("GeoIP lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return nil
	}

	loc := &Location{
		Country: d.countryName(record.Country.IsoCode),
		City:    record.City.Names["en"],
	}
	if loc.Empty() {
		return nil
	}
	return loc
}

// Locator binds the database to one client address.
func (d *Database) Locator(ip string) Locator {
	return LocatorFunc(func(context.Context) *Location {
		return d.Lookup(ip)
	})
}

func (d *Database) countryName(iso string) string {
	return CountryName(d.countries, iso)
}

// CountryName turns an ISO 3166 code into its common English name, falling
// back to the code itself.
func CountryName(countries *gountries.Query, iso string) string {
	if iso == "" {
		return ""
	}
	country, err := countries.FindCountryByAlpha(iso)
	if err != nil {
		return iso
	}
	return country.Name.Common
}

// Close releases the database file.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader == nil {
		return nil
	}
	err := d.reader.Close()
	d.reader = nil
	return err
}
