package geo

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"unipulse/internal/storage"
)

const (
	// UpdateInterval matches MaxMind's weekly GeoLite release cadence.
	UpdateInterval = 7 * 24 * time.Hour
	// DefaultDownloadURL is the GeoLite2 City archive; %s is the license key.
	DefaultDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz"
)

// ErrNoLicenseKey is returned when a download is requested without a
// MaxMind license key.
var ErrNoLicenseKey = errors.New("geolite license key not configured")

// Updater keeps the GeoLite2 file current. The time of the last successful
// download is kept in the durable store.
type Updater struct {
	path        string
	licenseKey  string
	downloadURL string
	client      *http.Client
	store       storage.Store
	logger      *slog.Logger
	now         func() time.Time
}

// NewUpdater creates an updater writing to path. An empty downloadURL selects
// DefaultDownloadURL.
func NewUpdater(path, licenseKey, downloadURL string, client *http.Client, store storage.Store, logger *slog.Logger) *Updater {
	if downloadURL == "" {
		downloadURL = DefaultDownloadURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Updater{
		path:        path,
		licenseKey:  licenseKey,
		downloadURL: downloadURL,
		client:      client,
		store:       store,
		logger:      logger,
		now:         time.Now,
	}
}

// Configured reports whether a license key is available.
func (u *Updater) Configured() bool {
	return u.licenseKey != ""
}

// LastUpdate returns when the file was last downloaded. Without a recorded
// download it falls back to the file's modification time, and to the zero
// time when there is no file.
func (u *Updater) LastUpdate() time.Time {
	if raw, ok := storage.Lookup(u.store, storage.KeyGeoLiteUpdatedAt); ok {
		if lastUpdate, err := time.Parse(time.RFC3339, raw); err == nil {
			return lastUpdate
		}
	}
	info, err := os.Stat(u.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Due reports whether the file is missing or older than UpdateInterval.
func (u *Updater) Due() bool {
	if _, err := os.Stat(u.path); err != nil {
		return true
	}
	return u.now().Sub(u.LastUpdate()) >= UpdateInterval
}

// Update downloads a fresh database when one is due, or always when force is
// set. It reports whether the file was replaced.
func (u *Updater) Update(ctx context.Context, force bool) (bool, error) {
	if !u.Configured() {
		return false, ErrNoLicenseKey
	}
	if !force && !u.Due() {
		u.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", u.LastUpdate()))
		return false, nil
	}

	u.logger.Info("Starting GeoLite database update", slog.Time("last_update", u.LastUpdate()))
	if err := u.download(ctx); err != nil {
		return false, err
	}

	if err := u.store.Set(storage.KeyGeoLiteUpdatedAt, u.now().UTC().Format(time.RFC3339)); err != nil {
		u.logger.Error("Failed to record GeoLite update time", slog.Any("error", err))
	}
	u.logger.Info("GeoLite database updated", slog.String("path", u.path))
	return true, nil
}

func (u *Updater) download(ctx context.Context) error {
	dir := filepath.Dir(u.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	downloadURL := fmt.Sprintf(u.downloadURL, url.QueryEscape(u.licenseKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the destination and rename, so a running server never
	// opens a half-written file.
	tmp, err := os.CreateTemp(dir, ".geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = extractMMDB(resp.Body, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to extract database: %w", err)
	}

	if err := os.Rename(tmp.Name(), u.path); err != nil {
		return fmt.Errorf("failed to install database: %w", err)
	}
	return nil
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream to dst.
func extractMMDB(archive io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if header.Typeflag == tar.TypeReg && strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}

	return errors.New("no .mmdb file found in archive")
}
