// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Geo providers
const (
	GeoProviderIPAPI = "ipapi"
	GeoProviderGeoIP = "geoip"
	GeoProviderNone  = "none"
)

// Geo policies
const (
	GeoPolicyConsent = "consent"
	GeoPolicyAlways  = "always"
)

const defaultAnalyticsBase = "http://127.0.0.1:8000"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Analytics endpoints
	AnalyticsAPIBase string `mapstructure:"analyticsapibase"`
	IngestKey        string `mapstructure:"ingestkey"`
	AdminAPIBase     string `mapstructure:"adminapibase"`
	AdminToken       string `mapstructure:"admintoken"`

	// Geo enrichment
	GeoProvider string `mapstructure:"geoprovider"`
	GeoEndpoint string `mapstructure:"geoendpoint"`
	GeoDBPath   string `mapstructure:"geodbpath"`
	GeoPolicy   string `mapstructure:"geopolicy"`

	// GeoLite2 downloads
	GeoLiteLicenseKey  string `mapstructure:"geolitelicensekey"`
	GeoLiteDownloadURL string `mapstructure:"geolitedownloadurl"`

	// File paths
	StoragePath     string `mapstructure:"storagepath"`
	DatabaseName    string `mapstructure:"-"` // Derived from other settings
	PublicDirectory string `mapstructure:"publicdir"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Proxies allowed to report the client address through forwarding
	// headers. Addresses or CIDR ranges; empty trusts none.
	TrustedProxies []string `mapstructure:"trustedproxies"`

	// Client behaviour
	HTTPTimeoutSeconds int `mapstructure:"httptimeoutseconds"`
	DashboardWorkers   int `mapstructure:"dashboardworkers"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads the configuration from the environment (and a .env file when
// present) without caching it.
func Load() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("appname", "unipulse")
	v.SetDefault("appport", "3000")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelInfo))
	v.SetDefault("analyticsapibase", defaultAnalyticsBase)
	v.SetDefault("geoprovider", GeoProviderIPAPI)
	v.SetDefault("geoendpoint", "https://ipapi.co/json/")
	v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
	v.SetDefault("geopolicy", GeoPolicyConsent)
	v.SetDefault("storagepath", "storage")
	v.SetDefault("publicdir", "public")
	v.SetDefault("logsdir", "")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("httptimeoutseconds", 10)
	v.SetDefault("dashboardworkers", 9)

	// The VITE_* names are the ones the browser build of the site uses;
	// they are honoured so a single .env can serve both.
	v.BindEnv("appname", "PULSE_APP_NAME")
	v.BindEnv("appport", "PULSE_APP_PORT")
	v.BindEnv("environment", "PULSE_ENV")
	v.BindEnv("loglevel", "PULSE_LOG_LEVEL")
	v.BindEnv("analyticsapibase", "PULSE_ANALYTICS_API_BASE", "VITE_ANALYTICS_API_BASE")
	v.BindEnv("ingestkey", "PULSE_INGEST_KEY")
	v.BindEnv("adminapibase", "PULSE_ADMIN_API_BASE")
	v.BindEnv("admintoken", "PULSE_ADMIN_TOKEN", "VITE_ANALYTICS_JWT")
	v.BindEnv("geoprovider", "PULSE_GEO_PROVIDER")
	v.BindEnv("geoendpoint", "PULSE_GEO_ENDPOINT")
	v.BindEnv("geodbpath", "PULSE_GEO_DB_PATH")
	v.BindEnv("geopolicy", "PULSE_GEO_POLICY")
	v.BindEnv("geolitelicensekey", "PULSE_GEOLITE_LICENSE_KEY", "MAXMIND_LICENSE_KEY")
	v.BindEnv("geolitedownloadurl", "PULSE_GEOLITE_DOWNLOAD_URL")
	v.BindEnv("storagepath", "PULSE_STORAGE_PATH")
	v.BindEnv("publicdir", "PULSE_PUBLIC_DIR")
	v.BindEnv("logsdir", "PULSE_LOGS_DIR")
	v.BindEnv("logsmaxsizeinmb", "PULSE_LOGS_MAX_SIZE_IN_MB")
	v.BindEnv("logsmaxbackups", "PULSE_LOGS_MAX_BACKUPS")
	v.BindEnv("logsmaxageindays", "PULSE_LOGS_MAX_AGE_IN_DAYS")
	v.BindEnv("trustedproxies", "PULSE_TRUSTED_PROXIES")
	v.BindEnv("httptimeoutseconds", "PULSE_HTTP_TIMEOUT_SECONDS")
	v.BindEnv("dashboardworkers", "PULSE_DASHBOARD_WORKERS")

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	c.normalize()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.DatabaseName = c.GetDatabasePath()
	return c, nil
}

func (c *Config) normalize() {
	c.AnalyticsAPIBase = strings.TrimRight(strings.TrimSpace(c.AnalyticsAPIBase), "/")
	if c.AnalyticsAPIBase == "" {
		c.AnalyticsAPIBase = defaultAnalyticsBase
	}
	c.AdminAPIBase = strings.TrimRight(strings.TrimSpace(c.AdminAPIBase), "/")
	if c.AdminAPIBase == "" {
		c.AdminAPIBase = c.AnalyticsAPIBase
	}
	c.GeoProvider = strings.ToLower(strings.TrimSpace(c.GeoProvider))
	c.GeoPolicy = strings.ToLower(strings.TrimSpace(c.GeoPolicy))
	if c.DashboardWorkers <= 0 {
		c.DashboardWorkers = 9
	}

	var proxies []string
	for _, entry := range c.TrustedProxies {
		for _, proxy := range strings.Split(entry, ",") {
			if proxy = strings.TrimSpace(proxy); proxy != "" {
				proxies = append(proxies, proxy)
			}
		}
	}
	c.TrustedProxies = proxies
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validProviders := map[string]bool{
		GeoProviderIPAPI: true,
		GeoProviderGeoIP: true,
		GeoProviderNone:  true,
	}
	if !validProviders[c.GeoProvider] {
		return fmt.Errorf("invalid geo provider: %s", c.GeoProvider)
	}

	validPolicies := map[string]bool{
		GeoPolicyConsent: true,
		GeoPolicyAlways:  true,
	}
	if !validPolicies[c.GeoPolicy] {
		return fmt.Errorf("invalid geo policy: %s", c.GeoPolicy)
	}

	if c.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("http timeout cannot be negative: %d", c.HTTPTimeoutSeconds)
	}

	return nil
}

// GetDatabasePath returns the path of the SQLite file backing durable storage
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.StoragePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// HTTPTimeout returns the client timeout for outbound requests. Zero means
// the transport default (no timeout).
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// GeoConsentRequired reports whether geo enrichment waits for explicit consent.
func (c *Config) GeoConsentRequired() bool {
	return c.GeoPolicy != GeoPolicyAlways
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetMaxOpenConns returns the connection cap for the durable storage database.
// A client process only ever needs one writer.
func (c *Config) GetMaxOpenConns() int {
	if c.Environment == Test {
		return 1
	}
	return 4
}

// GetMaxIdleConns returns the idle connection cap for the durable storage database.
func (c *Config) GetMaxIdleConns() int {
	return 1
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
