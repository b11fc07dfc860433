package geo

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultIPAPIEndpoint is the reverse-IP service used when none is configured.
const DefaultIPAPIEndpoint = "https://ipapi.co/json/"

// IPAPI looks up the caller's public IP through an ipapi.co compatible
// endpoint.
type IPAPI struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewIPAPI creates an ipapi locator. An empty endpoint selects the public
// service; a nil client selects http.DefaultClient.
func NewIPAPI(endpoint string, client *http.Client, logger *slog.Logger) *IPAPI {
	if endpoint == "" {
		endpoint = DefaultIPAPIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &IPAPI{endpoint: endpoint, client: client, logger: logger}
}

type ipapiResponse struct {
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// Lookup resolves the address the request to the endpoint comes from.
func (l *IPAPI) Lookup(ctx context.Context) *Location {
	return l.lookup(ctx, l.endpoint)
}

// Locator binds the lookup to ip by inserting it before the endpoint's
// trailing json segment, as in https://ipapi.co/203.0.113.9/json/. An empty
// ip resolves nothing rather than the server's own address.
func (l *IPAPI) Locator(ip string) Locator {
	if ip == "" {
		return Disabled
	}
	endpoint, err := l.endpointFor(ip)
	if err != nil {
		l.logger.Debug("Failed to build geo lookup endpoint", slog.Any("error", err))
		return Disabled
	}
	return LocatorFunc(func(ctx context.Context) *Location {
		return l.lookup(ctx, endpoint)
	})
}

func (l *IPAPI) endpointFor(ip string) (string, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/json")
	u.Path = base + "/" + ip + "/json/"
	u.RawPath = ""
	return u.String(), nil
}

func (l *IPAPI) lookup(ctx context.Context, endpoint string) *Location {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		l.logger.Debug("Failed to build geo lookup request", slog.Any("error", err))
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Debug("Geo lookup failed", slog.Any("error", err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		l.logger.Debug("Geo lookup returned non-OK status", slog.Int("status", resp.StatusCode))
		return nil
	}

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		l.logger.Debug("Failed to decode geo lookup response", slog.Any("error", err))
		return nil
	}
	if body.Error {
		l.logger.Debug("Geo lookup rejected", slog.String("reason", body.Reason))
		return nil
	}

	loc := &Location{
		Country: strings.TrimSpace(body.CountryName),
		City:    strings.TrimSpace(body.City),
	}
	if loc.Empty() {
		return nil
	}
	return loc
}
