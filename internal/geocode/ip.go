package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// ErrDetectionUnsupported indicates no IP geolocation endpoint is configured
// or the caller's address cannot be located.
var ErrDetectionUnsupported = errors.New("ip detection unsupported")

const ipRequestTimeout = 5 * time.Second

// IPLocator estimates a caller's position from their IP address using an
// ip-api-compatible endpoint. It stands in for a client-side geolocation
// capability when none is available.
type IPLocator struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewIPLocator creates an IP-based position detector. An empty base URL
// yields a locator that reports ErrDetectionUnsupported on every call.
func NewIPLocator(baseURL string, logger *slog.Logger) *IPLocator {
	return &IPLocator{
		baseURL: baseURL,
		http:    &http.Client{Timeout: ipRequestTimeout},
		logger:  logger,
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Region  string  `json:"regionName"`
	Country string  `json:"country"`
}

// Detect resolves the given client IP to coordinates.
func (l *IPLocator) Detect(ctx context.Context, clientIP string) (geo.Coordinates, error) {
	if l.baseURL == "" {
		return geo.Coordinates{}, ErrDetectionUnsupported
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return geo.Coordinates{}, fmt.Errorf("%w: invalid client address %q", ErrDetectionUnsupported, clientIP)
	}
	if ip.IsLoopback() || ip.IsPrivate() {
		return geo.Coordinates{}, fmt.Errorf("%w: private address %s", ErrDetectionUnsupported, ip)
	}

	q := url.Values{}
	q.Set("fields", "status,message,lat,lon,city,regionName,country")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/json/"+ip.String()+"?"+q.Encode(), nil)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("failed to build ip lookup request: %w", err)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("ip lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinates{}, fmt.Errorf("ip lookup failed: status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return geo.Coordinates{}, fmt.Errorf("ip lookup failed: %w", err)
	}
	if body.Status != "success" {
		return geo.Coordinates{}, fmt.Errorf("ip lookup failed: %s", body.Message)
	}

	coords := geo.Coordinates{Lat: body.Lat, Lng: body.Lon}
	if err := coords.Validate(); err != nil {
		return geo.Coordinates{}, fmt.Errorf("ip lookup returned invalid position: %w", err)
	}

	l.logger.Debug("resolved client position from ip",
		slog.String("city", body.City),
		slog.String("country", body.Country),
	)
	return coords, nil
}
