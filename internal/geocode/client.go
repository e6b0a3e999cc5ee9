// Package geocode resolves coordinates to human-readable places and back
// using a Nominatim-compatible HTTP endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// Geocoding errors.
var (
	ErrNotFound      = errors.New("place not found")
	ErrUnconfigured  = errors.New("geocoder endpoint not configured")
	ErrUpstreamError = errors.New("geocoder upstream error")
)

// Place is a resolved location with display labels.
type Place struct {
	PlaceID string
	Label   string
	City    string
	State   string
	Country string
	Coords  geo.Coordinates
}

// Geocoder resolves coordinates and place ids to Places.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, coords geo.Coordinates) (*Place, error)
	PlaceDetails(ctx context.Context, placeID string) (*Place, error)
}

const requestTimeout = 5 * time.Second

// Client is a Geocoder backed by a Nominatim-compatible service.
// Reverse lookups are cached by geohash so nearby coordinates share entries.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	cache   *placeCache
}

// NewClient creates a geocoding client. The base URL points at the root of a
// Nominatim-compatible deployment (e.g. https://nominatim.example.com).
func NewClient(baseURL string, cacheTTL time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
		cache:   newPlaceCache(cacheTTL),
	}
}

// nominatimPlace is the jsonv2 response shape shared by the reverse and
// details endpoints. Nominatim serializes lat/lon as strings.
type nominatimPlace struct {
	PlaceID     json.Number `json:"place_id"`
	DisplayName string      `json:"display_name"`
	Lat         string      `json:"lat"`
	Lon         string      `json:"lon"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

func (n *nominatimPlace) toPlace() (*Place, error) {
	lat, err := strconv.ParseFloat(n.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid latitude %q", ErrUpstreamError, n.Lat)
	}
	lon, err := strconv.ParseFloat(n.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid longitude %q", ErrUpstreamError, n.Lon)
	}

	city := n.Address.City
	if city == "" {
		city = n.Address.Town
	}
	if city == "" {
		city = n.Address.Village
	}

	return &Place{
		PlaceID: n.PlaceID.String(),
		Label:   n.DisplayName,
		City:    city,
		State:   n.Address.State,
		Country: n.Address.Country,
		Coords:  geo.Coordinates{Lat: lat, Lng: lon},
	}, nil
}

// ReverseGeocode resolves coordinates to the nearest known place.
func (c *Client) ReverseGeocode(ctx context.Context, coords geo.Coordinates) (*Place, error) {
	if c.baseURL == "" {
		return nil, ErrUnconfigured
	}
	if err := coords.Validate(); err != nil {
		return nil, err
	}

	key := "rev:" + geo.EncodeGeohash(coords, geo.CachePrecision)
	if p, ok := c.cache.get(key); ok {
		return p, nil
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(coords.Lng, 'f', -1, 64))
	q.Set("format", "jsonv2")

	place, err := c.fetch(ctx, c.baseURL+"/reverse?"+q.Encode())
	if err != nil {
		return nil, err
	}

	c.cache.put(key, place)
	return place, nil
}

// PlaceDetails resolves a place id from a prior search or reverse lookup.
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (*Place, error) {
	if c.baseURL == "" {
		return nil, ErrUnconfigured
	}
	if placeID == "" {
		return nil, fmt.Errorf("%w: empty place id", ErrNotFound)
	}

	key := "place:" + placeID
	if p, ok := c.cache.get(key); ok {
		return p, nil
	}

	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("format", "json")

	place, err := c.fetch(ctx, c.baseURL+"/details?"+q.Encode())
	if err != nil {
		return nil, err
	}

	c.cache.put(key, place)
	return place, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamError, resp.StatusCode)
	}

	var body nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	if body.Error != "" {
		// Nominatim reports unresolvable coordinates as 200 with an error field.
		return nil, fmt.Errorf("%w: %s", ErrNotFound, body.Error)
	}

	return body.toPlace()
}
