// Package catalog provides models and repositories for vendors, products,
// and categories in the Offer Buddy marketplace.
package catalog

import (
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// Vendor statuses. Only approved vendors surface in public search.
const (
	VendorStatusPending  = "pending"
	VendorStatusApproved = "approved"
	VendorStatusRejected = "rejected"
)

// GeoPoint is the persisted GeoJSON location: coordinates are stored as
// [longitude, latitude], reversed from geo.Coordinates.
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from coordinates.
func NewGeoPoint(c geo.Coordinates) *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: c.GeoJSON()}
}

// Coords returns the point as geo.Coordinates, or nil if the point is absent.
func (p *GeoPoint) Coords() *geo.Coordinates {
	if p == nil {
		return nil
	}
	c := geo.FromGeoJSON(p.Coordinates)
	return &c
}

// Category is a product category.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Vendor represents a seller with a storefront location.
type Vendor struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Location    *GeoPoint `json:"location,omitempty"`
	City        string    `json:"city,omitempty"`
	Address     string    `json:"address,omitempty"`
	Rating      float64   `json:"rating"`
	Views       int64     `json:"views"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// DistanceKm is computed per search from the request origin.
	// Never persisted.
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Product represents a listed product or offer. Its searchable location is
// the owning vendor's storefront location, denormalized onto the record.
type Product struct {
	ID          string    `json:"id"`
	VendorID    string    `json:"vendor_id"`
	VendorName  string    `json:"vendor_name,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Location    *GeoPoint `json:"location,omitempty"`

	// Prices in the smallest display unit. DiscountedPrice is set only
	// while an offer is running.
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	DiscountedPrice *float64 `json:"discounted_price,omitempty"`

	// OfferValidUntil bounds the active offer window; nil means no offer.
	OfferValidUntil *time.Time `json:"offer_valid_until,omitempty"`

	Views     int64     `json:"views"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DistanceKm is computed per search from the request origin.
	// Never persisted.
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// EffectivePrice returns the price used for sorting and range filters:
// the discounted price when present, otherwise the original price, or 0.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountedPrice != nil {
		return *p.DiscountedPrice
	}
	if p.OriginalPrice != nil {
		return *p.OriginalPrice
	}
	return 0
}

// HasActiveOffer reports whether the product's offer window is still open
// at the given instant. The boundary is inclusive: an offer valid until now
// is still active.
func (p *Product) HasActiveOffer(now time.Time) bool {
	return p.OfferValidUntil != nil && !p.OfferValidUntil.Before(now)
}

// Coordinates returns the product's location, or nil when absent.
func (p *Product) Coordinates() *geo.Coordinates {
	return p.Location.Coords()
}

// Coordinates returns the vendor's location, or nil when absent.
func (v *Vendor) Coordinates() *geo.Coordinates {
	return v.Location.Coords()
}
