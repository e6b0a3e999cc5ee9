package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// Common errors for catalog operations.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrVendorNotFound  = errors.New("vendor not found")
)

// Filter describes the non-geographic predicates applied at the repository
// layer, before any distance work, to keep the candidate set small.
type Filter struct {
	CategoryID string
	// Query matches title/description case-insensitively.
	Query string
	// MinPrice/MaxPrice bound the effective price (discounted when present).
	MinPrice *float64
	MaxPrice *float64
	// HasOffer restricts to records with an offer window open at Now.
	HasOffer bool
	// Now anchors offer-window checks; zero means time.Now().
	Now time.Time
}

// ProductRepository exposes the record-store operations the search engine
// needs. FindNear is the native geo-radius path; implementations without a
// geo index return ErrGeoUnsupported and the engine falls back to computing
// distances post-fetch. Both paths must agree on candidate inclusion.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	Find(ctx context.Context, f Filter) ([]*Product, error)
	FindNear(ctx context.Context, f Filter, origin geo.Coordinates, radiusMeters float64) ([]*Product, error)
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	IncrementViews(ctx context.Context, id string, delta int64) error
}

// VendorRepository mirrors ProductRepository for vendor storefronts.
type VendorRepository interface {
	GetByID(ctx context.Context, id string) (*Vendor, error)
	Find(ctx context.Context, f Filter) ([]*Vendor, error)
	FindNear(ctx context.Context, f Filter, origin geo.Coordinates, radiusMeters float64) ([]*Vendor, error)
	Insert(ctx context.Context, v *Vendor) error
	Update(ctx context.Context, v *Vendor) error
	IncrementViews(ctx context.Context, id string, delta int64) error
}

// ErrGeoUnsupported signals that a repository has no native geo index and
// the caller should filter by distance itself.
var ErrGeoUnsupported = errors.New("repository does not support geo queries")

// InMemoryProductRepository is an in-memory implementation of
// ProductRepository. Used for testing and development. Records keep their
// insertion order so stable sorts behave deterministically.
type InMemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*Product
	order    []string
}

// NewInMemoryProductRepository creates a new in-memory product repository.
func NewInMemoryProductRepository() *InMemoryProductRepository {
	return &InMemoryProductRepository{
		products: make(map[string]*Product),
	}
}

// Insert stores a copy of the product.
func (r *InMemoryProductRepository) Insert(ctx context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.products[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.products[p.ID] = copyProduct(p)
	return nil
}

// Update replaces a stored product.
func (r *InMemoryProductRepository) Update(ctx context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.products[p.ID]; !exists {
		return ErrProductNotFound
	}
	r.products[p.ID] = copyProduct(p)
	return nil
}

// GetByID retrieves a product by its ID.
func (r *InMemoryProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return copyProduct(p), nil
}

// Find returns products matching the filter, in insertion order.
func (r *InMemoryProductRepository) Find(ctx context.Context, f Filter) ([]*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}

	var result []*Product
	for _, id := range r.order {
		p := r.products[id]
		if matchProduct(p, f, now) {
			result = append(result, copyProduct(p))
		}
	}
	return result, nil
}

// FindNear applies the filter and then retains only products within the
// radius of the origin. Inclusion is boundary-inclusive at <= radius.
func (r *InMemoryProductRepository) FindNear(ctx context.Context, f Filter, origin geo.Coordinates, radiusMeters float64) ([]*Product, error) {
	matched, err := r.Find(ctx, f)
	if err != nil {
		return nil, err
	}

	radiusKm := radiusMeters / 1000.0
	var result []*Product
	for _, p := range matched {
		coords := p.Coordinates()
		if coords == nil {
			continue
		}
		if geo.RoundKm(geo.DistanceKm(origin, *coords)) <= radiusKm {
			result = append(result, p)
		}
	}
	return result, nil
}

// IncrementViews adds delta to the product's view counter.
func (r *InMemoryProductRepository) IncrementViews(ctx context.Context, id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Views += delta
	return nil
}

func matchProduct(p *Product, f Filter, now time.Time) bool {
	if f.CategoryID != "" && p.CategoryID != f.CategoryID {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(p.Title), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	price := p.EffectivePrice()
	if f.MinPrice != nil && price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && price > *f.MaxPrice {
		return false
	}
	if f.HasOffer && !p.HasActiveOffer(now) {
		return false
	}
	return true
}

func copyProduct(p *Product) *Product {
	cp := *p
	if p.Location != nil {
		loc := *p.Location
		cp.Location = &loc
	}
	if p.OriginalPrice != nil {
		v := *p.OriginalPrice
		cp.OriginalPrice = &v
	}
	if p.DiscountedPrice != nil {
		v := *p.DiscountedPrice
		cp.DiscountedPrice = &v
	}
	if p.OfferValidUntil != nil {
		t := *p.OfferValidUntil
		cp.OfferValidUntil = &t
	}
	if p.DistanceKm != nil {
		d := *p.DistanceKm
		cp.DistanceKm = &d
	}
	return &cp
}

// InMemoryVendorRepository is an in-memory implementation of
// VendorRepository. Used for testing and development.
type InMemoryVendorRepository struct {
	mu      sync.RWMutex
	vendors map[string]*Vendor
	order   []string
}

// NewInMemoryVendorRepository creates a new in-memory vendor repository.
func NewInMemoryVendorRepository() *InMemoryVendorRepository {
	return &InMemoryVendorRepository{
		vendors: make(map[string]*Vendor),
	}
}

// Insert stores a copy of the vendor.
func (r *InMemoryVendorRepository) Insert(ctx context.Context, v *Vendor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vendors[v.ID]; !exists {
		r.order = append(r.order, v.ID)
	}
	r.vendors[v.ID] = copyVendor(v)
	return nil
}

// Update replaces a stored vendor.
func (r *InMemoryVendorRepository) Update(ctx context.Context, v *Vendor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vendors[v.ID]; !exists {
		return ErrVendorNotFound
	}
	r.vendors[v.ID] = copyVendor(v)
	return nil
}

// GetByID retrieves a vendor by its ID.
func (r *InMemoryVendorRepository) GetByID(ctx context.Context, id string) (*Vendor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vendors[id]
	if !ok {
		return nil, ErrVendorNotFound
	}
	return copyVendor(v), nil
}

// Find returns approved vendors matching the filter, in insertion order.
// Price and offer predicates do not apply to vendors and are ignored.
func (r *InMemoryVendorRepository) Find(ctx context.Context, f Filter) ([]*Vendor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Vendor
	for _, id := range r.order {
		v := r.vendors[id]
		if v.Status != VendorStatusApproved {
			continue
		}
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(v.Name), q) &&
				!strings.Contains(strings.ToLower(v.Description), q) {
				continue
			}
		}
		result = append(result, copyVendor(v))
	}
	return result, nil
}

// FindNear applies the filter and retains vendors within the radius.
func (r *InMemoryVendorRepository) FindNear(ctx context.Context, f Filter, origin geo.Coordinates, radiusMeters float64) ([]*Vendor, error) {
	matched, err := r.Find(ctx, f)
	if err != nil {
		return nil, err
	}

	radiusKm := radiusMeters / 1000.0
	var result []*Vendor
	for _, v := range matched {
		coords := v.Coordinates()
		if coords == nil {
			continue
		}
		if geo.RoundKm(geo.DistanceKm(origin, *coords)) <= radiusKm {
			result = append(result, v)
		}
	}
	return result, nil
}

// IncrementViews adds delta to the vendor's view counter.
func (r *InMemoryVendorRepository) IncrementViews(ctx context.Context, id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vendors[id]
	if !ok {
		return ErrVendorNotFound
	}
	v.Views += delta
	return nil
}

func copyVendor(v *Vendor) *Vendor {
	cv := *v
	if v.Location != nil {
		loc := *v.Location
		cv.Location = &loc
	}
	if v.DistanceKm != nil {
		d := *v.DistanceKm
		cv.DistanceKm = &d
	}
	return &cv
}
