package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/catalog"
	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// Engine composes repository filtering, distance annotation, sorting, and
// pagination into one search operation. It is stateless; every call is
// independent.
type Engine struct {
	products catalog.ProductRepository
	vendors  catalog.VendorRepository
	metrics  *Metrics
}

// NewEngine creates a search engine over the given repositories.
// metrics may be nil.
func NewEngine(products catalog.ProductRepository, vendors catalog.VendorRepository, metrics *Metrics) *Engine {
	return &Engine{
		products: products,
		vendors:  vendors,
		metrics:  metrics,
	}
}

// SearchProducts runs one product search. The criteria are normalized and
// validated here so callers cannot skip either step.
func (e *Engine) SearchProducts(ctx context.Context, c Criteria) (Result[*catalog.Product], error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Result[*catalog.Product]{}, err
	}

	start := time.Now()

	candidates, err := e.fetchProducts(ctx, c)
	if err != nil {
		return Result[*catalog.Product]{}, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	// Every surviving candidate gets a distance, even when the sort is not
	// distance-based; the API surfaces it whenever an origin was supplied.
	if c.Origin != nil {
		candidates = annotateAndFilterProducts(candidates, *c.Origin, c.RadiusKm)
	}

	sortProducts(candidates, c.Sort)

	result := paginate(candidates, c.Page, c.PageSize)
	if e.metrics != nil {
		e.metrics.ObserveSearch("products", c.Sort, time.Since(start).Seconds(), result.Total)
	}
	return result, nil
}

// SearchVendors runs one vendor search. Price and offer predicates do not
// apply to vendors; the shared criteria carry them but the repository
// ignores them.
func (e *Engine) SearchVendors(ctx context.Context, c Criteria) (Result[*catalog.Vendor], error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Result[*catalog.Vendor]{}, err
	}

	start := time.Now()

	candidates, err := e.fetchVendors(ctx, c)
	if err != nil {
		return Result[*catalog.Vendor]{}, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	if c.Origin != nil {
		candidates = annotateAndFilterVendors(candidates, *c.Origin, c.RadiusKm)
	}

	sortVendors(candidates, c.Sort)

	result := paginate(candidates, c.Page, c.PageSize)
	if e.metrics != nil {
		e.metrics.ObserveSearch("vendors", c.Sort, time.Since(start).Seconds(), result.Total)
	}
	return result, nil
}

// fetchProducts prefers the repository's native geo-radius path and falls
// back to a plain filtered find when the store has no geo index. Both paths
// agree on inclusion because the post-fetch filter applies the same
// boundary-inclusive <= radius rule.
func (e *Engine) fetchProducts(ctx context.Context, c Criteria) ([]*catalog.Product, error) {
	f := filterFrom(c)
	if c.Origin == nil {
		return e.products.Find(ctx, f)
	}

	candidates, err := e.products.FindNear(ctx, f, *c.Origin, prefilterRadiusMeters(c.RadiusKm))
	if errors.Is(err, catalog.ErrGeoUnsupported) {
		return e.products.Find(ctx, f)
	}
	return candidates, err
}

func (e *Engine) fetchVendors(ctx context.Context, c Criteria) ([]*catalog.Vendor, error) {
	f := filterFrom(c)
	if c.Origin == nil {
		return e.vendors.Find(ctx, f)
	}

	candidates, err := e.vendors.FindNear(ctx, f, *c.Origin, prefilterRadiusMeters(c.RadiusKm))
	if errors.Is(err, catalog.ErrGeoUnsupported) {
		return e.vendors.Find(ctx, f)
	}
	return candidates, err
}

// prefilterRadiusMeters widens the repository-side radius by half the
// display rounding step (0.005 km). A candidate at 5.004 km rounds to
// 5.00 and must stay within a 5 km radius, but a raw-distance comparison
// in the store would drop it before the engine ever saw it. The rounded
// comparison in annotateAndFilterProducts/Vendors remains the single
// arbiter of inclusion.
func prefilterRadiusMeters(radiusKm float64) float64 {
	return (radiusKm + 0.005) * 1000
}

func filterFrom(c Criteria) catalog.Filter {
	return catalog.Filter{
		CategoryID: c.CategoryID,
		Query:      c.Query,
		MinPrice:   c.MinPrice,
		MaxPrice:   c.MaxPrice,
		HasOffer:   c.HasOffer,
		Now:        c.Now,
	}
}

// annotateAndFilterProducts computes the rounded distance for every
// candidate and drops those beyond the radius. Rounding happens exactly
// once, after the full Haversine computation, and the rounded value is what
// the radius comparison uses, so display and inclusion can never disagree.
// Candidates without coordinates cannot satisfy the radius predicate and
// are dropped.
func annotateAndFilterProducts(products []*catalog.Product, origin geo.Coordinates, radiusKm float64) []*catalog.Product {
	kept := products[:0]
	for _, p := range products {
		coords := p.Coordinates()
		if coords == nil {
			continue
		}
		d := geo.RoundKm(geo.DistanceKm(origin, *coords))
		if d > radiusKm {
			continue
		}
		p.DistanceKm = &d
		kept = append(kept, p)
	}
	return kept
}

func annotateAndFilterVendors(vendors []*catalog.Vendor, origin geo.Coordinates, radiusKm float64) []*catalog.Vendor {
	kept := vendors[:0]
	for _, v := range vendors {
		coords := v.Coordinates()
		if coords == nil {
			continue
		}
		d := geo.RoundKm(geo.DistanceKm(origin, *coords))
		if d > radiusKm {
			continue
		}
		v.DistanceKm = &d
		kept = append(kept, v)
	}
	return kept
}

// sortProducts orders candidates in place. All modes use a stable sort so
// ties preserve repository order, which the popular mode's contract
// requires and the others get for free.
func sortProducts(products []*catalog.Product, mode string) {
	switch mode {
	case SortDistance:
		sort.SliceStable(products, func(i, j int) bool {
			return lessByDistance(products[i].DistanceKm, products[j].DistanceKm)
		})
	case SortPopular:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Views > products[j].Views
		})
	case SortPriceLow:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].EffectivePrice() < products[j].EffectivePrice()
		})
	case SortPriceHigh:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].EffectivePrice() > products[j].EffectivePrice()
		})
	default: // SortNewest
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		})
	}
}

func sortVendors(vendors []*catalog.Vendor, mode string) {
	switch mode {
	case SortDistance:
		sort.SliceStable(vendors, func(i, j int) bool {
			return lessByDistance(vendors[i].DistanceKm, vendors[j].DistanceKm)
		})
	case SortPopular:
		sort.SliceStable(vendors, func(i, j int) bool {
			return vendors[i].Views > vendors[j].Views
		})
	case SortPriceLow, SortPriceHigh:
		// Vendors have no price; fall back to newest.
		fallthrough
	default: // SortNewest
		sort.SliceStable(vendors, func(i, j int) bool {
			return vendors[i].CreatedAt.After(vendors[j].CreatedAt)
		})
	}
}

// lessByDistance orders ascending by distance with missing distances last.
// Two missing distances compare equal so the stable sort keeps their
// relative order.
func lessByDistance(a, b *float64) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}
