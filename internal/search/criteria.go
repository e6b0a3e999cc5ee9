// Package search implements the proximity search engine: distance
// annotation, radius filtering, multi-criteria sorting, and offset
// pagination over catalog candidates.
package search

import (
	"errors"
	"fmt"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// Sort modes supported by the engine.
const (
	SortDistance  = "distance"
	SortNewest    = "newest"
	SortPopular   = "popular"
	SortPriceLow  = "price_low"
	SortPriceHigh = "price_high"
)

// Radius and pagination bounds. Radius is clamped to [1,100] km here and
// nowhere else.
const (
	DefaultRadiusKm = 5.0
	MinRadiusKm     = 1.0
	MaxRadiusKm     = 100.0

	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Validation errors.
var (
	ErrInvalidOrigin = errors.New("invalid search origin")
	ErrInvalidSort   = errors.New("invalid sort mode")
)

// ErrRepository wraps failures from the underlying record store. The engine
// never retries; retries belong to the repository or transport layer.
var ErrRepository = errors.New("repository failure")

// Criteria is an immutable description of one search. Construct it, call
// Normalize once, and pass it by value.
type Criteria struct {
	// Origin is the search origin. Nil means no geo features: no radius
	// filter, no distance annotation, and distance sort degrades to newest.
	Origin *geo.Coordinates

	// RadiusKm bounds inclusion around Origin. Clamped to [1,100].
	RadiusKm float64

	CategoryID string
	Query      string
	MinPrice   *float64
	MaxPrice   *float64
	HasOffer   bool

	// Sort is one of the Sort* constants. Empty defaults to distance when
	// an origin is present, newest otherwise.
	Sort string

	Page     int
	PageSize int

	// Now anchors offer-window checks; zero means time.Now().
	Now time.Time
}

// Normalize clamps pagination and radius to sane bounds and resolves the
// effective sort mode. Clamping, not rejection, is the policy for
// out-of-bounds numeric inputs; only malformed values and out-of-range
// coordinates are rejected (see Validate).
func (c Criteria) Normalize() Criteria {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.PageSize < 1 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}

	if c.RadiusKm == 0 {
		c.RadiusKm = DefaultRadiusKm
	}
	if c.RadiusKm < MinRadiusKm {
		c.RadiusKm = MinRadiusKm
	}
	if c.RadiusKm > MaxRadiusKm {
		c.RadiusKm = MaxRadiusKm
	}

	c.Sort = effectiveSort(c.Sort, c.Origin != nil)

	if c.Now.IsZero() {
		c.Now = time.Now()
	}

	return c
}

// Validate rejects out-of-range origins and unknown sort modes. A missing
// origin is not an error; it only disables geo features.
func (c Criteria) Validate() error {
	if c.Origin != nil {
		if err := c.Origin.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOrigin, err)
		}
	}
	switch c.Sort {
	case "", SortDistance, SortNewest, SortPopular, SortPriceLow, SortPriceHigh:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSort, c.Sort)
	}
	return nil
}

// effectiveSort resolves defaults and the distance-without-origin fallback.
// Distance sort without an origin degrades to newest; it never errors and
// never returns unsorted data.
func effectiveSort(sort string, hasOrigin bool) string {
	switch sort {
	case "":
		if hasOrigin {
			return SortDistance
		}
		return SortNewest
	case SortDistance:
		if !hasOrigin {
			return SortNewest
		}
		return SortDistance
	default:
		return sort
	}
}

// Result is one page of search output. Total counts the fully filtered set
// before pagination; len(Items) is always <= PageSize.
type Result[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// paginate slices one page out of the filtered set and fills in the counts.
func paginate[T any](items []T, page, pageSize int) Result[T] {
	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Result[T]{
		Items:      items[start:end],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}
