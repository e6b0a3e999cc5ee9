// Package api provides HTTP handlers for the Offer Buddy API.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/offerbuddy/offerbuddy/internal/catalog"
	"github.com/offerbuddy/offerbuddy/internal/geo"
	"github.com/offerbuddy/offerbuddy/internal/location"
	"github.com/offerbuddy/offerbuddy/internal/middleware"
	"github.com/offerbuddy/offerbuddy/internal/search"
)

// SessionIDHeader carries the anonymous browsing session identifier.
const SessionIDHeader = "X-Session-ID"

// SearchHandlers holds dependencies for search HTTP handlers.
type SearchHandlers struct {
	engine   *search.Engine
	resolver *location.Resolver
}

// NewSearchHandlers creates a new SearchHandlers instance. The resolver is
// optional; without it, searches have no session-location fallback and only
// explicit lat/lng parameters produce an origin.
func NewSearchHandlers(engine *search.Engine, resolver *location.Resolver) *SearchHandlers {
	return &SearchHandlers{
		engine:   engine,
		resolver: resolver,
	}
}

// Pagination is the pagination envelope attached to every search response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ProductSearchResponse is the response for GET /search/products.
type ProductSearchResponse struct {
	Items      []*catalog.Product `json:"items"`
	Pagination Pagination         `json:"pagination"`
}

// VendorSearchResponse is the response for GET /search/vendors.
type VendorSearchResponse struct {
	Items      []*catalog.Vendor `json:"items"`
	Pagination Pagination        `json:"pagination"`
}

// parseCriteria builds search criteria from query parameters. Numeric
// parameters that fail to parse are validation errors; out-of-bounds radius
// and pagination values are clamped by the engine, not rejected.
func (h *SearchHandlers) parseCriteria(r *http.Request) (search.Criteria, string) {
	query := r.URL.Query()

	var c search.Criteria

	latStr := strings.TrimSpace(query.Get("lat"))
	lngStr := strings.TrimSpace(query.Get("lng"))
	if (latStr == "") != (lngStr == "") {
		return c, "Both 'lat' and 'lng' must be provided together"
	}
	if latStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return c, "Invalid 'lat' parameter"
		}
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil {
			return c, "Invalid 'lng' parameter"
		}
		c.Origin = &geo.Coordinates{Lat: lat, Lng: lng}
	} else if h.resolver != nil {
		// Fall back to the session's resolved location, if any. A session
		// without a usable location simply searches without geo features.
		if sessionID := r.Header.Get(SessionIDHeader); sessionID != "" {
			if state, err := h.resolver.Current(r.Context(), sessionID, clientIP(r)); err == nil && state.Resolved() {
				c.Origin = state.Coords
			}
		}
	}

	if radiusStr := strings.TrimSpace(query.Get("radius_km")); radiusStr != "" {
		radius, err := strconv.ParseFloat(radiusStr, 64)
		if err != nil {
			return c, "Invalid 'radius_km' parameter"
		}
		c.RadiusKm = radius
	}

	c.CategoryID = strings.TrimSpace(query.Get("category_id"))
	c.Query = strings.TrimSpace(query.Get("q"))

	if minStr := strings.TrimSpace(query.Get("min_price")); minStr != "" {
		min, err := strconv.ParseFloat(minStr, 64)
		if err != nil {
			return c, "Invalid 'min_price' parameter"
		}
		c.MinPrice = &min
	}
	if maxStr := strings.TrimSpace(query.Get("max_price")); maxStr != "" {
		max, err := strconv.ParseFloat(maxStr, 64)
		if err != nil {
			return c, "Invalid 'max_price' parameter"
		}
		c.MaxPrice = &max
	}
	if offerStr := strings.TrimSpace(query.Get("has_offer")); offerStr != "" {
		hasOffer, err := strconv.ParseBool(offerStr)
		if err != nil {
			return c, "Invalid 'has_offer' parameter"
		}
		c.HasOffer = hasOffer
	}

	c.Sort = strings.TrimSpace(query.Get("sort"))

	if pageStr := strings.TrimSpace(query.Get("page")); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return c, "Invalid 'page' parameter"
		}
		c.Page = page
	}
	if limitStr := strings.TrimSpace(query.Get("limit")); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return c, "Invalid 'limit' parameter"
		}
		c.PageSize = limit
	}

	return c, ""
}

// SearchProducts handles GET /search/products.
func (h *SearchHandlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	criteria, msg := h.parseCriteria(r)
	if msg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	result, err := h.engine.SearchProducts(r.Context(), criteria)
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []*catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ProductSearchResponse{
		Items: items,
		Pagination: Pagination{
			Page:  result.Page,
			Limit: result.PageSize,
			Total: result.Total,
			Pages: result.TotalPages,
		},
	})
}

// SearchVendors handles GET /search/vendors.
func (h *SearchHandlers) SearchVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	criteria, msg := h.parseCriteria(r)
	if msg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	result, err := h.engine.SearchVendors(r.Context(), criteria)
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []*catalog.Vendor{}
	}
	writeJSON(w, http.StatusOK, VendorSearchResponse{
		Items: items,
		Pagination: Pagination{
			Page:  result.Page,
			Limit: result.PageSize,
			Total: result.Total,
			Pages: result.TotalPages,
		},
	})
}

func (h *SearchHandlers) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidOrigin):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Origin coordinates out of range")
	case errors.Is(err, search.ErrInvalidSort):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Unknown sort mode")
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Search failed")
	}
}

// clientIP extracts the originating client IP from proxy headers, falling
// back to the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.Trim(host, "[]")
}
