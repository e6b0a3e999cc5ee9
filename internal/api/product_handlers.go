package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/offerbuddy/offerbuddy/internal/catalog"
	"github.com/offerbuddy/offerbuddy/internal/middleware"
	"github.com/offerbuddy/offerbuddy/internal/stats"
)

// CatalogHandlers serves product and vendor detail endpoints plus the
// fire-and-forget view counter.
type CatalogHandlers struct {
	products catalog.ProductRepository
	vendors  catalog.VendorRepository
	views    *stats.ViewTracker
}

// NewCatalogHandlers creates a new CatalogHandlers instance. The view
// tracker is optional; without it, view recording degrades to a no-op.
func NewCatalogHandlers(products catalog.ProductRepository, vendors catalog.VendorRepository, views *stats.ViewTracker) *CatalogHandlers {
	return &CatalogHandlers{
		products: products,
		vendors:  vendors,
		views:    views,
	}
}

// GetProduct handles GET /products/{id}.
func (h *CatalogHandlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Missing product id")
		return
	}

	product, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Product not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// GetVendor handles GET /vendors/{id}.
func (h *CatalogHandlers) GetVendor(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Missing vendor id")
		return
	}

	vendor, err := h.vendors.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrVendorNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Vendor not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load vendor")
		return
	}
	writeJSON(w, http.StatusOK, vendor)
}

// RecordView handles POST /products/{id}/view. The increment is buffered
// in memory and flushed in the background, so the response is always 202
// and never verifies the product exists.
func (h *CatalogHandlers) RecordView(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Missing product id")
		return
	}

	if h.views != nil {
		h.views.Record(id)
	}
	w.WriteHeader(http.StatusAccepted)
}
