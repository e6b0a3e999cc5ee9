package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/catalog"
	"github.com/offerbuddy/offerbuddy/internal/stats"
)

func newCatalogEnv(t *testing.T) (*CatalogHandlers, *catalog.InMemoryProductRepository) {
	t.Helper()
	products := catalog.NewInMemoryProductRepository()
	vendors := catalog.NewInMemoryVendorRepository()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	product := &catalog.Product{
		ID:        "prod-1",
		VendorID:  "vendor-1",
		Title:     "Wireless Earbuds",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := products.Insert(context.Background(), product); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}

	vendor := &catalog.Vendor{
		ID:          "vendor-1",
		OwnerUserID: "user-1",
		Name:        "Corner Store",
		Status:      "approved",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := vendors.Insert(context.Background(), vendor); err != nil {
		t.Fatalf("failed to seed vendor: %v", err)
	}

	tracker := stats.NewViewTracker(products, time.Minute, discardLogger())
	return NewCatalogHandlers(products, vendors, tracker), products
}

func pathRequest(method, target, id string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.SetPathValue("id", id)
	return req
}

func TestGetProduct_Found(t *testing.T) {
	h, _ := newCatalogEnv(t)

	w := httptest.NewRecorder()
	h.GetProduct(w, pathRequest(http.MethodGet, "/products/prod-1", "prod-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var product catalog.Product
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if product.ID != "prod-1" {
		t.Errorf("expected prod-1, got %s", product.ID)
	}
	if product.Title != "Wireless Earbuds" {
		t.Errorf("expected title Wireless Earbuds, got %s", product.Title)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	h, _ := newCatalogEnv(t)

	w := httptest.NewRecorder()
	h.GetProduct(w, pathRequest(http.MethodGet, "/products/missing", "missing"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, errResp.Error.Code)
	}
}

func TestGetVendor_Found(t *testing.T) {
	h, _ := newCatalogEnv(t)

	w := httptest.NewRecorder()
	h.GetVendor(w, pathRequest(http.MethodGet, "/vendors/vendor-1", "vendor-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var vendor catalog.Vendor
	if err := json.Unmarshal(w.Body.Bytes(), &vendor); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if vendor.ID != "vendor-1" {
		t.Errorf("expected vendor-1, got %s", vendor.ID)
	}
}

func TestGetVendor_NotFound(t *testing.T) {
	h, _ := newCatalogEnv(t)

	w := httptest.NewRecorder()
	h.GetVendor(w, pathRequest(http.MethodGet, "/vendors/missing", "missing"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestRecordView_Accepted(t *testing.T) {
	h, products := newCatalogEnv(t)

	w := httptest.NewRecorder()
	h.RecordView(w, pathRequest(http.MethodPost, "/products/prod-1/view", "prod-1"))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}

	// The increment is buffered; a flush pushes it to the repository.
	if err := h.views.Flush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	product, err := products.GetByID(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("failed to load product: %v", err)
	}
	if product.Views != 1 {
		t.Errorf("expected 1 view after flush, got %d", product.Views)
	}
}

func TestRecordView_UnknownProductStillAccepted(t *testing.T) {
	h, _ := newCatalogEnv(t)

	w := httptest.NewRecorder()
	h.RecordView(w, pathRequest(http.MethodPost, "/products/ghost/view", "ghost"))

	// Recording never checks existence; the flush drops unknown ids later.
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
}

func TestRecordView_NilTrackerIsNoOp(t *testing.T) {
	products := catalog.NewInMemoryProductRepository()
	vendors := catalog.NewInMemoryVendorRepository()
	h := NewCatalogHandlers(products, vendors, nil)

	w := httptest.NewRecorder()
	h.RecordView(w, pathRequest(http.MethodPost, "/products/prod-1/view", "prod-1"))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
}

func TestGetProduct_MissingID(t *testing.T) {
	h, _ := newCatalogEnv(t)

	w := httptest.NewRecorder()
	h.GetProduct(w, pathRequest(http.MethodGet, "/products/", ""))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}
