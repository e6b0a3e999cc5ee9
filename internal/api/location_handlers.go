package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/offerbuddy/offerbuddy/internal/geo"
	"github.com/offerbuddy/offerbuddy/internal/location"
	"github.com/offerbuddy/offerbuddy/internal/middleware"
)

// LocationHandlers holds dependencies for session location HTTP handlers.
type LocationHandlers struct {
	resolver *location.Resolver
}

// NewLocationHandlers creates a new LocationHandlers instance.
func NewLocationHandlers(resolver *location.Resolver) *LocationHandlers {
	return &LocationHandlers{resolver: resolver}
}

// ManualLocationRequest is the body for PUT /session/location. Either a
// place_id or a coordinate pair must be provided.
type ManualLocationRequest struct {
	PlaceID string   `json:"place_id,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Label   string   `json:"label,omitempty"`
}

// sessionID extracts and validates the session identifier header, tagging
// the request context so the logging middleware picks it up.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(SessionIDHeader))
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Missing "+SessionIDHeader+" header")
		return "", false
	}
	middleware.UpdateResponseContext(w, middleware.SetSessionID(r.Context(), id))
	return id, true
}

// Current handles GET /session/location.
func (h *LocationHandlers) Current(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	state, err := h.resolver.Current(r.Context(), id, clientIP(r))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load session location")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Detect handles POST /session/location/detect.
func (h *LocationHandlers) Detect(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	state, err := h.resolver.Detect(r.Context(), id, clientIP(r))
	if err != nil {
		if errors.Is(err, location.ErrUnavailable) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeLocationUnavailable)
			WriteError(w, ctx, http.StatusUnprocessableEntity, ErrCodeLocationUnavailable, "Unable to determine a location for this session")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Location detection failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Select handles PUT /session/location.
func (h *LocationHandlers) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req ManualLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid request body")
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Both 'lat' and 'lng' must be provided together")
		return
	}

	sel := location.ManualSelection{
		PlaceID: strings.TrimSpace(req.PlaceID),
		Label:   strings.TrimSpace(req.Label),
	}
	if req.Lat != nil {
		sel.Coords = &geo.Coordinates{Lat: *req.Lat, Lng: *req.Lng}
	}

	state, err := h.resolver.SelectManually(r.Context(), id, sel)
	if err != nil {
		switch {
		case errors.Is(err, location.ErrInvalidSelection):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "A place_id or a coordinate pair is required")
		case errors.Is(err, geo.ErrLatitudeOutOfRange), errors.Is(err, geo.ErrLongitudeOutOfRange):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Coordinates out of range")
		case errors.Is(err, location.ErrUnavailable):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeLocationUnavailable)
			WriteError(w, ctx, http.StatusUnprocessableEntity, ErrCodeLocationUnavailable, "Selected place could not be resolved")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to save session location")
		}
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Clear handles DELETE /session/location.
func (h *LocationHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.resolver.Clear(r.Context(), id); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to clear session location")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
