package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
	"github.com/offerbuddy/offerbuddy/internal/geocode"
)

// Resolver errors.
var (
	// ErrUnavailable indicates detection could not produce a position:
	// capability absent, lookup failed, or timed out. Callers present a
	// manual-selection fallback; this is an expected outcome.
	ErrUnavailable = errors.New("location unavailable")

	// ErrInvalidSelection indicates a manual selection carried neither a
	// place id nor coordinates.
	ErrInvalidSelection = errors.New("manual selection requires a place id or coordinates")
)

// Detector estimates a session's position, typically from the client IP.
type Detector interface {
	Detect(ctx context.Context, clientIP string) (geo.Coordinates, error)
}

// Default operation timeouts.
const (
	DefaultDetectTimeout  = 15 * time.Second
	DefaultGeocodeTimeout = 5 * time.Second
)

// Options tunes resolver timeouts and the staleness window. Zero values fall
// back to the defaults.
type Options struct {
	DetectTimeout  time.Duration
	GeocodeTimeout time.Duration
	StaleAfter     time.Duration
}

// Resolver owns the location state lifecycle for sessions: load persisted
// state, detect, refresh stale detections in the background, apply manual
// overrides, and clear. At most one detection runs per session at a time;
// concurrent callers coalesce onto the in-flight attempt.
type Resolver struct {
	store    Store
	detector Detector
	geocoder geocode.Geocoder
	logger   *slog.Logger

	detectTimeout  time.Duration
	geocodeTimeout time.Duration
	staleAfter     time.Duration

	mu       sync.Mutex
	inflight map[string]*detection
}

type detection struct {
	done  chan struct{}
	state *State
	err   error
}

// NewResolver creates a resolver. The geocoder may be nil; label enrichment
// and place-id selection are then unavailable but coordinate flows still work.
func NewResolver(store Store, detector Detector, geocoder geocode.Geocoder, logger *slog.Logger, opts Options) *Resolver {
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = DefaultDetectTimeout
	}
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = DefaultGeocodeTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}

	return &Resolver{
		store:          store,
		detector:       detector,
		geocoder:       geocoder,
		logger:         logger,
		detectTimeout:  opts.DetectTimeout,
		geocodeTimeout: opts.GeocodeTimeout,
		staleAfter:     opts.StaleAfter,
		inflight:       make(map[string]*detection),
	}
}

// Current returns the session's location state. A missing record yields a
// zero state with source "none". A stale detected position is returned
// immediately while a background refresh runs; refresh failures are swallowed
// and never revert a resolved state.
func (r *Resolver) Current(ctx context.Context, sessionID, clientIP string) (*State, error) {
	state, err := r.store.Get(ctx, sessionID)
	if errors.Is(err, ErrStateNotFound) {
		return &State{Source: SourceNone}, nil
	}
	if err != nil {
		return nil, err
	}

	if state.Stale(time.Now(), r.staleAfter) {
		go func() {
			if _, err := r.Detect(context.Background(), sessionID, clientIP); err != nil {
				r.logger.Debug("background location refresh failed",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	return state, nil
}

// Detect resolves the session's position via the detector and persists the
// result. Concurrent calls for the same session share one detection attempt.
// On failure the previously persisted state, if any, is left untouched.
func (r *Resolver) Detect(ctx context.Context, sessionID, clientIP string) (*State, error) {
	r.mu.Lock()
	if d, ok := r.inflight[sessionID]; ok {
		r.mu.Unlock()
		select {
		case <-d.done:
			return d.state, d.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d := &detection{done: make(chan struct{})}
	r.inflight[sessionID] = d
	r.mu.Unlock()

	d.state, d.err = r.runDetection(sessionID, clientIP)
	close(d.done)

	r.mu.Lock()
	delete(r.inflight, sessionID)
	r.mu.Unlock()

	return d.state, d.err
}

// runDetection executes one detection attempt. It runs off the caller's
// context so a background refresh is not cut short by the request that
// triggered it.
func (r *Resolver) runDetection(sessionID, clientIP string) (*State, error) {
	startedAt := time.Now()

	dctx, cancel := context.WithTimeout(context.Background(), r.detectTimeout)
	defer cancel()

	coords, err := r.detector.Detect(dctx, clientIP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	state := &State{
		Coords:     &coords,
		Source:     SourceDetected,
		ResolvedAt: time.Now(),
	}
	r.enrich(state)

	// A manual selection made while this detection was in flight pins the
	// session; do not overwrite it.
	if existing, err := r.store.Get(dctx, sessionID); err == nil {
		if existing.Source == SourceManual && existing.ResolvedAt.After(startedAt) {
			return existing, nil
		}
	}

	if err := r.store.Put(dctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("failed to persist detected location: %w", err)
	}
	return state, nil
}

// enrich attaches human-readable labels to a detected position. Failures are
// logged and ignored; coordinates alone satisfy a resolved state.
func (r *Resolver) enrich(state *State) {
	if r.geocoder == nil || state.Coords == nil {
		return
	}

	gctx, cancel := context.WithTimeout(context.Background(), r.geocodeTimeout)
	defer cancel()

	place, err := r.geocoder.ReverseGeocode(gctx, *state.Coords)
	if err != nil {
		r.logger.Warn("reverse geocode failed, keeping coordinates only",
			slog.String("error", err.Error()),
		)
		return
	}

	state.Label = place.Label
	state.City = place.City
	state.Region = place.State
	state.Country = place.Country
}

// ManualSelection is an explicit user choice of position, either a place id
// to look up or direct coordinates with an optional label.
type ManualSelection struct {
	PlaceID string
	Coords  *geo.Coordinates
	Label   string
}

// SelectManually overrides the session's position with a user selection and
// persists it with source "manual". Manual positions never go stale and take
// precedence over any detection completing afterwards.
func (r *Resolver) SelectManually(ctx context.Context, sessionID string, sel ManualSelection) (*State, error) {
	state := &State{
		Source:     SourceManual,
		ResolvedAt: time.Now(),
	}

	switch {
	case sel.PlaceID != "":
		if r.geocoder == nil {
			return nil, fmt.Errorf("%w: no geocoder configured", ErrUnavailable)
		}
		gctx, cancel := context.WithTimeout(ctx, r.geocodeTimeout)
		defer cancel()

		place, err := r.geocoder.PlaceDetails(gctx, sel.PlaceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		coords := place.Coords
		state.Coords = &coords
		state.Label = place.Label
		state.City = place.City
		state.Region = place.State
		state.Country = place.Country

	case sel.Coords != nil:
		if err := sel.Coords.Validate(); err != nil {
			return nil, err
		}
		coords := *sel.Coords
		state.Coords = &coords
		state.Label = sel.Label

	default:
		return nil, ErrInvalidSelection
	}

	if err := r.store.Put(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("failed to persist manual location: %w", err)
	}
	return state, nil
}

// Clear deletes the session's persisted state, returning it to uninitialized.
func (r *Resolver) Clear(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionID)
}
