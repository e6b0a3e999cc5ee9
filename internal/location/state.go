// Package location maintains the resolved position for a browsing session:
// automatic detection, manual override, persistence, and staleness refresh.
package location

import (
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// Position sources.
const (
	SourceNone     = "none"
	SourceDetected = "detected"
	SourceManual   = "manual"
)

// DefaultStaleAfter is how long a detected position is served before a
// background refresh is triggered. Manual selections never go stale.
const DefaultStaleAfter = 24 * time.Hour

// State is the resolved position context for a session. Label fields are
// best-effort and may be empty when geocoding was unavailable.
type State struct {
	Coords     *geo.Coordinates `cbor:"coords,omitempty" json:"coordinates,omitempty"`
	Label      string           `cbor:"label,omitempty" json:"label,omitempty"`
	City       string           `cbor:"city,omitempty" json:"city,omitempty"`
	Region     string           `cbor:"region,omitempty" json:"region,omitempty"`
	Country    string           `cbor:"country,omitempty" json:"country,omitempty"`
	Source     string           `cbor:"source" json:"source"`
	ResolvedAt time.Time        `cbor:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

// Resolved reports whether the state carries usable coordinates.
func (s *State) Resolved() bool {
	return s != nil && s.Coords != nil && (s.Source == SourceDetected || s.Source == SourceManual)
}

// Stale reports whether a detected position is old enough to warrant a
// silent background refresh. Manual selections are pinned by the user and
// never considered stale.
func (s *State) Stale(now time.Time, staleAfter time.Duration) bool {
	if !s.Resolved() || s.Source != SourceDetected {
		return false
	}
	return now.Sub(s.ResolvedAt) > staleAfter
}
