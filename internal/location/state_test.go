package location

import (
	"context"
	"testing"
	"time"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

func TestStateResolved(t *testing.T) {
	coords := &geo.Coordinates{Lat: 12.9716, Lng: 77.5946}

	tests := []struct {
		name  string
		state *State
		want  bool
	}{
		{name: "nil state", state: nil, want: false},
		{name: "zero state", state: &State{}, want: false},
		{name: "source none", state: &State{Source: SourceNone}, want: false},
		{name: "detected without coords", state: &State{Source: SourceDetected}, want: false},
		{name: "detected with coords", state: &State{Source: SourceDetected, Coords: coords}, want: true},
		{name: "manual with coords", state: &State{Source: SourceManual, Coords: coords}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Resolved(); got != tt.want {
				t.Errorf("Resolved() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateStale(t *testing.T) {
	now := time.Now()
	coords := &geo.Coordinates{Lat: 12.9716, Lng: 77.5946}

	tests := []struct {
		name  string
		state *State
		want  bool
	}{
		{
			name:  "detected within window",
			state: &State{Source: SourceDetected, Coords: coords, ResolvedAt: now.Add(-23 * time.Hour)},
			want:  false,
		},
		{
			name:  "detected past window",
			state: &State{Source: SourceDetected, Coords: coords, ResolvedAt: now.Add(-25 * time.Hour)},
			want:  true,
		},
		{
			name:  "manual never stale",
			state: &State{Source: SourceManual, Coords: coords, ResolvedAt: now.Add(-90 * 24 * time.Hour)},
			want:  false,
		},
		{
			name:  "unresolved never stale",
			state: &State{Source: SourceNone},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Stale(now, DefaultStaleAfter); got != tt.want {
				t.Errorf("Stale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	original := &State{
		Coords:     &geo.Coordinates{Lat: 12.971623, Lng: 77.594562},
		Label:      "Bengaluru",
		City:       "Bengaluru",
		Source:     SourceDetected,
		ResolvedAt: time.Now(),
	}
	if err := store.Put(ctx, "sess-1", original); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Coords.Lat != original.Coords.Lat || loaded.Coords.Lng != original.Coords.Lng {
		t.Errorf("coordinates changed across round trip: %+v", loaded.Coords)
	}

	// Mutations on either side must not leak through the store.
	original.Coords.Lat = 0
	loaded.City = "changed"

	fresh, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Coords.Lat != 12.971623 {
		t.Error("caller mutation leaked into stored state")
	}
	if fresh.City != "Bengaluru" {
		t.Error("returned state shares memory with stored state")
	}
}

func TestInMemoryStoreMissing(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); err != ErrStateNotFound {
		t.Errorf("got %v, want ErrStateNotFound", err)
	}
	if err := store.Delete(context.Background(), "missing"); err != nil {
		t.Errorf("deleting a missing record must not error: %v", err)
	}
}
