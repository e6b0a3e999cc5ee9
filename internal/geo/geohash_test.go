package geo

import "testing"

func TestTruncateGeohash(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		precision int
		want      string
	}{
		{
			name:      "truncate to cache precision",
			input:     "9q8yyk8yuv",
			precision: CachePrecision,
			want:      "9q8yyk",
		},
		{
			name:      "truncate to precision 4",
			input:     "9q8yyk8yuv",
			precision: 4,
			want:      "9q8y",
		},
		{
			name:      "input shorter than precision returned as is",
			input:     "9q8",
			precision: 6,
			want:      "9q8",
		},
		{
			name:      "input equal to precision returned as is",
			input:     "9q8yyk",
			precision: 6,
			want:      "9q8yyk",
		},
		{
			name:      "empty input returns empty",
			input:     "",
			precision: 6,
			want:      "",
		},
		{
			name:      "invalid character - letter a",
			input:     "9q8ayk",
			precision: 6,
			want:      "",
		},
		{
			name:      "invalid character - special char",
			input:     "9q8-yk",
			precision: 6,
			want:      "",
		},
		{
			name:      "uppercase input normalized to lowercase",
			input:     "9Q8YYK8YUV",
			precision: 6,
			want:      "9q8yyk",
		},
		{
			name:      "precision 0 returns empty",
			input:     "9q8yyk",
			precision: 0,
			want:      "",
		},
		{
			name:      "negative precision returns empty",
			input:     "9q8yyk",
			precision: -1,
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateGeohash(tt.input, tt.precision)
			if got != tt.want {
				t.Errorf("TruncateGeohash(%q, %d) = %q, want %q", tt.input, tt.precision, got, tt.want)
			}
		})
	}
}

func TestEncodeGeohash(t *testing.T) {
	tests := []struct {
		name      string
		coords    Coordinates
		precision int
		want      string
	}{
		{
			name:      "Seattle",
			coords:    Coordinates{Lat: 47.6062, Lng: -122.3321},
			precision: 6,
			want:      "c23nb6",
		},
		{
			name:      "Berlin",
			coords:    Coordinates{Lat: 52.5200, Lng: 13.4050},
			precision: 6,
			want:      "u33dc0",
		},
		{
			name:      "London",
			coords:    Coordinates{Lat: 51.5074, Lng: -0.1278},
			precision: 6,
			want:      "gcpvj0",
		},
		{
			name:      "precision 5",
			coords:    Coordinates{Lat: 47.6062, Lng: -122.3321},
			precision: 5,
			want:      "c23nb",
		},
		{
			name:      "non-positive precision uses cache precision",
			coords:    Coordinates{Lat: 47.6062, Lng: -122.3321},
			precision: 0,
			want:      "c23nb6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeGeohash(tt.coords, tt.precision)
			if got != tt.want {
				t.Errorf("EncodeGeohash(%v, %d) = %q, want %q", tt.coords, tt.precision, got, tt.want)
			}
		})
	}
}

func TestEncodeGeohashConsistentWithTruncate(t *testing.T) {
	coords := Coordinates{Lat: 51.5074, Lng: -0.1278}
	full := EncodeGeohash(coords, 9)
	if len(full) != 9 {
		t.Fatalf("expected 9-char geohash, got %q", full)
	}
	if got, want := TruncateGeohash(full, 6), EncodeGeohash(coords, 6); got != want {
		t.Errorf("truncated full geohash %q != directly encoded %q", got, want)
	}
}
