package geo

import "strings"

// CachePrecision is the geohash precision used for reverse-geocode cache
// keys. Six characters cover roughly a 1.2 km x 0.6 km cell, so lookups for
// nearby coordinates share a cache entry.
const CachePrecision = 6

// validGeohashChars is a lookup map for valid base32 characters used in geohashes.
// Geohash uses a custom base32 alphabet excluding 'a', 'i', 'l', and 'o'.
var validGeohashChars = map[rune]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true,
	'5': true, '6': true, '7': true, '8': true, '9': true,
	'b': true, 'c': true, 'd': true, 'e': true, 'f': true,
	'g': true, 'h': true, 'j': true, 'k': true, 'm': true,
	'n': true, 'p': true, 'q': true, 'r': true, 's': true,
	't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,
}

// base32 is the geohash base32 alphabet.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// EncodeGeohash encodes coordinates into a geohash string with the given
// precision. Uses the standard geohash algorithm with base32 encoding.
func EncodeGeohash(c Coordinates, precision int) string {
	if precision < 1 {
		precision = CachePrecision
	}

	lat, lng := c.Lat, c.Lng
	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var geohash strings.Builder
	geohash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for geohash.Len() < precision {
		if even {
			// Longitude
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= (1 << (4 - bits))
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			// Latitude
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= (1 << (4 - bits))
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			geohash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return geohash.String()
}

// TruncateGeohash shortens a geohash string to the specified precision,
// normalizing to lowercase. Returns an empty string for empty input, invalid
// characters, or a precision of less than 1. Input already shorter than the
// precision is returned unchanged (lowercased).
func TruncateGeohash(input string, precision int) string {
	if input == "" {
		return ""
	}

	if precision < 1 {
		return ""
	}

	lower := strings.ToLower(input)

	for _, c := range lower {
		if !validGeohashChars[c] {
			return ""
		}
	}

	if len(lower) <= precision {
		return lower
	}

	return lower[:precision]
}
