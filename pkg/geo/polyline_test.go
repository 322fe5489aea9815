package geo

import (
	"testing"
)

// TestDecodePolyline tests the decoding of polyline strings using the Polyline5 format.
func TestDecodePolyline(t *testing.T) {
	testCases := []struct {
		name     string
		encoded  string
		expected []Coordinates
	}{
		{
			name:     "Empty string",
			encoded:  "",
			expected: []Coordinates{},
		},
		{
			name:    "Single point",
			encoded: "_p~iF~ps|U",
			expected: []Coordinates{
				{Latitude: 38.5, Longitude: -120.2},
			},
		},
		{
			name:    "Multiple points",
			encoded: "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			expected: []Coordinates{
				{Latitude: 38.5, Longitude: -120.2},
				{Latitude: 40.7, Longitude: -120.95},
				{Latitude: 43.252, Longitude: -126.453},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := DecodePolyline(tc.encoded)
			if len(result) != len(tc.expected) {
				t.Fatalf("Expected %d points, got %d", len(tc.expected), len(result))
			}
			for i, expected := range tc.expected {
				if !almostEqual(result[i].Latitude, expected.Latitude, 0.00001) ||
					!almostEqual(result[i].Longitude, expected.Longitude, 0.00001) {
					t.Errorf("Point %d: expected %v, got %v", i, expected, result[i])
				}
			}
		})
	}
}

func TestEncodePolyline(t *testing.T) {
	points := []Coordinates{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}
	if got, want := EncodePolyline(points), "_p~iF~ps|U_ulLnnqC_mqNvxq`@"; got != want {
		t.Errorf("EncodePolyline() = %s, want %s", got, want)
	}
	if got := EncodePolyline(nil); got != "" {
		t.Errorf("EncodePolyline(nil) = %q, want empty", got)
	}
}

func almostEqual(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
