package geo

import (
	"math"
)

// DecodePolyline decodes a Polyline5 string (Google's polyline algorithm,
// 1e-5 precision) into coordinates. Mapbox Directions returns route
// geometry in this format unless asked for GeoJSON.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
func DecodePolyline(encoded string) []Coordinates {
	if len(encoded) == 0 {
		return []Coordinates{}
	}

	count := len(encoded) / 4
	if count <= 0 {
		count = 1
	}
	points := make([]Coordinates, 0, count)

	index, lat, lng := 0, 0, 0
	for index < len(encoded) {
		var deltaLat, deltaLng int
		deltaLat, index = decodeSigned(encoded, index)
		deltaLng, index = decodeSigned(encoded, index)
		lat += deltaLat
		lng += deltaLng

		points = append(points, Coordinates{
			Latitude:  float64(lat) * 1e-5,
			Longitude: float64(lng) * 1e-5,
		})
	}

	return points
}

// decodeSigned reads one zigzag-encoded varint starting at index and
// returns the value and the index of the next unread byte.
func decodeSigned(encoded string, index int) (int, int) {
	result, shift := 0, 0
	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	return (result >> 1) ^ (-(result & 1)), index
}

// EncodePolyline encodes coordinates into a Polyline5 string.
func EncodePolyline(points []Coordinates) string {
	if len(points) == 0 {
		return ""
	}

	result := make([]byte, 0, len(points)*6)
	prevLat, prevLng := 0, 0
	for _, point := range points {
		lat := int(math.Round(point.Latitude * 1e5))
		lng := int(math.Round(point.Longitude * 1e5))

		result = append(result, encodeSigned(lat-prevLat)...)
		result = append(result, encodeSigned(lng-prevLng)...)

		prevLat = lat
		prevLng = lng
	}

	return string(result)
}

func encodeSigned(value int) []byte {
	s := value << 1
	if value < 0 {
		s = ^s
	}

	var buf []byte
	for s >= 0x20 {
		buf = append(buf, byte((0x20|(s&0x1f))+63))
		s >>= 5
	}
	buf = append(buf, byte(s+63))
	return buf
}
