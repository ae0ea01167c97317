// Package geo provides the great-circle distance and the bounding box used to
// prefilter nearby requests in SQL before exact distance checks.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius in kilometers.
const EarthRadiusKm = 6371.0

// kmPerDegree is a slight underestimate of one degree of latitude, which
// keeps the bounding box a superset of the exact circle.
const kmPerDegree = 111.0

// HaversineKm returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Box is a latitude/longitude rectangle in decimal degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a rectangle enclosing every point within radiusKm of
// (lat, lng). Latitude bounds are clamped to [-90, 90]. When the circle
// reaches a pole it contains every longitude, so the box spans [-180, 180].
func BoundingBox(lat, lng, radiusKm float64) Box {
	latDelta := radiusKm / kmPerDegree
	b := Box{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
	}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		b.MinLng, b.MaxLng = -180, 180
		return b
	}
	lngDelta := radiusKm / (kmPerDegree * math.Cos(lat*math.Pi/180))
	b.MinLng = lng - lngDelta
	b.MaxLng = lng + lngDelta
	return b
}

// WrapsLng reports whether the box crosses the antimeridian or spans every
// longitude, in which case a plain BETWEEN on longitude would be wrong or
// pointless.
func (b Box) WrapsLng() bool {
	return b.MinLng < -180 || b.MaxLng > 180 || b.MaxLng-b.MinLng >= 360
}

// Contains reports whether the point lies inside the box.
func (b Box) Contains(lat, lng float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	return b.WrapsLng() || (lng >= b.MinLng && lng <= b.MaxLng)
}

// ValidCoordinates reports whether lat and lng are within their legal ranges.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lng)
}
