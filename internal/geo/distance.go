// Package geo holds the pure distance and pace maths used by the location
// tracker and the execution engine.
package geo

import (
	"math"
	"time"
)

const (
	EarthRadiusMeters = 6371000.0
	MetersPerMile     = 1609.34

	// MaxAccuracyMeters is the largest reported accuracy radius a fix may have
	// and still count towards distance.
	MaxAccuracyMeters = 50.0
	// MinMovementMeters is the GPS jitter floor between accepted fixes.
	MinMovementMeters = 2.5
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Fix is a single position report from a location source.
// AccuracyM <= 0 means the source did not report an accuracy radius.
type Fix struct {
	Coordinate
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	AltitudeM float64   `json:"altitude_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HasAccuracy reports whether the fix carries an accuracy radius.
func (f Fix) HasAccuracy() bool {
	return f.AccuracyM > 0
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// AcceptFix decides whether next counts as movement relative to prev, the
// last accepted fix (nil before the first one). It returns the distance to
// add when accepted. The first fix with usable accuracy is accepted with a
// zero delta so it becomes the baseline.
func AcceptFix(prev *Fix, next Fix) (float64, bool) {
	if next.HasAccuracy() && next.AccuracyM > MaxAccuracyMeters {
		return 0, false
	}
	if prev == nil {
		return 0, true
	}
	delta := DistanceMeters(prev.Coordinate, next.Coordinate)
	if delta < MinMovementMeters {
		return 0, false
	}
	return delta, true
}

// Offset moves c by northM metres along its meridian and eastM metres along
// its parallel. It is the flat-earth inverse of DistanceMeters and is only
// accurate for short hops.
func Offset(c Coordinate, northM, eastM float64) Coordinate {
	dLat := northM / EarthRadiusMeters * 180 / math.Pi
	dLng := eastM / (EarthRadiusMeters * math.Cos(c.Lat*math.Pi/180)) * 180 / math.Pi
	return Coordinate{Lat: c.Lat + dLat, Lng: c.Lng + dLng}
}
