// Package location wraps a continuous position source with accuracy gating,
// distance accumulation and pace smoothing.
package location

import (
	"context"
	"errors"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
)

// PositionSource is the platform position stream.
type PositionSource interface {
	// Watch starts delivering fixes until stop is called or ctx ends. onError
	// reports platform failures; the watch may keep delivering afterwards.
	Watch(ctx context.Context, onPosition func(geo.Fix), onError func(error)) (stop func(), err error)
	// Probe checks access without starting a watch.
	Probe(ctx context.Context) error
}

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

// Message maps a source error to the text shown to the athlete.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Location access denied. Allow location access to record distance."
	case errors.Is(err, ErrPositionUnavailable):
		return "GPS position unavailable. Try moving to open sky."
	case errors.Is(err, ErrTimeout):
		return "Timed out waiting for a GPS fix."
	default:
		return "Location error: " + err.Error()
	}
}

// NoReceiver is the source for hosts without a position receiver. Every
// request fails with ErrPositionUnavailable.
type NoReceiver struct{}

var _ PositionSource = NoReceiver{}

func (NoReceiver) Watch(context.Context, func(geo.Fix), func(error)) (func(), error) {
	return nil, ErrPositionUnavailable
}

func (NoReceiver) Probe(context.Context) error {
	return ErrPositionUnavailable
}
