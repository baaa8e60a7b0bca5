package workout

import "github.com/lowaak/smart-trainer/workout-runner/internal/geo"

// Environment is where the session takes place.
type Environment string

const (
	Indoor  Environment = "indoor"
	Outdoor Environment = "outdoor"
)

func (e Environment) Valid() bool {
	return e == Indoor || e == Outdoor
}

// DistanceSource yields the distance covered within a step. It is picked once
// per session so progress maths never re-checks the environment.
type DistanceSource interface {
	// CoveredM returns the distance covered in step after elapsedS seconds,
	// given measuredM metres reported by a real sensor.
	CoveredM(step PlannedStep, elapsedS, measuredM float64) float64
	// Estimated reports whether CoveredM is derived rather than measured.
	Estimated() bool
}

// MeasuredDistance trusts the sensor.
type MeasuredDistance struct{}

func (MeasuredDistance) CoveredM(_ PlannedStep, _ float64, measuredM float64) float64 {
	return measuredM
}

func (MeasuredDistance) Estimated() bool { return false }

// EstimatedDistance assumes the athlete holds the middle of the step's pace
// range. Steps without a pace range fall back to the measured value.
type EstimatedDistance struct{}

func (EstimatedDistance) CoveredM(step PlannedStep, elapsedS, measuredM float64) float64 {
	if step.PaceRange == nil || step.PaceRange.Mid() <= 0 {
		return measuredM
	}
	return elapsedS * (geo.MetersPerMile / step.PaceRange.Mid())
}

func (EstimatedDistance) Estimated() bool { return true }

// DistanceSourceFor returns the source matching env.
func DistanceSourceFor(env Environment) DistanceSource {
	if env == Indoor {
		return EstimatedDistance{}
	}
	return MeasuredDistance{}
}
