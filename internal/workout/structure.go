// Package workout describes planned workouts and the pure calculations the
// execution engine runs against them: step progress and zone compliance.
package workout

import (
	"errors"
	"fmt"
)

// StepKind categorises a planned step.
type StepKind string

const (
	StepWarmup   StepKind = "warmup"
	StepWork     StepKind = "work"
	StepRecovery StepKind = "recovery"
	StepCooldown StepKind = "cooldown"
	StepRest     StepKind = "rest"
)

func (k StepKind) Valid() bool {
	switch k {
	case StepWarmup, StepWork, StepRecovery, StepCooldown, StepRest:
		return true
	}
	return false
}

// Range is a target band. For pace (seconds per mile) Lower is the faster
// bound; for heart rate it is the lower bpm.
type Range struct {
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
}

// Mid returns the midpoint of the range.
func (r Range) Mid() float64 {
	return (r.Lower + r.Upper) / 2
}

// PlannedStep is one segment of a workout. Exactly one of DurationS and
// DistanceM is expected to be non-zero.
type PlannedStep struct {
	Name      string   `yaml:"name,omitempty" json:"name,omitempty"`
	Kind      StepKind `yaml:"kind" json:"kind"`
	DurationS int      `yaml:"duration_s,omitempty" json:"duration_s,omitempty"`
	DistanceM float64  `yaml:"distance_m,omitempty" json:"distance_m,omitempty"`
	PaceRange *Range   `yaml:"pace_range,omitempty" json:"pace_range,omitempty"`
	HRRange   *Range   `yaml:"hr_range,omitempty" json:"hr_range,omitempty"`
}

// TimeBound reports whether the step ends on elapsed time. A step carrying
// both bounds is treated as time bound.
func (s PlannedStep) TimeBound() bool {
	return s.DurationS > 0
}

// DistanceBound reports whether the step ends on distance.
func (s PlannedStep) DistanceBound() bool {
	return !s.TimeBound() && s.DistanceM > 0
}

// Label returns the step name, falling back to its kind.
func (s PlannedStep) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

// Structure is the ordered step list of a planned workout.
type Structure struct {
	Name  string        `yaml:"name" json:"name"`
	Sport string        `yaml:"sport,omitempty" json:"sport,omitempty"`
	Steps []PlannedStep `yaml:"steps" json:"steps"`
}

var (
	ErrNoSteps      = errors.New("workout has no steps")
	ErrStepBound    = errors.New("step must set exactly one of duration_s or distance_m")
	ErrInvalidRange = errors.New("invalid target range")
	ErrUnknownKind  = errors.New("unknown step kind")
)

// Validate checks the structure the way the planned-workout source must
// before handing it to the engine.
func (w Structure) Validate() error {
	if len(w.Steps) == 0 {
		return ErrNoSteps
	}
	for i, step := range w.Steps {
		if !step.Kind.Valid() {
			return fmt.Errorf("step %d: %w: %q", i, ErrUnknownKind, step.Kind)
		}
		if (step.DurationS > 0) == (step.DistanceM > 0) {
			return fmt.Errorf("step %d: %w", i, ErrStepBound)
		}
		if step.DurationS < 0 || step.DistanceM < 0 {
			return fmt.Errorf("step %d: %w", i, ErrStepBound)
		}
		for name, r := range map[string]*Range{"pace_range": step.PaceRange, "hr_range": step.HRRange} {
			if r == nil {
				continue
			}
			if r.Lower <= 0 || r.Upper < r.Lower {
				return fmt.Errorf("step %d %s [%v, %v]: %w", i, name, r.Lower, r.Upper, ErrInvalidRange)
			}
		}
	}
	return nil
}

// IntervalCount returns the number of work steps.
func (w Structure) IntervalCount() int {
	count := 0
	for _, step := range w.Steps {
		if step.Kind == StepWork {
			count++
		}
	}
	return count
}

// IntervalNumber returns the 1-based ordinal of step idx among work steps and
// the total. ok is false unless the step is a work step in a workout with
// more than one of them.
func (w Structure) IntervalNumber(idx int) (number, total int, ok bool) {
	if idx < 0 || idx >= len(w.Steps) || w.Steps[idx].Kind != StepWork {
		return 0, 0, false
	}
	total = w.IntervalCount()
	if total < 2 {
		return 0, 0, false
	}
	for i := 0; i <= idx; i++ {
		if w.Steps[i].Kind == StepWork {
			number++
		}
	}
	return number, total, true
}

// TotalDurationS sums the time-bound steps.
func (w Structure) TotalDurationS() int {
	total := 0
	for _, step := range w.Steps {
		if step.TimeBound() {
			total += step.DurationS
		}
	}
	return total
}

// TotalDistanceM sums the distance-bound steps.
func (w Structure) TotalDistanceM() float64 {
	total := 0.0
	for _, step := range w.Steps {
		if step.DistanceBound() {
			total += step.DistanceM
		}
	}
	return total
}
