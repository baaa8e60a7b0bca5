// Package execution runs a planned workout as a live session. A pure reducer
// owns every state transition; the Engine serializes sensor, timer and user
// events into it on a single goroutine.
package execution

import (
	"time"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusPreparing  Status = "preparing"
	StatusCountdown  Status = "countdown"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusCompleting Status = "completing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Active reports whether a step is in progress.
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusPaused
}

// Terminal reports whether the session is over.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Toggles are athlete preferences for feedback.
type Toggles struct {
	Voice          bool `json:"voice"`
	Vibration      bool `json:"vibration"`
	MusicInterrupt bool `json:"music_interrupt"`
}

func DefaultToggles() Toggles {
	return Toggles{Voice: true, Vibration: true}
}

// CurrentStep is the live view of the active step. It is replaced, never
// edited, so a value handed out in a snapshot does not change underneath the
// reader.
type CurrentStep struct {
	Index int
	Step  workout.PlannedStep

	// Totals at the moment the step began.
	StartElapsedS  float64
	StartDistanceM float64

	ElapsedS           float64
	DistanceCoveredM   float64
	DistanceRemainingM float64
	RemainingS         float64
	ProgressPct        float64
	Complete           bool

	Zone workout.ZoneStatus
	Pace *float64
	HR   *int

	// IntervalNumber and TotalIntervals are zero unless the workout has
	// more than one work step and this is one of them.
	IntervalNumber int
	TotalIntervals int
}

// Sample is one entry of the durable session trace.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	ElapsedS  float64   `json:"elapsed_s"`
	StepIndex int       `json:"step_index"`
	Fix       *geo.Fix  `json:"fix,omitempty"`
	DistanceM float64   `json:"distance_m"`
	Pace      *float64  `json:"pace,omitempty"`
	HR        *int      `json:"hr,omitempty"`
}

// State is the session aggregate. Only Reduce produces new values.
type State struct {
	Status      Status
	Environment workout.Environment
	Equipment   string
	SessionID   string
	Workout     *workout.Structure

	GPSStatus  location.Status
	GPSMessage string
	HRStatus   heartrate.Status
	HRMessage  string

	StartedAt    time.Time
	PausedAt     *time.Time
	EndedAt      time.Time
	TotalPausedS float64

	TotalDistanceM float64
	TotalElapsedS  float64

	CurrentStep  *CurrentStep
	SmoothedPace *float64
	CurrentHR    *int
	Samples      []Sample

	Toggles            Toggles
	CountdownRemaining int
	LastPersistError   string

	// Last cumulative distance reported by the tracker. Deltas against it
	// feed TotalDistanceM so a tracker reset never lowers the total.
	trackerDistanceM   float64
	trackerBaselineSet bool
}

// NewState returns the idle aggregate.
func NewState() State {
	return State{
		Status:    StatusIdle,
		GPSStatus: location.StatusUnavailable,
		HRStatus:  heartrate.StatusDisconnected,
		Toggles:   DefaultToggles(),
	}
}
