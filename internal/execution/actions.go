package execution

import (
	"fmt"
	"strings"
	"time"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

// Action is an input to Reduce.
type Action interface {
	isAction()
}

type SetPlannedWorkout struct {
	Workout workout.Structure
}

type SetEnvironment struct {
	Environment workout.Environment
	Equipment   string
}

type SetToggles struct {
	Toggles Toggles
}

type BeginCountdown struct {
	Seconds int
}

type CountdownTick struct{}

type StartWorkout struct {
	SessionID string
	At        time.Time
}

type Tick struct {
	At time.Time
}

type GPSUpdate struct {
	Fix         geo.Fix
	CumulativeM float64
	Pace        *float64
}

type GPSStatusChanged struct {
	Status  location.Status
	Message string
}

type HRUpdate struct {
	BPM int
}

type HRStatusChanged struct {
	Status  heartrate.Status
	Message string
}

type StepComplete struct {
	At time.Time
}

type SkipStep struct {
	At time.Time
}

type RestartStep struct{}

type Pause struct {
	At time.Time
}

type Resume struct {
	At time.Time
}

type EndWorkout struct {
	At time.Time
}

// PersistenceFailed and WorkoutComplete report the outcome of saving
// SessionID. Outcomes for any other session are rejected.
type PersistenceFailed struct {
	SessionID string
	Err       string
}

type WorkoutComplete struct {
	SessionID string
	At        time.Time
}

type DiscardWorkout struct{}

func (SetPlannedWorkout) isAction() {}
func (SetEnvironment) isAction()    {}
func (SetToggles) isAction()        {}
func (BeginCountdown) isAction()    {}
func (CountdownTick) isAction()     {}
func (StartWorkout) isAction()      {}
func (Tick) isAction()              {}
func (GPSUpdate) isAction()         {}
func (GPSStatusChanged) isAction()  {}
func (HRUpdate) isAction()          {}
func (HRStatusChanged) isAction()   {}
func (StepComplete) isAction()      {}
func (SkipStep) isAction()          {}
func (RestartStep) isAction()       {}
func (Pause) isAction()             {}
func (Resume) isAction()            {}
func (EndWorkout) isAction()        {}
func (PersistenceFailed) isAction() {}
func (WorkoutComplete) isAction()   {}
func (DiscardWorkout) isAction()    {}

func actionName(a Action) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", a), "execution.")
}
