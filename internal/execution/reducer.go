package execution

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyWorkout      = errors.New("planned workout has no steps")
	ErrEnvironmentNotSet = errors.New("environment not set")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrStaleSession      = errors.New("save result for another session")
)

func invalid(s State, a Action) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, actionName(a), s.Status)
}

func staleSave(s State, sessionID string) error {
	return fmt.Errorf("%w: got %q, current %q", ErrStaleSession, sessionID, s.SessionID)
}

// Reduce applies a to s and returns the next state. It never mutates s. A
// rejected action returns s unchanged with an error; actions that are simply
// not applicable in the current status (ticks, GPS fixes) return s and nil.
func Reduce(s State, a Action) (State, error) {
	switch a := a.(type) {
	case SetPlannedWorkout:
		return reducePlannedWorkout(s, a)
	case SetEnvironment:
		return reduceEnvironment(s, a)
	case SetToggles:
		s.Toggles = a.Toggles
		return s, nil
	case BeginCountdown:
		return reduceBeginCountdown(s, a)
	case CountdownTick:
		if s.Status != StatusCountdown || s.CountdownRemaining <= 0 {
			return s, nil
		}
		s.CountdownRemaining--
		return s, nil
	case StartWorkout:
		return reduceStart(s, a)
	case Tick:
		return reduceTick(s, a)
	case GPSUpdate:
		return reduceGPS(s, a)
	case GPSStatusChanged:
		s.GPSStatus = a.Status
		s.GPSMessage = a.Message
		return s, nil
	case HRUpdate:
		return reduceHR(s, a)
	case HRStatusChanged:
		return reduceHRStatus(s, a)
	case StepComplete:
		if s.Status != StatusRunning || s.CurrentStep == nil {
			return s, invalid(s, a)
		}
		return advance(s, a.At), nil
	case SkipStep:
		if !s.Status.Active() || s.CurrentStep == nil {
			return s, invalid(s, a)
		}
		return advance(s, a.At), nil
	case RestartStep:
		if !s.Status.Active() || s.CurrentStep == nil {
			return s, invalid(s, a)
		}
		s.SmoothedPace = nil
		s.trackerBaselineSet = false
		beginStep(&s, s.CurrentStep.Index)
		return s, nil
	case Pause:
		if s.Status != StatusRunning {
			return s, invalid(s, a)
		}
		at := a.At
		s.Status = StatusPaused
		s.PausedAt = &at
		return s, nil
	case Resume:
		if s.Status != StatusPaused {
			return s, invalid(s, a)
		}
		foldPause(&s, a.At)
		s.Status = StatusRunning
		// Movement while paused does not count.
		s.trackerBaselineSet = false
		return s, nil
	case EndWorkout:
		if !s.Status.Active() {
			return s, invalid(s, a)
		}
		finish(&s, a.At)
		return s, nil
	case PersistenceFailed:
		if s.Status != StatusCompleting {
			return s, invalid(s, a)
		}
		if a.SessionID != s.SessionID {
			return s, staleSave(s, a.SessionID)
		}
		s.LastPersistError = a.Err
		return s, nil
	case WorkoutComplete:
		if s.Status != StatusCompleting {
			return s, invalid(s, a)
		}
		if a.SessionID != s.SessionID {
			return s, staleSave(s, a.SessionID)
		}
		s.Status = StatusCompleted
		s.LastPersistError = ""
		return s, nil
	case DiscardWorkout:
		next := NewState()
		next.Status = StatusCancelled
		next.Toggles = s.Toggles
		next.GPSStatus, next.GPSMessage = s.GPSStatus, s.GPSMessage
		next.HRStatus, next.HRMessage = s.HRStatus, s.HRMessage
		return next, nil
	default:
		return s, fmt.Errorf("%w: unknown action %T", ErrInvalidArgument, a)
	}
}

func reducePlannedWorkout(s State, a SetPlannedWorkout) (State, error) {
	switch s.Status {
	case StatusIdle, StatusPreparing, StatusCompleted, StatusCancelled:
	default:
		return s, invalid(s, a)
	}
	next := NewState()
	next.Status = StatusPreparing
	next.Environment = s.Environment
	next.Equipment = s.Equipment
	next.Toggles = s.Toggles
	next.GPSStatus, next.GPSMessage = s.GPSStatus, s.GPSMessage
	next.HRStatus, next.HRMessage = s.HRStatus, s.HRMessage
	next.CurrentHR = s.CurrentHR
	w := a.Workout
	w.Steps = append([]workout.PlannedStep(nil), a.Workout.Steps...)
	next.Workout = &w
	return next, nil
}

func reduceEnvironment(s State, a SetEnvironment) (State, error) {
	switch s.Status {
	case StatusIdle, StatusPreparing, StatusCountdown:
	default:
		return s, invalid(s, a)
	}
	if !a.Environment.Valid() {
		return s, fmt.Errorf("%w: environment %q", ErrInvalidArgument, a.Environment)
	}
	s.Environment = a.Environment
	s.Equipment = a.Equipment
	if a.Environment == workout.Outdoor {
		if s.GPSStatus != location.StatusLocked {
			s.GPSStatus = location.StatusAcquiring
			s.GPSMessage = ""
		}
	} else {
		s.GPSStatus = location.StatusUnavailable
		s.GPSMessage = ""
	}
	return s, nil
}

func reduceBeginCountdown(s State, a BeginCountdown) (State, error) {
	if s.Status != StatusPreparing {
		return s, invalid(s, a)
	}
	if err := checkStartable(s); err != nil {
		return s, err
	}
	if a.Seconds <= 0 {
		return s, fmt.Errorf("%w: countdown of %d seconds", ErrInvalidArgument, a.Seconds)
	}
	s.Status = StatusCountdown
	s.CountdownRemaining = a.Seconds
	return s, nil
}

func checkStartable(s State) error {
	if s.Workout == nil || len(s.Workout.Steps) == 0 {
		return ErrEmptyWorkout
	}
	if !s.Environment.Valid() {
		return ErrEnvironmentNotSet
	}
	return nil
}

func reduceStart(s State, a StartWorkout) (State, error) {
	if s.Status != StatusPreparing && s.Status != StatusCountdown {
		return s, invalid(s, a)
	}
	if err := checkStartable(s); err != nil {
		return s, err
	}
	s.Status = StatusRunning
	s.SessionID = a.SessionID
	s.StartedAt = a.At
	s.PausedAt = nil
	s.EndedAt = time.Time{}
	s.TotalPausedS = 0
	s.TotalElapsedS = 0
	s.TotalDistanceM = 0
	s.Samples = nil
	s.SmoothedPace = nil
	s.CountdownRemaining = 0
	s.LastPersistError = ""
	s.trackerDistanceM = 0
	s.trackerBaselineSet = false
	beginStep(&s, 0)
	return s, nil
}

func reduceTick(s State, a Tick) (State, error) {
	if s.Status != StatusRunning || s.CurrentStep == nil {
		return s, nil
	}
	elapsed := a.At.Sub(s.StartedAt).Seconds() - s.TotalPausedS
	s.TotalElapsedS = math.Max(s.TotalElapsedS, elapsed)
	refreshStep(&s)
	if s.Environment == workout.Indoor {
		appendSample(&s, a.At, nil)
	}
	return s, nil
}

func reduceGPS(s State, a GPSUpdate) (State, error) {
	if s.Status != StatusRunning || s.CurrentStep == nil || s.Environment != workout.Outdoor {
		return s, nil
	}
	if n := len(s.Samples); n > 0 && a.Fix.Timestamp.Before(s.Samples[n-1].Timestamp) {
		return s, nil
	}

	delta := 0.0
	if s.trackerBaselineSet {
		delta = a.CumulativeM - s.trackerDistanceM
		if delta < 0 {
			// tracker was reset since the last update
			delta = a.CumulativeM
		}
	}
	s.trackerDistanceM = a.CumulativeM
	s.trackerBaselineSet = true
	s.TotalDistanceM += delta

	if a.Pace != nil {
		pace := *a.Pace
		s.SmoothedPace = &pace
	} else {
		s.SmoothedPace = nil
	}

	refreshStep(&s)
	fix := a.Fix
	appendSample(&s, fix.Timestamp, &fix)
	return s, nil
}

func reduceHR(s State, a HRUpdate) (State, error) {
	if s.Status.Terminal() || !heartrate.ValidBPM(a.BPM) {
		return s, nil
	}
	bpm := a.BPM
	s.CurrentHR = &bpm
	rezone(&s)
	return s, nil
}

func reduceHRStatus(s State, a HRStatusChanged) (State, error) {
	s.HRStatus = a.Status
	s.HRMessage = a.Message
	if a.Status != heartrate.StatusConnected && s.CurrentHR != nil {
		s.CurrentHR = nil
		rezone(&s)
	}
	return s, nil
}

// rezone refreshes the live readings and zone of the current step.
func rezone(s *State) {
	if s.CurrentStep == nil {
		return
	}
	cs := *s.CurrentStep
	cs.Pace = s.SmoothedPace
	cs.HR = s.CurrentHR
	cs.Zone = workout.DeriveZone(cs.Step, cs.Pace, cs.HR)
	s.CurrentStep = &cs
}

// beginStep installs a fresh CurrentStep for idx, baselined at the current
// totals.
func beginStep(s *State, idx int) {
	cs := &CurrentStep{
		Index:          idx,
		Step:           s.Workout.Steps[idx],
		StartElapsedS:  s.TotalElapsedS,
		StartDistanceM: s.TotalDistanceM,
		Zone:           workout.ZoneUnknown,
	}
	if n, total, ok := s.Workout.IntervalNumber(idx); ok {
		cs.IntervalNumber = n
		cs.TotalIntervals = total
	}
	s.CurrentStep = cs
	refreshStep(s)
}

func refreshStep(s *State) {
	cs := *s.CurrentStep
	cs.ElapsedS = math.Max(0, s.TotalElapsedS-cs.StartElapsedS)
	measured := math.Max(0, s.TotalDistanceM-cs.StartDistanceM)

	source := workout.DistanceSourceFor(s.Environment)
	p := workout.CalculateProgress(cs.Step, cs.ElapsedS, measured, source)
	if source.Estimated() {
		s.TotalDistanceM = cs.StartDistanceM + p.CoveredM
	}

	cs.DistanceCoveredM = p.CoveredM
	cs.DistanceRemainingM = p.RemainingM
	cs.RemainingS = p.RemainingS
	cs.ProgressPct = p.Pct
	cs.Complete = p.Complete
	cs.Pace = s.SmoothedPace
	cs.HR = s.CurrentHR
	cs.Zone = workout.DeriveZone(cs.Step, cs.Pace, cs.HR)
	s.CurrentStep = &cs
}

func advance(s State, at time.Time) State {
	next := s.CurrentStep.Index + 1
	if next >= len(s.Workout.Steps) {
		finish(&s, at)
		return s
	}
	beginStep(&s, next)
	return s
}

func finish(s *State, at time.Time) {
	if s.Status == StatusPaused {
		foldPause(s, at)
	}
	elapsed := at.Sub(s.StartedAt).Seconds() - s.TotalPausedS
	s.TotalElapsedS = math.Max(s.TotalElapsedS, elapsed)
	s.Status = StatusCompleting
	s.CurrentStep = nil
	s.EndedAt = at
}

func foldPause(s *State, at time.Time) {
	if s.PausedAt != nil {
		s.TotalPausedS += math.Max(0, at.Sub(*s.PausedAt).Seconds())
	}
	s.PausedAt = nil
}

func appendSample(s *State, at time.Time, fix *geo.Fix) {
	if n := len(s.Samples); n > 0 && at.Before(s.Samples[n-1].Timestamp) {
		return
	}
	sample := Sample{
		Timestamp: at,
		ElapsedS:  s.TotalElapsedS,
		DistanceM: s.TotalDistanceM,
		Pace:      s.SmoothedPace,
		HR:        s.CurrentHR,
		Fix:       fix,
	}
	if s.CurrentStep != nil {
		sample.StepIndex = s.CurrentStep.Index
	}
	s.Samples = append(s.Samples, sample)
}
