package execution

import (
	"time"

	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

// Snapshot is the state published after every applied action. The sample
// trace is left out; SampleCount and LastSample describe it.
type Snapshot struct {
	State
	SampleCount int
	LastSample  *Sample
}

func snapshotOf(s State) Snapshot {
	snap := Snapshot{State: s, SampleCount: len(s.Samples)}
	if n := len(s.Samples); n > 0 {
		last := s.Samples[n-1]
		snap.LastSample = &last
	}
	snap.State.Samples = nil
	return snap
}

type TransitionKind string

const (
	TransitionCountdown   TransitionKind = "countdown"
	TransitionStarted     TransitionKind = "started"
	TransitionStepChanged TransitionKind = "step_changed"
	TransitionZoneWarning TransitionKind = "zone_warning"
	TransitionPaused      TransitionKind = "paused"
	TransitionResumed     TransitionKind = "resumed"
	TransitionCompleted   TransitionKind = "completed"
	TransitionCancelled   TransitionKind = "cancelled"
)

// Transition is a one-way notification for feedback emitters.
type Transition struct {
	Kind TransitionKind
	At   time.Time
	// Step is set for step, zone and start transitions.
	Step *CurrentStep
	Zone workout.ZoneStatus
	// Countdown is the remaining seconds for countdown transitions.
	Countdown int
	Toggles   Toggles
}

// transitions lists what changed between prev and next, in the order a
// listener should hear about it.
func transitions(prev, next State, a Action, at time.Time) []Transition {
	var out []Transition
	emit := func(kind TransitionKind) *Transition {
		out = append(out, Transition{Kind: kind, At: at, Step: next.CurrentStep, Toggles: next.Toggles})
		return &out[len(out)-1]
	}

	if next.Status == StatusCountdown && (prev.Status != StatusCountdown || prev.CountdownRemaining != next.CountdownRemaining) {
		emit(TransitionCountdown).Countdown = next.CountdownRemaining
	}

	if next.Status == StatusRunning && (prev.Status == StatusPreparing || prev.Status == StatusCountdown) {
		emit(TransitionStarted)
	}
	if next.Status == StatusPaused && prev.Status == StatusRunning {
		emit(TransitionPaused)
	}
	if next.Status == StatusRunning && prev.Status == StatusPaused {
		emit(TransitionResumed)
	}

	if next.CurrentStep != nil {
		_, restarted := a.(RestartStep)
		if prev.CurrentStep == nil || prev.CurrentStep.Index != next.CurrentStep.Index || restarted {
			emit(TransitionStepChanged)
		} else if next.CurrentStep.Zone.Warning() && next.CurrentStep.Zone != prev.CurrentStep.Zone {
			emit(TransitionZoneWarning).Zone = next.CurrentStep.Zone
		}
	}

	if next.Status == StatusCompleting && prev.Status != StatusCompleting {
		emit(TransitionCompleted)
	}
	if next.Status == StatusCancelled && prev.Status != StatusCancelled {
		emit(TransitionCancelled)
	}
	return out
}
