package feedback

import (
	"fmt"
	"math"
	"strings"

	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

// FormatPace renders seconds per mile as m:ss.
func FormatPace(secondsPerMile float64) string {
	total := int(math.Round(secondsPerMile))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func spokenDuration(seconds int) string {
	m, s := seconds/60, seconds%60
	switch {
	case m == 0:
		return plural(s, "second")
	case s == 0:
		return plural(m, "minute")
	default:
		return plural(m, "minute") + " " + plural(s, "second")
	}
}

func spokenDistance(meters float64) string {
	if meters >= 1000 && math.Mod(meters, 100) == 0 {
		return fmt.Sprintf("%g kilometers", meters/1000)
	}
	return fmt.Sprintf("%.0f meters", meters)
}

// StepAnnouncement describes the step the athlete has just started.
func StepAnnouncement(cs *execution.CurrentStep) string {
	if cs == nil {
		return ""
	}
	var parts []string
	if cs.TotalIntervals > 0 {
		parts = append(parts, fmt.Sprintf("Interval %d of %d", cs.IntervalNumber, cs.TotalIntervals))
	} else {
		parts = append(parts, cs.Step.Label())
	}

	switch {
	case cs.Step.TimeBound():
		parts = append(parts, spokenDuration(cs.Step.DurationS))
	case cs.Step.DistanceBound():
		parts = append(parts, spokenDistance(cs.Step.DistanceM))
	}
	if r := cs.Step.PaceRange; r != nil {
		parts = append(parts, fmt.Sprintf("pace %s to %s", FormatPace(r.Lower), FormatPace(r.Upper)))
	}
	if r := cs.Step.HRRange; r != nil {
		parts = append(parts, fmt.Sprintf("heart rate %.0f to %.0f", r.Lower, r.Upper))
	}
	return strings.Join(parts, ", ")
}

// ZonePrompt is the correction spoken for a zone warning.
func ZonePrompt(z workout.ZoneStatus) string {
	switch z {
	case workout.ZoneTooSlow:
		return "Pick it up a little"
	case workout.ZoneWayTooSlow:
		return "Speed up"
	case workout.ZoneTooFast:
		return "Ease off a little"
	case workout.ZoneWayTooFast:
		return "Slow down"
	default:
		return ""
	}
}

// Prompt returns what should be said for tr, or "" for nothing.
func Prompt(tr execution.Transition) string {
	switch tr.Kind {
	case execution.TransitionCountdown:
		if tr.Countdown <= 0 {
			return "Go"
		}
		return fmt.Sprintf("%d", tr.Countdown)
	case execution.TransitionStepChanged:
		return StepAnnouncement(tr.Step)
	case execution.TransitionZoneWarning:
		return ZonePrompt(tr.Zone)
	case execution.TransitionPaused:
		return "Workout paused"
	case execution.TransitionResumed:
		return "Workout resumed"
	case execution.TransitionCompleted:
		return "Workout complete"
	case execution.TransitionCancelled:
		return "Workout discarded"
	default:
		return ""
	}
}

// PulseFor returns the haptic pattern for tr and whether there is one.
func PulseFor(tr execution.Transition) (Pattern, bool) {
	switch tr.Kind {
	case execution.TransitionCountdown, execution.TransitionPaused, execution.TransitionResumed:
		return PatternShort, true
	case execution.TransitionStepChanged, execution.TransitionCompleted:
		return PatternDouble, true
	case execution.TransitionZoneWarning:
		return PatternLong, true
	default:
		return 0, false
	}
}
