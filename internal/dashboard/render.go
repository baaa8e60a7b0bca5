package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
	"github.com/lowaak/smart-trainer/workout-runner/internal/feedback"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

func zoneColor(z workout.ZoneStatus) string {
	switch z {
	case workout.ZoneIn:
		return "green"
	case workout.ZoneTooSlow, workout.ZoneTooFast:
		return "yellow"
	case workout.ZoneWayTooSlow, workout.ZoneWayTooFast:
		return "red"
	default:
		return "gray"
	}
}

func zoneLabel(z workout.ZoneStatus) string {
	switch z {
	case workout.ZoneIn:
		return "IN ZONE"
	case workout.ZoneTooSlow:
		return "TOO SLOW"
	case workout.ZoneTooFast:
		return "TOO FAST"
	case workout.ZoneWayTooSlow:
		return "WAY TOO SLOW"
	case workout.ZoneWayTooFast:
		return "WAY TOO FAST"
	default:
		return "--"
	}
}

// formatClock renders seconds as h:mm:ss or m:ss.
func formatClock(seconds float64) string {
	total := int(math.Max(0, math.Round(seconds)))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatDistance(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.2f km", meters/1000)
	}
	return fmt.Sprintf("%.0f m", meters)
}

func formatPacePtr(p *float64) string {
	if p == nil {
		return "--:--"
	}
	return feedback.FormatPace(*p)
}

func formatHRPtr(hr *int) string {
	if hr == nil {
		return "--"
	}
	return fmt.Sprintf("%d", *hr)
}

// renderStep is the live step panel.
func renderStep(snap execution.Snapshot) string {
	switch snap.Status {
	case execution.StatusIdle:
		return "\n  [gray]No workout loaded[white]"
	case execution.StatusPreparing:
		return "\n  [yellow]Ready[white]\n\n  Press [yellow]S[white] to start."
	case execution.StatusCountdown:
		return fmt.Sprintf("\n\n  [yellow]Starting in %d[white]", snap.CountdownRemaining)
	case execution.StatusCompleting:
		if snap.LastPersistError != "" {
			return fmt.Sprintf("\n  [red]Saving failed:[white] %s\n\n  Press [yellow]Y[white] to retry or [yellow]X[white] to discard.", snap.LastPersistError)
		}
		return "\n  [yellow]Saving session...[white]"
	case execution.StatusCompleted:
		return "\n  [green]Workout complete[white]"
	case execution.StatusCancelled:
		return "\n  [gray]Workout discarded[white]"
	}

	cs := snap.CurrentStep
	if cs == nil {
		return ""
	}
	var b strings.Builder
	title := cs.Step.Label()
	if cs.TotalIntervals > 0 {
		title = fmt.Sprintf("%s  (interval %d/%d)", title, cs.IntervalNumber, cs.TotalIntervals)
	}
	fmt.Fprintf(&b, "\n  [yellow]%s[white]  [gray]%s[white]\n\n", title, cs.Step.Kind)

	if cs.Step.TimeBound() {
		fmt.Fprintf(&b, "  Remaining:  [yellow]%s[white]\n", formatClock(cs.RemainingS))
	} else {
		fmt.Fprintf(&b, "  Remaining:  [yellow]%s[white]", formatDistance(cs.DistanceRemainingM))
		if snap.Environment == workout.Indoor {
			b.WriteString(" [gray](estimated)[white]")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "  Progress:   %s %.0f%%\n\n", progressBar(cs.ProgressPct, 20), cs.ProgressPct)

	fmt.Fprintf(&b, "  Pace:       [yellow]%s[white] /mi", formatPacePtr(cs.Pace))
	if r := cs.Step.PaceRange; r != nil {
		fmt.Fprintf(&b, "  [gray]target %s-%s[white]", feedback.FormatPace(r.Lower), feedback.FormatPace(r.Upper))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Heart rate: [yellow]%s[white] bpm", formatHRPtr(cs.HR))
	if r := cs.Step.HRRange; r != nil {
		fmt.Fprintf(&b, "  [gray]target %.0f-%.0f[white]", r.Lower, r.Upper)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  [%s]%s[white]", zoneColor(cs.Zone), zoneLabel(cs.Zone))
	if snap.Status == execution.StatusPaused {
		b.WriteString("   [yellow]PAUSED[white]")
	}
	return b.String()
}

func progressBar(pct float64, width int) string {
	filled := int(math.Round(pct / 100 * float64(width)))
	filled = max(0, min(width, filled))
	return "[green]" + strings.Repeat("#", filled) + "[gray]" + strings.Repeat("-", width-filled) + "[white]"
}

// renderSession is the totals panel.
func renderSession(snap execution.Snapshot) string {
	var b strings.Builder
	name := "--"
	steps := 0
	if snap.Workout != nil {
		name = snap.Workout.Name
		steps = len(snap.Workout.Steps)
	}
	fmt.Fprintf(&b, "\n  Workout:  [yellow]%s[white]\n", name)
	env := string(snap.Environment)
	if env == "" {
		env = "--"
	}
	if snap.Equipment != "" {
		env += " / " + snap.Equipment
	}
	fmt.Fprintf(&b, "  Where:    %s\n", env)
	if snap.CurrentStep != nil {
		fmt.Fprintf(&b, "  Step:     %d of %d\n", snap.CurrentStep.Index+1, steps)
	}
	fmt.Fprintf(&b, "  Elapsed:  %s\n", formatClock(snap.TotalElapsedS))
	fmt.Fprintf(&b, "  Distance: %s\n", formatDistance(snap.TotalDistanceM))
	if snap.TotalPausedS > 0 {
		fmt.Fprintf(&b, "  Paused:   %s\n", formatClock(snap.TotalPausedS))
	}
	fmt.Fprintf(&b, "  Samples:  %d\n", snap.SampleCount)
	if !snap.StartedAt.IsZero() {
		fmt.Fprintf(&b, "  Started:  %s\n", snap.StartedAt.Local().Format(time.Kitchen))
	}
	return b.String()
}

func gpsColor(s location.Status) string {
	switch s {
	case location.StatusLocked:
		return "green"
	case location.StatusAcquiring:
		return "yellow"
	case location.StatusError:
		return "red"
	default:
		return "gray"
	}
}

func hrColor(s heartrate.Status) string {
	switch s {
	case heartrate.StatusConnected:
		return "green"
	case heartrate.StatusConnecting:
		return "yellow"
	case heartrate.StatusError:
		return "red"
	default:
		return "gray"
	}
}

func onOff(v bool) string {
	if v {
		return "[green]on[white]"
	}
	return "[gray]off[white]"
}

// renderSensors is the sensor and preference panel.
func renderSensors(snap execution.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  GPS: [%s]%s[white]", gpsColor(snap.GPSStatus), snap.GPSStatus)
	if snap.GPSMessage != "" {
		fmt.Fprintf(&b, "  [gray]%s[white]", snap.GPSMessage)
	}
	fmt.Fprintf(&b, "\n  HR:  [%s]%s[white]", hrColor(snap.HRStatus), snap.HRStatus)
	if snap.HRMessage != "" {
		fmt.Fprintf(&b, "  [gray]%s[white]", snap.HRMessage)
	}
	fmt.Fprintf(&b, "\n\n  Voice %s  Vibration %s  Music interrupt %s",
		onOff(snap.Toggles.Voice), onOff(snap.Toggles.Vibration), onOff(snap.Toggles.MusicInterrupt))
	return b.String()
}

const controlsText = "[yellow]S[white] Start  [yellow]P[white] Pause/Resume  [yellow]N[white] Skip  [yellow]R[white] Restart step  [yellow]E[white] End  [yellow]X[white] Discard\n" +
	"[yellow]H[white] Reconnect HR  [yellow]Y[white] Retry save  [yellow]V[white]/[yellow]B[white]/[yellow]M[white] Voice/Vibration/Music  [yellow]Esc[white] Quit"

// stepLine is one entry of the plan list.
func stepLine(i int, s workout.PlannedStep) string {
	var bound string
	switch {
	case s.TimeBound():
		bound = formatClock(float64(s.DurationS))
	case s.DistanceBound():
		bound = formatDistance(s.DistanceM)
	}
	line := fmt.Sprintf("%2d. %-10s %-9s %s", i+1, s.Label(), s.Kind, bound)
	if r := s.PaceRange; r != nil {
		line += fmt.Sprintf(" @ %s-%s", feedback.FormatPace(r.Lower), feedback.FormatPace(r.Upper))
	}
	return line
}
