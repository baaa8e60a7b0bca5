package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

var t0 = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func pace(v float64) *float64 { return &v }

func twoSteps() workout.Structure {
	return workout.Structure{
		Name: "two",
		Steps: []workout.PlannedStep{
			{Name: "Rep", Kind: workout.StepWork, DistanceM: 400, PaceRange: &workout.Range{Lower: 390, Upper: 420}},
			{Name: "Jog", Kind: workout.StepRecovery, DurationS: 120},
		},
	}
}

func mustReduce(t *testing.T, s State, actions ...Action) State {
	t.Helper()
	for _, a := range actions {
		var err error
		s, err = Reduce(s, a)
		require.NoError(t, err, "action %s", actionName(a))
	}
	return s
}

func running(t *testing.T, w workout.Structure, env workout.Environment) State {
	t.Helper()
	return mustReduce(t, NewState(),
		SetPlannedWorkout{Workout: w},
		SetEnvironment{Environment: env},
		StartWorkout{SessionID: "session-1", At: t0},
	)
}

func TestReduce_CountdownThenStart(t *testing.T) {
	s := mustReduce(t, NewState(),
		SetPlannedWorkout{Workout: twoSteps()},
		SetEnvironment{Environment: workout.Indoor, Equipment: "treadmill"},
		BeginCountdown{Seconds: 3},
	)
	assert.Equal(t, StatusCountdown, s.Status)
	assert.Equal(t, 3, s.CountdownRemaining)

	s = mustReduce(t, s, CountdownTick{}, CountdownTick{}, CountdownTick{}, CountdownTick{})
	assert.Equal(t, 0, s.CountdownRemaining)
	assert.Equal(t, StatusCountdown, s.Status)

	s = mustReduce(t, s, StartWorkout{SessionID: "abc", At: t0})
	assert.Equal(t, StatusRunning, s.Status)
	assert.Equal(t, "abc", s.SessionID)
	assert.Equal(t, "treadmill", s.Equipment)
	require.NotNil(t, s.CurrentStep)
	assert.Equal(t, 0, s.CurrentStep.Index)
	assert.Equal(t, workout.ZoneUnknown, s.CurrentStep.Zone)
}

func TestReduce_RejectsInvalidTransitions(t *testing.T) {
	idle := NewState()
	preparing := mustReduce(t, idle, SetPlannedWorkout{Workout: twoSteps()}, SetEnvironment{Environment: workout.Indoor})
	run := running(t, twoSteps(), workout.Indoor)
	paused := mustReduce(t, run, Pause{At: at(10)})

	tests := []struct {
		name   string
		state  State
		action Action
	}{
		{"pause while idle", idle, Pause{At: t0}},
		{"resume while running", run, Resume{At: t0}},
		{"step complete while paused", paused, StepComplete{At: t0}},
		{"countdown while idle", idle, BeginCountdown{Seconds: 3}},
		{"start while running", run, StartWorkout{SessionID: "x", At: t0}},
		{"complete while running", run, WorkoutComplete{At: t0}},
		{"persist failure while preparing", preparing, PersistenceFailed{Err: "boom"}},
		{"end while preparing", preparing, EndWorkout{At: t0}},
		{"skip while idle", idle, SkipStep{At: t0}},
		{"new workout while running", run, SetPlannedWorkout{Workout: twoSteps()}},
		{"environment while paused", paused, SetEnvironment{Environment: workout.Outdoor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Reduce(tt.state, tt.action)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.state, next)
		})
	}
}

func TestReduce_StartPreconditions(t *testing.T) {
	noEnv := mustReduce(t, NewState(), SetPlannedWorkout{Workout: twoSteps()})
	_, err := Reduce(noEnv, StartWorkout{SessionID: "x", At: t0})
	assert.ErrorIs(t, err, ErrEnvironmentNotSet)
	_, err = Reduce(noEnv, BeginCountdown{Seconds: 3})
	assert.ErrorIs(t, err, ErrEnvironmentNotSet)

	empty := mustReduce(t, NewState(),
		SetPlannedWorkout{Workout: workout.Structure{Name: "empty"}},
		SetEnvironment{Environment: workout.Indoor},
	)
	_, err = Reduce(empty, StartWorkout{SessionID: "x", At: t0})
	assert.ErrorIs(t, err, ErrEmptyWorkout)

	ready := mustReduce(t, NewState(), SetPlannedWorkout{Workout: twoSteps()}, SetEnvironment{Environment: workout.Indoor})
	_, err = Reduce(ready, BeginCountdown{Seconds: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Reduce(ready, SetEnvironment{Environment: "moon"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReduce_IndoorEstimatedDistance(t *testing.T) {
	w := workout.Structure{Steps: []workout.PlannedStep{
		{Kind: workout.StepWork, DistanceM: 1000, PaceRange: &workout.Range{Lower: 480, Upper: 540}},
	}}
	s := running(t, w, workout.Indoor)
	s = mustReduce(t, s, Tick{At: at(255)})

	require.NotNil(t, s.CurrentStep)
	assert.InDelta(t, 804.67, s.CurrentStep.DistanceCoveredM, 0.05)
	assert.InDelta(t, 80.47, s.CurrentStep.ProgressPct, 0.05)
	assert.InDelta(t, 804.67, s.TotalDistanceM, 0.05)
	assert.False(t, s.CurrentStep.Complete)
	assert.Len(t, s.Samples, 1)
}

func TestReduce_PauseIsLossless(t *testing.T) {
	s := running(t, twoSteps(), workout.Indoor)
	s = mustReduce(t, s, Tick{At: at(60)})
	assert.InDelta(t, 60, s.TotalElapsedS, 1e-9)

	s = mustReduce(t, s, Pause{At: at(60)}, Tick{At: at(80)})
	assert.Equal(t, StatusPaused, s.Status)
	assert.InDelta(t, 60, s.TotalElapsedS, 1e-9)

	s = mustReduce(t, s, Resume{At: at(90)}, Tick{At: at(100)})
	assert.Equal(t, StatusRunning, s.Status)
	assert.Nil(t, s.PausedAt)
	assert.InDelta(t, 30, s.TotalPausedS, 1e-9)
	assert.InDelta(t, 70, s.TotalElapsedS, 1e-9)
}

func TestReduce_ElapsedNeverDecreases(t *testing.T) {
	s := running(t, twoSteps(), workout.Indoor)
	s = mustReduce(t, s, Tick{At: at(30)}, Tick{At: at(20)})
	assert.InDelta(t, 30, s.TotalElapsedS, 1e-9)
}

func gps(cum float64, seconds float64, p *float64) GPSUpdate {
	return GPSUpdate{
		Fix:         geo.Fix{Coordinate: geo.Offset(geo.Coordinate{Lat: 51.5, Lng: -0.12}, cum, 0), Timestamp: at(seconds)},
		CumulativeM: cum,
		Pace:        p,
	}
}

func TestReduce_GPSAccumulatesDeltas(t *testing.T) {
	s := running(t, twoSteps(), workout.Outdoor)
	s = mustReduce(t, s, gps(40, 1, nil))
	assert.Zero(t, s.TotalDistanceM, "first update after start only sets the baseline")

	s = mustReduce(t, s, gps(140, 26, pace(400)))
	assert.InDelta(t, 100, s.TotalDistanceM, 1e-9)
	assert.InDelta(t, 100, s.CurrentStep.DistanceCoveredM, 1e-9)
	assert.Equal(t, workout.ZoneIn, s.CurrentStep.Zone)
	assert.Len(t, s.Samples, 2)

	s = mustReduce(t, s, Pause{At: at(30)}, Resume{At: at(60)}, gps(200, 61, pace(400)))
	assert.InDelta(t, 100, s.TotalDistanceM, 1e-9, "movement during the pause is dropped")

	s = mustReduce(t, s, gps(210, 64, pace(400)))
	assert.InDelta(t, 110, s.TotalDistanceM, 1e-9)
}

func TestReduce_GPSIgnoredIndoorsAndOutOfOrder(t *testing.T) {
	indoor := running(t, twoSteps(), workout.Indoor)
	next := mustReduce(t, indoor, gps(100, 5, nil))
	assert.Equal(t, indoor, next)

	s := running(t, twoSteps(), workout.Outdoor)
	s = mustReduce(t, s, gps(0, 10, nil), gps(50, 20, nil))
	stale := mustReduce(t, s, gps(80, 15, nil))
	assert.Equal(t, s, stale)
}

func TestReduce_StepCompletesAtDistance(t *testing.T) {
	s := running(t, twoSteps(), workout.Outdoor)
	s = mustReduce(t, s, gps(0, 0, nil), gps(399, 100, pace(400)))
	assert.False(t, s.CurrentStep.Complete)

	s = mustReduce(t, s, gps(400, 101, pace(400)))
	assert.True(t, s.CurrentStep.Complete)

	s = mustReduce(t, s, StepComplete{At: at(101)})
	require.NotNil(t, s.CurrentStep)
	assert.Equal(t, 1, s.CurrentStep.Index)
	assert.InDelta(t, 400, s.CurrentStep.StartDistanceM, 1e-9)
	assert.InDelta(t, 0, s.CurrentStep.DistanceCoveredM, 1e-9)
}

func TestReduce_RestartStepRebaselines(t *testing.T) {
	s := running(t, twoSteps(), workout.Outdoor)
	s = mustReduce(t, s, gps(0, 0, nil), gps(150, 40, pace(400)))
	s = mustReduce(t, s, RestartStep{})
	assert.Nil(t, s.SmoothedPace)
	assert.Equal(t, 0, s.CurrentStep.Index)
	assert.InDelta(t, 150, s.CurrentStep.StartDistanceM, 1e-9)

	// tracker restarts from zero after a restart
	s = mustReduce(t, s, gps(0, 41, nil), gps(20, 46, nil))
	assert.InDelta(t, 170, s.TotalDistanceM, 1e-9)
	assert.InDelta(t, 20, s.CurrentStep.DistanceCoveredM, 1e-9)
}

func TestReduce_IntervalNumbering(t *testing.T) {
	w, ok := workout.Builtin("6x800")
	require.True(t, ok)
	s := running(t, w, workout.Outdoor)

	var numbered [][2]int
	for s.CurrentStep != nil {
		cs := s.CurrentStep
		if cs.Step.Kind == workout.StepWork {
			numbered = append(numbered, [2]int{cs.IntervalNumber, cs.TotalIntervals})
		} else {
			assert.Zero(t, cs.IntervalNumber)
			assert.Zero(t, cs.TotalIntervals)
		}
		s = mustReduce(t, s, SkipStep{At: t0})
	}
	assert.Equal(t, [][2]int{{1, 6}, {2, 6}, {3, 6}, {4, 6}, {5, 6}, {6, 6}}, numbered)
	assert.Equal(t, StatusCompleting, s.Status)
}

func TestReduce_HeartRate(t *testing.T) {
	w := workout.Structure{Steps: []workout.PlannedStep{
		{Kind: workout.StepWork, DurationS: 600, PaceRange: &workout.Range{Lower: 390, Upper: 420}, HRRange: &workout.Range{Lower: 150, Upper: 160}},
	}}
	s := running(t, w, workout.Outdoor)
	s = mustReduce(t, s, gps(0, 0, nil), gps(100, 25, pace(400)))
	assert.Equal(t, workout.ZoneIn, s.CurrentStep.Zone)

	s = mustReduce(t, s, HRStatusChanged{Status: heartrate.StatusConnected}, HRUpdate{BPM: 175})
	require.NotNil(t, s.CurrentHR)
	assert.Equal(t, 175, *s.CurrentHR)
	assert.Equal(t, workout.ZoneWayTooFast, s.CurrentStep.Zone)

	s = mustReduce(t, s, HRUpdate{BPM: 400})
	assert.Equal(t, 175, *s.CurrentHR)

	s = mustReduce(t, s, HRStatusChanged{Status: heartrate.StatusDisconnected, Message: "Heart rate sensor disconnected"})
	assert.Nil(t, s.CurrentHR)
	assert.Nil(t, s.CurrentStep.HR)
	assert.Equal(t, workout.ZoneIn, s.CurrentStep.Zone, "falls back to pace")
	assert.Equal(t, "Heart rate sensor disconnected", s.HRMessage)
}

func TestReduce_EndFromPausedFoldsPause(t *testing.T) {
	s := running(t, twoSteps(), workout.Indoor)
	s = mustReduce(t, s, Tick{At: at(50)}, Pause{At: at(50)}, EndWorkout{At: at(80)})
	assert.Equal(t, StatusCompleting, s.Status)
	assert.Nil(t, s.CurrentStep)
	assert.Nil(t, s.PausedAt)
	assert.InDelta(t, 30, s.TotalPausedS, 1e-9)
	assert.Equal(t, at(80), s.EndedAt)

	failed := mustReduce(t, s, PersistenceFailed{SessionID: "session-1", Err: "disk full"})
	assert.Equal(t, StatusCompleting, failed.Status)
	assert.Equal(t, "disk full", failed.LastPersistError)

	done := mustReduce(t, failed, WorkoutComplete{SessionID: "session-1", At: at(81)})
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Empty(t, done.LastPersistError)

	rec := RecordOf(s)
	assert.Equal(t, "session-1", rec.SessionID)
	assert.Equal(t, "two", rec.Workout.Name)
	assert.Len(t, rec.Samples, 1)
}

func TestReduce_SaveResultForOtherSessionRejected(t *testing.T) {
	s := running(t, twoSteps(), workout.Indoor)
	s = mustReduce(t, s, EndWorkout{At: at(40)})

	for _, a := range []Action{
		WorkoutComplete{SessionID: "session-0", At: at(41)},
		PersistenceFailed{SessionID: "session-0", Err: "disk full"},
	} {
		next, err := Reduce(s, a)
		assert.ErrorIs(t, err, ErrStaleSession)
		assert.Equal(t, s, next)
	}
}

func TestReduce_EndRederivesElapsed(t *testing.T) {
	s := running(t, twoSteps(), workout.Indoor)
	s = mustReduce(t, s, Tick{At: at(30)}, EndWorkout{At: at(30.8)})
	assert.InDelta(t, 30.8, s.TotalElapsedS, 1e-9)
	assert.InDelta(t, 30.8, RecordOf(s).TotalElapsedS, 1e-9)

	s = running(t, twoSteps(), workout.Indoor)
	s = mustReduce(t, s, Tick{At: at(20)}, Pause{At: at(20.5)}, EndWorkout{At: at(90)})
	assert.InDelta(t, 20.5, s.TotalElapsedS, 1e-9, "open pause excluded")

	s = running(t, twoSteps(), workout.Indoor)
	s = mustReduce(t, s, Tick{At: at(30)}, EndWorkout{At: at(10)})
	assert.InDelta(t, 30, s.TotalElapsedS, 1e-9, "never decreases")
}

func TestReduce_DiscardKeepsPreferences(t *testing.T) {
	s := running(t, twoSteps(), workout.Outdoor)
	s = mustReduce(t, s,
		SetToggles{Toggles: Toggles{Voice: false, Vibration: true, MusicInterrupt: true}},
		GPSStatusChanged{Status: location.StatusLocked},
		DiscardWorkout{},
	)
	assert.Equal(t, StatusCancelled, s.Status)
	assert.Nil(t, s.Workout)
	assert.Empty(t, s.SessionID)
	assert.Equal(t, Toggles{Vibration: true, MusicInterrupt: true}, s.Toggles)
	assert.Equal(t, location.StatusLocked, s.GPSStatus)

	s = mustReduce(t, s, SetPlannedWorkout{Workout: twoSteps()})
	assert.Equal(t, StatusPreparing, s.Status)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := running(t, twoSteps(), workout.Outdoor)
	s = mustReduce(t, s, gps(0, 0, nil))
	step := *s.CurrentStep
	samples := len(s.Samples)

	_ = mustReduce(t, s, gps(120, 30, pace(400)), HRUpdate{BPM: 150}, SkipStep{At: at(31)})

	assert.Equal(t, step, *s.CurrentStep)
	assert.Len(t, s.Samples, samples)
	assert.Zero(t, s.TotalDistanceM)
	assert.Nil(t, s.CurrentHR)
}

func TestTransitions(t *testing.T) {
	prep := mustReduce(t, NewState(), SetPlannedWorkout{Workout: twoSteps()}, SetEnvironment{Environment: workout.Outdoor})
	run := mustReduce(t, prep, StartWorkout{SessionID: "x", At: t0})

	kinds := func(ts []Transition) []TransitionKind {
		var out []TransitionKind
		for _, tr := range ts {
			out = append(out, tr.Kind)
		}
		return out
	}

	assert.Equal(t, []TransitionKind{TransitionStarted, TransitionStepChanged},
		kinds(transitions(prep, run, StartWorkout{}, t0)))

	base := mustReduce(t, run, gps(0, 0, nil), gps(100, 25, pace(400)))
	slow := mustReduce(t, base, gps(150, 50, pace(430)))
	got := transitions(base, slow, GPSUpdate{}, t0)
	require.Len(t, got, 1)
	assert.Equal(t, TransitionZoneWarning, got[0].Kind)
	assert.Equal(t, workout.ZoneTooSlow, got[0].Zone)

	same := mustReduce(t, slow, gps(160, 53, pace(432)))
	assert.Empty(t, transitions(slow, same, GPSUpdate{}, t0), "no repeat warning for the same zone")

	restarted := mustReduce(t, same, RestartStep{})
	assert.Equal(t, []TransitionKind{TransitionStepChanged}, kinds(transitions(same, restarted, RestartStep{}, t0)))

	paused := mustReduce(t, same, Pause{At: at(60)})
	assert.Equal(t, []TransitionKind{TransitionPaused}, kinds(transitions(same, paused, Pause{}, t0)))

	ended := mustReduce(t, paused, EndWorkout{At: at(70)})
	assert.Equal(t, []TransitionKind{TransitionCompleted}, kinds(transitions(paused, ended, EndWorkout{}, t0)))

	countdown := mustReduce(t, prep, BeginCountdown{Seconds: 3})
	got = transitions(prep, countdown, BeginCountdown{}, t0)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Countdown)
}

func TestSnapshotOf_StripsSamples(t *testing.T) {
	s := running(t, twoSteps(), workout.Outdoor)
	s = mustReduce(t, s, gps(0, 0, nil), gps(50, 12, nil))
	snap := snapshotOf(s)
	assert.Nil(t, snap.Samples)
	assert.Equal(t, 2, snap.SampleCount)
	require.NotNil(t, snap.LastSample)
	assert.InDelta(t, 50, snap.LastSample.DistanceM, 1e-9)
	assert.Len(t, s.Samples, 2)
}
