package location

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/lowaak/smart-trainer/workout-runner/internal/events"
	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
)

// Status is the tracker's acquisition state.
type Status string

const (
	StatusUnavailable Status = "unavailable"
	StatusAcquiring   Status = "acquiring"
	StatusLocked      Status = "locked"
	StatusError       Status = "error"
)

// StatusChange is published on every status transition.
type StatusChange struct {
	Status  Status
	Message string
}

// Update is published for every accepted fix.
type Update struct {
	Fix         geo.Fix
	CumulativeM float64
	// SmoothedPace is nil until the window holds a plausible pace.
	SmoothedPace *float64
}

// Tracker turns a PositionSource into filtered distance and pace updates.
type Tracker struct {
	logger *log.Logger
	source PositionSource

	StatusChanged *events.CallbackEvent[StatusChange]
	Updated       *events.CallbackEvent[Update]

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	status      Status
	message     string
	enabled     bool
	active      bool
	generation  uint64
	stopWatch   func()
	lastFix     *geo.Fix
	cumulativeM float64
	window      geo.PaceWindow
}

func NewTracker(logger *log.Logger, source PositionSource) *Tracker {
	if logger == nil {
		panic("Tracker: logger cannot be nil")
	}
	if source == nil {
		panic("Tracker: source cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		logger:        logger,
		source:        source,
		StatusChanged: events.NewCallbackEvent[StatusChange](true),
		Updated:       events.NewCallbackEvent[Update](false),
		ctx:           ctx,
		cancel:        cancel,
		status:        StatusUnavailable,
	}
}

// StartTracking resets distance and the pace window and begins watching.
func (t *Tracker) StartTracking() error {
	t.mu.Lock()
	t.cumulativeM = 0
	t.window.Reset()
	t.lastFix = nil
	t.active = true
	gen, stop, changed := t.rewatchLocked()
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	if changed {
		t.notifyStatus()
	}
	return t.watch(gen)
}

// StopTracking cancels the watch. Calling it when not tracking is a no-op.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	t.active = false
	t.generation++
	stop := t.stopWatch
	t.stopWatch = nil
	changed := t.setStatusLocked(StatusUnavailable, "")
	t.mu.Unlock()

	if stop != nil {
		stop()
		t.logger.Println("Tracker: stopped watching position")
	}
	if changed {
		t.notifyStatus()
	}
}

// ResetDistance zeroes the cumulative distance and pace window while the
// watch keeps running.
func (t *Tracker) ResetDistance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cumulativeM = 0
	t.window.Reset()
}

// RequestPermission probes the source. It reports false only on an explicit
// denial; anything else should not stop the athlete from trying to track.
func (t *Tracker) RequestPermission(ctx context.Context) bool {
	err := t.source.Probe(ctx)
	if err != nil {
		t.logger.Printf("Tracker: permission probe: %v", err)
	}
	return !errors.Is(err, ErrPermissionDenied)
}

// SetEnabled starts tracking when enabled flips on and stops it when it flips off.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	if t.enabled == enabled {
		t.mu.Unlock()
		return
	}
	t.enabled = enabled
	t.mu.Unlock()

	if !enabled {
		t.StopTracking()
		return
	}
	if err := t.StartTracking(); err != nil {
		t.logger.Printf("Tracker: start tracking: %v", err)
	}
}

// VisibilityChanged re-acquires the position watch when the app comes back to
// the foreground while tracking. Distance and the last fix are kept.
func (t *Tracker) VisibilityChanged(visible bool) {
	if !visible {
		return
	}
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	gen, stop, changed := t.rewatchLocked()
	t.mu.Unlock()

	t.logger.Println("Tracker: visible again, re-acquiring position")
	if stop != nil {
		stop()
	}
	if changed {
		t.notifyStatus()
	}
	if err := t.watch(gen); err != nil {
		t.logger.Printf("Tracker: re-acquire: %v", err)
	}
}

// Close stops tracking unconditionally.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.enabled = false
	t.mu.Unlock()
	t.StopTracking()
	t.cancel()
}

func (t *Tracker) Status() (Status, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.message
}

func (t *Tracker) CumulativeM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cumulativeM
}

// rewatchLocked invalidates the current watch and moves to acquiring. The
// caller runs the returned stop outside the lock.
func (t *Tracker) rewatchLocked() (gen uint64, stop func(), changed bool) {
	t.generation++
	stop = t.stopWatch
	t.stopWatch = nil
	changed = t.setStatusLocked(StatusAcquiring, "")
	return t.generation, stop, changed
}

func (t *Tracker) watch(gen uint64) error {
	stop, err := t.source.Watch(t.ctx,
		func(fix geo.Fix) { t.handleFix(gen, fix) },
		func(err error) { t.handleError(gen, err) },
	)
	if err != nil {
		t.handleError(gen, err)
		return err
	}

	t.mu.Lock()
	if gen != t.generation {
		// Stopped or restarted while Watch was starting.
		t.mu.Unlock()
		stop()
		return nil
	}
	t.stopWatch = stop
	t.mu.Unlock()
	t.logger.Println("Tracker: watching position")
	return nil
}

func (t *Tracker) handleFix(gen uint64, fix geo.Fix) {
	t.mu.Lock()
	if gen != t.generation || !t.active {
		t.mu.Unlock()
		return
	}
	deltaM, ok := geo.AcceptFix(t.lastFix, fix)
	if !ok {
		t.mu.Unlock()
		return
	}
	if t.lastFix != nil {
		dt := fix.Timestamp.Sub(t.lastFix.Timestamp).Seconds()
		if pace, ok := geo.PaceFromDelta(deltaM, dt); ok {
			t.window.Add(pace)
		}
	}
	accepted := fix
	t.lastFix = &accepted
	t.cumulativeM += deltaM
	update := Update{Fix: fix, CumulativeM: t.cumulativeM}
	if pace, ok := t.window.Smoothed(); ok {
		update.SmoothedPace = &pace
	}
	changed := t.setStatusLocked(StatusLocked, "")
	t.mu.Unlock()

	if changed {
		t.notifyStatus()
	}
	t.Updated.Notify(update)
}

func (t *Tracker) handleError(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.generation || !t.active {
		t.mu.Unlock()
		return
	}
	var stop func()
	if errors.Is(err, ErrPermissionDenied) {
		t.generation++
		stop = t.stopWatch
		t.stopWatch = nil
	}
	changed := t.setStatusLocked(StatusError, Message(err))
	t.mu.Unlock()

	t.logger.Printf("Tracker: position error: %v", err)
	if stop != nil {
		stop()
	}
	if changed {
		t.notifyStatus()
	}
}

func (t *Tracker) setStatusLocked(status Status, message string) bool {
	if t.status == status && t.message == message {
		return false
	}
	t.status = status
	t.message = message
	return true
}

func (t *Tracker) notifyStatus() {
	status, message := t.Status()
	t.StatusChanged.Notify(StatusChange{Status: status, Message: message})
}
