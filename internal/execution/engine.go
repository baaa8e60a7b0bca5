package execution

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/smart-trainer/workout-runner/internal/events"
	"github.com/lowaak/smart-trainer/workout-runner/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

var ErrEngineStopped = errors.New("engine stopped")

const (
	DefaultCountdownSeconds = 3
	DefaultPersistTimeout   = 30 * time.Second
)

type Config struct {
	// Persister receives finished sessions. Nil completes sessions without
	// saving them.
	Persister Persister
	// Tracker and HeartRate are optional sensor adapters. The engine
	// subscribes to them and owns their lifecycle from NewEngine to Shutdown.
	Tracker   *location.Tracker
	HeartRate *heartrate.Monitor

	// TickInterval drives Tick and CountdownTick. Zero disables the internal
	// ticker so callers can dispatch ticks themselves.
	TickInterval     time.Duration
	CountdownSeconds int
	PersistTimeout   time.Duration

	Now          func() time.Time
	NewSessionID func() string
}

type envelope struct {
	action Action
	// fn runs on the loop instead of an action when set
	fn   func()
	done chan error
}

// Engine owns the session State. Every mutation happens on its loop
// goroutine; Dispatch only enqueues and never blocks.
type Engine struct {
	logger *log.Logger
	cfg    Config

	Snapshots   *events.ChannelEvent[Snapshot]
	Transitions *events.CallbackEvent[Transition]

	queueMu sync.Mutex
	queue   []envelope
	wake    chan struct{}

	// loop goroutine only
	state          State
	ticker         *time.Ticker
	tickerRunning  bool
	trackerEnabled bool

	// session whose save is in flight, empty when none
	persistingSession string

	unsubscribe  []func()
	ctx          context.Context
	cancel       context.CancelFunc
	loopDone     chan struct{}
	group        *go_func_utils.Group
	shutdownOnce sync.Once
}

func NewEngine(logger *log.Logger, cfg Config) *Engine {
	if logger == nil {
		panic("Engine: logger cannot be nil")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}
	if cfg.CountdownSeconds < 0 {
		cfg.CountdownSeconds = 0
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger:      logger,
		cfg:         cfg,
		Snapshots:   events.NewChannelEvent[Snapshot](true),
		Transitions: events.NewCallbackEvent[Transition](false),
		wake:        make(chan struct{}, 1),
		state:       NewState(),
		ctx:         ctx,
		cancel:      cancel,
		loopDone:    make(chan struct{}),
		group:       go_func_utils.NewGroup(logger),
	}
	e.Snapshots.Notify(snapshotOf(e.state))
	e.attachSensors()

	go_func_utils.SafeGo(logger, func() { e.runLoop() })
	return e
}

func (e *Engine) attachSensors() {
	if t := e.cfg.Tracker; t != nil {
		e.unsubscribe = append(e.unsubscribe,
			t.StatusChanged.Listen(func(c location.StatusChange) {
				e.Dispatch(GPSStatusChanged{Status: c.Status, Message: c.Message})
			}),
			t.Updated.Listen(func(u location.Update) {
				e.Dispatch(GPSUpdate{Fix: u.Fix, CumulativeM: u.CumulativeM, Pace: u.SmoothedPace})
			}),
		)
	}
	if m := e.cfg.HeartRate; m != nil {
		e.unsubscribe = append(e.unsubscribe,
			m.StatusChanged.Listen(func(c heartrate.StatusChange) {
				e.Dispatch(HRStatusChanged{Status: c.Status, Message: c.Message})
			}),
			m.Readings.Listen(func(bpm int) {
				e.Dispatch(HRUpdate{BPM: bpm})
			}),
		)
	}
}

// Dispatch queues a for the loop. It is safe from any goroutine, including
// listeners running on the loop itself.
func (e *Engine) Dispatch(a Action) {
	e.enqueue(envelope{action: a})
}

// DispatchAndWait queues a and waits until it has been applied.
func (e *Engine) DispatchAndWait(ctx context.Context, a Action) error {
	done := make(chan error, 1)
	e.enqueue(envelope{action: a, done: done})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.loopDone:
		return ErrEngineStopped
	}
}

func (e *Engine) enqueue(env envelope) {
	e.queueMu.Lock()
	e.queue = append(e.queue, env)
	e.queueMu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Snapshot returns the most recently published snapshot.
func (e *Engine) Snapshot() Snapshot {
	snap, _ := e.Snapshots.Latest()
	return snap
}

func (e *Engine) SetPlannedWorkout(w workout.Structure) {
	e.Dispatch(SetPlannedWorkout{Workout: w})
}

func (e *Engine) SetEnvironment(env workout.Environment, equipment string) {
	e.Dispatch(SetEnvironment{Environment: env, Equipment: equipment})
}

func (e *Engine) SetToggles(t Toggles) {
	e.Dispatch(SetToggles{Toggles: t})
}

// BeginCountdown starts the pre-start countdown, or starts immediately when
// no countdown is configured.
func (e *Engine) BeginCountdown() {
	if e.cfg.CountdownSeconds == 0 {
		e.Start()
		return
	}
	e.Dispatch(BeginCountdown{Seconds: e.cfg.CountdownSeconds})
}

func (e *Engine) Start() {
	e.enqueue(envelope{fn: e.start})
}

func (e *Engine) Pause() {
	e.Dispatch(Pause{At: e.cfg.Now()})
}

func (e *Engine) Resume() {
	e.Dispatch(Resume{At: e.cfg.Now()})
}

// TogglePause pauses a running session and resumes a paused one.
func (e *Engine) TogglePause() {
	e.enqueue(envelope{fn: func() {
		switch e.state.Status {
		case StatusRunning:
			e.apply(Pause{At: e.cfg.Now()})
		case StatusPaused:
			e.apply(Resume{At: e.cfg.Now()})
		}
	}})
}

func (e *Engine) SkipStep() {
	e.Dispatch(SkipStep{At: e.cfg.Now()})
}

func (e *Engine) RestartStep() {
	e.Dispatch(RestartStep{})
}

func (e *Engine) EndWorkout() {
	e.Dispatch(EndWorkout{At: e.cfg.Now()})
}

func (e *Engine) Discard() {
	e.Dispatch(DiscardWorkout{})
}

// RetryPersistence saves a completing session again after a failure.
func (e *Engine) RetryPersistence() {
	e.enqueue(envelope{fn: func() {
		if e.state.Status != StatusCompleting || e.persistingSession == e.state.SessionID {
			e.logger.Printf("Engine: nothing to retry (status %s, saving %q)", e.state.Status, e.persistingSession)
			return
		}
		e.persist(e.state)
	}})
}

// ConnectHeartRate binds a heart rate sensor. It blocks until the sensor
// connects or fails.
func (e *Engine) ConnectHeartRate(ctx context.Context) bool {
	if e.cfg.HeartRate == nil {
		return false
	}
	return e.cfg.HeartRate.Connect(ctx)
}

// ReconnectHeartRate resumes the previous sensor binding, falling back to a
// fresh connection.
func (e *Engine) ReconnectHeartRate(ctx context.Context) bool {
	if e.cfg.HeartRate == nil {
		return false
	}
	return e.cfg.HeartRate.Reconnect(ctx)
}

// VisibilityChanged forwards foreground changes to the location tracker. The
// heart rate link is left alone; it only comes back through ReconnectHeartRate.
func (e *Engine) VisibilityChanged(visible bool) {
	if e.cfg.Tracker != nil {
		e.cfg.Tracker.VisibilityChanged(visible)
	}
}

// Shutdown stops the loop, waits for in-flight saves and releases the sensors.
// Safe to call multiple times.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.logger.Println("Engine: Shutting down")
		for _, unsubscribe := range e.unsubscribe {
			unsubscribe()
		}
		e.cancel()
		<-e.loopDone
		e.group.Wait()
		if e.cfg.Tracker != nil {
			e.cfg.Tracker.Close()
		}
		if e.cfg.HeartRate != nil {
			e.cfg.HeartRate.Disconnect()
		}
		e.logger.Println("Engine: Shutdown complete")
	})
}

func (e *Engine) runLoop() {
	defer close(e.loopDone)

	e.ticker = time.NewTicker(time.Hour)
	e.ticker.Stop() // started when a session needs ticks
	defer e.ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Println("Engine: loop exiting")
			return
		case <-e.wake:
			e.drain()
		case <-e.ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) drain() {
	for {
		e.queueMu.Lock()
		batch := e.queue
		e.queue = nil
		e.queueMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, env := range batch {
			var err error
			if env.fn != nil {
				env.fn()
			} else {
				err = e.apply(env.action)
			}
			if env.done != nil {
				env.done <- err
			}
		}
	}
}

func (e *Engine) tick() {
	switch e.state.Status {
	case StatusCountdown:
		e.apply(CountdownTick{})
	case StatusRunning:
		e.apply(Tick{At: e.cfg.Now()})
	}
}

func (e *Engine) start() {
	e.apply(StartWorkout{SessionID: e.cfg.NewSessionID(), At: e.cfg.Now()})
}

// apply runs a through the reducer, publishes the result and performs the
// side effects implied by the change.
func (e *Engine) apply(a Action) error {
	prev := e.state
	next, err := Reduce(prev, a)
	if err != nil {
		e.logger.Printf("Engine: %s rejected: %v", actionName(a), err)
		return err
	}
	e.state = next

	e.effects(prev, next, a)
	e.Snapshots.Notify(snapshotOf(next))
	for _, t := range transitions(prev, next, a, e.cfg.Now()) {
		e.Transitions.Notify(t)
	}
	if prev.Status != next.Status {
		e.logger.Printf("Engine: %s -> %s (%s)", prev.Status, next.Status, actionName(a))
	}

	switch a.(type) {
	case Tick, GPSUpdate:
		if cs := e.state.CurrentStep; e.state.Status == StatusRunning && cs != nil && cs.Complete {
			e.logger.Printf("Engine: step %d (%s) complete", cs.Index, cs.Step.Label())
			return e.apply(StepComplete{At: e.cfg.Now()})
		}
	case CountdownTick:
		if e.state.Status == StatusCountdown && e.state.CountdownRemaining == 0 {
			e.start()
		}
	}
	return nil
}

func (e *Engine) effects(prev, next State, a Action) {
	wantTicks := e.cfg.TickInterval > 0 && (next.Status == StatusRunning || next.Status == StatusCountdown)
	if wantTicks && !e.tickerRunning {
		e.ticker.Reset(e.cfg.TickInterval)
		e.tickerRunning = true
	} else if !wantTicks && e.tickerRunning {
		e.ticker.Stop()
		e.tickerRunning = false
	}

	if e.cfg.Tracker != nil {
		enabled := next.Environment == workout.Outdoor &&
			(next.Status == StatusPreparing || next.Status == StatusCountdown || next.Status.Active())
		if enabled != e.trackerEnabled {
			e.trackerEnabled = enabled
			// SetEnabled notifies listeners synchronously, which re-enters
			// Dispatch; that only queues.
			e.cfg.Tracker.SetEnabled(enabled)
		}
		if _, ok := a.(RestartStep); ok {
			e.cfg.Tracker.ResetDistance()
		}
	}

	if next.Status == StatusCompleting && prev.Status != StatusCompleting {
		e.persist(next)
	}
	if next.Status != StatusCompleting {
		e.persistingSession = ""
	}
}

func (e *Engine) persist(s State) {
	if e.cfg.Persister == nil {
		e.logger.Println("Engine: no persister configured, completing without saving")
		e.Dispatch(WorkoutComplete{SessionID: s.SessionID, At: e.cfg.Now()})
		return
	}
	e.persistingSession = s.SessionID
	rec := RecordOf(s)
	e.logger.Printf("Engine: saving session %s (%d samples)", rec.SessionID, len(rec.Samples))
	e.group.Go(func() {
		// Not tied to e.ctx: Shutdown waits for the save instead of aborting it.
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
		defer cancel()
		if err := e.cfg.Persister.Save(ctx, rec); err != nil {
			e.logger.Printf("Engine: saving session %s failed: %v", rec.SessionID, err)
			e.enqueue(envelope{fn: func() {
				if e.persistingSession == rec.SessionID {
					e.persistingSession = ""
				}
				e.apply(PersistenceFailed{SessionID: rec.SessionID, Err: err.Error()})
			}})
			return
		}
		e.logger.Printf("Engine: session %s saved", rec.SessionID)
		e.Dispatch(WorkoutComplete{SessionID: rec.SessionID, At: e.cfg.Now()})
	})
}
