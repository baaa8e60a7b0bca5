package feedback

import (
	"context"
	"log"
	"sync"

	"github.com/lowaak/smart-trainer/workout-runner/internal/events"
	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
	"github.com/lowaak/smart-trainer/workout-runner/internal/go_func_utils"
)

const dispatcherQueueSize = 32

// Dispatcher plays transitions on its own goroutine so slow speech never
// holds up the engine loop. Transitions arriving while the queue is full are
// dropped.
type Dispatcher struct {
	logger   *log.Logger
	voice    Voice
	haptic   Haptic
	wakeLock WakeLock

	queue        chan execution.Transition
	ctx          context.Context
	cancel       context.CancelFunc
	group        *go_func_utils.Group
	unsubscribe  []func()
	mu           sync.Mutex
	shutdownOnce sync.Once
}

// NewDispatcher starts the playback goroutine. Any emitter may be nil.
func NewDispatcher(logger *log.Logger, voice Voice, haptic Haptic, wakeLock WakeLock) *Dispatcher {
	if logger == nil {
		panic("Dispatcher: logger cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:   logger,
		voice:    voice,
		haptic:   haptic,
		wakeLock: wakeLock,
		queue:    make(chan execution.Transition, dispatcherQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		group:    go_func_utils.NewGroup(logger),
	}
	d.group.Go(d.run)
	return d
}

// Attach subscribes to a transition stream.
func (d *Dispatcher) Attach(transitions *events.CallbackEvent[execution.Transition]) {
	unsubscribe := transitions.Listen(func(tr execution.Transition) {
		select {
		case d.queue <- tr:
		default:
			d.logger.Printf("Dispatcher: queue full, dropping %s", tr.Kind)
		}
	})
	d.mu.Lock()
	d.unsubscribe = append(d.unsubscribe, unsubscribe)
	d.mu.Unlock()
}

// Close detaches from every stream, stops playback and releases the wake lock.
func (d *Dispatcher) Close() {
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		for _, unsubscribe := range d.unsubscribe {
			unsubscribe()
		}
		d.unsubscribe = nil
		d.mu.Unlock()

		d.cancel()
		d.group.Wait()
		if d.wakeLock != nil {
			if err := d.wakeLock.Release(); err != nil {
				d.logger.Printf("Dispatcher: release wake lock: %v", err)
			}
		}
	})
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case tr := <-d.queue:
			d.Handle(tr)
		}
	}
}

// Handle plays a single transition, honouring the toggles it carries.
func (d *Dispatcher) Handle(tr execution.Transition) {
	switch tr.Kind {
	case execution.TransitionStarted, execution.TransitionResumed:
		d.setWakeLock(true)
	case execution.TransitionCompleted, execution.TransitionCancelled:
		d.setWakeLock(false)
	}

	if d.haptic != nil && tr.Toggles.Vibration {
		if p, ok := PulseFor(tr); ok {
			if err := d.haptic.Pulse(p); err != nil {
				d.logger.Printf("Dispatcher: haptic %s: %v", p, err)
			}
		}
	}

	if d.voice != nil && tr.Toggles.Voice {
		if text := Prompt(tr); text != "" {
			if err := d.voice.Say(d.ctx, text, tr.Toggles.MusicInterrupt); err != nil {
				d.logger.Printf("Dispatcher: voice %q: %v", text, err)
			}
		}
	}
}

func (d *Dispatcher) setWakeLock(held bool) {
	if d.wakeLock == nil {
		return
	}
	var err error
	if held {
		err = d.wakeLock.Acquire()
	} else {
		err = d.wakeLock.Release()
	}
	if err != nil {
		d.logger.Printf("Dispatcher: wake lock: %v", err)
	}
}
