package replay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
	"github.com/lowaak/smart-trainer/workout-runner/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
)

// AddressPrefix marks heart rate bindings that point at a replay track.
const AddressPrefix = "replay:"

// Player shares one playback timeline between the position source and the
// heart rate sensor. The timeline starts on first use; later watches resume
// at the current playback position.
type Player struct {
	logger *log.Logger
	track  *Track
	speed  float64

	mu        sync.Mutex
	startedAt time.Time
}

func NewPlayer(logger *log.Logger, track *Track, speed float64) *Player {
	if logger == nil {
		panic("Player: logger cannot be nil")
	}
	if track == nil {
		panic("Player: track cannot be nil")
	}
	if speed <= 0 {
		speed = 1
	}
	return &Player{logger: logger, track: track, speed: speed}
}

// start returns the wall clock time playback began.
func (p *Player) start() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = time.Now()
		p.logger.Printf("Player: starting playback of %s at %.1fx", p.track.Name, p.speed)
	}
	return p.startedAt
}

// dueAt is the wall clock time a point plays.
func (p *Player) dueAt(start time.Time, offset time.Duration) time.Time {
	return start.Add(time.Duration(float64(offset) / p.speed))
}

// fixTime is the timestamp stamped on a replayed fix. It advances in track
// time so paces match the recording whatever the playback speed.
func (p *Player) fixTime(start time.Time, offset time.Duration) time.Time {
	return start.Add(offset)
}

// play emits every point selected by want from the current playback position
// until the track ends or ctx is done. It reports whether the track ran out.
func (p *Player) play(ctx context.Context, want func(Point) bool, emit func(time.Time, Point)) bool {
	start := p.start()
	elapsed := time.Duration(float64(time.Since(start)) * p.speed)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, pt := range p.track.Points {
		if pt.Offset < elapsed || !want(pt) {
			continue
		}
		timer.Reset(time.Until(p.dueAt(start, pt.Offset)))
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
		emit(start, pt)
	}
	return true
}

// PositionSource exposes the track's GPS points.
func (p *Player) PositionSource() *PositionSource {
	return &PositionSource{player: p}
}

// Sensor exposes the track's heart rate samples.
func (p *Player) Sensor() *Sensor {
	return &Sensor{player: p}
}

type PositionSource struct {
	player *Player
}

var _ location.PositionSource = (*PositionSource)(nil)

func (s *PositionSource) Probe(context.Context) error {
	if !s.player.track.HasPositions() {
		return location.ErrPositionUnavailable
	}
	return nil
}

func (s *PositionSource) Watch(ctx context.Context, onPosition func(geo.Fix), onError func(error)) (func(), error) {
	if err := s.Probe(ctx); err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	go_func_utils.SafeGo(s.player.logger, func() {
		ended := s.player.play(watchCtx,
			func(pt Point) bool { return pt.Position != nil },
			func(start time.Time, pt Point) {
				onPosition(geo.Fix{
					Coordinate: *pt.Position,
					AltitudeM:  pt.AltitudeM,
					Timestamp:  s.player.fixTime(start, pt.Offset),
				})
			})
		if ended && watchCtx.Err() == nil {
			onError(fmt.Errorf("replay finished: %w", location.ErrPositionUnavailable))
		}
	})
	// The watch goroutine may be the caller, so stop never waits for it.
	return cancel, nil
}

type Sensor struct {
	player *Player

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ heartrate.Sensor = (*Sensor)(nil)

func (s *Sensor) address() string {
	return AddressPrefix + s.player.track.Name
}

func (s *Sensor) Connect(ctx context.Context, address string, onBPM func(int), onDisconnect func()) (string, error) {
	if address != "" && address != s.address() {
		return "", fmt.Errorf("replay sensor %s cannot bind to %s", s.address(), address)
	}
	if !s.player.track.HasHeartRate() {
		return "", fmt.Errorf("replay track %s has no heart rate", s.player.track.Name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return "", fmt.Errorf("replay sensor %s already connected", s.address())
	}
	playCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go_func_utils.SafeGo(s.player.logger, func() {
		defer close(done)
		ended := s.player.play(playCtx,
			func(pt Point) bool { return pt.HeartRate > 0 },
			func(_ time.Time, pt Point) { onBPM(pt.HeartRate) })
		if ended {
			s.mu.Lock()
			s.cancel = nil
			s.done = nil
			s.mu.Unlock()
			cancel()
			onDisconnect()
		}
	})
	return s.address(), nil
}

func (s *Sensor) Disconnect() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
