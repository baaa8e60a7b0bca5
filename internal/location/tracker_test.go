package location

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
)

type fakeSource struct {
	mu         sync.Mutex
	onPosition func(geo.Fix)
	onError    func(error)
	watchErr   error
	probeErr   error
	watches    int
	stops      int
}

func (s *fakeSource) Watch(_ context.Context, onPosition func(geo.Fix), onError func(error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	s.watches++
	s.onPosition = onPosition
	s.onError = onError
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stops++
	}, nil
}

func (s *fakeSource) Probe(context.Context) error { return s.probeErr }

func (s *fakeSource) emit(fix geo.Fix) {
	s.mu.Lock()
	cb := s.onPosition
	s.mu.Unlock()
	cb(fix)
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	cb(err)
}

func (s *fakeSource) counts() (watches, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watches, s.stops
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	updates  []Update
}

func record(tr *Tracker) *recorder {
	r := &recorder{}
	tr.StatusChanged.Listen(func(c StatusChange) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.statuses = append(r.statuses, c.Status)
	})
	tr.Updated.Listen(func(u Update) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.updates = append(r.updates, u)
	})
	return r
}

var (
	origin = geo.Coordinate{Lat: 51.5007, Lng: -0.1246}
	t0     = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
)

// fixAt places a fix metres north of origin, seconds after t0.
func fixAt(metres float64, seconds float64, accuracy float64) geo.Fix {
	return geo.Fix{
		Coordinate: geo.Offset(origin, metres, 0),
		AccuracyM:  accuracy,
		Timestamp:  t0.Add(time.Duration(seconds * float64(time.Second))),
	}
}

func newTestTracker() (*Tracker, *fakeSource) {
	src := &fakeSource{}
	return NewTracker(log.New(io.Discard, "", 0), src), src
}

func TestNewTracker_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewTracker(nil, &fakeSource{}) })
	assert.Panics(t, func() { NewTracker(log.New(io.Discard, "", 0), nil) })
}

func TestTracker_StatusFlow(t *testing.T) {
	tr, src := newTestTracker()
	rec := record(tr)

	require.NoError(t, tr.StartTracking())
	src.emit(fixAt(0, 0, 5))
	src.emit(fixAt(10, 3, 5))
	src.fail(ErrTimeout)

	status, msg := tr.Status()
	assert.Equal(t, StatusError, status)
	assert.Equal(t, Message(ErrTimeout), msg)
	assert.Equal(t, []Status{StatusAcquiring, StatusLocked, StatusError}, rec.statuses)
}

func TestTracker_AccumulatesAcceptedFixes(t *testing.T) {
	tr, src := newTestTracker()
	rec := record(tr)
	require.NoError(t, tr.StartTracking())

	src.emit(fixAt(0, 0, 5))
	src.emit(fixAt(1, 1, 5))   // jitter
	src.emit(fixAt(20, 2, 80)) // poor accuracy
	src.emit(fixAt(4, 3, 5))
	src.emit(fixAt(8, 4, 5))

	require.Len(t, rec.updates, 3)
	assert.InDelta(t, 8, tr.CumulativeM(), 0.01)

	last := 0.0
	for _, u := range rec.updates {
		assert.GreaterOrEqual(t, u.CumulativeM, last)
		last = u.CumulativeM
	}
}

func TestTracker_PoorAccuracyProducesNoCallback(t *testing.T) {
	tr, src := newTestTracker()
	rec := record(tr)
	require.NoError(t, tr.StartTracking())
	src.emit(fixAt(0, 0, 5))
	before := tr.CumulativeM()

	src.emit(fixAt(30, 5, 80))

	assert.Equal(t, before, tr.CumulativeM())
	assert.Len(t, rec.updates, 1)
}

func TestTracker_SmoothedPace(t *testing.T) {
	tr, src := newTestTracker()
	rec := record(tr)
	require.NoError(t, tr.StartTracking())

	// 4.0234 m/s is 400 s/mi.
	speed := geo.MetersPerMile / 400
	for i := 0; i <= 6; i++ {
		src.emit(fixAt(float64(i)*speed, float64(i), 5))
	}

	require.Len(t, rec.updates, 7)
	assert.Nil(t, rec.updates[0].SmoothedPace)
	last := rec.updates[6].SmoothedPace
	require.NotNil(t, last)
	assert.InDelta(t, 400, *last, 1)
}

func TestTracker_StartResetsDistance(t *testing.T) {
	tr, src := newTestTracker()
	require.NoError(t, tr.StartTracking())
	src.emit(fixAt(0, 0, 5))
	src.emit(fixAt(50, 10, 5))
	require.InDelta(t, 50, tr.CumulativeM(), 0.01)

	require.NoError(t, tr.StartTracking())
	assert.Equal(t, 0.0, tr.CumulativeM())
	watches, stops := src.counts()
	assert.Equal(t, 2, watches)
	assert.Equal(t, 1, stops)
}

func TestTracker_ResetDistanceKeepsWatching(t *testing.T) {
	tr, src := newTestTracker()
	require.NoError(t, tr.StartTracking())
	src.emit(fixAt(0, 0, 5))
	src.emit(fixAt(40, 10, 5))

	tr.ResetDistance()
	assert.Equal(t, 0.0, tr.CumulativeM())

	src.emit(fixAt(50, 12, 5))
	assert.InDelta(t, 10, tr.CumulativeM(), 0.01)
	_, stops := src.counts()
	assert.Equal(t, 0, stops)
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	tr, src := newTestTracker()
	rec := record(tr)
	require.NoError(t, tr.StartTracking())
	src.emit(fixAt(0, 0, 5))

	tr.StopTracking()
	status1, _ := tr.Status()
	statuses := len(rec.statuses)
	tr.StopTracking()
	status2, _ := tr.Status()

	assert.Equal(t, status1, status2)
	assert.Equal(t, StatusUnavailable, status2)
	assert.Len(t, rec.statuses, statuses, "second stop publishes nothing")
	_, stops := src.counts()
	assert.Equal(t, 1, stops)

	src.emit(fixAt(100, 10, 5))
	assert.Len(t, rec.updates, 1, "fixes after stop are ignored")
}

func TestTracker_SetEnabled(t *testing.T) {
	tr, src := newTestTracker()

	tr.SetEnabled(true)
	tr.SetEnabled(true)
	watches, _ := src.counts()
	assert.Equal(t, 1, watches)
	status, _ := tr.Status()
	assert.Equal(t, StatusAcquiring, status)

	tr.SetEnabled(false)
	_, stops := src.counts()
	assert.Equal(t, 1, stops)
	status, _ = tr.Status()
	assert.Equal(t, StatusUnavailable, status)
}

func TestTracker_VisibilityReacquires(t *testing.T) {
	tr, src := newTestTracker()

	tr.VisibilityChanged(true)
	watches, _ := src.counts()
	assert.Equal(t, 0, watches, "inactive tracker does not start on visibility")

	require.NoError(t, tr.StartTracking())
	src.emit(fixAt(0, 0, 5))
	src.emit(fixAt(30, 8, 5))

	tr.VisibilityChanged(false)
	tr.VisibilityChanged(true)

	watches, stops := src.counts()
	assert.Equal(t, 2, watches)
	assert.Equal(t, 1, stops)
	assert.InDelta(t, 30, tr.CumulativeM(), 0.01, "distance survives re-acquisition")

	src.emit(fixAt(40, 11, 5))
	assert.InDelta(t, 40, tr.CumulativeM(), 0.01)
}

func TestTracker_WatchFailure(t *testing.T) {
	tr, src := newTestTracker()
	src.watchErr = ErrPermissionDenied

	err := tr.StartTracking()
	assert.ErrorIs(t, err, ErrPermissionDenied)
	status, msg := tr.Status()
	assert.Equal(t, StatusError, status)
	assert.Equal(t, Message(ErrPermissionDenied), msg)
}

func TestTracker_PermissionDeniedStopsWatch(t *testing.T) {
	tr, src := newTestTracker()
	require.NoError(t, tr.StartTracking())

	src.fail(ErrPermissionDenied)

	_, stops := src.counts()
	assert.Equal(t, 1, stops)
}

func TestRequestPermission(t *testing.T) {
	tr, src := newTestTracker()
	ctx := context.Background()

	assert.True(t, tr.RequestPermission(ctx))
	src.probeErr = ErrTimeout
	assert.True(t, tr.RequestPermission(ctx))
	src.probeErr = errors.New("ambiguous")
	assert.True(t, tr.RequestPermission(ctx))
	src.probeErr = ErrPermissionDenied
	assert.False(t, tr.RequestPermission(ctx))
}

func TestMessage_Distinct(t *testing.T) {
	msgs := map[string]bool{
		Message(ErrPermissionDenied):    true,
		Message(ErrPositionUnavailable): true,
		Message(ErrTimeout):             true,
	}
	assert.Len(t, msgs, 3)
	assert.Empty(t, Message(nil))
}

func TestTracker_Close(t *testing.T) {
	tr, src := newTestTracker()
	tr.SetEnabled(true)
	tr.Close()
	tr.Close()

	_, stops := src.counts()
	assert.Equal(t, 1, stops)
	status, _ := tr.Status()
	assert.Equal(t, StatusUnavailable, status)
}

func TestTracker_NoReceiver(t *testing.T) {
	tr := NewTracker(log.New(io.Discard, "", 0), NoReceiver{})
	defer tr.Close()

	assert.ErrorIs(t, tr.StartTracking(), ErrPositionUnavailable)
	status, msg := tr.Status()
	assert.Equal(t, StatusError, status)
	assert.Equal(t, Message(ErrPositionUnavailable), msg)
	assert.True(t, tr.RequestPermission(context.Background()))
}
