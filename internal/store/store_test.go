package store

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

var started = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func sampleRecord(id string) execution.Record {
	pace := 402.5
	hr := 151
	w, _ := workout.Builtin("6x800")
	return execution.Record{
		SessionID:      id,
		Workout:        w,
		Environment:    workout.Outdoor,
		StartedAt:      started,
		EndedAt:        started.Add(40 * time.Minute),
		TotalElapsedS:  2280,
		TotalPausedS:   120,
		TotalDistanceM: 8012.5,
		Samples: []execution.Sample{
			{
				Timestamp: started.Add(time.Second),
				ElapsedS:  1,
				StepIndex: 0,
				Fix: &geo.Fix{
					Coordinate: geo.Coordinate{Lat: 51.5007, Lng: -0.1246},
					AccuracyM:  4,
					AltitudeM:  12,
					Timestamp:  started.Add(time.Second),
				},
			},
			{
				Timestamp: started.Add(1500 * time.Millisecond),
				ElapsedS:  1.5,
				StepIndex: 1,
				DistanceM: 3.2,
				Pace:      &pace,
				HR:        &hr,
			},
		},
	}
}

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(testLogger(), filepath.Join(t.TempDir(), "db", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := sampleRecord("a1")
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, rec.Workout, got.Workout)
	assert.Equal(t, rec.Environment, got.Environment)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))
	assert.True(t, rec.EndedAt.Equal(got.EndedAt))
	assert.InDelta(t, rec.TotalDistanceM, got.TotalDistanceM, 1e-9)
	assert.InDelta(t, rec.TotalPausedS, got.TotalPausedS, 1e-9)

	require.Len(t, got.Samples, 2)
	require.NotNil(t, got.Samples[0].Fix)
	assert.InDelta(t, 51.5007, got.Samples[0].Fix.Lat, 1e-12)
	assert.InDelta(t, 4, got.Samples[0].Fix.AccuracyM, 1e-12)
	assert.Nil(t, got.Samples[0].Pace)
	assert.Nil(t, got.Samples[0].HR)

	assert.Nil(t, got.Samples[1].Fix)
	require.NotNil(t, got.Samples[1].Pace)
	assert.InDelta(t, 402.5, *got.Samples[1].Pace, 1e-9)
	require.NotNil(t, got.Samples[1].HR)
	assert.Equal(t, 151, *got.Samples[1].HR)
	assert.True(t, rec.Samples[1].Timestamp.Equal(got.Samples[1].Timestamp))
}

func TestSQLiteStore_SaveIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := sampleRecord("a1")
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Save(ctx, rec))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].SampleCount)
	assert.Equal(t, "6x800", list[0].Name)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	older := sampleRecord("old")
	newer := sampleRecord("new")
	newer.StartedAt = started.Add(24 * time.Hour)
	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].SessionID)
	assert.Equal(t, "old", list[1].SessionID)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParquetExporter_WritesSamples(t *testing.T) {
	dir := t.TempDir()
	p := NewParquetExporter(testLogger(), filepath.Join(dir, "exports"))
	rec := sampleRecord("p1")
	require.NoError(t, p.Save(context.Background(), rec))
	require.NoError(t, p.Save(context.Background(), rec), "re-export replaces the file")

	data, err := os.ReadFile(p.PathFor("p1"))
	require.NoError(t, err)
	pr, err := reader.NewParquetReader(parquetbuffer.NewBufferFileFromBytes(data), new(sampleRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 2, pr.GetNumRows())
	rows := make([]sampleRow, 2)
	require.NoError(t, pr.Read(&rows))

	assert.Equal(t, "p1", rows[0].SessionID)
	assert.Equal(t, "Warmup", rows[0].StepName)
	assert.True(t, rows[0].ValidFix)
	assert.InDelta(t, 51.5007, rows[0].Lat, 1e-12)
	assert.False(t, rows[0].ValidHR)
	assert.True(t, math.IsNaN(rows[0].HRBPM))

	assert.Equal(t, "800m", rows[1].StepName)
	assert.False(t, rows[1].ValidFix)
	assert.True(t, math.IsNaN(rows[1].Lat))
	assert.True(t, rows[1].ValidHR)
	assert.InDelta(t, 151, rows[1].HRBPM, 1e-9)
	assert.InDelta(t, 402.5, rows[1].PaceSMi, 1e-9)

	_, err = os.Stat(p.PathFor("p1") + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

type failingPersister struct{ calls int }

func (f *failingPersister) Save(context.Context, execution.Record) error {
	f.calls++
	return errors.New("offline")
}

func TestChain_AttemptsEveryPersister(t *testing.T) {
	s := openStore(t)
	bad := &failingPersister{}
	chain := Chain{bad, s}

	err := chain.Save(context.Background(), sampleRecord("c1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.Equal(t, 1, bad.calls)

	_, err = s.Get(context.Background(), "c1")
	assert.NoError(t, err, "later members still ran")

	assert.NoError(t, Chain{s}.Save(context.Background(), sampleRecord("c1")))
}
