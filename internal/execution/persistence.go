package execution

import (
	"context"
	"time"

	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

// Record is the durable summary of a finished session.
type Record struct {
	SessionID      string
	Workout        workout.Structure
	Environment    workout.Environment
	Equipment      string
	StartedAt      time.Time
	EndedAt        time.Time
	TotalElapsedS  float64
	TotalPausedS   float64
	TotalDistanceM float64
	Samples        []Sample
}

// Persister writes finished sessions. Save must be safe to retry with the
// same record.
type Persister interface {
	Save(ctx context.Context, rec Record) error
}

// RecordOf builds the persistence record from a completing state.
func RecordOf(s State) Record {
	rec := Record{
		SessionID:      s.SessionID,
		Environment:    s.Environment,
		Equipment:      s.Equipment,
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		TotalElapsedS:  s.TotalElapsedS,
		TotalPausedS:   s.TotalPausedS,
		TotalDistanceM: s.TotalDistanceM,
		Samples:        append([]Sample(nil), s.Samples...),
	}
	if s.Workout != nil {
		rec.Workout = *s.Workout
	}
	return rec
}
