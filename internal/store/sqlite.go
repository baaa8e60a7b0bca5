// Package store persists finished sessions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS workouts (
	session_id       TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	sport            TEXT NOT NULL DEFAULT '',
	environment      TEXT NOT NULL,
	equipment        TEXT NOT NULL DEFAULT '',
	started_at       TEXT NOT NULL,
	ended_at         TEXT NOT NULL,
	total_elapsed_s  REAL NOT NULL,
	total_paused_s   REAL NOT NULL,
	total_distance_m REAL NOT NULL,
	structure_json   TEXT NOT NULL,
	saved_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS workout_samples (
	session_id  TEXT NOT NULL REFERENCES workouts(session_id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	ts          TEXT NOT NULL,
	elapsed_s   REAL NOT NULL,
	step_index  INTEGER NOT NULL,
	lat         REAL,
	lng         REAL,
	accuracy_m  REAL,
	altitude_m  REAL,
	distance_m  REAL NOT NULL,
	pace_s_mi   REAL,
	hr_bpm      INTEGER,
	PRIMARY KEY (session_id, seq)
);`

// Summary is one row of the session history.
type Summary struct {
	SessionID      string
	Name           string
	Environment    workout.Environment
	StartedAt      time.Time
	TotalElapsedS  float64
	TotalDistanceM float64
	SampleCount    int
}

// SQLiteStore keeps sessions and their sample traces in a local database.
type SQLiteStore struct {
	logger *log.Logger
	db     *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(logger *log.Logger, path string) (*SQLiteStore, error) {
	if logger == nil {
		panic("SQLiteStore: logger cannot be nil")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session tables: %w", err)
	}
	return &SQLiteStore{logger: logger, db: db}, nil
}

// Save writes rec, replacing any earlier copy of the same session.
func (s *SQLiteStore) Save(ctx context.Context, rec execution.Record) error {
	structure, err := json.Marshal(rec.Workout)
	if err != nil {
		return fmt.Errorf("encoding workout structure: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO workouts
		(session_id, name, sport, environment, equipment, started_at, ended_at,
		 total_elapsed_s, total_paused_s, total_distance_m, structure_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Workout.Name, rec.Workout.Sport, string(rec.Environment), rec.Equipment,
		formatTime(rec.StartedAt), formatTime(rec.EndedAt),
		rec.TotalElapsedS, rec.TotalPausedS, rec.TotalDistanceM, string(structure),
	)
	if err != nil {
		return fmt.Errorf("writing session %s: %w", rec.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workout_samples WHERE session_id = ?`, rec.SessionID); err != nil {
		return fmt.Errorf("clearing samples of %s: %w", rec.SessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO workout_samples
		(session_id, seq, ts, elapsed_s, step_index, lat, lng, accuracy_m, altitude_m, distance_m, pace_s_mi, hr_bpm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()

	for i, smp := range rec.Samples {
		var lat, lng, accuracy, altitude sql.NullFloat64
		if smp.Fix != nil {
			lat = sql.NullFloat64{Float64: smp.Fix.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: smp.Fix.Lng, Valid: true}
			accuracy = sql.NullFloat64{Float64: smp.Fix.AccuracyM, Valid: smp.Fix.HasAccuracy()}
			altitude = sql.NullFloat64{Float64: smp.Fix.AltitudeM, Valid: true}
		}
		var pace sql.NullFloat64
		if smp.Pace != nil {
			pace = sql.NullFloat64{Float64: *smp.Pace, Valid: true}
		}
		var hr sql.NullInt64
		if smp.HR != nil {
			hr = sql.NullInt64{Int64: int64(*smp.HR), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			rec.SessionID, i, formatTime(smp.Timestamp), smp.ElapsedS, smp.StepIndex,
			lat, lng, accuracy, altitude, smp.DistanceM, pace, hr,
		)
		if err != nil {
			return fmt.Errorf("writing sample %d of %s: %w", i, rec.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", rec.SessionID, err)
	}
	s.logger.Printf("SQLiteStore: saved session %s with %d samples", rec.SessionID, len(rec.Samples))
	return nil
}

// Get loads a saved session with its samples.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (execution.Record, error) {
	var (
		rec                execution.Record
		env                string
		startedAt, endedAt string
		structure          string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, environment, equipment, started_at, ended_at,
		        total_elapsed_s, total_paused_s, total_distance_m, structure_json
		 FROM workouts WHERE session_id = ?`, sessionID,
	).Scan(&rec.SessionID, &env, &rec.Equipment, &startedAt, &endedAt,
		&rec.TotalElapsedS, &rec.TotalPausedS, &rec.TotalDistanceM, &structure)
	if errors.Is(err, sql.ErrNoRows) {
		return execution.Record{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return execution.Record{}, fmt.Errorf("reading session %s: %w", sessionID, err)
	}
	rec.Environment = workout.Environment(env)
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return execution.Record{}, err
	}
	if rec.EndedAt, err = parseTime(endedAt); err != nil {
		return execution.Record{}, err
	}
	if err := json.Unmarshal([]byte(structure), &rec.Workout); err != nil {
		return execution.Record{}, fmt.Errorf("decoding workout structure of %s: %w", sessionID, err)
	}

	rec.Samples, err = s.samples(ctx, sessionID)
	if err != nil {
		return execution.Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) samples(ctx context.Context, sessionID string) ([]execution.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, elapsed_s, step_index, lat, lng, accuracy_m, altitude_m, distance_m, pace_s_mi, hr_bpm
		 FROM workout_samples WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading samples of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []execution.Sample
	for rows.Next() {
		var (
			smp                          execution.Sample
			ts                           string
			lat, lng, accuracy, altitude sql.NullFloat64
			pace                         sql.NullFloat64
			hr                           sql.NullInt64
		)
		if err := rows.Scan(&ts, &smp.ElapsedS, &smp.StepIndex, &lat, &lng, &accuracy, &altitude,
			&smp.DistanceM, &pace, &hr); err != nil {
			return nil, fmt.Errorf("scanning sample of %s: %w", sessionID, err)
		}
		if smp.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if lat.Valid && lng.Valid {
			smp.Fix = &geo.Fix{
				Coordinate: geo.Coordinate{Lat: lat.Float64, Lng: lng.Float64},
				AccuracyM:  accuracy.Float64,
				AltitudeM:  altitude.Float64,
				Timestamp:  smp.Timestamp,
			}
		}
		if pace.Valid {
			v := pace.Float64
			smp.Pace = &v
		}
		if hr.Valid {
			v := int(hr.Int64)
			smp.HR = &v
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

// List returns saved sessions, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.session_id, w.name, w.environment, w.started_at, w.total_elapsed_s, w.total_distance_m,
		        (SELECT COUNT(*) FROM workout_samples s WHERE s.session_id = w.session_id)
		 FROM workouts w ORDER BY w.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			env       string
			startedAt string
		)
		if err := rows.Scan(&sum.SessionID, &sum.Name, &env, &startedAt,
			&sum.TotalElapsedS, &sum.TotalDistanceM, &sum.SampleCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.Environment = workout.Environment(env)
		if sum.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", v, err)
	}
	return t, nil
}
