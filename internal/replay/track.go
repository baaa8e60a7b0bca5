// Package replay plays a recorded activity back as a live position source
// and heart rate sensor.
package replay

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tormoder/fit"

	"github.com/lowaak/smart-trainer/workout-runner/internal/geo"
)

var ErrEmptyTrack = errors.New("activity has no usable records")

// Point is one recorded sample, Offset after the start of the activity.
type Point struct {
	Offset time.Duration
	// Position is nil for records without a GPS fix.
	Position  *geo.Coordinate
	AltitudeM float64
	// HeartRate is 0 when the record carries none.
	HeartRate int
}

// Track is an ordered recording.
type Track struct {
	Name   string
	Points []Point
}

func (t *Track) HasPositions() bool {
	for _, p := range t.Points {
		if p.Position != nil {
			return true
		}
	}
	return false
}

func (t *Track) HasHeartRate() bool {
	for _, p := range t.Points {
		if p.HeartRate > 0 {
			return true
		}
	}
	return false
}

func (t *Track) Duration() time.Duration {
	if len(t.Points) == 0 {
		return 0
	}
	return t.Points[len(t.Points)-1].Offset
}

// LoadFIT reads the record messages of a FIT activity file.
func LoadFIT(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoded, err := fit.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("%s is not an activity file: %w", path, err)
	}
	return FromActivity(filepath.Base(path), activity)
}

// FromActivity converts decoded FIT records into a Track.
func FromActivity(name string, activity *fit.ActivityFile) (*Track, error) {
	if activity == nil {
		return nil, ErrEmptyTrack
	}
	records := make([]*fit.RecordMsg, 0, len(activity.Records))
	for _, rec := range activity.Records {
		if rec != nil && !rec.Timestamp.IsZero() {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, ErrEmptyTrack
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	start := records[0].Timestamp
	track := &Track{Name: name, Points: make([]Point, 0, len(records))}
	for _, rec := range records {
		p := Point{Offset: rec.Timestamp.Sub(start)}
		if !rec.PositionLat.Invalid() && !rec.PositionLong.Invalid() {
			p.Position = &geo.Coordinate{Lat: rec.PositionLat.Degrees(), Lng: rec.PositionLong.Degrees()}
		}
		if alt := rec.GetAltitudeScaled(); !math.IsNaN(alt) {
			p.AltitudeM = alt
		}
		if rec.HeartRate != 0xFF {
			p.HeartRate = int(rec.HeartRate)
		}
		track.Points = append(track.Points, p)
	}
	return track, nil
}
