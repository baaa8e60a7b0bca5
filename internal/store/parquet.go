package store

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
)

type sampleRow struct {
	SessionID string  `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TSUTCISO  string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8"`
	ElapsedS  float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	StepIndex int32   `parquet:"name=step_index, type=INT32"`
	StepName  string  `parquet:"name=step_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Lat       float64 `parquet:"name=lat, type=DOUBLE"`
	Lng       float64 `parquet:"name=lng, type=DOUBLE"`
	AccuracyM float64 `parquet:"name=accuracy_m, type=DOUBLE"`
	AltitudeM float64 `parquet:"name=altitude_m, type=DOUBLE"`
	DistanceM float64 `parquet:"name=distance_m, type=DOUBLE"`
	PaceSMi   float64 `parquet:"name=pace_s_mi, type=DOUBLE"`
	HRBPM     float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	ValidFix  bool    `parquet:"name=valid_fix, type=BOOLEAN"`
	ValidPace bool    `parquet:"name=valid_pace, type=BOOLEAN"`
	ValidHR   bool    `parquet:"name=valid_hr, type=BOOLEAN"`
}

// ParquetExporter writes each session's sample trace to <dir>/<session>.parquet.
// Missing readings are stored as NaN with a matching valid_* flag.
type ParquetExporter struct {
	logger *log.Logger
	dir    string
}

func NewParquetExporter(logger *log.Logger, dir string) *ParquetExporter {
	if logger == nil {
		panic("ParquetExporter: logger cannot be nil")
	}
	return &ParquetExporter{logger: logger, dir: dir}
}

// PathFor returns the file a session is exported to.
func (p *ParquetExporter) PathFor(sessionID string) string {
	return filepath.Join(p.dir, sessionID+".parquet")
}

// Save exports rec. An existing export of the same session is replaced.
func (p *ParquetExporter) Save(ctx context.Context, rec execution.Record) error {
	data, err := marshalSamples(rec)
	if err != nil {
		return fmt.Errorf("encoding parquet for %s: %w", rec.SessionID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir %s: %w", p.dir, err)
	}

	path := p.PathFor(rec.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	p.logger.Printf("ParquetExporter: wrote %d samples to %s", len(rec.Samples), path)
	return nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func marshalSamples(rec execution.Record) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, s := range rec.Samples {
		row := sampleRow{
			SessionID: rec.SessionID,
			TSUTCISO:  formatTime(s.Timestamp),
			ElapsedS:  s.ElapsedS,
			StepIndex: int32(s.StepIndex),
			Lat:       math.NaN(),
			Lng:       math.NaN(),
			AccuracyM: math.NaN(),
			AltitudeM: math.NaN(),
			DistanceM: s.DistanceM,
			PaceSMi:   valueOrNaN(s.Pace),
			HRBPM:     math.NaN(),
			ValidPace: s.Pace != nil,
			ValidHR:   s.HR != nil,
		}
		if s.StepIndex >= 0 && s.StepIndex < len(rec.Workout.Steps) {
			row.StepName = rec.Workout.Steps[s.StepIndex].Label()
		}
		if s.Fix != nil {
			row.ValidFix = true
			row.Lat, row.Lng = s.Fix.Lat, s.Fix.Lng
			row.AltitudeM = s.Fix.AltitudeM
			if s.Fix.HasAccuracy() {
				row.AccuracyM = s.Fix.AccuracyM
			}
		}
		if s.HR != nil {
			row.HRBPM = float64(*s.HR)
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
