package workout

// ZoneStatus is the athlete's compliance with the active target.
type ZoneStatus string

const (
	ZoneUnknown    ZoneStatus = "unknown"
	ZoneIn         ZoneStatus = "in_zone"
	ZoneTooSlow    ZoneStatus = "too_slow"
	ZoneTooFast    ZoneStatus = "too_fast"
	ZoneWayTooSlow ZoneStatus = "way_too_slow"
	ZoneWayTooFast ZoneStatus = "way_too_fast"
)

// Warning reports whether the status calls for athlete feedback.
func (z ZoneStatus) Warning() bool {
	return z != ZoneIn && z != ZoneUnknown && z != ""
}

const (
	paceWayOffFraction = 0.10
	hrWayOffBPM        = 10.0

	// smoothed paces sitting on a bound carry float noise
	paceBoundToleranceS = 1e-3
)

// ClassifyPace compares a pace in seconds per mile with r, where Lower is
// the faster bound.
func ClassifyPace(pace float64, r *Range) ZoneStatus {
	if r == nil {
		return ZoneUnknown
	}
	switch {
	case pace > r.Upper+paceBoundToleranceS:
		if pace-r.Upper > paceWayOffFraction*r.Upper {
			return ZoneWayTooSlow
		}
		return ZoneTooSlow
	case pace < r.Lower-paceBoundToleranceS:
		if r.Lower-pace > paceWayOffFraction*r.Lower {
			return ZoneWayTooFast
		}
		return ZoneTooFast
	}
	return ZoneIn
}

// ClassifyHR compares a heart rate with r. Below the range reads as too slow,
// above it as too fast.
func ClassifyHR(bpm float64, r *Range) ZoneStatus {
	if r == nil {
		return ZoneUnknown
	}
	switch {
	case bpm < r.Lower:
		if r.Lower-bpm > hrWayOffBPM {
			return ZoneWayTooSlow
		}
		return ZoneTooSlow
	case bpm > r.Upper:
		if bpm-r.Upper > hrWayOffBPM {
			return ZoneWayTooFast
		}
		return ZoneTooFast
	}
	return ZoneIn
}

// DeriveZone picks the classification for step. A live HR only wins when the
// step defines an HR range; pace and HR are never blended.
func DeriveZone(step PlannedStep, pace *float64, hr *int) ZoneStatus {
	if step.HRRange != nil && hr != nil {
		return ClassifyHR(float64(*hr), step.HRRange)
	}
	if pace != nil {
		return ClassifyPace(*pace, step.PaceRange)
	}
	return ZoneUnknown
}
