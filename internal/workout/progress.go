package workout

import "math"

// Progress is the position within a single step.
type Progress struct {
	RemainingS float64
	CoveredM   float64
	RemainingM float64
	Pct        float64
	Complete   bool
}

// CalculateProgress computes how far through step the athlete is. Time-bound
// steps read only DurationS; distance-bound steps read only DistanceM, with
// the covered distance supplied by source.
func CalculateProgress(step PlannedStep, elapsedS, measuredM float64, source DistanceSource) Progress {
	covered := source.CoveredM(step, elapsedS, measuredM)
	p := Progress{CoveredM: math.Max(0, covered)}

	switch {
	case step.TimeBound():
		duration := float64(step.DurationS)
		p.RemainingS = math.Max(0, duration-elapsedS)
		p.Pct = clampPct(100 * elapsedS / duration)
		p.Complete = p.RemainingS <= 0
	case step.DistanceBound():
		p.RemainingM = math.Max(0, step.DistanceM-p.CoveredM)
		p.Pct = clampPct(100 * p.CoveredM / step.DistanceM)
		p.Complete = p.CoveredM >= step.DistanceM
	}
	return p
}

func clampPct(pct float64) float64 {
	if pct < 0 || math.IsNaN(pct) {
		return 0
	}
	return math.Min(100, pct)
}
