package geo

const (
	// Plausible running/riding pace bounds in seconds per mile.
	MinPlausiblePace = 180.0
	MaxPlausiblePace = 1800.0

	MinPaceTimeDeltaS = 0.5

	PaceWindowSize = 5
)

// PaceFromDelta converts a distance covered over a time span into seconds per
// mile. The second result is false when the signal is too weak or the pace is
// implausible.
func PaceFromDelta(distanceDeltaM, timeDeltaS float64) (float64, bool) {
	if distanceDeltaM < MinMovementMeters || timeDeltaS < MinPaceTimeDeltaS {
		return 0, false
	}
	speed := distanceDeltaM / timeDeltaS
	pace := MetersPerMile / speed
	if !PlausiblePace(pace) {
		return 0, false
	}
	return pace, true
}

// PlausiblePace reports whether pace lies within the plausible bounds.
func PlausiblePace(pace float64) bool {
	return pace >= MinPlausiblePace && pace <= MaxPlausiblePace
}

// PaceWindow is a fixed-size rolling window of per-fix paces.
type PaceWindow struct {
	values [PaceWindowSize]float64
	next   int
	size   int
}

// Add records pace. Implausible values are ignored.
func (w *PaceWindow) Add(pace float64) {
	if !PlausiblePace(pace) {
		return
	}
	w.values[w.next] = pace
	w.next = (w.next + 1) % PaceWindowSize
	if w.size < PaceWindowSize {
		w.size++
	}
}

// Smoothed returns the mean of the paces in the window.
func (w *PaceWindow) Smoothed() (float64, bool) {
	if w.size == 0 {
		return 0, false
	}
	sum := 0.0
	for i := 0; i < w.size; i++ {
		sum += w.values[i]
	}
	return sum / float64(w.size), true
}

// Len returns the number of paces held.
func (w *PaceWindow) Len() int {
	return w.size
}

// Reset empties the window.
func (w *PaceWindow) Reset() {
	*w = PaceWindow{}
}
