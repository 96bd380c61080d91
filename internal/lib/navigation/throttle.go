package navigation

import "math"

// Throttle suppresses progress updates that differ from the last published
// one only by GPS jitter.
type Throttle struct {
	deltaMeters float64

	emitted  bool
	step     int
	offRoute bool
	distance float64
}

// NewThrottle creates a throttle that lets through distance changes of at
// least deltaMeters.
func NewThrottle(deltaMeters float64) Throttle {
	return Throttle{deltaMeters: deltaMeters}
}

// ShouldEmit reports whether an update differs meaningfully from the last
// recorded one. The first update always does.
func (t *Throttle) ShouldEmit(step int, offRoute bool, distance float64) bool {
	if !t.emitted {
		return true
	}
	if step != t.step || offRoute != t.offRoute {
		return true
	}
	return math.Abs(distance-t.distance) >= t.deltaMeters
}

// Record stores the values of a published update.
func (t *Throttle) Record(step int, offRoute bool, distance float64) {
	t.emitted = true
	t.step = step
	t.offRoute = offRoute
	t.distance = distance
}

// Reset forgets the last published update.
func (t *Throttle) Reset() {
	t.emitted = false
	t.step = 0
	t.offRoute = false
	t.distance = 0
}
