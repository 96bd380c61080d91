package navigation

// OffRouteDetector flags sustained divergence from the route. Entering
// requires more, looser confirmations than leaving, so a single noisy fix
// never toggles the flag.
type OffRouteDetector struct {
	enterMeters  float64
	exitMeters   float64
	enterStrikes int
	exitStrikes  int

	offRouteStrike int
	onRouteStrike  int
	offRoute       bool
}

// NewOffRouteDetector creates a detector using the hysteresis settings of p.
func NewOffRouteDetector(p Params) OffRouteDetector {
	return OffRouteDetector{
		enterMeters:  p.OffRouteEnterMeters,
		exitMeters:   p.OffRouteExitMeters,
		enterStrikes: p.OffRouteEnterStrikes,
		exitStrikes:  p.OffRouteExitStrikes,
	}
}

// Observe records one fix's minimum distance to the route and returns the
// updated flag. Exactly one strike counter grows per call; the other resets.
func (d *OffRouteDetector) Observe(minDistance float64) bool {
	if minDistance > d.enterMeters {
		d.offRouteStrike++
		d.onRouteStrike = 0
	} else {
		d.onRouteStrike++
		d.offRouteStrike = 0
	}

	switch {
	case d.offRouteStrike >= d.enterStrikes:
		d.offRoute = true
	case d.offRoute && d.onRouteStrike >= d.exitStrikes && minDistance < d.exitMeters:
		d.offRoute = false
	}
	return d.offRoute
}

// OffRoute returns the current flag.
func (d *OffRouteDetector) OffRoute() bool {
	return d.offRoute
}

// Strikes returns the consecutive off-route and on-route counts.
func (d *OffRouteDetector) Strikes() (offRoute, onRoute int) {
	return d.offRouteStrike, d.onRouteStrike
}

// Reset clears both counters and the flag.
func (d *OffRouteDetector) Reset() {
	d.offRouteStrike = 0
	d.onRouteStrike = 0
	d.offRoute = false
}
