// Package navigation matches a stream of raw device fixes against a planned
// route: it tracks the active step, the distance to the next maneuver and
// whether the driver has left the route, and throttles the resulting
// progress updates.
package navigation

import (
	"errors"
	"fmt"
)

// Params holds the matching tunables. All distances are in meters.
type Params struct {
	// SnapThresholdMeters is the farthest a fix may be from a step polyline
	// and still be considered on that step.
	SnapThresholdMeters float64 `yaml:"snap_threshold_meters" koanf:"snap_threshold_meters"`

	// Off-route hysteresis: enter after OffRouteEnterStrikes consecutive fixes
	// farther than OffRouteEnterMeters, exit after OffRouteExitStrikes
	// consecutive fixes within OffRouteEnterMeters with the latest closer
	// than OffRouteExitMeters.
	OffRouteEnterMeters  float64 `yaml:"off_route_enter_meters" koanf:"off_route_enter_meters"`
	OffRouteExitMeters   float64 `yaml:"off_route_exit_meters" koanf:"off_route_exit_meters"`
	OffRouteEnterStrikes int     `yaml:"off_route_enter_strikes" koanf:"off_route_enter_strikes"`
	OffRouteExitStrikes  int     `yaml:"off_route_exit_strikes" koanf:"off_route_exit_strikes"`

	// AdvanceDistanceMeters completes a step when the snapped remaining
	// distance drops below it.
	AdvanceDistanceMeters float64 `yaml:"advance_distance_meters" koanf:"advance_distance_meters"`

	// ManeuverNowMeters completes a step when the raw fix is this close to
	// the step end, and marks the maneuver as imminent.
	ManeuverNowMeters float64 `yaml:"maneuver_now_meters" koanf:"maneuver_now_meters"`

	// EmissionDeltaMeters is the smallest remaining-distance change that is
	// published on its own.
	EmissionDeltaMeters float64 `yaml:"emission_delta_meters" koanf:"emission_delta_meters"`

	// PolylineCacheSize bounds the decoded step polyline cache.
	PolylineCacheSize int `yaml:"polyline_cache_size" koanf:"polyline_cache_size"`
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		SnapThresholdMeters:   35,
		OffRouteEnterMeters:   45,
		OffRouteExitMeters:    30,
		OffRouteEnterStrikes:  3,
		OffRouteExitStrikes:   2,
		AdvanceDistanceMeters: 12,
		ManeuverNowMeters:     15,
		EmissionDeltaMeters:   3,
		PolylineCacheSize:     64,
	}
}

// Validate rejects non-positive tunables and an exit threshold looser than
// the enter threshold.
func (p Params) Validate() error {
	var errs []error
	positive := map[string]float64{
		"snap_threshold_meters":   p.SnapThresholdMeters,
		"off_route_enter_meters":  p.OffRouteEnterMeters,
		"off_route_exit_meters":   p.OffRouteExitMeters,
		"advance_distance_meters": p.AdvanceDistanceMeters,
		"maneuver_now_meters":     p.ManeuverNowMeters,
		"emission_delta_meters":   p.EmissionDeltaMeters,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	if p.OffRouteEnterStrikes < 1 {
		errs = append(errs, fmt.Errorf("off_route_enter_strikes must be at least 1, got %d", p.OffRouteEnterStrikes))
	}
	if p.OffRouteExitStrikes < 1 {
		errs = append(errs, fmt.Errorf("off_route_exit_strikes must be at least 1, got %d", p.OffRouteExitStrikes))
	}
	if p.PolylineCacheSize < 2 {
		errs = append(errs, fmt.Errorf("polyline_cache_size must be at least 2, got %d", p.PolylineCacheSize))
	}
	if p.OffRouteExitMeters > p.OffRouteEnterMeters {
		errs = append(errs, fmt.Errorf("off_route_exit_meters (%v) must not exceed off_route_enter_meters (%v)",
			p.OffRouteExitMeters, p.OffRouteEnterMeters))
	}
	return errors.Join(errs...)
}
