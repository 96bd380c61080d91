package route

import (
	"fmt"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
)

// Step is one maneuver-delimited segment of a leg, e.g. "Turn right onto
// Main St". Steps are immutable once a route is computed.
type Step struct {
	Instruction     string    `json:"instruction"`
	HTMLInstruction string    `json:"html_instruction"`
	DistanceMeters  int       `json:"distance_meters"`
	DurationSeconds int       `json:"duration_seconds"`
	Polyline        string    `json:"polyline"`
	Start           geo.Point `json:"start_location"`
	End             geo.Point `json:"end_location"`
	Maneuver        Maneuver  `json:"maneuver"`
}

// Leg is the portion of a route between two consecutive stops.
type Leg struct {
	Steps           []Step    `json:"steps"`
	DistanceMeters  int       `json:"distance_meters"`
	DurationSeconds int       `json:"duration_seconds"`
	Start           geo.Point `json:"start_location"`
	End             geo.Point `json:"end_location"`
	StartAddress    string    `json:"start_address,omitempty"`
	EndAddress      string    `json:"end_address,omitempty"`
}

// Route is a complete plan from origin to destination, possibly through
// waypoints. A new Route replaces the old one wholesale whenever the plan is
// recalculated.
type Route struct {
	OverviewPolyline string     `json:"overview_polyline"`
	Legs             []Leg      `json:"legs"`
	Bounds           geo.Bounds `json:"bounds"`
	DistanceMeters   int        `json:"distance_meters"`
	DurationSeconds  int        `json:"duration_seconds"`
	Waypoints        []Waypoint `json:"waypoints,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
	Copyrights       string     `json:"copyrights,omitempty"`
}

// Totals sums distance and duration over every step of every leg.
func (r Route) Totals() (distanceMeters, durationSeconds int) {
	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			distanceMeters += step.DistanceMeters
			durationSeconds += step.DurationSeconds
		}
	}
	return distanceMeters, durationSeconds
}

// StepCount returns the number of steps across all legs.
func (r Route) StepCount() int {
	n := 0
	for _, leg := range r.Legs {
		n += len(leg.Steps)
	}
	return n
}

// Validate checks that the stored totals match the sum over the steps.
func (r Route) Validate() error {
	dist, dur := r.Totals()
	if dist != r.DistanceMeters {
		return fmt.Errorf("route distance %d m does not match step total %d m", r.DistanceMeters, dist)
	}
	if dur != r.DurationSeconds {
		return fmt.Errorf("route duration %d s does not match step total %d s", r.DurationSeconds, dur)
	}
	return nil
}

// WithTotals returns a copy of r whose totals are recomputed from its steps.
func (r Route) WithTotals() Route {
	r.DistanceMeters, r.DurationSeconds = r.Totals()
	return r
}
