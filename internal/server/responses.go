package server

import (
	"net/http"
	"time"

	"github.com/stonecode/pickmyroute/server/internal/lib/format"
	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
	"github.com/stonecode/pickmyroute/server/internal/services"
)

type SessionResponse struct {
	ID string `json:"id"`
}

func (*SessionResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }

// RouteSummary is the display form of a planned route's totals.
type RouteSummary struct {
	Summary  string `json:"summary,omitempty"`
	Distance string `json:"distance"`
	Duration string `json:"duration"`
	Legs     int    `json:"legs"`
	Steps    int    `json:"steps"`
}

func NewRouteSummary(r route.Route, metric bool) *RouteSummary {
	return &RouteSummary{
		Summary:  r.Summary,
		Distance: format.RouteDistance(r.DistanceMeters, metric),
		Duration: format.Duration(r.DurationSeconds),
		Legs:     len(r.Legs),
		Steps:    r.StepCount(),
	}
}

type PlanResponse struct {
	services.Plan
	RouteSummary *RouteSummary `json:"route_summary,omitempty"`
	// WaypointLabels are compact distances from the origin to each waypoint,
	// keyed by waypoint ID.
	WaypointLabels map[string]string `json:"waypoint_labels,omitempty"`
}

func NewPlanResponse(p services.Plan, metric bool) *PlanResponse {
	resp := &PlanResponse{Plan: p}
	if p.Route != nil {
		resp.RouteSummary = NewRouteSummary(*p.Route, metric)
		resp.WaypointLabels = waypointLabels(p, metric)
	}
	return resp
}

func (*PlanResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }

// waypointLabels gives each waypoint the driving distance from the origin,
// the sum of the legs before it. Labels are omitted when the route does not
// have one leg per stop, as after a waypoint edit that has not been routed.
func waypointLabels(p services.Plan, metric bool) map[string]string {
	if len(p.Waypoints) == 0 || len(p.Route.Legs) != len(p.Waypoints)+1 {
		return nil
	}

	labels := make(map[string]string, len(p.Waypoints))
	meters := 0
	for i, wp := range p.Waypoints {
		meters += p.Route.Legs[i].DistanceMeters
		labels[wp.ID] = format.CompactDistance(meters, metric)
	}
	return labels
}

type WaypointResponse struct {
	Waypoint route.Waypoint `json:"waypoint"`
	*PlanResponse
}

func (*WaypointResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }

// ProgressResponse is a progress snapshot with display text.
type ProgressResponse struct {
	navigation.Progress
	RemainingText string    `json:"remaining_text,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewProgressResponse(p navigation.Progress, at time.Time) *ProgressResponse {
	resp := &ProgressResponse{Progress: p, UpdatedAt: at.UTC()}
	if p.RemainingMeters != nil {
		resp.RemainingText = format.Distance(*p.RemainingMeters)
	}
	return resp
}

func (*ProgressResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }

// FixResponse reports the outcome of one location fix.
type FixResponse struct {
	*ProgressResponse
	Emitted       bool `json:"emitted"`
	StepsAdvanced int  `json:"steps_advanced"`
}

func (*FixResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }
