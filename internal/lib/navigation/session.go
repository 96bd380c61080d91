package navigation

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

// PolylineDecoder decodes an encoded step polyline. geo.GeoUtils satisfies it.
type PolylineDecoder interface {
	DecodePolyline(encoded string) ([]geo.Point, error)
}

// Progress is the navigation state published to clients.
type Progress struct {
	Navigating bool `json:"navigating"`
	// StepIndex is the global index of the active step, nil when idle.
	StepIndex *int `json:"step_index"`
	LegIndex  *int `json:"leg_index,omitempty"`
	// RemainingMeters is the distance to the next maneuver, nil until the
	// first fix is matched.
	RemainingMeters      *float64       `json:"remaining_meters"`
	RouteRemainingMeters *float64       `json:"route_remaining_meters,omitempty"`
	Instruction          string         `json:"instruction,omitempty"`
	Maneuver             route.Maneuver `json:"maneuver"`
	ManeuverImminent     bool           `json:"maneuver_imminent"`
	OffRoute             bool           `json:"off_route"`
	// OffRouteMeters is the divergence distance, set only while off route.
	OffRouteMeters *float64 `json:"off_route_meters,omitempty"`
}

// Result describes what a single fix did to the session.
type Result struct {
	Progress Progress
	// Emitted is true when Progress should be published.
	Emitted bool
	// StepsAdvanced counts steps completed by this fix.
	StepsAdvanced int
	// OffRouteChanged is true when the off-route flag flipped.
	OffRouteChanged bool
	// MinDistance is the distance to the closer of the current and next step.
	MinDistance float64
	// DecodeErrors counts step polylines that failed to decode on this fix.
	DecodeErrors int
}

// Session is the mutable state of one navigation session. It is not safe for
// concurrent use: fixes, route swaps and start/stop must be applied by a
// single owner in order.
type Session struct {
	params  Params
	decoder PolylineDecoder

	steps       []route.StepReference
	totalMeters int
	polylines   *lru.Cache[int, []geo.Point]

	navigating bool
	stepIndex  int
	detector   OffRouteDetector
	throttle   Throttle
	last       Progress

	decodeErrors int
}

// NewSession creates an idle session without a route.
func NewSession(params Params, decoder PolylineDecoder) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid navigation params: %w", err)
	}

	cache, err := lru.New[int, []geo.Point](params.PolylineCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create polyline cache: %w", err)
	}

	return &Session{
		params:    params,
		decoder:   decoder,
		polylines: cache,
		stepIndex: -1,
		detector:  NewOffRouteDetector(params),
		throttle:  NewThrottle(params.EmissionDeltaMeters),
	}, nil
}

// SetRoute replaces the route. The flattened steps and the polyline cache
// are swapped together; an active session restarts at the first step of the
// new route.
func (s *Session) SetRoute(r route.Route) {
	s.steps = route.Flatten(r)
	s.totalMeters, _ = r.Totals()
	s.polylines.Purge()

	if s.navigating {
		s.Start()
	}
}

// ClearRoute removes the route, leaving the session idle or navigating
// nowhere.
func (s *Session) ClearRoute() {
	s.SetRoute(route.Route{})
}

// Start begins navigation from the first step with fresh hysteresis and
// throttle state.
func (s *Session) Start() {
	s.reset()
	s.navigating = true
	s.stepIndex = 0
	s.last = Progress{Navigating: true}
	if len(s.steps) > 0 {
		s.last.StepIndex = intPtr(0)
		s.last.LegIndex = intPtr(s.steps[0].LegIndex)
		s.last.Instruction = s.steps[0].Step.Instruction
		s.last.Maneuver = s.steps[0].Step.Maneuver
	}
}

// Stop ends navigation and clears all per-session state.
func (s *Session) Stop() {
	s.reset()
	s.navigating = false
	s.stepIndex = -1
	s.last = Progress{}
}

func (s *Session) reset() {
	s.detector.Reset()
	s.throttle.Reset()
}

// Navigating reports whether the session is between Start and Stop.
func (s *Session) Navigating() bool {
	return s.navigating
}

// StepIndex returns the active global step index, or -1 when idle.
func (s *Session) StepIndex() int {
	return s.stepIndex
}

// Steps returns the flattened steps of the current route.
func (s *Session) Steps() []route.StepReference {
	return s.steps
}

// Strikes returns the off-route and on-route strike counts.
func (s *Session) Strikes() (offRoute, onRoute int) {
	return s.detector.Strikes()
}

// Snapshot returns the last published progress.
func (s *Session) Snapshot() Progress {
	return s.last
}

// Update matches one fix against the route: it advances past completed
// steps, updates the off-route detector and decides whether the resulting
// progress is worth publishing. It is a no-op while idle or without steps.
func (s *Session) Update(fix geo.Point) Result {
	if !s.navigating || len(s.steps) == 0 {
		return Result{Progress: s.last, MinDistance: math.Inf(1)}
	}
	s.decodeErrors = 0

	prevIndex := s.stepIndex
	prevOffRoute := s.detector.OffRoute()

	idx := s.advance(prevIndex, fix)
	current := s.steps[idx]
	snap := s.snapTo(current, fix)
	remaining := s.remaining(current, snap)

	minDistance := snap.Distance
	if idx+1 < len(s.steps) {
		minDistance = math.Min(minDistance, s.snapTo(s.steps[idx+1], fix).Distance)
	}
	offRoute := s.detector.Observe(minDistance)
	s.stepIndex = idx

	progress := s.progress(current, remaining, offRoute, minDistance)
	res := Result{
		Progress:        progress,
		StepsAdvanced:   idx - prevIndex,
		OffRouteChanged: offRoute != prevOffRoute,
		MinDistance:     minDistance,
		DecodeErrors:    s.decodeErrors,
	}

	if s.throttle.ShouldEmit(idx, offRoute, remaining) {
		s.throttle.Record(idx, offRoute, remaining)
		s.last = progress
		res.Emitted = true
	}
	return res
}

// advance walks forward from idx while the tested step is effectively
// complete. It never moves backwards and clamps to the last step.
func (s *Session) advance(idx int, fix geo.Point) int {
	if idx < 0 {
		idx = 0
	}

	for idx < len(s.steps) {
		ref := s.steps[idx]
		remaining := s.remaining(ref, s.snapTo(ref, fix))
		toEnd := geo.Distance(fix, ref.Step.End)
		if remaining < s.params.AdvanceDistanceMeters || toEnd < s.params.ManeuverNowMeters {
			idx++
			continue
		}
		break
	}

	if idx > len(s.steps)-1 {
		idx = len(s.steps) - 1
	}
	return idx
}

// remaining is the distance from the snapped position to the end of the
// step. An unsnapped fix has made no measurable progress on the step, so the
// full step distance remains.
func (s *Session) remaining(ref route.StepReference, snap SnapResult) float64 {
	if !snap.Snapped {
		return float64(ref.Step.DistanceMeters)
	}
	return math.Max(0, geo.Distance(snap.Point, ref.Step.End))
}

func (s *Session) snapTo(ref route.StepReference, fix geo.Point) SnapResult {
	return Snap(s.polyline(ref), fix, s.params.SnapThresholdMeters)
}

// polyline returns the decoded polyline of a step, decoding at most once per
// route. Undecodable polylines are cached as empty and so never snap.
func (s *Session) polyline(ref route.StepReference) []geo.Point {
	if points, ok := s.polylines.Get(ref.GlobalIndex); ok {
		return points
	}

	points, err := s.decoder.DecodePolyline(ref.Step.Polyline)
	if err != nil {
		s.decodeErrors++
		points = nil
	}
	s.polylines.Add(ref.GlobalIndex, points)
	return points
}

func (s *Session) progress(ref route.StepReference, remaining float64, offRoute bool, minDistance float64) Progress {
	routeRemaining := float64(s.totalMeters-ref.CumulativeMetersBefore-ref.Step.DistanceMeters) + remaining
	if routeRemaining < 0 {
		routeRemaining = 0
	}

	p := Progress{
		Navigating:           true,
		StepIndex:            intPtr(ref.GlobalIndex),
		LegIndex:             intPtr(ref.LegIndex),
		RemainingMeters:      floatPtr(remaining),
		RouteRemainingMeters: floatPtr(routeRemaining),
		Instruction:          ref.Step.Instruction,
		Maneuver:             ref.Step.Maneuver,
		ManeuverImminent:     remaining <= s.params.ManeuverNowMeters,
		OffRoute:             offRoute,
	}
	if offRoute && !math.IsInf(minDistance, 0) {
		p.OffRouteMeters = floatPtr(minDistance)
	}
	return p
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
