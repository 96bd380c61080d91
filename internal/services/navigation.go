package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stonecode/pickmyroute/server/internal/cache"
	"github.com/stonecode/pickmyroute/server/internal/clients/google"
	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrTooManySessions = errors.New("too many open sessions")
	ErrNoRoute         = errors.New("no route planned")
	ErrServiceShutdown = errors.New("navigation service is shut down")
)

// ProgressSink receives every progress update a session emits.
type ProgressSink interface {
	Publish(ctx context.Context, sessionID string, progress navigation.Progress) error
}

// Metrics observes service activity. *metrics.Collector implements it.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	ObserveUpdate(res navigation.Result, d time.Duration)
	ObserveDirections(result string, d time.Duration)
	ObserveRouteCache(hit bool)
}

// Options configures a NavigationService.
type Options struct {
	Params        navigation.Params
	CacheTTL      time.Duration
	CommandBuffer int
	// MaxSessions caps open sessions; zero means unlimited.
	MaxSessions int
	Sinks       []ProgressSink
	Metrics     Metrics
}

// Plan is the route planning state of a session.
type Plan struct {
	Origin      *geo.Point      `json:"origin,omitempty"`
	Destination *geo.Point      `json:"destination,omitempty"`
	Waypoints   route.Waypoints `json:"waypoints"`
	Route       *route.Route    `json:"route,omitempty"`
}

func (p Plan) clone() Plan {
	out := p
	out.Waypoints = append(route.Waypoints(nil), p.Waypoints...)
	return out
}

// SessionInfo summarises an open session.
type SessionInfo struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// NavigationService owns navigation sessions. Every session is driven by a
// single goroutine that applies its commands in arrival order, so fixes,
// route swaps and start/stop for one session never interleave.
type NavigationService struct {
	provider google.RouteProvider
	cache    *cache.Cache
	opts     Options
	metrics  Metrics
	decoder  navigation.PolylineDecoder
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionActor
	closed   bool
}

// NewNavigationService creates the service. routeCache may be nil.
func NewNavigationService(provider google.RouteProvider, routeCache *cache.Cache, opts Options) (*NavigationService, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid navigation params: %w", err)
	}
	if opts.CommandBuffer < 1 {
		opts.CommandBuffer = 1
	}
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}

	return &NavigationService{
		provider: provider,
		cache:    routeCache,
		opts:     opts,
		metrics:  m,
		decoder:  geo.NewGeoUtils(),
		now:      time.Now,
		sessions: make(map[string]*sessionActor),
	}, nil
}

// CreateSession opens a new idle session and returns its ID.
func (s *NavigationService) CreateSession(ctx context.Context) (string, error) {
	session, err := navigation.NewSession(s.opts.Params, s.decoder)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrServiceShutdown
	}
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		return "", fmt.Errorf("%w: limit is %d", ErrTooManySessions, s.opts.MaxSessions)
	}

	id := uuid.NewString()
	a := newSessionActor(id, session, s.opts.CommandBuffer, s.now)
	s.sessions[id] = a
	go a.run(context.WithoutCancel(ctx))

	s.metrics.SessionOpened()
	log.Printf("Session %s opened (%d open)", id, len(s.sessions))
	return id, nil
}

// CloseSession stops a session's goroutine and forgets it.
func (s *NavigationService) CloseSession(id string) error {
	s.mu.Lock()
	a, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	a.close()
	s.metrics.SessionClosed()
	log.Printf("Session %s closed", id)
	return nil
}

// Sessions lists open sessions ordered by creation time.
func (s *NavigationService) Sessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for _, a := range s.sessions {
		out = append(out, a.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Shutdown closes every session and rejects new ones.
func (s *NavigationService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	actors := s.sessions
	s.sessions = make(map[string]*sessionActor)
	s.mu.Unlock()

	for _, a := range actors {
		a.close()
		s.metrics.SessionClosed()
	}
	log.Printf("Navigation service shut down, closed %d sessions", len(actors))
}

// PlanRoute sets the origin and destination and plans a route through the
// session's waypoints. The new route replaces the old one atomically; an
// active navigation restarts on it.
func (s *NavigationService) PlanRoute(ctx context.Context, id string, origin, destination geo.Point) (Plan, error) {
	if err := validatePoints(origin, destination); err != nil {
		return Plan{}, err
	}

	var out Plan
	err := s.exec(ctx, id, func(a *sessionActor) error {
		next := a.plan.clone()
		next.Origin = &origin
		next.Destination = &destination

		var err error
		out, err = s.commitPlan(ctx, a, next)
		return err
	})
	return out, err
}

// AddWaypoint appends a locked waypoint and replans when a destination is
// set. The waypoint is kept only if replanning succeeds.
func (s *NavigationService) AddWaypoint(ctx context.Context, id string, location geo.Point, roadName string) (route.Waypoint, Plan, error) {
	if err := validatePoints(location); err != nil {
		return route.Waypoint{}, Plan{}, err
	}

	wp := route.NewWaypoint(location, roadName)
	var out Plan
	err := s.exec(ctx, id, func(a *sessionActor) error {
		next := a.plan.clone()
		next.Waypoints = next.Waypoints.Add(wp)

		var err error
		out, err = s.commitPlan(ctx, a, next)
		return err
	})
	if err != nil {
		return route.Waypoint{}, Plan{}, err
	}
	return out.Waypoints[len(out.Waypoints)-1], out, nil
}

// RemoveWaypoint drops a waypoint and returns it so it can be restored.
func (s *NavigationService) RemoveWaypoint(ctx context.Context, id, waypointID string) (route.Waypoint, Plan, error) {
	var (
		removed route.Waypoint
		out     Plan
	)
	err := s.exec(ctx, id, func(a *sessionActor) error {
		next := a.plan.clone()
		var err error
		next.Waypoints, removed, err = next.Waypoints.Remove(waypointID)
		if err != nil {
			return err
		}

		out, err = s.commitPlan(ctx, a, next)
		return err
	})
	return removed, out, err
}

// RestoreWaypoint re-inserts a removed waypoint at its former position.
func (s *NavigationService) RestoreWaypoint(ctx context.Context, id string, wp route.Waypoint) (Plan, error) {
	if err := validatePoints(wp.Location); err != nil {
		return Plan{}, err
	}
	if wp.ID == "" {
		wp.ID = uuid.NewString()
	}

	var out Plan
	err := s.exec(ctx, id, func(a *sessionActor) error {
		next := a.plan.clone()
		next.Waypoints = next.Waypoints.Restore(wp)

		var err error
		out, err = s.commitPlan(ctx, a, next)
		return err
	})
	return out, err
}

// ReorderWaypoints arranges the waypoints in the order of waypointIDs.
func (s *NavigationService) ReorderWaypoints(ctx context.Context, id string, waypointIDs []string) (Plan, error) {
	var out Plan
	err := s.exec(ctx, id, func(a *sessionActor) error {
		next := a.plan.clone()
		var err error
		next.Waypoints, err = next.Waypoints.Reorder(waypointIDs)
		if err != nil {
			return err
		}

		out, err = s.commitPlan(ctx, a, next)
		return err
	})
	return out, err
}

// ClearRoute forgets the stops, waypoints and route. Navigation, if active,
// continues with nothing to match against.
func (s *NavigationService) ClearRoute(ctx context.Context, id string) error {
	return s.exec(ctx, id, func(a *sessionActor) error {
		a.plan = Plan{}
		a.session.ClearRoute()
		return nil
	})
}

// Start begins navigating the planned route.
func (s *NavigationService) Start(ctx context.Context, id string) (navigation.Progress, error) {
	var out navigation.Progress
	err := s.exec(ctx, id, func(a *sessionActor) error {
		if a.plan.Route == nil {
			return ErrNoRoute
		}
		a.session.Start()
		out = a.session.Snapshot()
		s.publish(ctx, id, out)
		return nil
	})
	return out, err
}

// Stop ends navigation and publishes the idle state.
func (s *NavigationService) Stop(ctx context.Context, id string) error {
	return s.exec(ctx, id, func(a *sessionActor) error {
		if !a.session.Navigating() {
			return nil
		}
		a.session.Stop()
		s.publish(ctx, id, a.session.Snapshot())
		return nil
	})
}

// ReportLocation matches one device fix. Emitted progress is forwarded to
// every sink before it returns.
func (s *NavigationService) ReportLocation(ctx context.Context, id string, fix geo.Point) (navigation.Result, error) {
	if err := validatePoints(fix); err != nil {
		return navigation.Result{}, err
	}

	var res navigation.Result
	err := s.exec(ctx, id, func(a *sessionActor) error {
		start := time.Now()
		res = a.session.Update(fix)
		if !a.session.Navigating() {
			return nil
		}
		s.metrics.ObserveUpdate(res, time.Since(start))

		if res.OffRouteChanged {
			log.Printf("Session %s off-route=%t (%.0f m from route)", id, res.Progress.OffRoute, res.MinDistance)
		}
		if res.Emitted {
			s.publish(ctx, id, res.Progress)
		}
		return nil
	})
	return res, err
}

// Progress returns the last emitted progress.
func (s *NavigationService) Progress(ctx context.Context, id string) (navigation.Progress, error) {
	var out navigation.Progress
	err := s.exec(ctx, id, func(a *sessionActor) error {
		out = a.session.Snapshot()
		return nil
	})
	return out, err
}

// Plan returns a copy of the session's planning state.
func (s *NavigationService) Plan(ctx context.Context, id string) (Plan, error) {
	var out Plan
	err := s.exec(ctx, id, func(a *sessionActor) error {
		out = a.plan.clone()
		return nil
	})
	return out, err
}

// Route returns the planned route.
func (s *NavigationService) Route(ctx context.Context, id string) (route.Route, error) {
	p, err := s.Plan(ctx, id)
	if err != nil {
		return route.Route{}, err
	}
	if p.Route == nil {
		return route.Route{}, ErrNoRoute
	}
	return *p.Route, nil
}

// exec runs fn on the session's goroutine and waits for it.
func (s *NavigationService) exec(ctx context.Context, id string, fn func(a *sessionActor) error) error {
	s.mu.RLock()
	a, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return a.do(ctx, fn)
}

// commitPlan plans a route for next when both stops are known and, on
// success, installs next as the session's plan. Without stops only the plan
// changes.
func (s *NavigationService) commitPlan(ctx context.Context, a *sessionActor, next Plan) (Plan, error) {
	if next.Origin == nil || next.Destination == nil {
		next.Route = nil
		a.plan = next
		return next.clone(), nil
	}

	r, err := s.planRoute(ctx, next)
	if err != nil {
		return Plan{}, err
	}
	next.Route = &r
	a.plan = next
	a.session.SetRoute(r)
	log.Printf("Session %s planned route: %d legs, %d steps, %d m", a.id, len(r.Legs), r.StepCount(), r.DistanceMeters)
	return next.clone(), nil
}

// planRoute returns a cached route for p's stops or asks the provider. When
// the provider fails for any reason other than there being no route, an
// expired cached route for the same stops is used instead.
func (s *NavigationService) planRoute(ctx context.Context, p Plan) (route.Route, error) {
	key := cache.RouteKey(*p.Origin, *p.Destination, p.Waypoints.Locations())

	if s.cache != nil {
		r, found, err := s.cache.GetRoute(key)
		if err == nil && found {
			err = r.Validate()
		}
		if err != nil {
			log.Printf("Dropping unusable cached route %s: %v", key, err)
			s.cache.Delete(key)
			found = false
		}
		s.metrics.ObserveRouteCache(found)
		if found {
			r.Waypoints = p.Waypoints
			return r, nil
		}
	}

	start := time.Now()
	r, err := s.provider.Route(ctx, google.RouteRequest{
		Origin:      *p.Origin,
		Destination: *p.Destination,
		Waypoints:   p.Waypoints,
	})
	switch {
	case errors.Is(err, google.ErrNoRoutes):
		s.metrics.ObserveDirections("no_routes", time.Since(start))
		return route.Route{}, err
	case err != nil:
		s.metrics.ObserveDirections("error", time.Since(start))
		if stale, plannedAt, ok := s.staleRoute(key); ok {
			log.Printf("Directions unavailable (%v), using route planned at %s", err, plannedAt.Format(time.RFC3339))
			stale.Waypoints = p.Waypoints
			return stale, nil
		}
		return route.Route{}, fmt.Errorf("failed to plan route: %w", err)
	}
	s.metrics.ObserveDirections("ok", time.Since(start))

	r.Waypoints = p.Waypoints
	if s.cache != nil && s.opts.CacheTTL > 0 {
		if err := s.cache.SetRoute(key, r, s.opts.CacheTTL); err != nil {
			log.Printf("Failed to cache route: %v", err)
		}
	}
	return r, nil
}

func (s *NavigationService) staleRoute(key string) (route.Route, time.Time, bool) {
	if s.cache == nil {
		return route.Route{}, time.Time{}, false
	}
	r, plannedAt, found, err := s.cache.StaleRoute(key)
	if err != nil || !found || r.Validate() != nil {
		return route.Route{}, time.Time{}, false
	}
	return r, plannedAt, true
}

// publish forwards progress to every sink. Sink failures are logged only.
func (s *NavigationService) publish(ctx context.Context, id string, p navigation.Progress) {
	for _, sink := range s.opts.Sinks {
		if err := sink.Publish(ctx, id, p); err != nil {
			log.Printf("Failed to publish progress for session %s: %v", id, err)
		}
	}
}

func validatePoints(points ...geo.Point) error {
	for _, p := range points {
		if err := geo.ValidateCoordinate(p); err != nil {
			return err
		}
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()                                 {}
func (nopMetrics) SessionClosed()                                 {}
func (nopMetrics) ObserveUpdate(navigation.Result, time.Duration) {}
func (nopMetrics) ObserveDirections(string, time.Duration)        {}
func (nopMetrics) ObserveRouteCache(bool)                         {}
