package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stonecode/pickmyroute/server/internal/cache"
	"github.com/stonecode/pickmyroute/server/internal/clients/google"
	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

type MockRouteProvider struct {
	mock.Mock
}

func (m *MockRouteProvider) Route(ctx context.Context, req google.RouteRequest) (route.Route, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(route.Route), args.Error(1)
}

type MockProgressSink struct {
	mock.Mock
}

func (m *MockProgressSink) Publish(ctx context.Context, sessionID string, p navigation.Progress) error {
	return m.Called(ctx, sessionID, p).Error(0)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

var (
	origin      = geo.Point{Latitude: 0, Longitude: 0}
	destination = geo.Point{Latitude: 0, Longitude: 0.0018}
)

// eastRoute is a single ~200 m step along the equator.
func eastRoute() route.Route {
	start, end := origin, destination
	return route.Route{
		Summary: "Equator Rd",
		Legs: []route.Leg{{
			Start: start,
			End:   end,
			Steps: []route.Step{{
				Instruction:    "Head east on Equator Rd",
				DistanceMeters: 200,
				Polyline:       geo.EncodePolyline([]geo.Point{start, end}),
				Start:          start,
				End:            end,
				Maneuver:       route.ManeuverDestination,
			}},
		}},
	}.WithTotals()
}

func newTestService(t *testing.T, provider google.RouteProvider, opts Options) *NavigationService {
	t.Helper()
	if opts.Params == (navigation.Params{}) {
		opts.Params = navigation.DefaultParams()
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Minute
	}
	svc, err := NewNavigationService(provider, cache.NewCache(), opts)
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestNavigationService_SessionLifecycle(t *testing.T) {
	svc := newTestService(t, &MockRouteProvider{}, Options{})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Len(t, svc.Sessions(), 1)

	p, err := svc.Progress(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.Navigating)
	assert.Nil(t, p.StepIndex)

	require.NoError(t, svc.CloseSession(id))
	assert.Empty(t, svc.Sessions())

	_, err = svc.Progress(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.CloseSession(id), ErrSessionNotFound)
}

func TestNavigationService_MaxSessions(t *testing.T) {
	svc := newTestService(t, &MockRouteProvider{}, Options{MaxSessions: 1})
	ctx := context.Background()

	_, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx)
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestNavigationService_ShutdownRejectsSessions(t *testing.T) {
	svc := newTestService(t, &MockRouteProvider{}, Options{})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	svc.Shutdown()
	_, err = svc.Progress(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.CreateSession(ctx)
	assert.ErrorIs(t, err, ErrServiceShutdown)
}

func TestNavigationService_PlanRouteUsesCache(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, google.RouteRequest{Origin: origin, Destination: destination}).
		Return(eastRoute(), nil).Once()

	svc := newTestService(t, provider, Options{})
	ctx := context.Background()

	first, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	plan, err := svc.PlanRoute(ctx, first, origin, destination)
	require.NoError(t, err)
	require.NotNil(t, plan.Route)
	assert.Equal(t, 200, plan.Route.DistanceMeters)

	// Same stops from another session are served from the cache.
	_, err = svc.PlanRoute(ctx, second, origin, destination)
	require.NoError(t, err)

	r, err := svc.Route(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "Equator Rd", r.Summary)

	provider.AssertExpectations(t)
}

func TestNavigationService_PlanRouteErrors(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, mock.Anything).Return(route.Route{}, google.ErrNoRoutes).Once()

	svc := newTestService(t, provider, Options{})
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.PlanRoute(ctx, id, origin, geo.Point{Latitude: 91, Longitude: 0})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	_, err = svc.PlanRoute(ctx, id, origin, destination)
	assert.ErrorIs(t, err, google.ErrNoRoutes)

	// A failed plan leaves the session without stops or route.
	plan, err := svc.Plan(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, plan.Destination)
	_, err = svc.Route(ctx, id)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestNavigationService_PlanRouteFallsBackToStaleRoute(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, mock.Anything).Return(eastRoute(), nil).Once()
	provider.On("Route", mock.Anything, mock.Anything).Return(route.Route{}, errors.New("directions request failed: UNKNOWN_ERROR")).Once()
	provider.On("Route", mock.Anything, mock.Anything).Return(route.Route{}, google.ErrNoRoutes).Once()

	svc := newTestService(t, provider, Options{CacheTTL: time.Millisecond})
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	// The cached route has expired and the provider is down.
	plan, err := svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)
	require.NotNil(t, plan.Route)
	assert.Equal(t, "Equator Rd", plan.Route.Summary)

	// No route at all is never papered over.
	_, err = svc.PlanRoute(ctx, id, origin, destination)
	assert.ErrorIs(t, err, google.ErrNoRoutes)

	provider.AssertExpectations(t)
}

func TestNavigationService_PlanRouteDropsUnusableCacheEntry(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, mock.Anything).Return(eastRoute(), nil).Once()

	routeCache := cache.NewCache()
	key := cache.RouteKey(origin, destination, nil)
	broken := eastRoute()
	broken.DistanceMeters = 999
	require.NoError(t, routeCache.SetRoute(key, broken, time.Minute))

	svc, err := NewNavigationService(provider, routeCache, Options{Params: navigation.DefaultParams(), CacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	plan, err := svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)
	assert.Equal(t, 200, plan.Route.DistanceMeters, "route is replanned")

	cached, found, err := routeCache.GetRoute(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.NoError(t, cached.Validate(), "the bad entry is replaced")
	provider.AssertExpectations(t)
}

func TestNavigationService_StartRequiresRoute(t *testing.T) {
	svc := newTestService(t, &MockRouteProvider{}, Options{})
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.Start(ctx, id)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestNavigationService_NavigatePublishesProgress(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, mock.Anything).Return(eastRoute(), nil)

	sink := &MockProgressSink{}
	svc := newTestService(t, provider, Options{Sinks: []ProgressSink{sink}})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)

	sink.On("Publish", mock.Anything, id, mock.MatchedBy(func(p navigation.Progress) bool {
		return p.Navigating && p.RemainingMeters == nil
	})).Return(nil).Once()
	sink.On("Publish", mock.Anything, id, mock.MatchedBy(func(p navigation.Progress) bool {
		return p.Navigating && p.RemainingMeters != nil
	})).Return(errors.New("sink unavailable")).Once()
	sink.On("Publish", mock.Anything, id, mock.MatchedBy(func(p navigation.Progress) bool {
		return !p.Navigating
	})).Return(nil).Once()

	initial, err := svc.Start(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, initial.StepIndex)
	assert.Equal(t, "Head east on Equator Rd", initial.Instruction)

	// Halfway along the step.
	res, err := svc.ReportLocation(ctx, id, geo.Point{Latitude: 0, Longitude: 0.0009})
	require.NoError(t, err, "sink failures are not returned to the caller")
	assert.True(t, res.Emitted)
	require.NotNil(t, res.Progress.RemainingMeters)
	assert.InDelta(t, 100, *res.Progress.RemainingMeters, 1)

	// Jitter is suppressed and not published.
	res, err = svc.ReportLocation(ctx, id, geo.Point{Latitude: 0, Longitude: 0.00091})
	require.NoError(t, err)
	assert.False(t, res.Emitted)

	require.NoError(t, svc.Stop(ctx, id))
	p, err := svc.Progress(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.Navigating)

	sink.AssertExpectations(t)
}

func TestNavigationService_ReportLocationValidates(t *testing.T) {
	svc := newTestService(t, &MockRouteProvider{}, Options{})
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.ReportLocation(ctx, id, geo.Point{Latitude: 0, Longitude: 181})
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	// Idle sessions ignore fixes.
	res, err := svc.ReportLocation(ctx, id, origin)
	require.NoError(t, err)
	assert.False(t, res.Emitted)
}

func TestNavigationService_Waypoints(t *testing.T) {
	provider := &MockRouteProvider{}
	withWaypoints := func(n int) any {
		return mock.MatchedBy(func(req google.RouteRequest) bool { return len(req.Waypoints) == n })
	}
	provider.On("Route", mock.Anything, withWaypoints(0)).Return(eastRoute(), nil)
	provider.On("Route", mock.Anything, withWaypoints(1)).Return(eastRoute(), nil)
	provider.On("Route", mock.Anything, withWaypoints(2)).Return(eastRoute(), nil)

	svc := newTestService(t, provider, Options{})
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	// Waypoints can be added before the stops are known.
	a, plan, err := svc.AddWaypoint(ctx, id, geo.Point{Latitude: 0.0001, Longitude: 0.0005}, "First St")
	require.NoError(t, err)
	assert.True(t, a.Locked)
	assert.Equal(t, 1, a.Order)
	assert.Nil(t, plan.Route)

	_, err = svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)

	b, plan, err := svc.AddWaypoint(ctx, id, geo.Point{Latitude: 0.0001, Longitude: 0.0012}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Order)
	require.NotNil(t, plan.Route)
	assert.Len(t, plan.Route.Waypoints, 2)

	plan, err = svc.ReorderWaypoints(ctx, id, []string{b.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, b.ID, plan.Waypoints[0].ID)
	assert.Equal(t, 1, plan.Waypoints[0].Order)

	_, err = svc.ReorderWaypoints(ctx, id, []string{b.ID})
	assert.ErrorIs(t, err, route.ErrInvalidOrder)

	removed, plan, err := svc.RemoveWaypoint(ctx, id, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, removed.ID)
	assert.Len(t, plan.Waypoints, 1)

	_, _, err = svc.RemoveWaypoint(ctx, id, "missing")
	assert.ErrorIs(t, err, route.ErrWaypointNotFound)

	plan, err = svc.RestoreWaypoint(ctx, id, removed)
	require.NoError(t, err)
	assert.Equal(t, b.ID, plan.Waypoints[0].ID)

	plan, err = svc.RestoreWaypoint(ctx, id, removed)
	require.NoError(t, err)
	assert.Len(t, plan.Waypoints, 2)

	require.NoError(t, svc.ClearRoute(ctx, id))
	plan, err = svc.Plan(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, plan.Waypoints)
	assert.Nil(t, plan.Route)
}

func TestNavigationService_FailedReplanKeepsWaypoints(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, mock.MatchedBy(func(req google.RouteRequest) bool {
		return len(req.Waypoints) == 0
	})).Return(eastRoute(), nil)
	provider.On("Route", mock.Anything, mock.MatchedBy(func(req google.RouteRequest) bool {
		return len(req.Waypoints) == 1
	})).Return(route.Route{}, errors.New("maps: OVER_QUERY_LIMIT"))

	svc := newTestService(t, provider, Options{})
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)

	_, _, err = svc.AddWaypoint(ctx, id, geo.Point{Latitude: 0.001, Longitude: 0.001}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OVER_QUERY_LIMIT")

	plan, err := svc.Plan(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, plan.Waypoints)
	assert.NotNil(t, plan.Route)
}

func TestNavigationService_ConcurrentFixesAreSerialised(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, mock.Anything).Return(eastRoute(), nil)

	svc := newTestService(t, provider, Options{CommandBuffer: 4})
	ctx := context.Background()
	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)
	_, err = svc.Start(ctx, id)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				lon := 0.0018 * float64((i*25+j)%200) / 200
				_, err := svc.ReportLocation(ctx, id, geo.Point{Latitude: 0, Longitude: lon})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	p, err := svc.Progress(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.Navigating)
	require.NotNil(t, p.StepIndex)
	assert.Equal(t, 0, *p.StepIndex)
}

func TestNavigationService_CancelledContext(t *testing.T) {
	svc := newTestService(t, &MockRouteProvider{}, Options{})
	id, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the enqueue observes the cancellation or the actor skips the
	// command.
	_, err = svc.Progress(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNavigationService_ExpiredFixIsNotApplied(t *testing.T) {
	provider := &MockRouteProvider{}
	provider.On("Route", mock.Anything, mock.Anything).Return(eastRoute(), nil)
	svc := newTestService(t, provider, Options{})
	ctx := context.Background()

	id, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.PlanRoute(ctx, id, origin, destination)
	require.NoError(t, err)
	_, err = svc.Start(ctx, id)
	require.NoError(t, err)

	strikes := func() int {
		var off int
		require.NoError(t, svc.exec(ctx, id, func(a *sessionActor) error {
			off, _ = a.session.Strikes()
			return nil
		}))
		return off
	}

	// Hold the session goroutine so the next fix waits in the queue.
	block := func() (release func()) {
		started, done := make(chan struct{}), make(chan struct{})
		go func() {
			_ = svc.exec(ctx, id, func(a *sessionActor) error {
				close(started)
				<-done
				return nil
			})
		}()
		<-started
		return func() { close(done) }
	}

	// About 1 km north of the route.
	farAway := geo.Point{Latitude: 0.01, Longitude: 0.0009}

	release := block()
	fixCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	result := make(chan error, 1)
	go func() {
		_, err := svc.ReportLocation(fixCtx, id, farAway)
		result <- err
	}()
	<-fixCtx.Done()
	release()

	require.ErrorIs(t, <-result, context.DeadlineExceeded)
	assert.Equal(t, 0, strikes(), "a fix reported as failed does not count toward going off-route")
	p, err := svc.Progress(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.OffRoute)

	// The same fix with a live context is applied once the queue drains.
	release = block()
	go func() {
		_, err := svc.ReportLocation(ctx, id, farAway)
		result <- err
	}()
	time.Sleep(10 * time.Millisecond)
	release()

	require.NoError(t, <-result)
	assert.Equal(t, 1, strikes())
}

func TestNavigationService_ReapIdle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	svc := newTestService(t, &MockRouteProvider{}, Options{})
	svc.now = clock.now
	ctx := context.Background()

	stale, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	clock.advance(20 * time.Minute)
	fresh, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	clock.advance(15 * time.Minute)
	assert.Equal(t, 1, svc.ReapIdle(30*time.Minute))

	_, err = svc.Progress(ctx, stale)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Any command keeps a session alive.
	_, err = svc.Progress(ctx, fresh)
	require.NoError(t, err)
	clock.advance(29 * time.Minute)
	assert.Equal(t, 0, svc.ReapIdle(30*time.Minute))
}

func TestSessionReaper_StartStop(t *testing.T) {
	svc := newTestService(t, &MockRouteProvider{}, Options{})
	reaper := NewSessionReaper(svc, time.Nanosecond, 5*time.Millisecond)

	_, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reaper.Start(ctx)
	reaper.Start(ctx)
	assert.True(t, reaper.IsRunning())

	assert.Eventually(t, func() bool { return len(svc.Sessions()) == 0 }, time.Second, 5*time.Millisecond)

	reaper.Stop()
	assert.False(t, reaper.IsRunning())
	reaper.Stop()
}
