package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/stonecode/pickmyroute/server/internal/lib/export"
	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
	"github.com/stonecode/pickmyroute/server/internal/services"
)

// Navigator is the session API the HTTP handlers drive.
// *services.NavigationService implements it.
type Navigator interface {
	CreateSession(ctx context.Context) (string, error)
	CloseSession(id string) error
	PlanRoute(ctx context.Context, id string, origin, destination geo.Point) (services.Plan, error)
	AddWaypoint(ctx context.Context, id string, location geo.Point, roadName string) (route.Waypoint, services.Plan, error)
	RemoveWaypoint(ctx context.Context, id, waypointID string) (route.Waypoint, services.Plan, error)
	RestoreWaypoint(ctx context.Context, id string, wp route.Waypoint) (services.Plan, error)
	ReorderWaypoints(ctx context.Context, id string, waypointIDs []string) (services.Plan, error)
	ClearRoute(ctx context.Context, id string) error
	Start(ctx context.Context, id string) (navigation.Progress, error)
	Stop(ctx context.Context, id string) error
	ReportLocation(ctx context.Context, id string, fix geo.Point) (navigation.Result, error)
	Progress(ctx context.Context, id string) (navigation.Progress, error)
	Plan(ctx context.Context, id string) (services.Plan, error)
	Route(ctx context.Context, id string) (route.Route, error)
}

// Options configures the HTTP API.
type Options struct {
	// Metric selects kilometers over miles for route totals.
	Metric      bool
	CorsOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Health answers /healthz when set.
	Health healthpb.HealthServer
	// RequestTimeout bounds each API request; zero means no limit.
	RequestTimeout time.Duration
}

// Handler serves the navigation HTTP API.
type Handler struct {
	nav       Navigator
	opts      Options
	validator *requestValidator
	now       func() time.Time
}

// NewRouter builds the chi router for the API.
func NewRouter(nav Navigator, opts Options) http.Handler {
	h := &Handler{nav: nav, opts: opts, validator: newRequestValidator(), now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", homepageHandler)
	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/sessions", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(render.SetContentType(render.ContentTypeJSON))
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}

		r.Post("/", h.createSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Delete("/", h.closeSession)

			r.Get("/route", h.getRoute)
			r.Post("/route", h.planRoute)
			r.Delete("/route", h.clearRoute)
			r.Get("/route.kml", h.routeKML)

			r.Post("/waypoints", h.addWaypoint)
			r.Delete("/waypoints/{waypointID}", h.removeWaypoint)
			r.Post("/waypoints/restore", h.restoreWaypoint)
			r.Put("/waypoints/order", h.reorderWaypoints)

			r.Post("/navigation/start", h.startNavigation)
			r.Post("/navigation/stop", h.stopNavigation)
			r.Post("/fixes", h.reportLocation)
			r.Get("/progress", h.progress)
		})
	})

	return r
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.nav.CreateSession(r.Context())
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Status(r, http.StatusCreated)
	render.Render(w, r, &SessionResponse{ID: id})
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.nav.CloseSession(sessionID(r)); err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.NoContent(w, r)
}

func (h *Handler) getRoute(w http.ResponseWriter, r *http.Request) {
	plan, err := h.nav.Plan(r.Context(), sessionID(r))
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, NewPlanResponse(plan, h.opts.Metric))
}

func (h *Handler) planRoute(w http.ResponseWriter, r *http.Request) {
	data := &PlanRouteRequest{}
	if !h.validator.bind(w, r, data) {
		return
	}

	plan, err := h.nav.PlanRoute(r.Context(), sessionID(r), data.Origin.Point(), data.Destination.Point())
	if err != nil {
		log.Printf("Failed to plan route for session %s: %v", sessionID(r), err)
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, NewPlanResponse(plan, h.opts.Metric))
}

func (h *Handler) clearRoute(w http.ResponseWriter, r *http.Request) {
	if err := h.nav.ClearRoute(r.Context(), sessionID(r)); err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.NoContent(w, r)
}

// routeKML exports the planned route. Optional lat and lng query parameters
// add a current-position placemark.
func (h *Handler) routeKML(w http.ResponseWriter, r *http.Request) {
	rt, err := h.nav.Route(r.Context(), sessionID(r))
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}

	current, err := queryPoint(r)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	b, err := export.RouteKML(rt, current)
	if err != nil {
		render.Render(w, r, ErrInternal(err))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "route-"+sessionID(r)+".kml"))
	if _, err := w.Write(b); err != nil {
		slog.Error("Failed to write KML", "error", err)
	}
}

func queryPoint(r *http.Request) (*geo.Point, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" && q.Get("lng") == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lat: %w", err)
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lng: %w", err)
	}
	p, err := geo.NewPoint(lat, lng)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (h *Handler) addWaypoint(w http.ResponseWriter, r *http.Request) {
	data := &WaypointRequest{}
	if !h.validator.bind(w, r, data) {
		return
	}

	wp, plan, err := h.nav.AddWaypoint(r.Context(), sessionID(r), data.Point(), data.RoadName)
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Status(r, http.StatusCreated)
	render.Render(w, r, &WaypointResponse{Waypoint: wp, PlanResponse: NewPlanResponse(plan, h.opts.Metric)})
}

func (h *Handler) removeWaypoint(w http.ResponseWriter, r *http.Request) {
	wp, plan, err := h.nav.RemoveWaypoint(r.Context(), sessionID(r), chi.URLParam(r, "waypointID"))
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, &WaypointResponse{Waypoint: wp, PlanResponse: NewPlanResponse(plan, h.opts.Metric)})
}

func (h *Handler) restoreWaypoint(w http.ResponseWriter, r *http.Request) {
	data := &RestoreWaypointRequest{}
	if !h.validator.bind(w, r, data) {
		return
	}

	plan, err := h.nav.RestoreWaypoint(r.Context(), sessionID(r), *data.Waypoint)
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, NewPlanResponse(plan, h.opts.Metric))
}

func (h *Handler) reorderWaypoints(w http.ResponseWriter, r *http.Request) {
	data := &ReorderWaypointsRequest{}
	if !h.validator.bind(w, r, data) {
		return
	}

	plan, err := h.nav.ReorderWaypoints(r.Context(), sessionID(r), data.IDs)
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, NewPlanResponse(plan, h.opts.Metric))
}

func (h *Handler) startNavigation(w http.ResponseWriter, r *http.Request) {
	p, err := h.nav.Start(r.Context(), sessionID(r))
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, NewProgressResponse(p, h.now()))
}

func (h *Handler) stopNavigation(w http.ResponseWriter, r *http.Request) {
	if err := h.nav.Stop(r.Context(), sessionID(r)); err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.NoContent(w, r)
}

func (h *Handler) reportLocation(w http.ResponseWriter, r *http.Request) {
	data := &FixRequest{}
	if !h.validator.bind(w, r, data) {
		return
	}

	res, err := h.nav.ReportLocation(r.Context(), sessionID(r), data.Point())
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, &FixResponse{
		ProgressResponse: NewProgressResponse(res.Progress, h.now()),
		Emitted:          res.Emitted,
		StepsAdvanced:    res.StepsAdvanced,
	})
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.nav.Progress(r.Context(), sessionID(r))
	if err != nil {
		render.Render(w, r, errFromService(err))
		return
	}
	render.Render(w, r, NewProgressResponse(p, h.now()))
}

// healthz reports the gRPC health status of the server over HTTP.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.opts.Health != nil {
		resp, err := h.opts.Health.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil {
			status = healthpb.HealthCheckResponse_UNKNOWN
		} else {
			status = resp.GetStatus()
		}
	}

	if status != healthpb.HealthCheckResponse_SERVING {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, map[string]string{"status": status.String()})
}
