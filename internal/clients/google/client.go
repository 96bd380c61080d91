package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"github.com/stonecode/pickmyroute/server/internal/config"
	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

// DefaultBaseURL is the Google Maps web service host.
const DefaultBaseURL = "https://maps.googleapis.com"

// ErrNoRoutes is returned when the Directions API finds no route between the
// requested stops.
var ErrNoRoutes = errors.New("no routes found")

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// HTTPDoer interface for dependency injection
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RouteRequest describes a driving route to plan.
type RouteRequest struct {
	Origin      geo.Point
	Destination geo.Point
	Waypoints   []route.Waypoint
}

// RouteProvider plans driving routes.
type RouteProvider interface {
	Route(ctx context.Context, req RouteRequest) (route.Route, error)
}

// DirectionsClient plans routes with the Google Directions API
type DirectionsClient struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	limiter    *rate.Limiter
	language   string
	region     string
	units      maps.Units
}

// NewDirectionsClient creates a Directions client. Outbound calls are
// limited to cfg.QPS with bursts of cfg.Burst.
func NewDirectionsClient(cfg config.DirectionsConfig) (*DirectionsClient, error) {
	return NewDirectionsClientWithHTTPDoer(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewDirectionsClientWithHTTPDoer creates a Directions client with a custom HTTP doer (for testing)
func NewDirectionsClientWithHTTPDoer(cfg config.DirectionsConfig, httpClient HTTPDoer) (*DirectionsClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("directions API key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	units := maps.UnitsImperial
	if cfg.Metric {
		units = maps.UnitsMetric
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &DirectionsClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.QPS), burst),
		language:   cfg.Language,
		region:     cfg.Region,
		units:      units,
	}, nil
}

// Route plans a driving route that stops at each waypoint in order, so the
// result has one leg per stop-to-stop span.
func (c *DirectionsClient) Route(ctx context.Context, req RouteRequest) (route.Route, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return route.Route{}, fmt.Errorf("directions rate limiter: %w", err)
	}

	waypoints := orderedWaypoints(req.Waypoints)
	optimize := canOptimize(waypoints)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.directionsURL(req, waypoints, optimize), nil)
	if err != nil {
		return route.Route{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return route.Route{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return route.Route{}, fmt.Errorf("directions request failed: rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return route.Route{}, fmt.Errorf("directions request failed: API error %d: %s", resp.StatusCode, string(body))
	}

	var response directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return route.Route{}, fmt.Errorf("failed to decode response: %w", err)
	}

	switch response.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return route.Route{}, fmt.Errorf("%w: %s", ErrNoRoutes, response.Status)
	default:
		return route.Route{}, fmt.Errorf("directions request failed: %s - %s", response.Status, response.ErrorMessage)
	}
	if len(response.Routes) == 0 {
		return route.Route{}, ErrNoRoutes
	}

	dr := response.Routes[0]
	r, err := convertRoute(dr)
	if err != nil {
		return route.Route{}, err
	}
	if optimize {
		waypoints = applyWaypointOrder(waypoints, dr.WaypointOrder)
	}
	r.Waypoints = waypoints
	return r, nil
}

func (c *DirectionsClient) directionsURL(req RouteRequest, waypoints []route.Waypoint, optimize bool) string {
	q := url.Values{}
	q.Set("origin", latLng(req.Origin))
	q.Set("destination", latLng(req.Destination))
	q.Set("mode", string(maps.TravelModeDriving))
	q.Set("units", string(c.units))
	if len(waypoints) > 0 {
		stops := make([]string, 0, len(waypoints)+1)
		if optimize {
			stops = append(stops, "optimize:true")
		}
		for _, w := range waypoints {
			stops = append(stops, w.LatLngString())
		}
		q.Set("waypoints", strings.Join(stops, "|"))
	}
	if c.language != "" {
		q.Set("language", c.language)
	}
	if c.region != "" {
		q.Set("region", c.region)
	}
	q.Set("key", c.apiKey)
	return c.baseURL + "/maps/api/directions/json?" + q.Encode()
}

// orderedWaypoints returns a copy sorted by Order.
func orderedWaypoints(waypoints []route.Waypoint) []route.Waypoint {
	if len(waypoints) == 0 {
		return nil
	}
	out := make([]route.Waypoint, len(waypoints))
	copy(out, waypoints)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// canOptimize allows the API to reorder waypoints only when none is locked.
func canOptimize(waypoints []route.Waypoint) bool {
	if len(waypoints) < 2 {
		return false
	}
	for _, w := range waypoints {
		if w.Locked {
			return false
		}
	}
	return true
}

// applyWaypointOrder rearranges waypoints into the order the API visited
// them and renumbers them. An order that does not cover every waypoint is
// ignored.
func applyWaypointOrder(waypoints []route.Waypoint, order []int) []route.Waypoint {
	if len(order) != len(waypoints) {
		return waypoints
	}
	out := make([]route.Waypoint, len(waypoints))
	seen := make([]bool, len(waypoints))
	for i, idx := range order {
		if idx < 0 || idx >= len(waypoints) || seen[idx] {
			return waypoints
		}
		seen[idx] = true
		out[i] = waypoints[idx]
		out[i].Order = i + 1
	}
	return out
}

func latLng(p geo.Point) string {
	return fmt.Sprintf("%f,%f", p.Latitude, p.Longitude)
}

func point(ll maps.LatLng) geo.Point {
	return geo.Point{Latitude: ll.Lat, Longitude: ll.Lng}
}

// convertRoute maps an API route onto the route model. The last step of the
// last leg is tagged as the destination when the API gave it no maneuver.
func convertRoute(dr directionsRoute) (route.Route, error) {
	r := route.Route{
		OverviewPolyline: dr.OverviewPolyline.Points,
		Summary:          dr.Summary,
		Warnings:         dr.Warnings,
		Copyrights:       dr.Copyrights,
		Bounds: geo.Bounds{
			SouthWest: point(dr.Bounds.SouthWest),
			NorthEast: point(dr.Bounds.NorthEast),
		},
	}

	for _, dl := range dr.Legs {
		leg := route.Leg{
			DistanceMeters:  dl.Distance.Meters,
			DurationSeconds: dl.Duration.Value,
			Start:           point(dl.StartLocation),
			End:             point(dl.EndLocation),
			StartAddress:    dl.StartAddress,
			EndAddress:      dl.EndAddress,
		}
		for _, ds := range dl.Steps {
			leg.Steps = append(leg.Steps, route.Step{
				Instruction:     StripHTML(ds.HTMLInstructions),
				HTMLInstruction: ds.HTMLInstructions,
				DistanceMeters:  ds.Distance.Meters,
				DurationSeconds: ds.Duration.Value,
				Polyline:        ds.Polyline.Points,
				Start:           point(ds.StartLocation),
				End:             point(ds.EndLocation),
				Maneuver:        route.ParseManeuver(ds.Maneuver),
			})
		}
		r.Legs = append(r.Legs, leg)
	}

	if r.StepCount() == 0 {
		return route.Route{}, fmt.Errorf("%w: route has no steps", ErrNoRoutes)
	}

	last := &r.Legs[len(r.Legs)-1]
	if n := len(last.Steps); n > 0 && last.Steps[n-1].Maneuver == route.ManeuverUnknown {
		last.Steps[n-1].Maneuver = route.ManeuverDestination
	}

	if r.Bounds == (geo.Bounds{}) && r.OverviewPolyline != "" {
		if points, err := geo.DecodePolyline(r.OverviewPolyline); err == nil {
			if b, err := geo.BoundsOf(points); err == nil {
				r.Bounds = b
			}
		}
	}

	return r.WithTotals(), nil
}

// StripHTML removes HTML tags and decodes HTML entities
func StripHTML(htmlContent string) string {
	text := htmlTagPattern.ReplaceAllString(htmlContent, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// directionsResponse represents the Directions API response structure
type directionsResponse struct {
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Routes       []directionsRoute `json:"routes"`
}

// directionsRoute represents a single route in the response
type directionsRoute struct {
	Summary          string            `json:"summary"`
	Legs             []directionsLeg   `json:"legs"`
	OverviewPolyline maps.Polyline     `json:"overview_polyline"`
	Bounds           maps.LatLngBounds `json:"bounds"`
	Copyrights       string            `json:"copyrights"`
	Warnings         []string          `json:"warnings"`
	WaypointOrder    []int             `json:"waypoint_order"`
}

type directionsLeg struct {
	Steps         []directionsStep   `json:"steps"`
	Distance      maps.Distance      `json:"distance"`
	Duration      directionsDuration `json:"duration"`
	StartLocation maps.LatLng        `json:"start_location"`
	EndLocation   maps.LatLng        `json:"end_location"`
	StartAddress  string             `json:"start_address"`
	EndAddress    string             `json:"end_address"`
}

type directionsStep struct {
	HTMLInstructions string             `json:"html_instructions"`
	Distance         maps.Distance      `json:"distance"`
	Duration         directionsDuration `json:"duration"`
	StartLocation    maps.LatLng        `json:"start_location"`
	EndLocation      maps.LatLng        `json:"end_location"`
	Polyline         maps.Polyline      `json:"polyline"`
	Maneuver         string             `json:"maneuver,omitempty"` // "turn-right", "roundabout-left", ...
}

// directionsDuration is a duration in whole seconds
type directionsDuration struct {
	Value int    `json:"value"`
	Text  string `json:"text"`
}
