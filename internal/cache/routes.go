package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

const routeSource = "directions"

// RouteKey identifies a planned route by its stops. Waypoint order matters;
// coordinates are compared at roughly 10 cm precision.
func RouteKey(origin, destination geo.Point, waypoints []geo.Point) string {
	var b strings.Builder
	b.WriteString("route:")
	writePoint(&b, origin)
	for _, wp := range waypoints {
		b.WriteString("|via:")
		writePoint(&b, wp)
	}
	b.WriteString("|")
	writePoint(&b, destination)
	return b.String()
}

func writePoint(b *strings.Builder, p geo.Point) {
	fmt.Fprintf(b, "%.6f,%.6f", p.Latitude, p.Longitude)
}

// SetRoute caches a planned route for ttl.
func (c *Cache) SetRoute(key string, r route.Route, ttl time.Duration) error {
	return c.Set(key, r, ttl, routeSource)
}

// GetRoute returns a fresh cached route.
func (c *Cache) GetRoute(key string) (route.Route, bool, error) {
	var r route.Route
	found, err := c.Get(key, &r)
	if err != nil || !found {
		return route.Route{}, false, err
	}
	return r, true, nil
}

// StaleRoute returns a cached route even after it has expired, with the time
// it was planned. It serves as a fallback while the Directions API is
// unavailable.
func (c *Cache) StaleRoute(key string) (route.Route, time.Time, bool, error) {
	var r route.Route
	entry, found, err := c.GetWithMetadata(key, &r)
	if err != nil || !found {
		return route.Route{}, time.Time{}, false, err
	}
	return r, entry.CreatedAt, true, nil
}
