package route

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
)

var (
	// ErrWaypointNotFound is returned when a waypoint ID is not in the list.
	ErrWaypointNotFound = errors.New("waypoint not found")
	// ErrInvalidOrder is returned when a reorder does not name every
	// waypoint exactly once.
	ErrInvalidOrder = errors.New("invalid waypoint order")
)

// Waypoint is a user-chosen intermediate point. User-placed waypoints are
// always locked: the route must pass through them.
type Waypoint struct {
	ID       string    `json:"id"`
	Location geo.Point `json:"location"`
	RoadName string    `json:"road_name,omitempty"`
	Locked   bool      `json:"locked"`
	Order    int       `json:"order"`
}

// NewWaypoint creates a locked waypoint with a fresh ID. Order is assigned
// when it is added to a list.
func NewWaypoint(location geo.Point, roadName string) Waypoint {
	return Waypoint{
		ID:       uuid.NewString(),
		Location: location,
		RoadName: roadName,
		Locked:   true,
	}
}

// LatLngString renders the waypoint as "lat,lng", the Directions stop form.
func (w Waypoint) LatLngString() string {
	return fmt.Sprintf("%f,%f", w.Location.Latitude, w.Location.Longitude)
}

// Waypoints is an ordered waypoint list. Every mutation returns a new slice
// renumbered densely from 1.
type Waypoints []Waypoint

// Add appends a waypoint.
func (ws Waypoints) Add(w Waypoint) Waypoints {
	out := make(Waypoints, 0, len(ws)+1)
	out = append(out, ws...)
	out = append(out, w)
	return out.renumber()
}

// Remove drops the waypoint with the given ID.
func (ws Waypoints) Remove(id string) (Waypoints, Waypoint, error) {
	idx := ws.indexOf(id)
	if idx < 0 {
		return ws, Waypoint{}, fmt.Errorf("%w: %s", ErrWaypointNotFound, id)
	}
	removed := ws[idx]

	out := make(Waypoints, 0, len(ws)-1)
	out = append(out, ws[:idx]...)
	out = append(out, ws[idx+1:]...)
	return out.renumber(), removed, nil
}

// Restore re-inserts a previously removed waypoint at its former position,
// clamped to the current list bounds. Restoring a waypoint that is still in
// the list leaves the list unchanged.
func (ws Waypoints) Restore(w Waypoint) Waypoints {
	if ws.indexOf(w.ID) >= 0 {
		return ws
	}

	idx := w.Order - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(ws) {
		idx = len(ws)
	}

	out := make(Waypoints, 0, len(ws)+1)
	out = append(out, ws[:idx]...)
	out = append(out, w)
	out = append(out, ws[idx:]...)
	return out.renumber()
}

// Reorder arranges the waypoints in the order of ids, which must name every
// waypoint exactly once.
func (ws Waypoints) Reorder(ids []string) (Waypoints, error) {
	if len(ids) != len(ws) {
		return ws, fmt.Errorf("%w: need %d ids, got %d", ErrInvalidOrder, len(ws), len(ids))
	}

	seen := make(map[string]bool, len(ids))
	out := make(Waypoints, 0, len(ws))
	for _, id := range ids {
		if seen[id] {
			return ws, fmt.Errorf("%w: duplicate waypoint id %s", ErrInvalidOrder, id)
		}
		seen[id] = true

		idx := ws.indexOf(id)
		if idx < 0 {
			return ws, fmt.Errorf("%w: %s", ErrWaypointNotFound, id)
		}
		out = append(out, ws[idx])
	}
	return out.renumber(), nil
}

// Locations returns the waypoint locations in order.
func (ws Waypoints) Locations() []geo.Point {
	points := make([]geo.Point, len(ws))
	for i, w := range ws {
		points[i] = w.Location
	}
	return points
}

func (ws Waypoints) indexOf(id string) int {
	for i, w := range ws {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// renumber assigns Order 1..N in place. Callers only pass freshly built
// slices.
func (ws Waypoints) renumber() Waypoints {
	for i := range ws {
		ws[i].Order = i + 1
	}
	return ws
}
