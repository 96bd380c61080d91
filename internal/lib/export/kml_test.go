package export

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

func testRoute() route.Route {
	a := geo.Point{Latitude: 38.0675, Longitude: -120.5436}
	b := geo.Point{Latitude: 38.0700, Longitude: -120.5400}
	c := geo.Point{Latitude: 38.0750, Longitude: -120.5300}

	return route.Route{
		Summary: "CA-4 E",
		Legs: []route.Leg{{
			Steps: []route.Step{
				{Instruction: "Head northeast", DistanceMeters: 420, Polyline: geo.EncodePolyline([]geo.Point{a, b}), Start: a, End: b, Maneuver: route.ManeuverStraight},
				{Instruction: "Turn right onto CA-4 E", DistanceMeters: 1010, Polyline: geo.EncodePolyline([]geo.Point{b, c}), Start: b, End: c, Maneuver: route.ManeuverTurnRight},
			},
		}},
		Waypoints: []route.Waypoint{{ID: "w1", Location: b, RoadName: "Main St", Locked: true}},
	}.WithTotals()
}

func wellFormed(t *testing.T, data []byte) {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
	}
}

func TestRouteKML(t *testing.T) {
	pos := geo.Point{Latitude: 38.068, Longitude: -120.543}
	data, err := RouteKML(testRoute(), &pos)
	require.NoError(t, err)
	wellFormed(t, data)

	out := string(data)
	assert.Contains(t, out, "<name>CA-4 E</name>")
	assert.Contains(t, out, "<name>Head northeast</name>")
	assert.Contains(t, out, "<name>Turn right onto CA-4 E</name>")
	assert.Contains(t, out, "<name>Main St</name>")
	assert.Contains(t, out, "<name>Current position</name>")
	assert.Contains(t, out, "turn-right")
	assert.Equal(t, 2, strings.Count(out, "<LineString>"))
	assert.Equal(t, 4, strings.Count(out, "<Placemark>"))
}

func TestRouteKML_WithoutPosition(t *testing.T) {
	r := testRoute()
	r.Summary = ""
	r.Waypoints = nil

	data, err := RouteKML(r, nil)
	require.NoError(t, err)

	out := string(data)
	assert.NotContains(t, out, "Current position")
	assert.Contains(t, out, "Route (1.4 km)")
	assert.Equal(t, 2, strings.Count(out, "<Placemark>"))
}

func TestRouteKML_BadPolyline(t *testing.T) {
	r := testRoute()
	r.Legs[0].Steps[1].Polyline = ""

	_, err := RouteKML(r, nil)
	assert.Error(t, err)
}
