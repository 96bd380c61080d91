// Package export renders planned routes for external viewers.
package export

import (
	"bytes"
	"fmt"

	"github.com/twpayne/go-kml"

	"github.com/stonecode/pickmyroute/server/internal/lib/format"
	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

// RouteKML renders a route as a KML document with one LineString placemark
// per step. Waypoints and the optional current position become points.
func RouteKML(r route.Route, current *geo.Point) ([]byte, error) {
	var elements []kml.Element

	globalIndex := 0
	for legIndex, leg := range r.Legs {
		for _, step := range leg.Steps {
			points, err := geo.DecodePolyline(step.Polyline)
			if err != nil {
				return nil, fmt.Errorf("failed to decode step %d polyline: %w", globalIndex, err)
			}

			name := step.Instruction
			if name == "" {
				name = fmt.Sprintf("Step %d", globalIndex+1)
			}
			elements = append(elements, kml.Placemark(
				kml.Name(name),
				kml.Description(fmt.Sprintf("Leg %d, %s, %s", legIndex+1, step.Maneuver, format.Distance(float64(step.DistanceMeters)))),
				kml.LineString(
					kml.Tessellate(true),
					kml.Coordinates(coordinates(points)...),
				),
			))
			globalIndex++
		}
	}

	for _, wp := range r.Waypoints {
		name := wp.RoadName
		if name == "" {
			name = fmt.Sprintf("Waypoint %d", wp.Order)
		}
		elements = append(elements, pointPlacemark(name, wp.Location))
	}

	if current != nil {
		elements = append(elements, pointPlacemark("Current position", *current))
	}

	doc := kml.KML(kml.Document(append([]kml.Element{
		kml.Name(documentName(r)),
	}, elements...)...))

	var buf bytes.Buffer
	if err := doc.WriteIndent(&buf, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to write KML: %w", err)
	}
	return buf.Bytes(), nil
}

func documentName(r route.Route) string {
	if r.Summary != "" {
		return r.Summary
	}
	return fmt.Sprintf("Route (%s)", format.RouteDistance(r.DistanceMeters, true))
}

func pointPlacemark(name string, p geo.Point) kml.Element {
	return kml.Placemark(
		kml.Name(name),
		kml.Point(kml.Coordinates(kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude})),
	)
}

func coordinates(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	return coords
}
