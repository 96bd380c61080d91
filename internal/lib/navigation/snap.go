package navigation

import (
	"math"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
)

// SnapResult is the projection of a fix onto a step polyline.
type SnapResult struct {
	// Point is the closest point on the polyline. Only meaningful when
	// Snapped is true.
	Point geo.Point
	// Snapped is false when the polyline is farther than the snap
	// threshold or has fewer than two points.
	Snapped bool
	// Distance is the true distance to the polyline, +Inf for degenerate
	// polylines.
	Distance float64
}

// Snap projects device onto every segment of points and keeps the closest.
func Snap(points []geo.Point, device geo.Point, threshold float64) SnapResult {
	if len(points) < 2 {
		return SnapResult{Distance: math.Inf(1)}
	}

	proj := geo.ProjectOntoPolyline(device, points)
	if proj.Distance > threshold {
		return SnapResult{Distance: proj.Distance}
	}
	return SnapResult{Point: proj.Point, Snapped: true, Distance: proj.Distance}
}
