package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-polyline"
)

// EarthRadiusMeters is the mean earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000

var (
	// ErrInvalidCoordinate is returned for latitudes outside [-90, 90] or
	// longitudes outside [-180, 180].
	ErrInvalidCoordinate = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

	// ErrEmptyPolyline is returned when a polyline has no points.
	ErrEmptyPolyline = errors.New("polyline has no points")
)

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// Distance is the haversine great-circle distance between two points in meters.
// Inputs are not validated.
func Distance(p1, p2 Point) float64 {
	if p1 == p2 {
		return 0
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// ProjectOntoSegment projects p onto segment ab treating latitude and
// longitude as planar x/y. The projection scalar is clamped to [0, 1], so the
// result always lies on the segment. The returned distance is the haversine
// distance from p to the projected point.
//
// The planar approximation is only accurate for short segments (a few
// hundred meters), which is what maneuver-level step polylines contain.
func ProjectOntoSegment(p, a, b Point) (Point, float64) {
	vx := b.Latitude - a.Latitude
	vy := b.Longitude - a.Longitude
	wx := p.Latitude - a.Latitude
	wy := p.Longitude - a.Longitude

	c1 := vx*wx + vy*wy
	c2 := vx*vx + vy*vy

	t := 0.0
	if c2 != 0 {
		t = math.Max(0, math.Min(1, c1/c2))
	}

	projected := Point{
		Latitude:  a.Latitude + t*vx,
		Longitude: a.Longitude + t*vy,
	}
	return projected, Distance(p, projected)
}

// ProjectOntoPolyline finds the closest projection of p over every segment of
// points. Polylines with fewer than two points are infinitely far away.
func ProjectOntoPolyline(p Point, points []Point) Projection {
	best := Projection{Distance: math.Inf(1), Segment: -1}
	if len(points) < 2 {
		return best
	}

	for i := 0; i < len(points)-1; i++ {
		proj, d := ProjectOntoSegment(p, points[i], points[i+1])
		if d < best.Distance {
			best = Projection{Point: proj, Distance: d, Segment: i}
		}
	}
	return best
}

// DistanceAlong projects p onto points and returns the path length from the
// first point to the projection.
func DistanceAlong(p Point, points []Point) (float64, Projection) {
	proj := ProjectOntoPolyline(p, points)
	if proj.Segment < 0 {
		return 0, proj
	}

	along := 0.0
	for i := 0; i < proj.Segment; i++ {
		along += Distance(points[i], points[i+1])
	}
	return along + Distance(points[proj.Segment], proj.Point), proj
}

// ValidateCoordinate checks latitude and longitude ranges.
func ValidateCoordinate(point Point) error {
	if !isValidCoordinate(point) {
		return fmt.Errorf("%w: (%f, %f)", ErrInvalidCoordinate, point.Latitude, point.Longitude)
	}
	return nil
}

// PointToPoint calculates great-circle distance between two points using Haversine formula
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, ErrInvalidCoordinate
	}
	return Distance(p1, p2), nil
}

// ClosestPointOnPolyline finds closest point on polyline to given point
func (g *geoUtils) ClosestPointOnPolyline(point Point, polyline Polyline) (Projection, error) {
	if !isValidCoordinate(point) {
		return Projection{}, errors.New("invalid point coordinates")
	}

	points, err := g.pointsOf(polyline)
	if err != nil {
		return Projection{}, err
	}

	if len(points) == 1 {
		// Single point polyline - return point to point distance
		return Projection{Point: points[0], Distance: Distance(point, points[0])}, nil
	}

	return ProjectOntoPolyline(point, points), nil
}

// pointsOf returns the decoded points of a polyline, decoding the encoded
// form when no points are attached.
func (g *geoUtils) pointsOf(polyline Polyline) ([]Point, error) {
	if len(polyline.Points) > 0 {
		return polyline.Points, nil
	}
	if polyline.EncodedPolyline == "" {
		return nil, ErrEmptyPolyline
	}
	points, err := g.DecodePolyline(polyline.EncodedPolyline)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrEmptyPolyline
	}
	return points, nil
}

// DecodePolyline decodes Google polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	return DecodePolyline(encoded)
}

// BoundsOf calculates the bounding box of the given points
func (g *geoUtils) BoundsOf(points []Point) (Bounds, error) {
	return BoundsOf(points)
}

// DecodePolyline decodes a Google encoded polyline. Trailing garbage and
// out-of-range coordinates are errors.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("failed to decode polyline: %d trailing bytes", len(rest))
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes points as a Google encoded polyline.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// BoundsOf returns the bounding box of points.
func BoundsOf(points []Point) (Bounds, error) {
	if len(points) == 0 {
		return Bounds{}, ErrEmptyPolyline
	}

	rect := s2.EmptyRect()
	for _, p := range points {
		if !isValidCoordinate(p) {
			return Bounds{}, ErrInvalidCoordinate
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(p.Latitude, p.Longitude))
	}

	lo, hi := rect.Lo(), rect.Hi()
	return Bounds{
		SouthWest: Point{Latitude: lo.Lat.Degrees(), Longitude: lo.Lng.Degrees()},
		NorthEast: Point{Latitude: hi.Lat.Degrees(), Longitude: hi.Lng.Degrees()},
	}, nil
}

// Contains reports whether p lies inside the bounds. Bounds crossing the
// antimeridian are not supported.
func (b Bounds) Contains(p Point) bool {
	return p.Latitude >= b.SouthWest.Latitude && p.Latitude <= b.NorthEast.Latitude &&
		p.Longitude >= b.SouthWest.Longitude && p.Longitude <= b.NorthEast.Longitude
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, ErrInvalidCoordinate
	}
	return point, nil
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	if math.IsNaN(point.Latitude) || math.IsNaN(point.Longitude) {
		return false
	}
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
