package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline"`
	Points          []Point `json:"points"`
}

// Bounds is the axis-aligned box enclosing a set of points.
type Bounds struct {
	SouthWest Point `json:"southwest"`
	NorthEast Point `json:"northeast"`
}

// Projection is the result of projecting a point onto a segment or polyline.
type Projection struct {
	Point    Point   `json:"point"`
	Distance float64 `json:"distance_meters"`
	// Segment is the index of the segment start within the polyline.
	Segment int `json:"segment"`
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Project point onto the closest segment of a polyline
	ClosestPointOnPolyline(point Point, polyline Polyline) (Projection, error)

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Bounding box of a point sequence
	BoundsOf(points []Point) (Bounds, error)
}

// NewGeoUtils is implemented in geo.go
