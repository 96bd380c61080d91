package server

import (
	"net/http"

	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
)

// LatLng is a coordinate in request bodies.
type LatLng struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

// Point converts a validated coordinate.
func (l LatLng) Point() geo.Point {
	return geo.Point{Latitude: *l.Lat, Longitude: *l.Lng}
}

type PlanRouteRequest struct {
	Origin      *LatLng `json:"origin" validate:"required"`
	Destination *LatLng `json:"destination" validate:"required"`
}

func (req *PlanRouteRequest) Bind(r *http.Request) error {
	return nil
}

type WaypointRequest struct {
	LatLng
	RoadName string `json:"road_name" validate:"max=200"`
}

func (req *WaypointRequest) Bind(r *http.Request) error {
	return nil
}

type RestoreWaypointRequest struct {
	Waypoint *route.Waypoint `json:"waypoint" validate:"required"`
}

func (req *RestoreWaypointRequest) Bind(r *http.Request) error {
	return nil
}

type ReorderWaypointsRequest struct {
	IDs []string `json:"ids" validate:"required,dive,required"`
}

func (req *ReorderWaypointsRequest) Bind(r *http.Request) error {
	return nil
}

type FixRequest struct {
	LatLng
}

func (req *FixRequest) Bind(r *http.Request) error {
	return nil
}
