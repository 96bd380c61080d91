package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/stonecode/pickmyroute/server/internal/clients/google"
	"github.com/stonecode/pickmyroute/server/internal/lib/geo"
	"github.com/stonecode/pickmyroute/server/internal/lib/route"
	"github.com/stonecode/pickmyroute/server/internal/services"
)

// ErrResponse is the JSON body of every failed request.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText    string   `json:"status"`
	ErrorText     string   `json:"error,omitempty"`
	ErrValidation []string `json:"validation,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

// ErrValidation reports request fields that failed validation.
func ErrValidation(err error, errV []error) render.Renderer {
	vv := []string{}
	for _, v := range errV {
		vv = append(vv, v.Error())
	}
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
		ErrValidation:  vv,
	}
}

func ErrNotFound(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusNotFound,
		StatusText:     "Resource not found.",
		ErrorText:      err.Error(),
	}
}

func ErrConflict(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusConflict,
		StatusText:     "Conflict.",
		ErrorText:      err.Error(),
	}
}

func ErrInternal(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     "Internal server error.",
		ErrorText:      err.Error(),
	}
}

// errFromService maps service and domain errors onto HTTP statuses.
func errFromService(err error) render.Renderer {
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, route.ErrWaypointNotFound):
		return ErrNotFound(err)
	case errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, route.ErrInvalidOrder):
		return ErrInvalidRequest(err)
	case errors.Is(err, services.ErrNoRoute):
		return ErrConflict(err)
	case errors.Is(err, services.ErrSessionClosed):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusGone, StatusText: "Session closed.", ErrorText: err.Error()}
	case errors.Is(err, google.ErrNoRoutes):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusUnprocessableEntity, StatusText: "No route between the requested stops.", ErrorText: err.Error()}
	case errors.Is(err, services.ErrTooManySessions),
		errors.Is(err, services.ErrServiceShutdown),
		errors.Is(err, context.DeadlineExceeded):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusServiceUnavailable, StatusText: "Service unavailable.", ErrorText: err.Error()}
	default:
		return ErrInternal(err)
	}
}
