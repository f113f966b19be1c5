package server

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/internal/study"
)

// httpStatus maps engine errors onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, space.ErrInvalidConfig), errors.Is(err, study.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, study.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, study.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, study.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// grpcError converts an engine error into a status error.
func grpcError(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, space.ErrInvalidConfig), errors.Is(err, study.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, study.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, study.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, study.ErrStoreUnavailable):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}
