package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/parking/internal/parking/service"
	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/aussiebroadwan/parking/pkg/parkingsdk"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

// statusCode maps a use case result to the HTTP status sent back.
func statusCode(res service.Result, err error) int {
	switch res {
	case service.ResultSuccess:
		return http.StatusOK
	case service.ResultInvalidRequest:
		return http.StatusBadRequest
	case service.ResultAuthFailed:
		if errors.Is(err, service.ErrUnauthenticated) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case service.ResultViolationDetected, service.ResultPermissionDenied:
		return http.StatusForbidden
	case service.ResultSpotTaken, service.ResultInvalidTransition, service.ResultRefused:
		return http.StatusConflict
	case service.ResultNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeResult answers a use case call. Internal errors are logged and
// replaced with a generic message.
func writeResult(w http.ResponseWriter, r *http.Request, err error, okMessage string) {
	res := service.ResultOf(err)
	code := statusCode(res, err)

	msg := okMessage
	switch {
	case res == service.ResultInternal:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		msg = "internal error"
	case err != nil:
		msg = err.Error()
	}

	httpx.WriteJSON(w, code, parkingsdk.StatusResponse{Status: string(res), Message: msg})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	httpx.WriteJSON(w, http.StatusBadRequest, parkingsdk.StatusResponse{
		Status:  string(service.ResultInvalidRequest),
		Message: msg,
	})
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
