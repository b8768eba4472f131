package service

import "errors"

// Result is the single tag every use case resolves to. Transports map it to
// their own status codes.
type Result string

const (
	ResultSuccess           Result = "success"
	ResultNotFound          Result = "not_found"
	ResultAuthFailed        Result = "auth_failed"
	ResultViolationDetected Result = "violation"
	ResultSpotTaken         Result = "spot_taken"
	ResultPermissionDenied  Result = "permission_denied"
	ResultInvalidTransition Result = "invalid_transition"
	ResultInvalidRequest    Result = "invalid_request"
	ResultRefused           Result = "refused"
	ResultInternal          Result = "internal"
)

// ResultOf classifies err. A nil error is ResultSuccess and anything not
// produced by this package is ResultInternal.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrNodeNotFound), errors.Is(err, ErrUserNotFound):
		return ResultNotFound
	case errors.Is(err, ErrViolationDetected):
		return ResultViolationDetected
	case errors.Is(err, ErrNodeAuthFailed),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrBadgeExpired):
		return ResultAuthFailed
	case errors.Is(err, ErrSpotTaken):
		return ResultSpotTaken
	case errors.Is(err, ErrPermissionDenied):
		return ResultPermissionDenied
	case errors.Is(err, ErrInvalidTransition):
		return ResultInvalidTransition
	case errors.Is(err, ErrInvalidRequest):
		return ResultInvalidRequest
	case errors.Is(err, ErrAlreadyParked),
		errors.Is(err, ErrReservationLimit),
		errors.Is(err, ErrNotReservationHolder),
		errors.Is(err, ErrAlreadyExists):
		return ResultRefused
	default:
		return ResultInternal
	}
}
