package parkingsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Result tags carried in the "status" field of every use case response.
const (
	StatusSuccess           = "success"
	StatusNotFound          = "not_found"
	StatusAuthFailed        = "auth_failed"
	StatusViolationDetected = "violation"
	StatusSpotTaken         = "spot_taken"
	StatusPermissionDenied  = "permission_denied"
	StatusInvalidTransition = "invalid_transition"
	StatusInvalidRequest    = "invalid_request"
	StatusRefused           = "refused"
	StatusInternal          = "internal"
	StatusRateLimited       = "rate_limited"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("parking: %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("parking: %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// HasStatus reports whether err is an *APIError with the given result tag.
func HasStatus(err error, status string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// parseErrorResponse builds an *APIError. Bodies that are not the usual JSON
// (a bare 401 from the bearer check, a proxy page) keep the HTTP status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Status == "" {
		apiErr.Status = http.StatusText(resp.StatusCode)
		apiErr.Message = ""
	}
	return apiErr
}
