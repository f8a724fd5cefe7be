package molekule

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthError means credentials were rejected and a re-authentication attempt
// did not help. The device should be shown unavailable until auth recovers.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("molekule auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a failed cloud call. Status 0 means the request never got a
// response (network error, timeout).
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("molekule api: %s", strings.TrimSpace(e.Body))
	}
	return fmt.Sprintf("molekule api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Transient reports whether the caller should expect the next scheduled poll
// to have a chance of succeeding without intervention.
func (e *APIError) Transient() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status >= http.StatusInternalServerError:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	}
	return false
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is worth retrying on the next poll.
// Auth errors are never transient; unknown errors are treated as transient
// so a one-off glitch does not permanently degrade a device.
func IsTransient(err error) bool {
	if err == nil || IsAuthError(err) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}
