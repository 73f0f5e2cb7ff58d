package esi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means no valid credential was presented (401/403, or no token at all).
	ErrUnauthorized = errors.New("esi: unauthorized")
	// ErrNotFound means the requested resource does not exist (404).
	ErrNotFound = errors.New("esi: not found")
)

// TransientError is a failure worth retrying: 5xx, 420 error-limit, or a
// transport failure before any status was received.
type TransientError struct {
	StatusCode int // 0 for transport failures
	Body       string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("esi: transient: %v", e.Err)
	}
	return fmt.Sprintf("esi: transient %d: %s", e.StatusCode, e.Body)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// statusError maps a response status to the package error taxonomy.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300, status == http.StatusNotModified:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: ESI %d: %s", ErrUnauthorized, status, truncate(body))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: ESI %d: %s", ErrNotFound, status, truncate(body))
	case status == 420, status >= 500:
		return &TransientError{StatusCode: status, Body: truncate(body)}
	default:
		return fmt.Errorf("ESI %d: %s", status, truncate(body))
	}
}

func statusClass(status int) string {
	switch {
	case status == 420:
		return "420"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status == http.StatusNotModified:
		return "304"
	default:
		return "2xx"
	}
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
