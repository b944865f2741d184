package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCallLogIDNotFound means the server accepted the call log but none
	// of the extraction strategies produced a usable id. Treated as
	// retryable: the next attempt collapses server-side via the
	// idempotency key.
	ErrCallLogIDNotFound = errors.New("call log id not found in response")

	// ErrMalformedResponse marks an unparseable server response.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is a non-2xx (or success=false) reply from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload rejected: %s (status %d)", e.Message, e.Code)
}

// Permanent reports whether the rejection is a deliberate server-side
// verdict that retrying cannot fix. Timeouts, throttling and server errors
// stay retryable, and so do auth rejections: the host restores the session
// out of band and the queued jobs must still go out afterwards.
func (e *StatusError) Permanent() bool {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return false
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Code >= 400 && e.Code < 500
}
