package chat

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoBackend means neither a remote URL nor a local completer was configured.
	ErrNoBackend = errors.New("chat: no backend configured")
	// ErrEmptyReply is returned when a backend answered with no text.
	ErrEmptyReply = errors.New("chat: empty reply")
	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("chat: malformed response")
)

// APIError is an error reported by a chat service, carrying its code and message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chat: %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the service asked the caller to slow down.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// InvalidRequest reports whether the request itself was rejected.
func (e *APIError) InvalidRequest() bool {
	return e.StatusCode == http.StatusBadRequest || e.Code == "invalid_request_error"
}

// ServiceError reports a failure on the service side.
func (e *APIError) ServiceError() bool {
	return e.StatusCode >= 500
}
