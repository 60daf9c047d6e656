package uistream

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Errors a gateway reports before a stream starts. Each has a fixed
// plain-text response body so clients can tell them apart.
var (
	ErrMissingCredentials = errors.New("provider credentials are not configured")
	ErrInvalidJSON        = errors.New("request body is not valid JSON")
	ErrInvalidRequest     = errors.New("request body does not match the chat schema")
	ErrRateLimited        = errors.New("too many requests")
)

// ErrMalformedChunk is returned by [Reader] when a data line is not a
// valid chunk.
var ErrMalformedChunk = errors.New("malformed stream chunk")

// Response bodies for gateway errors.
const (
	BodyInvalidJSON    = "Invalid JSON"
	BodyInvalidRequest = "Invalid request"
	BodyRateLimited    = "Too many requests"

	missingPrefix = "Missing "
)

// MissingCredentialsBody is the response body when the environment
// variable carrying the provider key is unset.
func MissingCredentialsBody(envVar string) string {
	return missingPrefix + envVar
}

// StatusError is a non-200 gateway response. It unwraps to one of the
// sentinel errors above when the status and body match.
type StatusError struct {
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap returns the matching sentinel, or nil.
func (e *StatusError) Unwrap() error { return e.kind }

// ClassifyResponse converts a non-200 gateway response into an error.
func ClassifyResponse(status int, body string) error {
	body = strings.TrimSpace(body)
	se := &StatusError{StatusCode: status, Body: body}

	switch {
	case status == http.StatusInternalServerError && strings.HasPrefix(body, missingPrefix):
		se.kind = ErrMissingCredentials
	case status == http.StatusBadRequest && body == BodyInvalidJSON:
		se.kind = ErrInvalidJSON
	case status == http.StatusBadRequest && body == BodyInvalidRequest:
		se.kind = ErrInvalidRequest
	case status == http.StatusTooManyRequests:
		se.kind = ErrRateLimited
	}
	return se
}
