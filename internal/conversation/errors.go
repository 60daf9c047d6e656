package conversation

import (
	"errors"
	"fmt"

	"github.com/nugget/kir/internal/uistream"
)

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy is returned while a response is in flight.
	ErrBusy = errors.New("a response is already streaming")

	// ErrNothingToRegenerate is returned by Regenerate when there is no
	// user message to answer.
	ErrNothingToRegenerate = errors.New("no user message to regenerate from")
)

// StreamError is an error chunk received mid-stream.
type StreamError struct {
	Text string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %s", e.Text)
}

// Describe returns the text shown to the user for err.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var se *StreamError
	var status *uistream.StatusError

	switch {
	case errors.Is(err, uistream.ErrMissingCredentials):
		body := "credentials"
		if errors.As(err, &status) {
			body = status.Body
		}
		return fmt.Sprintf("The server is not configured (%s). Set the provider API key and restart it.", body)
	case errors.Is(err, uistream.ErrInvalidJSON):
		return "The server could not read the request."
	case errors.Is(err, uistream.ErrInvalidRequest):
		return "The server rejected the request. Check the selected model."
	case errors.Is(err, uistream.ErrRateLimited):
		return "Too many requests. Wait a moment and try again."
	case errors.As(err, &se):
		if se.Text == "" {
			return "The model stopped with an error."
		}
		return "The model stopped with an error: " + se.Text
	case errors.Is(err, uistream.ErrMalformedChunk):
		return "The response stream was garbled."
	case errors.As(err, &status):
		return fmt.Sprintf("The server returned an error (%d).", status.StatusCode)
	}
	return "Something went wrong. Check that the server is running and try again."
}
