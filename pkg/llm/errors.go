package llm

import (
	"errors"
	"fmt"
)

// ErrMalformedChunk marks a provider chunk that could not be parsed for a text
// fragment. Streams skip such chunks instead of aborting.
var ErrMalformedChunk = errors.New("malformed stream chunk")

// UpstreamError is a provider call that failed or was cut off mid-stream.
type UpstreamError struct {
	// Op names the stage that failed ("request", "status", "read", "cancelled").
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return "upstream " + e.Op + " failed"
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as an UpstreamError unless it already is one.
func NewUpstreamError(op string, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// ErrorResponse is the JSON body returned for request-level failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MalformedChunk wraps a chunk decode failure so that it matches
// ErrMalformedChunk with errors.Is.
func MalformedChunk(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedChunk, err)
}
