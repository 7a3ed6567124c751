package governor

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited marks a 429 from the upstream API
	ErrRateLimited = errors.New("upstream rate limit exceeded")
	// ErrTransient marks network failures and non-2xx responses other than 429
	ErrTransient = errors.New("transient upstream failure")
)

// StatusError is a non-2xx upstream response
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap classifies the response as rate limited or transient
func (e *StatusError) Unwrap() error {
	if e.StatusCode == 429 {
		return ErrRateLimited
	}
	return ErrTransient
}

// DecodeError is a 2xx response whose body is not valid JSON for the caller
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// outcome returns the metrics label for a dispatch result
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.As(err, new(*StatusError)):
		return "http_error"
	case errors.As(err, new(*DecodeError)):
		return "decode_error"
	default:
		return "transport_error"
	}
}
