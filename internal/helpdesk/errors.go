package helpdesk

import (
	"errors"
	"fmt"
	"time"
)

// RemoteError is a non-2xx response other than 429.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("helpdesk error %d: %s", e.StatusCode, e.Body)
}

// RateLimitedError is a 429 response. RetryAfter is zero when the
// response carried no Retry-After header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("helpdesk rate limit reached (429), retry after %s", e.RetryAfter)
	}
	return "helpdesk rate limit reached (429), slow down and retry"
}

// TransportError is a request that never produced a response: DNS,
// connection, TLS or timeout failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("helpdesk request failed (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a 2xx response whose body could not be decoded.
type DecodeError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response (%d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is, or wraps, a 429 response.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
