package download

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	ErrCollisionExhausted = errors.New("too many filename collisions")
)

// NetworkError wraps connect, read and timeout failures. It is retried.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RequestError is returned when no request can be built from the URL, for
// example a malformed escape. It is never retried.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request for %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is returned for any non-2xx response. It is retried.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("received %d response from %s", e.StatusCode, e.URL)
}

// FilesystemError wraps failures to create directories or to open or write
// destination files. It is never retried.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error on %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// isRetryable reports whether another attempt could change the result.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr *NetworkError
	var statusErr *HTTPStatusError

	return errors.As(err, &netErr) || errors.As(err, &statusErr)
}
