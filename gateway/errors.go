package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error taxonomy for backend calls. Callers branch with errors.Is; the raw
// status for unclassified failures is retained on StatusError.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("request timed out")
	ErrServerError     = errors.New("server error")
	ErrRequestFailed   = errors.New("request failed")
)

// StatusError reports a non-2xx response that maps to no specific sentinel.
// It unwraps to ErrRequestFailed.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.Code)
}

func (e *StatusError) Unwrap() error { return ErrRequestFailed }

// statusToError maps an HTTP response status to the error taxonomy.
// 2xx maps to nil.
func statusToError(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, status)
	default:
		return &StatusError{Code: status, Body: body}
	}
}

// transportError classifies a failure from http.Client.Do. Caller
// cancellation passes through untouched so an abandoned request is not
// misreported as a network timeout.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("execute request: %w", err)
}
