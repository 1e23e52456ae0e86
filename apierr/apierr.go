// Package apierr classifies failures of the external embedding and
// generation services so callers can tell an unreachable service from a
// malformed or empty response.
package apierr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnreachable means the request never produced an HTTP response.
	ErrUnreachable = errors.New("service unreachable")

	// ErrMalformed means the service answered but the body could not be decoded.
	ErrMalformed = errors.New("malformed response")

	// ErrEmpty means the body decoded but carried no usable result.
	ErrEmpty = errors.New("empty result")
)

const maxBodyInError = 512

// StatusError is returned when a service answers with a non-2xx status.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Code, e.Body)
}

// Unreachable wraps a transport error.
func Unreachable(service string, err error) error {
	return fmt.Errorf("%s: %w: %w", service, ErrUnreachable, err)
}

// Malformed wraps a decoding error.
func Malformed(service string, err error) error {
	return fmt.Errorf("%s: %w: %w", service, ErrMalformed, err)
}

// Empty reports a response without a result.
func Empty(service, what string) error {
	return fmt.Errorf("%s: %w: %s", service, ErrEmpty, what)
}

// CheckStatus turns a non-2xx response into a *StatusError, consuming a
// bounded prefix of the body for the message.
func CheckStatus(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyInError))
	return &StatusError{
		Service: service,
		Code:    resp.StatusCode,
		Body:    strings.TrimSpace(string(body)),
	}
}

// Kind returns a short label for logs: "unreachable", "status", "malformed",
// "empty" or "other".
func Kind(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrEmpty):
		return "empty"
	default:
		return "other"
	}
}
