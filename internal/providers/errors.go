// SPDX-License-Identifier: MIT

package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrMalformedResponse marks a 2xx response whose body could not be
// decoded. Retrying will not help.
var ErrMalformedResponse = errors.New("malformed provider response")

// APIError is a non-2xx provider response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// Retriable reports whether an error is worth retrying: network errors,
// timeouts, 5xx and 429 are retriable; other 4xx and malformed responses
// are not. Context cancellation is never retriable.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == 429
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// Unwrapped transport failures (url.Error wraps net errors but also
	// plain ones); treat unknown non-API errors as transport problems.
	return true
}
