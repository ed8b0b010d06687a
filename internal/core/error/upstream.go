package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError describes a non-2xx answer from the search or card API.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// WrapUpstream maps HTTP API failures to the unified error type. Timeouts are
// reported as 504 so callers can tell them apart from bad answers.
func WrapUpstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(err, http.StatusGatewayTimeout, UpstreamErrorMessage)
	}
	return New(err, http.StatusBadGateway, UpstreamErrorMessage)
}
