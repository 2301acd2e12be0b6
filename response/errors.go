package response

import (
	"fmt"
	"strings"
)

// HTTPError is a structurally valid but unusable HTTP outcome: a status
// outside 2xx, or a 2xx whose body decoded to nothing.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
	URL        string
}

// NewHTTPError describes r as an HTTPError.
func NewHTTPError[T any](r *Response[T]) *HTTPError {
	return &HTTPError{
		StatusCode: r.StatusCode,
		Status:     r.Raw.Status,
		Body:       r.ErrorBody(),
		URL:        r.Raw.URL,
	}
}

func (e *HTTPError) Error() string {
	status := strings.TrimSpace(strings.TrimPrefix(e.Status, fmt.Sprint(e.StatusCode)))
	if status == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, status)
}

// TransportError means no HTTP response was obtained at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
