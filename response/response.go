// Package response defines the envelope describing one HTTP-style call
// outcome, the Result value that turns outcomes into ordinary values, and the
// errors raised when an outcome is not usable.
package response

import (
	"fmt"
	"net/http"
)

// Raw is the transport metadata of an outcome.
type Raw struct {
	Status string // e.g. "404 Not Found"
	Header http.Header
	URL    string
}

// Response is an immutable envelope around one call outcome.
//
// A successful Response carries the decoded body (which may still be absent
// when decoding produced nothing). An unsuccessful Response never carries a
// body; it may carry the raw error body.
type Response[T any] struct {
	StatusCode int
	Raw        Raw

	successful bool
	body       T
	hasBody    bool
	errorBody  []byte
	err        error
}

// IsSuccessStatus reports whether code is in the 2xx range.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// Success returns a successful Response holding body.
func Success[T any](statusCode int, body T, raw Raw) *Response[T] {
	return &Response[T]{
		StatusCode: statusCode,
		Raw:        raw,
		successful: true,
		body:       body,
		hasBody:    true,
	}
}

// Empty returns a successful Response whose body is absent, as produced by a
// 204 or by a decoder that yielded nothing.
func Empty[T any](statusCode int, raw Raw) *Response[T] {
	return &Response[T]{
		StatusCode: statusCode,
		Raw:        raw,
		successful: true,
	}
}

// Error returns an unsuccessful Response with the raw error body.
func Error[T any](statusCode int, errorBody []byte, raw Raw) *Response[T] {
	return &Response[T]{
		StatusCode: statusCode,
		Raw:        raw,
		errorBody:  errorBody,
	}
}

// WithBody returns a successful copy of r carrying body instead of r's payload.
func WithBody[U, T any](r *Response[T], body U) *Response[U] {
	return &Response[U]{
		StatusCode: r.StatusCode,
		Raw:        r.Raw,
		successful: true,
		body:       body,
		hasBody:    true,
	}
}

// Retype returns an unsuccessful copy of r typed for a different payload.
// r's error body and cause are kept.
func Retype[U, T any](r *Response[T]) *Response[U] {
	return &Response[U]{
		StatusCode: r.StatusCode,
		Raw:        r.Raw,
		errorBody:  r.errorBody,
		err:        r.err,
	}
}

// Downgrade returns an unsuccessful copy of r explained by cause. It is used
// when a transport-level success carries an application-level failure.
func Downgrade[U, T any](r *Response[T], cause error) *Response[U] {
	return &Response[U]{
		StatusCode: r.StatusCode,
		Raw:        r.Raw,
		errorBody:  r.errorBody,
		err:        cause,
	}
}

func (r *Response[T]) IsSuccessful() bool {
	return r.successful
}

// Body returns the decoded body and whether one is present.
func (r *Response[T]) Body() (T, bool) {
	return r.body, r.hasBody
}

// ErrorBody returns the raw body of an unsuccessful response, if any.
func (r *Response[T]) ErrorBody() []byte {
	return r.errorBody
}

// Err explains why a transport-level success was downgraded; nil for plain
// HTTP failures.
func (r *Response[T]) Err() error {
	return r.err
}

func (r *Response[T]) String() string {
	if r.successful {
		return fmt.Sprintf("Response{code=%d, successful, url=%s}", r.StatusCode, r.Raw.URL)
	}
	return fmt.Sprintf("Response{code=%d, unsuccessful, url=%s}", r.StatusCode, r.Raw.URL)
}

// Result is either a Response or a failure, never both and never neither.
type Result[T any] struct {
	response *Response[T]
	err      error
}

// ResultOf wraps r as a Result.
func ResultOf[T any](r *Response[T]) Result[T] {
	return Result[T]{response: r}
}

// Failure wraps err as a Result.
func Failure[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Response returns the wrapped Response, nil for a failure.
func (r Result[T]) Response() *Response[T] {
	return r.response
}

// Err returns the wrapped failure, nil for a response.
func (r Result[T]) Err() error {
	return r.err
}

func (r Result[T]) IsError() bool {
	return r.err != nil
}

func (r Result[T]) String() string {
	if r.err != nil {
		return fmt.Sprintf("Result{error=%v}", r.err)
	}
	return fmt.Sprintf("Result{response=%v}", r.response)
}
