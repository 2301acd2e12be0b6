package rx

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrRejected fails a stream whose scheduler refused to run its delivery,
// typically because the scheduler was closed.
var ErrRejected = errors.New("rx: scheduler rejected the task")

// UndeliverableError wraps an error that arose during or after terminal
// delivery and therefore could not be reported to the consumer.
type UndeliverableError struct {
	Cause error
}

func (e *UndeliverableError) Error() string {
	return fmt.Sprintf("rx: undeliverable error: %v", e.Cause)
}

func (e *UndeliverableError) Unwrap() error {
	return e.Cause
}

// CompositeError combines a failure with the error its handler raised while
// receiving it. No cause is ever dropped.
type CompositeError struct {
	err error
}

// NewCompositeError combines errs, skipping nils.
func NewCompositeError(errs ...error) *CompositeError {
	return &CompositeError{err: multierr.Combine(errs...)}
}

// Errors returns the combined causes in the order they were given.
func (e *CompositeError) Errors() []error {
	return multierr.Errors(e.err)
}

func (e *CompositeError) Error() string {
	errs := e.Errors()
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("rx: %d errors occurred: [%s]", len(errs), strings.Join(parts, "; "))
}

func (e *CompositeError) Unwrap() []error {
	return e.Errors()
}

// InvariantViolation reports a signal that arrived after a stream already
// delivered its terminal event. Correct collaborators never cause one.
type InvariantViolation struct {
	Msg   string
	Cause error
}

func (e *InvariantViolation) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rx: invariant violation: %s: %v", e.Msg, e.Cause)
	}
	return "rx: invariant violation: " + e.Msg
}

func (e *InvariantViolation) Unwrap() error {
	return e.Cause
}

// NoSuchElementError fails an exactly-one stream that completed empty.
type NoSuchElementError struct{}

func (*NoSuchElementError) Error() string {
	return "rx: sequence contains no elements"
}

// IndexOutOfRangeError fails an at-most-one stream that produced a second value.
type IndexOutOfRangeError struct{}

func (*IndexOutOfRangeError) Error() string {
	return "rx: sequence contains more than one element"
}

// Catch runs fn and returns whatever fn panicked with as an error, or nil.
func Catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	fn()
	return nil
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
