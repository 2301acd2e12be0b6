// Package call defines the remote call collaborator that the adapter turns
// into a stream, and Func, an implementation backed by a plain function.
//
// A Call is one-shot: it executes at most once. Clone returns a fresh,
// unexecuted copy, which is what every new subscription runs.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"rxcall/response"
)

var (
	// ErrExecuted is returned when a Call is executed a second time.
	ErrExecuted = errors.New("call: already executed")
	// ErrCanceled is returned when a Call was cancelled before it ran.
	ErrCanceled = errors.New("call: canceled")
)

// Callback receives the outcome of an enqueued Call.
type Callback[T any] interface {
	OnResponse(c Call[T], r *response.Response[T])
	OnFailure(c Call[T], err error)
}

// Call is a prepared but not yet executed remote operation.
type Call[T any] interface {
	// Execute runs the call on the caller's goroutine. A non-nil error means
	// no response was obtained.
	Execute() (*response.Response[T], error)
	// Enqueue runs the call asynchronously and reports to cb from another
	// goroutine.
	Enqueue(cb Callback[T])
	// Cancel aborts the call. Cancelling a finished call does nothing.
	Cancel()
	IsCanceled() bool
	Clone() Call[T]
}

// RoundTrip produces one outcome. It should return promptly once ctx is done.
type RoundTrip[T any] func(ctx context.Context) (*response.Response[T], error)

// Func is a Call backed by a RoundTrip. Cancel cancels the context handed to
// the RoundTrip.
type Func[T any] struct {
	ctx context.Context
	rt  RoundTrip[T]

	mu       sync.Mutex
	executed bool
	cancel   context.CancelFunc
	canceled atomic.Bool
}

// New returns an unexecuted Call that runs rt under a child of ctx.
func New[T any](ctx context.Context, rt RoundTrip[T]) *Func[T] {
	return &Func[T]{ctx: ctx, rt: rt}
}

func (f *Func[T]) Execute() (*response.Response[T], error) {
	ctx, err := f.start()
	if err != nil {
		return nil, err
	}
	defer f.finish()
	return f.rt(ctx)
}

func (f *Func[T]) Enqueue(cb Callback[T]) {
	ctx, err := f.start()
	if err != nil {
		go cb.OnFailure(f, err)
		return
	}
	go func() {
		defer f.finish()
		r, err := f.run(ctx)
		if err != nil {
			cb.OnFailure(f, err)
			return
		}
		cb.OnResponse(f, r)
	}()
}

// run calls the RoundTrip, turning a panic into its error. A panic value
// that is an error is returned as is.
func (f *Func[T]) run(ctx context.Context) (r *response.Response[T], err error) {
	defer func() {
		if p := recover(); p != nil {
			r = nil
			if perr, ok := p.(error); ok {
				err = perr
				return
			}
			err = fmt.Errorf("call: panic: %v", p)
		}
	}()
	return f.rt(ctx)
}

func (f *Func[T]) start() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.executed {
		return nil, ErrExecuted
	}
	f.executed = true
	if f.canceled.Load() {
		return nil, ErrCanceled
	}
	ctx, cancel := context.WithCancel(f.ctx)
	f.cancel = cancel
	return ctx, nil
}

func (f *Func[T]) finish() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *Func[T]) Cancel() {
	f.canceled.Store(true)
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *Func[T]) IsCanceled() bool {
	return f.canceled.Load()
}

func (f *Func[T]) Clone() Call[T] {
	return New(f.ctx, f.rt)
}

// CallbackFuncs adapts two functions to a Callback.
type CallbackFuncs[T any] struct {
	Response func(c Call[T], r *response.Response[T])
	Failure  func(c Call[T], err error)
}

func (f CallbackFuncs[T]) OnResponse(c Call[T], r *response.Response[T]) {
	if f.Response != nil {
		f.Response(c, r)
	}
}

func (f CallbackFuncs[T]) OnFailure(c Call[T], err error) {
	if f.Failure != nil {
		f.Failure(c, err)
	}
}
