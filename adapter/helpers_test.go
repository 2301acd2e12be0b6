package adapter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rxcall/call"
	"rxcall/graphql"
	"rxcall/response"
	"rxcall/rx"
)

type user struct {
	ID   int
	Name string
}

var (
	ada     = user{ID: 1, Name: "ada"}
	errDrop = errors.New("connection reset by peer")
)

func raw(code int) response.Raw {
	return response.Raw{Status: http.StatusText(code), URL: "http://test/users/1"}
}

func okResponse[T any](body T) *response.Response[T] {
	return response.Success(http.StatusOK, body, raw(http.StatusOK))
}

func notFound[T any]() *response.Response[T] {
	return response.Error[T](http.StatusNotFound, nil, response.Raw{Status: "404 Not Found", URL: "http://test/users/1"})
}

func envelope[T any](data *T, errs ...graphql.Error) *response.Response[graphql.Envelope[T]] {
	return okResponse(graphql.Envelope[T]{Data: data, Errors: errs})
}

// returning is a call whose every execution yields r.
func returning[T any](r *response.Response[T]) *call.Func[T] {
	return call.New(context.Background(), func(context.Context) (*response.Response[T], error) {
		return r, nil
	})
}

// failing is a call whose every execution fails before a response.
func failing[T any](err error) *call.Func[T] {
	return call.New(context.Background(), func(context.Context) (*response.Response[T], error) {
		return nil, &response.TransportError{Method: http.MethodGet, URL: "http://test/users/1", Err: err}
	})
}

// blocking is a call that only finishes once its context is cancelled or
// release is closed.
func blocking[T any](release <-chan struct{}, r *response.Response[T]) *call.Func[T] {
	return call.New(context.Background(), func(ctx context.Context) (*response.Response[T], error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return r, nil
		}
	})
}

// countingCall counts Cancel invocations across all of its clones.
type countingCall[T any] struct {
	call.Call[T]
	cancels *atomic.Int32
	clones  chan call.Call[T]
}

func counting[T any](c call.Call[T]) *countingCall[T] {
	return &countingCall[T]{Call: c, cancels: new(atomic.Int32), clones: make(chan call.Call[T], 16)}
}

func (c *countingCall[T]) Cancel() {
	c.cancels.Add(1)
	c.Call.Cancel()
}

func (c *countingCall[T]) Clone() call.Call[T] {
	clone := &countingCall[T]{Call: c.Call.Clone(), cancels: c.cancels, clones: c.clones}
	c.clones <- clone
	return clone
}

func captureErrors(t *testing.T) *rx.ErrorCollector {
	t.Helper()
	collector := &rx.ErrorCollector{}
	t.Cleanup(rx.SetErrorHandler(collector.Handle))
	return collector
}

// recorder is an rx.Observer keeping every event it receives.
type recorder[T any] struct {
	mu         sync.Mutex
	disposable rx.Disposable
	values     []T
	err        error
	completed  bool
	terminals  int

	onNext     func(T)
	onError    func(error)
	onComplete func()

	once sync.Once
	done chan struct{}
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{done: make(chan struct{})}
}

func (r *recorder[T]) OnSubscribe(d rx.Disposable) {
	r.mu.Lock()
	r.disposable = d
	r.mu.Unlock()
}

func (r *recorder[T]) OnNext(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
	if r.onNext != nil {
		r.onNext(v)
	}
}

func (r *recorder[T]) OnError(err error) {
	r.mu.Lock()
	r.err = err
	r.terminals++
	r.mu.Unlock()
	defer r.once.Do(func() { close(r.done) })
	if r.onError != nil {
		r.onError(err)
	}
}

func (r *recorder[T]) OnComplete() {
	r.mu.Lock()
	r.completed = true
	r.terminals++
	r.mu.Unlock()
	defer r.once.Do(func() { close(r.done) })
	if r.onComplete != nil {
		r.onComplete()
	}
}

func (r *recorder[T]) await(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal event")
	}
}

type events[T any] struct {
	values    []T
	err       error
	completed bool
	terminals int
}

func (r *recorder[T]) events() events[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events[T]{
		values:    append([]T(nil), r.values...),
		err:       r.err,
		completed: r.completed,
		terminals: r.terminals,
	}
}

func (r *recorder[T]) dispose() {
	r.mu.Lock()
	d := r.disposable
	r.mu.Unlock()
	d.Dispose()
}

// observe resolves declared, adapts c and subscribes a recorder to the
// resulting rx.Observable.
func observe[T, Out any](t *testing.T, c call.Call[T], declared Type, opts ...Option) *recorder[Out] {
	t.Helper()
	p, err := Resolve(declared, opts...)
	require.NoError(t, err)
	obs, err := As[rx.Observable[Out]](Adapt(c, p))
	require.NoError(t, err)
	rec := newRecorder[Out]()
	obs.Subscribe(rec)
	return rec
}

func observeGraphQL[T, Out any](t *testing.T, c call.Call[graphql.Envelope[T]], declared Type) *recorder[Out] {
	t.Helper()
	p, err := Resolve(declared, WithGraphQL())
	require.NoError(t, err)
	obs, err := As[rx.Observable[Out]](AdaptGraphQL(c, p))
	require.NoError(t, err)
	rec := newRecorder[Out]()
	obs.Subscribe(rec)
	return rec
}

// taskScheduler records whether code runs inside one of its tasks.
type taskScheduler struct {
	inner     rx.Scheduler
	scheduled atomic.Int32
	running   atomic.Int32
}

func (s *taskScheduler) Schedule(task func()) rx.Disposable {
	s.scheduled.Add(1)
	return s.inner.Schedule(func() {
		s.running.Add(1)
		defer s.running.Add(-1)
		task()
	})
}

func (s *taskScheduler) onScheduler() bool {
	return s.running.Load() > 0
}
