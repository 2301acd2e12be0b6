// Package rx holds the push-based stream primitives that call outcomes are
// adapted into.
//
// A stream is subscribed once per consumer. Events flow in one direction:
//
//	OnSubscribe → OnNext* → (OnError | OnComplete)
//
// At most one terminal event is delivered and it is always the last one.
// Consumers cancel through the Disposable (or Subscription) handed to
// OnSubscribe. Panics raised by a consumer while an event is delivered never
// travel back into the producer: they are reported to the process-wide error
// sink (see SetErrorHandler).
package rx

import (
	"sync"
	"sync/atomic"
)

// Disposable cancels a subscription. Dispose must be idempotent and safe to
// call from any goroutine.
type Disposable interface {
	Dispose()
	IsDisposed() bool
}

// Observer receives the events of an unrestricted multi-value stream.
type Observer[T any] interface {
	OnSubscribe(d Disposable)
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Observable is a stream with no backpressure and no arity restriction.
type Observable[T any] interface {
	Subscribe(o Observer[T])
}

// ObservableFunc adapts a subscribe function to Observable.
type ObservableFunc[T any] func(o Observer[T])

func (f ObservableFunc[T]) Subscribe(o Observer[T]) {
	f(o)
}

// Funcs is an Observer assembled from optional callbacks. Nil callbacks
// ignore their event.
type Funcs[T any] struct {
	Subscribe func(d Disposable)
	Next      func(v T)
	Error     func(err error)
	Complete  func()
}

func (f Funcs[T]) OnSubscribe(d Disposable) {
	if f.Subscribe != nil {
		f.Subscribe(d)
	}
}

func (f Funcs[T]) OnNext(v T) {
	if f.Next != nil {
		f.Next(v)
	}
}

func (f Funcs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f Funcs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

type actionDisposable struct {
	disposed  atomic.Bool
	onDispose func()
}

// NewDisposable returns a Disposable that runs onDispose the first time it is
// disposed. onDispose may be nil.
func NewDisposable(onDispose func()) Disposable {
	return &actionDisposable{onDispose: onDispose}
}

func (d *actionDisposable) Dispose() {
	if d.disposed.Swap(true) {
		return
	}
	if d.onDispose != nil {
		d.onDispose()
	}
}

func (d *actionDisposable) IsDisposed() bool {
	return d.disposed.Load()
}

// Disposed returns a Disposable that is already disposed.
func Disposed() Disposable {
	d := &actionDisposable{}
	d.disposed.Store(true)
	return d
}

// slot holds a Disposable that may arrive after the slot itself was disposed,
// in which case the late arrival is disposed immediately.
type slot struct {
	mu       sync.Mutex
	current  Disposable
	disposed bool
}

func (s *slot) set(d Disposable) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		if d != nil {
			d.Dispose()
		}
		return
	}
	s.current = d
	s.mu.Unlock()
}

func (s *slot) dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	d := s.current
	s.current = nil
	s.mu.Unlock()
	if d != nil {
		d.Dispose()
	}
}

func (s *slot) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
