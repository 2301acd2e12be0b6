package rx

import (
	"fmt"
	"math"
	"sync"
)

// Subscription lets a Subscriber pull values and cancel.
type Subscription interface {
	// Request adds n to the number of values the subscriber is ready for.
	Request(n int64)
	Cancel()
}

// Subscriber receives the events of a backpressured stream.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Flowable is a stream whose consumer signals demand.
type Flowable[T any] interface {
	Subscribe(s Subscriber[T])
}

// SubscriberFuncs is a Subscriber assembled from optional callbacks.
type SubscriberFuncs[T any] struct {
	Subscribe func(s Subscription)
	Next      func(v T)
	Error     func(err error)
	Complete  func()
}

func (f SubscriberFuncs[T]) OnSubscribe(s Subscription) {
	if f.Subscribe != nil {
		f.Subscribe(s)
	}
}

func (f SubscriberFuncs[T]) OnNext(v T) {
	if f.Next != nil {
		f.Next(v)
	}
}

func (f SubscriberFuncs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f SubscriberFuncs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

type flowableFunc[T any] func(s Subscriber[T])

func (f flowableFunc[T]) Subscribe(s Subscriber[T]) { f(s) }

// ToFlowableLatest converts src into a Flowable that never blocks src: when
// the subscriber has no outstanding demand, only the most recent undelivered
// value is kept and older ones are dropped. Completion waits for the retained
// value to be requested; a failure is delivered at once.
func ToFlowableLatest[T any](src Observable[T]) Flowable[T] {
	return flowableFunc[T](func(s Subscriber[T]) {
		src.Subscribe(&latestSubscription[T]{downstream: s})
	})
}

type latestSubscription[T any] struct {
	downstream Subscriber[T]
	upstream   slot

	mu         sync.Mutex
	latest     T
	hasLatest  bool
	requested  int64
	done       bool
	err        error
	cancelled  bool
	terminated bool
	emitting   bool
}

func (l *latestSubscription[T]) OnSubscribe(d Disposable) {
	l.upstream.set(d)
	l.downstream.OnSubscribe(l)
}

func (l *latestSubscription[T]) OnNext(v T) {
	l.mu.Lock()
	if l.done || l.cancelled {
		l.mu.Unlock()
		return
	}
	l.latest = v
	l.hasLatest = true
	l.mu.Unlock()
	l.drain()
}

func (l *latestSubscription[T]) OnError(err error) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		OnError(&UndeliverableError{Cause: err})
		return
	}
	l.done = true
	l.err = err
	l.mu.Unlock()
	l.drain()
}

func (l *latestSubscription[T]) OnComplete() {
	l.mu.Lock()
	l.done = true
	l.mu.Unlock()
	l.drain()
}

func (l *latestSubscription[T]) Request(n int64) {
	if n <= 0 {
		OnError(fmt.Errorf("rx: request must be positive, got %d", n))
		return
	}
	l.mu.Lock()
	if l.requested > math.MaxInt64-n {
		l.requested = math.MaxInt64
	} else {
		l.requested += n
	}
	l.mu.Unlock()
	l.drain()
}

func (l *latestSubscription[T]) Cancel() {
	l.mu.Lock()
	if l.cancelled {
		l.mu.Unlock()
		return
	}
	l.cancelled = true
	var zero T
	l.latest = zero
	l.hasLatest = false
	l.mu.Unlock()
	l.upstream.dispose()
}

// drain is the single emission loop. A caller that finds another drain in
// progress leaves; the running loop re-reads state after every delivery.
func (l *latestSubscription[T]) drain() {
	l.mu.Lock()
	if l.emitting {
		l.mu.Unlock()
		return
	}
	l.emitting = true
	for {
		if l.cancelled || l.terminated {
			l.emitting = false
			l.mu.Unlock()
			return
		}
		if l.done && l.err != nil {
			l.terminate(l.err)
			continue
		}
		if l.hasLatest && l.requested > 0 {
			v := l.latest
			var zero T
			l.latest = zero
			l.hasLatest = false
			if l.requested != math.MaxInt64 {
				l.requested--
			}
			l.mu.Unlock()
			if perr := Catch(func() { l.downstream.OnNext(v) }); perr != nil {
				OnError(&UndeliverableError{Cause: perr})
			}
			l.mu.Lock()
			continue
		}
		if l.done && !l.hasLatest {
			l.terminate(nil)
			continue
		}
		l.emitting = false
		l.mu.Unlock()
		return
	}
}

// terminate delivers the terminal event. Called and returns with l.mu held.
func (l *latestSubscription[T]) terminate(err error) {
	l.terminated = true
	var zero T
	l.latest = zero
	l.hasLatest = false
	l.mu.Unlock()
	if err != nil {
		if perr := Catch(func() { l.downstream.OnError(err) }); perr != nil {
			OnError(NewCompositeError(err, perr))
		}
	} else if perr := Catch(l.downstream.OnComplete); perr != nil {
		OnError(&UndeliverableError{Cause: perr})
	}
	l.mu.Lock()
}
