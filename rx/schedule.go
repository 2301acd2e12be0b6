package rx

import (
	"sync"
	"sync/atomic"
)

// Scheduler runs tasks on some execution context. Disposing the returned
// Disposable before the task starts must prevent it from running.
type Scheduler interface {
	Schedule(task func()) Disposable
}

// SubscribeOn subscribes to src from a task run on s, so a synchronous source
// both executes and delivers on s.
func SubscribeOn[T any](src Observable[T], s Scheduler) Observable[T] {
	return ObservableFunc[T](func(o Observer[T]) {
		parent := &subscribeOnObserver[T]{downstream: o}
		o.OnSubscribe(parent)
		var started atomic.Bool
		d := s.Schedule(func() {
			started.Store(true)
			if parent.upstream.isDisposed() {
				return
			}
			src.Subscribe(parent)
		})
		if d.IsDisposed() && !started.Load() {
			if !parent.IsDisposed() {
				if perr := Catch(func() { o.OnError(ErrRejected) }); perr != nil {
					OnError(NewCompositeError(ErrRejected, perr))
				}
			}
			return
		}
		parent.task.set(d)
	})
}

type subscribeOnObserver[T any] struct {
	downstream Observer[T]
	upstream   slot
	task       slot
}

func (p *subscribeOnObserver[T]) OnSubscribe(d Disposable) { p.upstream.set(d) }
func (p *subscribeOnObserver[T]) OnNext(v T)               { p.downstream.OnNext(v) }
func (p *subscribeOnObserver[T]) OnError(err error)        { p.downstream.OnError(err) }
func (p *subscribeOnObserver[T]) OnComplete()              { p.downstream.OnComplete() }

func (p *subscribeOnObserver[T]) Dispose() {
	p.task.dispose()
	p.upstream.dispose()
}

func (p *subscribeOnObserver[T]) IsDisposed() bool {
	return p.upstream.isDisposed()
}

// ObserveOn relocates every event of src onto s. Events keep their order and
// are never delivered concurrently.
func ObserveOn[T any](src Observable[T], s Scheduler) Observable[T] {
	return ObservableFunc[T](func(o Observer[T]) {
		src.Subscribe(&observeOnObserver[T]{downstream: o, scheduler: s})
	})
}

type observeOnObserver[T any] struct {
	downstream Observer[T]
	scheduler  Scheduler
	upstream   slot
	task       slot

	mu         sync.Mutex
	queue      []T
	done       bool
	err        error
	terminated bool
	running    bool
	pending    bool // drain handed to the scheduler but not started yet
}

func (o *observeOnObserver[T]) OnSubscribe(d Disposable) {
	o.upstream.set(d)
	o.downstream.OnSubscribe(o)
}

func (o *observeOnObserver[T]) OnNext(v T) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, v)
	o.mu.Unlock()
	o.schedule()
}

func (o *observeOnObserver[T]) OnError(err error) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		OnError(&UndeliverableError{Cause: err})
		return
	}
	o.done = true
	o.err = err
	o.mu.Unlock()
	o.schedule()
}

func (o *observeOnObserver[T]) OnComplete() {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.done = true
	o.mu.Unlock()
	o.schedule()
}

func (o *observeOnObserver[T]) Dispose() {
	o.upstream.dispose()
	o.task.dispose()
	o.mu.Lock()
	o.queue = nil
	o.mu.Unlock()
}

func (o *observeOnObserver[T]) IsDisposed() bool {
	return o.upstream.isDisposed()
}

func (o *observeOnObserver[T]) schedule() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.pending = true
	o.mu.Unlock()
	d := o.scheduler.Schedule(o.drain)
	if d.IsDisposed() && o.rejected() {
		return
	}
	o.task.set(d)
}

// rejected reports whether the scheduler disposed the drain task without
// running it, as a closed scheduler does. The stream then fails with
// ErrRejected on the caller's goroutine.
func (o *observeOnObserver[T]) rejected() bool {
	o.mu.Lock()
	if !o.pending {
		o.mu.Unlock()
		return false
	}
	o.pending = false
	o.running = false
	o.queue = nil
	if o.terminated || o.upstream.isDisposed() {
		o.mu.Unlock()
		return true
	}
	o.terminated = true
	o.done = true
	o.mu.Unlock()

	if perr := Catch(func() { o.downstream.OnError(ErrRejected) }); perr != nil {
		OnError(NewCompositeError(ErrRejected, perr))
	}
	o.upstream.dispose()
	return true
}

func (o *observeOnObserver[T]) drain() {
	for {
		o.mu.Lock()
		o.pending = false
		if o.upstream.isDisposed() || o.terminated {
			o.queue = nil
			o.running = false
			o.mu.Unlock()
			return
		}
		if len(o.queue) > 0 {
			v := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()
			if perr := Catch(func() { o.downstream.OnNext(v) }); perr != nil {
				OnError(&UndeliverableError{Cause: perr})
			}
			continue
		}
		if o.done {
			o.terminated = true
			err := o.err
			o.mu.Unlock()
			if err != nil {
				if perr := Catch(func() { o.downstream.OnError(err) }); perr != nil {
					OnError(NewCompositeError(err, perr))
				}
			} else if perr := Catch(o.downstream.OnComplete); perr != nil {
				OnError(&UndeliverableError{Cause: perr})
			}
			continue
		}
		o.running = false
		o.mu.Unlock()
		return
	}
}
