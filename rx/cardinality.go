package rx

// SingleObserver receives exactly one value or one failure.
type SingleObserver[T any] interface {
	OnSubscribe(d Disposable)
	OnSuccess(v T)
	OnError(err error)
}

// Single is a stream that succeeds with exactly one value or fails.
type Single[T any] interface {
	Subscribe(o SingleObserver[T])
}

// MaybeObserver receives at most one value, completion or one failure.
type MaybeObserver[T any] interface {
	OnSubscribe(d Disposable)
	OnSuccess(v T)
	OnError(err error)
	OnComplete()
}

// Maybe is a stream that succeeds with one value, completes empty, or fails.
type Maybe[T any] interface {
	Subscribe(o MaybeObserver[T])
}

// CompletableObserver receives only the terminal event.
type CompletableObserver interface {
	OnSubscribe(d Disposable)
	OnComplete()
	OnError(err error)
}

// Completable is a stream that carries no values.
type Completable interface {
	Subscribe(o CompletableObserver)
}

// SingleFuncs is a SingleObserver assembled from optional callbacks.
type SingleFuncs[T any] struct {
	Subscribe func(d Disposable)
	Success   func(v T)
	Error     func(err error)
}

func (f SingleFuncs[T]) OnSubscribe(d Disposable) {
	if f.Subscribe != nil {
		f.Subscribe(d)
	}
}

func (f SingleFuncs[T]) OnSuccess(v T) {
	if f.Success != nil {
		f.Success(v)
	}
}

func (f SingleFuncs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// MaybeFuncs is a MaybeObserver assembled from optional callbacks.
type MaybeFuncs[T any] struct {
	Subscribe func(d Disposable)
	Success   func(v T)
	Error     func(err error)
	Complete  func()
}

func (f MaybeFuncs[T]) OnSubscribe(d Disposable) {
	if f.Subscribe != nil {
		f.Subscribe(d)
	}
}

func (f MaybeFuncs[T]) OnSuccess(v T) {
	if f.Success != nil {
		f.Success(v)
	}
}

func (f MaybeFuncs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f MaybeFuncs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// CompletableFuncs is a CompletableObserver assembled from optional callbacks.
type CompletableFuncs struct {
	Subscribe func(d Disposable)
	Complete  func()
	Error     func(err error)
}

func (f CompletableFuncs) OnSubscribe(d Disposable) {
	if f.Subscribe != nil {
		f.Subscribe(d)
	}
}

func (f CompletableFuncs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

func (f CompletableFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

type singleFunc[T any] func(o SingleObserver[T])

func (f singleFunc[T]) Subscribe(o SingleObserver[T]) { f(o) }

type maybeFunc[T any] func(o MaybeObserver[T])

func (f maybeFunc[T]) Subscribe(o MaybeObserver[T]) { f(o) }

type completableFunc func(o CompletableObserver)

func (f completableFunc) Subscribe(o CompletableObserver) { f(o) }

// SingleOrError narrows src to exactly one value. An empty src fails with
// NoSuchElementError, a second value fails with IndexOutOfRangeError.
func SingleOrError[T any](src Observable[T]) Single[T] {
	return singleFunc[T](func(o SingleObserver[T]) {
		src.Subscribe(&elementObserver[T]{
			success: o.OnSuccess,
			failure: o.OnError,
			empty:   func() { o.OnError(&NoSuchElementError{}) },
			onSub:   o.OnSubscribe,
		})
	})
}

// SingleElement narrows src to zero or one value. An empty src completes, a
// second value fails with IndexOutOfRangeError.
func SingleElement[T any](src Observable[T]) Maybe[T] {
	return maybeFunc[T](func(o MaybeObserver[T]) {
		src.Subscribe(&elementObserver[T]{
			success: o.OnSuccess,
			failure: o.OnError,
			empty:   o.OnComplete,
			onSub:   o.OnSubscribe,
		})
	})
}

// elementObserver holds the first value until the upstream terminates.
type elementObserver[T any] struct {
	success func(T)
	failure func(error)
	empty   func()
	onSub   func(Disposable)

	upstream Disposable
	value    T
	hasValue bool
	done     bool
}

func (e *elementObserver[T]) OnSubscribe(d Disposable) {
	e.upstream = d
	e.onSub(d)
}

func (e *elementObserver[T]) OnNext(v T) {
	if e.done {
		return
	}
	if !e.hasValue {
		e.value = v
		e.hasValue = true
		return
	}
	e.done = true
	var zero T
	e.value = zero
	if e.upstream != nil {
		e.upstream.Dispose()
	}
	e.failure(&IndexOutOfRangeError{})
}

func (e *elementObserver[T]) OnError(err error) {
	if e.done {
		OnError(&UndeliverableError{Cause: err})
		return
	}
	e.done = true
	e.failure(err)
}

func (e *elementObserver[T]) OnComplete() {
	if e.done {
		return
	}
	e.done = true
	if !e.hasValue {
		e.empty()
		return
	}
	v := e.value
	var zero T
	e.value = zero
	e.success(v)
}

// IgnoreElements drops every value of src and forwards only its terminal
// event.
func IgnoreElements[T any](src Observable[T]) Completable {
	return completableFunc(func(o CompletableObserver) {
		src.Subscribe(Funcs[T]{
			Subscribe: o.OnSubscribe,
			Error:     o.OnError,
			Complete:  o.OnComplete,
		})
	})
}
