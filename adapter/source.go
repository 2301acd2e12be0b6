package adapter

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rxcall/call"
	"rxcall/response"
	"rxcall/rx"
)

// outcomeSource turns a call into a stream of one envelope followed by
// completion, or one failure. Every subscription runs its own clone of c.
func outcomeSource[T any](c call.Call[T], async bool, logger *zap.Logger) rx.Observable[*response.Response[T]] {
	if async {
		return rx.ObservableFunc[*response.Response[T]](func(o rx.Observer[*response.Response[T]]) {
			subscribeEnqueue(c.Clone(), o, logger)
		})
	}
	return rx.ObservableFunc[*response.Response[T]](func(o rx.Observer[*response.Response[T]]) {
		subscribeExecute(c.Clone(), o, logger)
	})
}

// callDisposable cancels its call when disposed before the outcome is
// known. Cancelling the call by other means does not dispose it.
type callDisposable[T any] struct {
	call     call.Call[T]
	disposed atomic.Bool
	finished atomic.Bool
}

func (d *callDisposable[T]) Dispose() {
	if d.disposed.Swap(true) {
		return
	}
	if !d.finished.Load() {
		d.call.Cancel()
	}
}

func (d *callDisposable[T]) IsDisposed() bool {
	return d.disposed.Load()
}

func subscribeExecute[T any](c call.Call[T], o rx.Observer[*response.Response[T]], logger *zap.Logger) {
	d := &callDisposable[T]{call: c}
	o.OnSubscribe(d)
	if d.IsDisposed() {
		return
	}

	id := uuid.NewString()
	logger.Debug("executing call", zap.String("subscription", id))
	var r *response.Response[T]
	var err error
	if perr := rx.Catch(func() { r, err = c.Execute() }); perr != nil {
		r, err = nil, perr
	}
	d.finished.Store(true)
	if err != nil {
		logger.Debug("call failed", zap.String("subscription", id), zap.Error(err))
		if !d.IsDisposed() {
			failTo(o, err)
		}
		return
	}
	logger.Debug("call completed", zap.String("subscription", id), zap.Int("status", r.StatusCode))
	deliver(o, d, r)
}

func subscribeEnqueue[T any](c call.Call[T], o rx.Observer[*response.Response[T]], logger *zap.Logger) {
	d := &callDisposable[T]{call: c}
	o.OnSubscribe(d)
	if d.IsDisposed() {
		return
	}

	id := uuid.NewString()
	logger.Debug("enqueueing call", zap.String("subscription", id))
	c.Enqueue(call.CallbackFuncs[T]{
		Response: func(_ call.Call[T], r *response.Response[T]) {
			d.finished.Store(true)
			logger.Debug("call completed", zap.String("subscription", id), zap.Int("status", r.StatusCode))
			if d.IsDisposed() {
				return
			}
			deliver(o, d, r)
		},
		Failure: func(fc call.Call[T], err error) {
			d.finished.Store(true)
			logger.Debug("call failed", zap.String("subscription", id), zap.Error(err))
			// A cancelled call fails with a cancellation error nobody asked for.
			if fc.IsCanceled() || d.IsDisposed() {
				return
			}
			failTo(o, err)
		},
	})
}

// deliver emits r then completes. A panic raised before completion is
// delivered as the stream failure; one raised by completion itself is
// undeliverable.
func deliver[T any](o rx.Observer[*response.Response[T]], d *callDisposable[T], r *response.Response[T]) {
	terminated := false
	perr := rx.Catch(func() {
		o.OnNext(r)
		if !d.IsDisposed() {
			terminated = true
			o.OnComplete()
		}
	})
	if perr == nil {
		return
	}
	if terminated {
		rx.OnError(&rx.UndeliverableError{Cause: perr})
		return
	}
	if !d.IsDisposed() {
		failTo(o, perr)
	}
}

func failTo[T any](o rx.Observer[T], err error) {
	if perr := rx.Catch(func() { o.OnError(err) }); perr != nil {
		rx.OnError(rx.NewCompositeError(err, perr))
	}
}
