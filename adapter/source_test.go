package adapter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rxcall/call"
	"rxcall/response"
	"rxcall/rx"
	"rxcall/scheduler"
)

func TestEverySubscriptionRunsAClone(t *testing.T) {
	c := counting[user](returning(okResponse(ada)))
	p, err := Resolve(ObservableOf(userType))
	require.NoError(t, err)
	obs, err := As[rx.Observable[user]](Adapt(c, p))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := newRecorder[user]()
		obs.Subscribe(rec)
		rec.await(t)
		assert.Equal(t, []user{ada}, rec.events().values)
	}
	assert.Len(t, c.clones, 3)
}

func TestAsyncDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := observe[user, user](t, returning(okResponse(ada)), ObservableOf(userType), WithAsync())
	rec.await(t)

	ev := rec.events()
	assert.Equal(t, []user{ada}, ev.values)
	assert.True(t, ev.completed)
}

func TestAsyncTransportFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := observe[user, response.Result[user]](t, failing[user](errDrop), ObservableOf(ResultOf(userType)), WithAsync())
	rec.await(t)

	ev := rec.events()
	require.Len(t, ev.values, 1)
	assert.ErrorIs(t, ev.values[0].Err(), errDrop)
	assert.True(t, ev.completed)
}

func TestDisposeBeforeOutcomeCancelsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	defer close(release)
	c := counting[user](blocking(release, okResponse(ada)))
	rec := observe[user, user](t, c, ObservableOf(userType), WithAsync())

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			rec.dispose()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), c.cancels.Load())
	clone := <-c.clones
	assert.Eventually(t, clone.IsCanceled, time.Second, 5*time.Millisecond)

	// The cancelled call's failure is not delivered.
	time.Sleep(50 * time.Millisecond)
	ev := rec.events()
	assert.Empty(t, ev.values)
	assert.Zero(t, ev.terminals)
}

func TestDisposeAfterTerminalDoesNotCancel(t *testing.T) {
	c := counting[user](returning(okResponse(ada)))
	rec := observe[user, user](t, c, ObservableOf(userType))
	rec.await(t)

	rec.dispose()
	rec.dispose()
	assert.Zero(t, c.cancels.Load())
	assert.True(t, rec.disposable.IsDisposed())
}

func TestCancellingTheCallDoesNotDispose(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := counting[user](blocking(release, okResponse(ada)))
	rec := observe[user, user](t, c, ObservableOf(userType), WithAsync())

	clone := <-c.clones
	clone.Cancel()

	assert.Eventually(t, clone.IsCanceled, time.Second, 5*time.Millisecond)
	assert.False(t, rec.disposable.IsDisposed())
}

func TestAsyncDirectCancellationHasNoTerminalEvent(t *testing.T) {
	defer goleak.VerifyNone(t)
	release := make(chan struct{})
	defer close(release)
	c := counting[user](blocking(release, okResponse(ada)))
	rec := observe[user, user](t, c, ObservableOf(userType), WithAsync())

	clone := <-c.clones
	clone.Cancel()

	assert.Never(t, func() bool { return rec.events().terminals > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.False(t, rec.disposable.IsDisposed())
}

func TestDisposedInOnSubscribeNeverExecutes(t *testing.T) {
	executed := make(chan struct{}, 1)
	c := call.New(context.Background(), func(context.Context) (*response.Response[user], error) {
		executed <- struct{}{}
		return okResponse(ada), nil
	})
	p, err := Resolve(ObservableOf(userType))
	require.NoError(t, err)
	obs, err := As[rx.Observable[user]](Adapt(c, p))
	require.NoError(t, err)

	obs.Subscribe(rx.Funcs[user]{
		Subscribe: func(d rx.Disposable) { d.Dispose() },
		Next:      func(user) { t.Error("unexpected value") },
	})
	assert.Empty(t, executed)
}

func TestSyncExecutionSurfacesDirectCancellation(t *testing.T) {
	c := call.New(context.Background(), func(ctx context.Context) (*response.Response[user], error) {
		return okResponse(ada), nil
	})
	p, err := Resolve(ObservableOf(userType))
	require.NoError(t, err)
	obs, err := As[rx.Observable[user]](Adapt(&cancelledClone{c}, p))
	require.NoError(t, err)

	rec := newRecorder[user]()
	obs.Subscribe(rec)
	rec.await(t)
	assert.ErrorIs(t, rec.events().err, call.ErrCanceled)
}

// cancelledClone hands out clones that were cancelled before executing.
type cancelledClone struct {
	call.Call[user]
}

func (c *cancelledClone) Clone() call.Call[user] {
	clone := c.Call.Clone()
	clone.Cancel()
	return clone
}

func TestSchedulerRelocatesSyncDelivery(t *testing.T) {
	s := &taskScheduler{inner: scheduler.Immediate{}}
	rec := newRecorder[user]()
	var onScheduler []bool
	rec.onNext = func(user) { onScheduler = append(onScheduler, s.onScheduler()) }
	rec.onComplete = func() { onScheduler = append(onScheduler, s.onScheduler()) }

	p, err := Resolve(ObservableOf(userType), WithScheduler(s))
	require.NoError(t, err)
	obs, err := As[rx.Observable[user]](Adapt(returning(okResponse(ada)), p))
	require.NoError(t, err)
	obs.Subscribe(rec)
	rec.await(t)

	assert.Equal(t, []bool{true, true}, onScheduler)
	assert.Equal(t, int32(1), s.scheduled.Load())
}

func TestSchedulerRelocatesAsyncDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	single := scheduler.NewSingle()
	defer single.Close()
	s := &taskScheduler{inner: single}

	rec := newRecorder[*response.Response[user]]()
	onScheduler := make(chan bool, 2)
	rec.onNext = func(*response.Response[user]) { onScheduler <- s.onScheduler() }
	rec.onComplete = func() { onScheduler <- s.onScheduler() }

	p, err := Resolve(ObservableOf(ResponseOf(userType)), WithAsync(), WithScheduler(s))
	require.NoError(t, err)
	obs, err := As[rx.Observable[*response.Response[user]]](Adapt(returning(notFound[user]()), p))
	require.NoError(t, err)
	obs.Subscribe(rec)
	rec.await(t)

	assert.True(t, <-onScheduler)
	assert.True(t, <-onScheduler)
	assert.GreaterOrEqual(t, s.scheduled.Load(), int32(2))
}

func TestSchedulerDisposeBeforeTaskRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	single := scheduler.NewSingle()
	gate := make(chan struct{})
	single.Schedule(func() { <-gate })

	executed := make(chan struct{}, 1)
	c := call.New(context.Background(), func(context.Context) (*response.Response[user], error) {
		executed <- struct{}{}
		return okResponse(ada), nil
	})
	p, err := Resolve(SingleOf(userType), WithScheduler(single))
	require.NoError(t, err)
	s, err := As[rx.Single[user]](Adapt(c, p))
	require.NoError(t, err)

	var d rx.Disposable
	s.Subscribe(rx.SingleFuncs[user]{Subscribe: func(sd rx.Disposable) { d = sd }})
	d.Dispose()
	close(gate)
	single.Close()

	assert.Empty(t, executed)
}

func TestSourcePanicBeforeTerminalBecomesFailure(t *testing.T) {
	captureErrors(t)
	thrown := errors.New("observer bug")

	rec := newRecorder[*response.Response[user]]()
	rec.onNext = func(*response.Response[user]) { panic(thrown) }
	outcomeSource[user](returning(okResponse(ada)), false, zap.NewNop()).Subscribe(rec)
	rec.await(t)

	ev := rec.events()
	assert.Equal(t, thrown, ev.err)
	assert.False(t, ev.completed)
}

// panicking is a call whose round trip panics with v.
func panicking[T any](v any) *call.Func[T] {
	return call.New(context.Background(), func(context.Context) (*response.Response[T], error) {
		panic(v)
	})
}

func TestCallPanicBecomesFailure(t *testing.T) {
	decoderBug := errors.New("decoder bug")

	for _, async := range []bool{false, true} {
		name := "sync"
		if async {
			name = "async"
		}
		t.Run(name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			opts := []Option{}
			if async {
				opts = append(opts, WithAsync())
			}
			p, err := Resolve(ObservableOf(userType), opts...)
			require.NoError(t, err)
			obs, err := As[rx.Observable[user]](Adapt(panicking[user](decoderBug), p))
			require.NoError(t, err)

			rec := newRecorder[user]()
			require.NotPanics(t, func() { obs.Subscribe(rec) })
			rec.await(t)

			ev := rec.events()
			assert.ErrorIs(t, ev.err, decoderBug)
			assert.Empty(t, ev.values)
			assert.False(t, ev.completed)
		})
	}
}

func TestCallPanicWithValueBecomesFailure(t *testing.T) {
	p, err := Resolve(SingleOf(userType), WithAsync())
	require.NoError(t, err)
	single, err := As[rx.Single[user]](Adapt(panicking[user]("index out of range"), p))
	require.NoError(t, err)

	errc := make(chan error, 1)
	single.Subscribe(rx.SingleFuncs[user]{Error: func(err error) { errc <- err }})
	select {
	case err := <-errc:
		assert.EqualError(t, err, "call: panic: index out of range")
	case <-time.After(2 * time.Second):
		t.Fatal("single did not terminate")
	}
}

func TestCallPanicAfterDisposeIsDropped(t *testing.T) {
	captured := captureErrors(t)
	c := call.New(context.Background(), func(ctx context.Context) (*response.Response[user], error) {
		<-ctx.Done()
		panic(errors.New("decoder bug"))
	})
	p, err := Resolve(ObservableOf(userType))
	require.NoError(t, err)
	obs, err := As[rx.Observable[user]](Adapt(c, p))
	require.NoError(t, err)

	var terminals atomic.Int32
	obs.Subscribe(rx.Funcs[user]{
		Subscribe: func(d rx.Disposable) { go d.Dispose() },
		Error:     func(error) { terminals.Add(1) },
		Complete:  func() { terminals.Add(1) },
	})

	assert.Zero(t, terminals.Load())
	assert.Empty(t, captured.Errors())
}

func TestClosedPoolFailsSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)
	pool := scheduler.NewPool(2)
	pool.Close()

	for _, async := range []bool{false, true} {
		opts := []Option{WithScheduler(pool)}
		if async {
			opts = append(opts, WithAsync())
		}
		p, err := Resolve(SingleOf(userType), opts...)
		require.NoError(t, err)
		single, err := As[rx.Single[user]](Adapt(returning(okResponse(ada)), p))
		require.NoError(t, err)

		var got error
		single.Subscribe(rx.SingleFuncs[user]{
			Success: func(user) { t.Error("unexpected success") },
			Error:   func(err error) { got = err },
		})
		assert.ErrorIs(t, got, rx.ErrRejected, "async=%v", async)
	}
}
