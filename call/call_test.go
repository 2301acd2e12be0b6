package call

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rxcall/response"
)

func ok(context.Context) (*response.Response[string], error) {
	return response.Success(http.StatusOK, "pong", response.Raw{Status: "200 OK"}), nil
}

func TestExecuteOnce(t *testing.T) {
	c := New(context.Background(), ok)

	r, err := c.Execute()
	require.NoError(t, err)
	body, _ := r.Body()
	assert.Equal(t, "pong", body)

	_, err = c.Execute()
	assert.ErrorIs(t, err, ErrExecuted)
}

func TestCancelBeforeExecute(t *testing.T) {
	c := New(context.Background(), ok)
	c.Cancel()

	assert.True(t, c.IsCanceled())
	_, err := c.Execute()
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestCancelInterruptsRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	c := New(context.Background(), func(ctx context.Context) (*response.Response[string], error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	failed := make(chan error, 1)
	c.Enqueue(CallbackFuncs[string]{
		Failure: func(got Call[string], err error) {
			assert.Same(t, c, got)
			failed <- err
		},
	})
	<-started
	c.Cancel()

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("round trip was not interrupted")
	}
}

func TestEnqueueReportsResponse(t *testing.T) {
	defer goleak.VerifyNone(t)

	got := make(chan *response.Response[string], 1)
	New(context.Background(), ok).Enqueue(CallbackFuncs[string]{
		Response: func(_ Call[string], r *response.Response[string]) { got <- r },
	})
	assert.True(t, (<-got).IsSuccessful())
}

func TestEnqueueReportsPanicAsFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	decoderBug := errors.New("decoder bug")

	tests := []struct {
		name  string
		value any
		check func(t *testing.T, err error)
	}{
		{"error", decoderBug, func(t *testing.T, err error) { assert.ErrorIs(t, err, decoderBug) }},
		{"other value", 42, func(t *testing.T, err error) { assert.EqualError(t, err, "call: panic: 42") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failed := make(chan error, 1)
			c := New(context.Background(), func(context.Context) (*response.Response[string], error) {
				panic(tt.value)
			})
			c.Enqueue(CallbackFuncs[string]{
				Response: func(Call[string], *response.Response[string]) { t.Error("unexpected response") },
				Failure:  func(_ Call[string], err error) { failed <- err },
			})
			select {
			case err := <-failed:
				tt.check(t, err)
			case <-time.After(time.Second):
				t.Fatal("panic was not reported")
			}
		})
	}
}

func TestEnqueueAfterExecute(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(context.Background(), ok)
	_, err := c.Execute()
	require.NoError(t, err)

	failed := make(chan error, 1)
	c.Enqueue(CallbackFuncs[string]{Failure: func(_ Call[string], err error) { failed <- err }})
	assert.ErrorIs(t, <-failed, ErrExecuted)
}

func TestCloneIsFresh(t *testing.T) {
	runs := 0
	c := New(context.Background(), func(context.Context) (*response.Response[string], error) {
		runs++
		return nil, errors.New("down")
	})
	_, _ = c.Execute()
	c.Cancel()

	clone := c.Clone()
	assert.False(t, clone.IsCanceled())
	_, err := clone.Execute()
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, runs)
}
