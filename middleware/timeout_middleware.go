package middleware

import (
	"context"
	"io"
	"net/http"
	"time"
)

type result struct {
	resp *http.Response
	err  error
}

// TimeOutMiddleware bounds the time until response headers arrive. The
// deadline keeps applying while the body is read and is released when the
// body is closed.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *http.Request) (*http.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)

			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				if r.err != nil {
					cancel()
					if ctx.Err() == context.DeadlineExceeded {
						return nil, ErrTimeout
					}
					return nil, r.err
				}
				r.resp.Body = &cancelOnClose{ReadCloser: r.resp.Body, cancel: cancel}
				return r.resp, nil
			case <-ctx.Done():
				cancel()
				go func() {
					if r := <-done; r.resp != nil {
						r.resp.Body.Close()
					}
				}()
				if ctx.Err() == context.DeadlineExceeded {
					return nil, ErrTimeout
				}
				return nil, ctx.Err()
			}
		}
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
