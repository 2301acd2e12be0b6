// Package middleware wraps the HTTP round trip performed by the client's
// calls. Middlewares never retry: one call is one round trip.
package middleware

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrTimeout     = errors.New("request timed out")
)

// HandlerFunc performs one round trip. A non-nil error means no response was
// obtained; the caller owns the returned body.
type HandlerFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Transport is the terminal HandlerFunc sending req through hc.
func Transport(hc *http.Client) HandlerFunc {
	if hc == nil {
		hc = http.DefaultClient
	}
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return hc.Do(req.WithContext(ctx))
	}
}
