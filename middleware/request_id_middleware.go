package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware tags every request lacking one with a random
// X-Request-Id so that client and server logs can be correlated.
func RequestIDMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) == "" {
				req = req.Clone(ctx)
				req.Header.Set(RequestIDHeader, uuid.NewString())
			}
			return next(ctx, req)
		}
	}
}
