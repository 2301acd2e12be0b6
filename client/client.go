// Package client issues HTTP calls and hands them to the adapter as streams.
//
// A Client resolves its endpoint either from a fixed base URL or from a
// registry plus balancer, runs every round trip through its middleware chain
// and decodes successful bodies with its codec. It never retries.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"rxcall/adapter"
	"rxcall/call"
	"rxcall/codec"
	"rxcall/graphql"
	"rxcall/loadbalance"
	"rxcall/middleware"
	"rxcall/registry"
	"rxcall/response"
)

var ErrNoEndpoint = errors.New("client: no base URL and no discovery configured")

type Client struct {
	baseURL  string
	registry registry.Registry // find service instance from registry
	balancer loadbalance.Balancer
	service  string

	codec       codec.Codec
	hc          *http.Client
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	logger      *zap.Logger
}

type Option func(*Client)

// WithBaseURL sends every call to u.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithDiscovery picks the endpoint of every round trip from the instances of
// service in reg, chosen by bal.
func WithDiscovery(reg registry.Registry, bal loadbalance.Balancer, service string) Option {
	return func(c *Client) {
		c.registry = reg
		c.balancer = bal
		c.service = service
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithMiddleware appends mw to the round-trip chain, outermost first.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mw...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithCodec(cd codec.Codec) Option {
	return func(c *Client) { c.codec = cd }
}

func New(opts ...Option) (*Client, error) {
	c := &Client{
		codec:  codec.GetCodec(codec.CodecTypeJSON),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" && c.registry == nil {
		return nil, ErrNoEndpoint
	}
	if c.registry != nil && c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}
	c.handler = middleware.Chain(c.middlewares...)(middleware.Transport(c.hc))
	return c, nil
}

// Operation describes one remote endpoint.
type Operation struct {
	Method string
	Path   string
	Header http.Header
	// Key routes the call under consistent hashing; Path is used when empty.
	Key string
}

func (op Operation) method() string {
	if op.Method == "" {
		return http.MethodGet
	}
	return op.Method
}

func (op Operation) key() string {
	if op.Key == "" {
		return op.Path
	}
	return op.Key
}

// endpoint returns the base URL the next round trip goes to.
func (c *Client) endpoint(ctx context.Context, key string) (string, error) {
	if c.registry == nil {
		return c.baseURL, nil
	}
	instances, err := c.registry.Discover(ctx, c.service)
	if err != nil {
		return "", err
	}
	instance, err := c.balancer.Pick(instances, key)
	if err != nil {
		return "", err
	}
	c.logger.Debug("endpoint selected",
		zap.String("service", c.service),
		zap.String("addr", instance.Addr),
		zap.String("balancer", c.balancer.Name()))
	return instance.URL(), nil
}

// encode turns a request body into wire bytes. []byte is sent as is.
func (c *Client) encode(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	default:
		data, err := c.codec.Encode(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode request: %w", err)
		}
		return data, nil
	}
}

// NewCall prepares op as a one-shot Call whose successful bodies are decoded
// by dec. body is encoded once; every clone of the call resends it.
func NewCall[T any](ctx context.Context, c *Client, op Operation, body any, dec codec.Decoder[T]) (*call.Func[T], error) {
	payload, err := c.encode(body)
	if err != nil {
		return nil, err
	}
	return call.New(ctx, func(ctx context.Context) (*response.Response[T], error) {
		return roundTrip(ctx, c, op, payload, dec)
	}), nil
}

func roundTrip[T any](ctx context.Context, c *Client, op Operation, payload []byte, dec codec.Decoder[T]) (*response.Response[T], error) {
	method := op.method()
	base, err := c.endpoint(ctx, op.key())
	if err != nil {
		return nil, &response.TransportError{Method: method, URL: op.Path, Err: err}
	}
	url := base + op.Path

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &response.TransportError{Method: method, URL: url, Err: err}
	}
	for k, vs := range op.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", c.codec.ContentType())
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", c.codec.ContentType())
	}

	resp, err := c.handler(ctx, req)
	if err != nil {
		return nil, &response.TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &response.TransportError{Method: method, URL: url, Err: err}
	}
	raw := response.Raw{Status: resp.Status, Header: resp.Header, URL: url}

	if !response.IsSuccessStatus(resp.StatusCode) {
		return response.Error[T](resp.StatusCode, data, raw), nil
	}
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusResetContent {
		return response.Empty[T](resp.StatusCode, raw), nil
	}
	v, ok, err := dec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, url, err)
	}
	if !ok {
		return response.Empty[T](resp.StatusCode, raw), nil
	}
	return response.Success(resp.StatusCode, v, raw), nil
}

// decoderFor picks the body decoder for T: raw bytes and text pass through,
// everything else goes through the client's codec.
func decoderFor[T any](c *Client) codec.Decoder[T] {
	var zero T
	switch any(zero).(type) {
	case []byte:
		return any(codec.Bytes()).(codec.Decoder[T])
	case string:
		return any(codec.String()).(codec.Decoder[T])
	}
	return codec.For[T](c.codec)
}

// Invoke prepares op and adapts it to the stream p describes. The result is
// one of the stream types adapter.Adapt returns; use adapter.As to type it.
//
//	single, err := adapter.As[rx.Single[User]](client.Invoke[User](ctx, c, op, nil, p))
func Invoke[T any](ctx context.Context, c *Client, op Operation, body any, p adapter.Pipeline) (any, error) {
	cl, err := NewCall(ctx, c, op, body, decoderFor[T](c))
	if err != nil {
		return nil, err
	}
	return adapter.Adapt[T](cl, p)
}

// InvokeGraphQL posts req to op and unwraps the payload from the data
// envelope of the reply. p must have been resolved with adapter.WithGraphQL.
// GraphQL bodies are JSON in both directions whatever the client's codec.
func InvokeGraphQL[T any](ctx context.Context, c *Client, op Operation, req graphql.Request, p adapter.Pipeline) (any, error) {
	if op.Method == "" {
		op.Method = http.MethodPost
	}
	jc := codec.GetCodec(codec.CodecTypeJSON)
	op.Header = op.Header.Clone()
	if op.Header == nil {
		op.Header = http.Header{}
	}
	op.Header.Set("Content-Type", jc.ContentType())
	op.Header.Set("Accept", jc.ContentType())

	payload, err := jc.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("client: encode graphql request: %w", err)
	}
	cl, err := NewCall(ctx, c, op, payload, codec.GraphQL[T](jc))
	if err != nil {
		return nil, err
	}
	return adapter.AdaptGraphQL[T](cl, p)
}

// Query asks the GraphQL endpoint at op for field with args and selects the
// fields of T, as graphql.Builder.FieldsOf derives them.
//
//	single, err := adapter.As[rx.Single[User]](client.Query[User](ctx, c, op, "user", graphql.Args{"id": 1}, p))
func Query[T any](ctx context.Context, c *Client, op Operation, field string, args graphql.Args, p adapter.Pipeline) (any, error) {
	b := graphql.NewRequest().ObjectField(field)
	if len(args) > 0 {
		names := make([]string, 0, len(args))
		for name := range args {
			names = append(names, name)
		}
		sort.Strings(names)
		b.Arguments()
		for _, name := range names {
			b.Argument(name, args[name])
		}
		b.Finish()
	}
	req, err := b.FieldsOf((*T)(nil), nil).Build()
	if err != nil {
		return nil, err
	}
	return InvokeGraphQL[T](ctx, c, op, req, p)
}
