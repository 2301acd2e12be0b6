package adapter

import (
	"fmt"

	"go.uber.org/zap"

	"rxcall/rx"
)

// Cardinality is the arity contract of the stream handed to the consumer.
type Cardinality int

const (
	Unrestricted   Cardinality = iota // rx.Observable
	Latest                            // rx.Flowable, latest-value backpressure
	ExactlyOne                        // rx.Single
	ZeroOrOne                         // rx.Maybe
	CompletionOnly                    // rx.Completable
)

func (c Cardinality) String() string {
	switch c {
	case Unrestricted:
		return "Observable"
	case Latest:
		return "Flowable"
	case ExactlyOne:
		return "Single"
	case ZeroOrOne:
		return "Maybe"
	case CompletionOnly:
		return "Completable"
	default:
		return fmt.Sprintf("Cardinality(%d)", int(c))
	}
}

// ShapeKind selects how a call outcome is presented as stream values.
type ShapeKind int

const (
	// ShapeBody emits the decoded body; unusable outcomes fail the stream.
	ShapeBody ShapeKind = iota
	// ShapeResponse emits the envelope; only transport failures fail the stream.
	ShapeResponse
	// ShapeResult emits response.Result values and never fails the stream.
	ShapeResult
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBody:
		return "body"
	case ShapeResponse:
		return "response"
	case ShapeResult:
		return "result"
	default:
		return fmt.Sprintf("ShapeKind(%d)", int(k))
	}
}

type Shape struct {
	Kind ShapeKind
	// GraphQL unwraps a data envelope nested in the HTTP body.
	GraphQL bool
}

func (s Shape) String() string {
	if s.GraphQL {
		return "graphql-" + s.Kind.String()
	}
	return s.Kind.String()
}

// Pipeline is the resolved adaptation of one declared operation. It is
// immutable and shared by every invocation of the operation.
type Pipeline struct {
	Async       bool
	Cardinality Cardinality
	Shape       Shape
	Scheduler   rx.Scheduler // nil delivers on the producing goroutine

	// ResponseType is the payload the body decoder has to produce, after
	// Response, Result and data envelope layers are stripped.
	ResponseType Type

	logger *zap.Logger
}

// Logger returns the logger the pipeline reports subscriptions to.
func (p Pipeline) Logger() *zap.Logger {
	if p.logger == nil {
		return zap.NewNop()
	}
	return p.logger
}

type options struct {
	async     bool
	scheduler rx.Scheduler
	graphQL   bool
	logger    *zap.Logger
}

type Option func(*options)

// WithAsync enqueues calls instead of executing them on the subscribing
// goroutine.
func WithAsync() Option {
	return func(o *options) { o.async = true }
}

// WithScheduler subscribes on s. Asynchronous pipelines also observe the
// outcome on s, so all forwarding to the consumer happens there.
func WithScheduler(s rx.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithGraphQL unwraps a GraphQL data envelope from every body.
func WithGraphQL() Option {
	return func(o *options) { o.graphQL = true }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ConfigurationError rejects a declared result type. It is returned by
// Resolve before any call is made.
type ConfigurationError struct {
	Declared Type
	Msg      string
}

func (e *ConfigurationError) Error() string {
	return "adapter: " + e.Msg
}

func configErr(declared Type, format string, args ...any) error {
	return &ConfigurationError{Declared: declared, Msg: fmt.Sprintf(format, args...)}
}

func parameterizedMsg(k Kind) string {
	if k.isStream() {
		return fmt.Sprintf("%[1]s return type must be parameterized as %[1]s<Foo> or %[1]s<? extends Foo>", k)
	}
	return fmt.Sprintf("%[1]s must be parameterized as %[1]s<Foo> or %[1]s<? extends Foo>", k)
}

// Resolve assembles the pipeline for an operation declared to return
// declared, e.g. SingleOf(ResponseOf(Named("User"))).
func Resolve(declared Type, opts ...Option) (Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p := Pipeline{
		Async:     o.async,
		Scheduler: o.scheduler,
		logger:    o.logger,
	}

	if !declared.Kind.isStream() {
		return Pipeline{}, configErr(declared, "%s is not a supported stream type", declared)
	}

	if declared.Kind == KindCompletable {
		if len(declared.Args) > 0 {
			return Pipeline{}, configErr(declared, "Completable must not be parameterized, got %s", declared)
		}
		p.Cardinality = CompletionOnly
		p.Shape = Shape{Kind: ShapeBody, GraphQL: o.graphQL}
		p.ResponseType = Named("[]byte")
		return p, nil
	}

	switch declared.Kind {
	case KindObservable:
		p.Cardinality = Unrestricted
	case KindFlowable:
		p.Cardinality = Latest
	case KindSingle:
		p.Cardinality = ExactlyOne
	case KindMaybe:
		p.Cardinality = ZeroOrOne
	}

	inner, err := typeArgument(declared, declared)
	if err != nil {
		return Pipeline{}, err
	}
	if inner.Kind == KindCompletable || inner.contains(KindCompletable) {
		return Pipeline{}, configErr(declared, "Completable must not be nested in %s", declared)
	}

	p.Shape.Kind = ShapeBody
	payload := inner
	switch inner.Kind {
	case KindResponse:
		p.Shape.Kind = ShapeResponse
	case KindResult:
		p.Shape.Kind = ShapeResult
	}
	if p.Shape.Kind != ShapeBody {
		if payload, err = typeArgument(declared, inner); err != nil {
			return Pipeline{}, err
		}
	}

	p.Shape.GraphQL = o.graphQL
	if payload.Kind == KindDataEnvelope {
		// The envelope is the declared payload: decode it whole and skip
		// the unwrapping layer.
		if _, err := typeArgument(declared, payload); err != nil {
			return Pipeline{}, err
		}
		p.Shape.GraphQL = false
	}
	p.ResponseType = payload
	return p, nil
}

// typeArgument returns the single type argument of the container t found
// in declared, resolving a bounded wildcard to its bound.
func typeArgument(declared, t Type) (Type, error) {
	if len(t.Args) != 1 || t.Args[0].IsUnbounded() {
		return Type{}, configErr(declared, "%s", parameterizedMsg(t.Kind))
	}
	return t.Args[0].upper(), nil
}
