// Package adapter turns one remote call into the stream shape its operation
// was declared with.
//
// Resolve inspects the declared type once and yields a Pipeline; Adapt (or
// AdaptGraphQL) applies the pipeline to a call per invocation:
//
//	p, err := adapter.Resolve(adapter.SingleOf(adapter.ResponseOf(adapter.Named("User"))))
//	...
//	single, err := adapter.As[rx.Single[*response.Response[User]]](adapter.Adapt(c, p))
//
// The stream type depends on the pipeline's cardinality (rx.Observable,
// rx.Flowable, rx.Single, rx.Maybe or rx.Completable) and its values on the
// shape: T for body, *response.Response[T] for response and
// response.Result[T] for result pipelines.
package adapter

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"rxcall/call"
	"rxcall/graphql"
	"rxcall/rx"
)

// Adapt applies a plain pipeline to c. Every subscription to the returned
// stream runs a clone of c.
func Adapt[T any](c call.Call[T], p Pipeline) (any, error) {
	if p.Shape.GraphQL {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("%s pipeline needs a GraphQL envelope call, use AdaptGraphQL", p.Shape)}
	}
	switch {
	case p.Cardinality == CompletionOnly:
		return build(c, p, completionPolicy[T]()), nil
	case p.Shape.Kind == ShapeBody:
		return build(c, p, bodyPolicy[T]()), nil
	case p.Shape.Kind == ShapeResponse:
		return build(c, p, responsePolicy[T]()), nil
	case p.Shape.Kind == ShapeResult:
		return build(c, p, resultPolicy[T]()), nil
	default:
		return nil, &ConfigurationError{Msg: fmt.Sprintf("unknown shape %s", p.Shape)}
	}
}

// AdaptGraphQL applies a GraphQL pipeline to c, whose bodies are data
// envelopes around T.
func AdaptGraphQL[T any](c call.Call[graphql.Envelope[T]], p Pipeline) (any, error) {
	if !p.Shape.GraphQL {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("%s pipeline does not unwrap GraphQL envelopes, use Adapt", p.Shape)}
	}
	switch p.Shape.Kind {
	case ShapeBody:
		return build(c, p, graphQLBodyPolicy[T]()), nil
	case ShapeResponse:
		return build(c, p, graphQLResponsePolicy[T]()), nil
	case ShapeResult:
		return build(c, p, graphQLResultPolicy[T]()), nil
	default:
		return nil, &ConfigurationError{Msg: fmt.Sprintf("unknown shape %s", p.Shape)}
	}
}

func build[In, Out any](c call.Call[In], p Pipeline, pol policy[In, Out]) any {
	logger := p.Logger().With(
		zap.String("shape", p.Shape.String()),
		zap.Stringer("cardinality", p.Cardinality),
		zap.Bool("async", p.Async))

	src := outcomeSource(c, p.Async, logger)
	if p.Async && p.Scheduler != nil {
		src = rx.ObserveOn(src, p.Scheduler)
	}
	shaped := decorate(src, pol)
	if p.Scheduler != nil {
		shaped = rx.SubscribeOn(shaped, p.Scheduler)
	}
	return narrow(shaped, p.Cardinality)
}

func narrow[T any](src rx.Observable[T], c Cardinality) any {
	switch c {
	case Latest:
		return rx.ToFlowableLatest(src)
	case ExactlyOne:
		return rx.SingleOrError(src)
	case ZeroOrOne:
		return rx.SingleElement(src)
	case CompletionOnly:
		return rx.IgnoreElements(src)
	default:
		return src
	}
}

// As asserts the stream returned by Adapt to the type the caller declared.
func As[S any](stream any, err error) (S, error) {
	var zero S
	if err != nil {
		return zero, err
	}
	s, ok := stream.(S)
	if !ok {
		return zero, &ConfigurationError{Msg: fmt.Sprintf("stream is %T, not %s", stream, reflect.TypeFor[S]())}
	}
	return s, nil
}
