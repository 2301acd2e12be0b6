package adapter

import (
	"rxcall/graphql"
	"rxcall/response"
	"rxcall/rx"
)

// policy is what distinguishes the shapes. The state machine in
// shapeObserver is shared by all of them.
type policy[In, Out any] struct {
	name string
	// present extracts the value of a usable successful envelope. false
	// means the envelope is successful but carries no usable payload.
	present func(r *response.Response[In]) (Out, bool)
	// classifyUnsuccessful explains an HTTP status outside 2xx.
	classifyUnsuccessful func(r *response.Response[In]) error
	// classifyMissingData explains a successful envelope without payload.
	classifyMissingData func(r *response.Response[In]) error
	// deliverTerminal maps a classified failure to a value when the shape
	// reports failures as values. r is nil for transport failures.
	deliverTerminal func(r *response.Response[In], cause error) (Out, bool)
}

// decorate reinterprets every envelope of src according to p.
func decorate[In, Out any](src rx.Observable[*response.Response[In]], p policy[In, Out]) rx.Observable[Out] {
	return rx.ObservableFunc[Out](func(o rx.Observer[Out]) {
		src.Subscribe(&shapeObserver[In, Out]{downstream: o, policy: p})
	})
}

// shapeObserver forwards at most one terminal event. Signals arriving after
// it are reported to the error sink as invariant violations, except a
// completion following a failure it synthesized itself.
type shapeObserver[In, Out any] struct {
	downstream rx.Observer[Out]
	policy     policy[In, Out]
	terminated bool
}

func (s *shapeObserver[In, Out]) OnSubscribe(d rx.Disposable) {
	s.downstream.OnSubscribe(d)
}

func (s *shapeObserver[In, Out]) OnNext(r *response.Response[In]) {
	if s.terminated {
		rx.OnError(&rx.InvariantViolation{Msg: s.policy.name + ": value after terminal event"})
		return
	}

	var cause error
	if !r.IsSuccessful() {
		cause = s.policy.classifyUnsuccessful(r)
	} else if v, ok := s.policy.present(r); ok {
		s.next(v)
		return
	} else {
		cause = s.policy.classifyMissingData(r)
	}

	if v, ok := s.policy.deliverTerminal(r, cause); ok {
		s.next(v)
		return
	}
	s.fail(cause)
}

func (s *shapeObserver[In, Out]) OnError(err error) {
	if s.terminated {
		rx.OnError(&rx.InvariantViolation{Msg: s.policy.name + ": failure after terminal event", Cause: err})
		return
	}
	if v, ok := s.policy.deliverTerminal(nil, err); ok {
		s.next(v)
		s.complete()
		return
	}
	s.fail(err)
}

func (s *shapeObserver[In, Out]) OnComplete() {
	if s.terminated {
		return
	}
	s.complete()
}

func (s *shapeObserver[In, Out]) next(v Out) {
	if perr := rx.Catch(func() { s.downstream.OnNext(v) }); perr != nil {
		rx.OnError(&rx.UndeliverableError{Cause: perr})
	}
}

func (s *shapeObserver[In, Out]) fail(err error) {
	s.terminated = true
	if perr := rx.Catch(func() { s.downstream.OnError(err) }); perr != nil {
		rx.OnError(rx.NewCompositeError(err, perr))
	}
}

func (s *shapeObserver[In, Out]) complete() {
	s.terminated = true
	if perr := rx.Catch(s.downstream.OnComplete); perr != nil {
		rx.OnError(&rx.UndeliverableError{Cause: perr})
	}
}

func httpError[In any](r *response.Response[In]) error {
	return response.NewHTTPError(r)
}

func missingData[T any](r *response.Response[graphql.Envelope[T]]) error {
	env, _ := r.Body()
	return &graphql.ResponseError{StatusCode: r.StatusCode, Errors: env.Errors}
}

func failStream[In, Out any](*response.Response[In], error) (Out, bool) {
	var zero Out
	return zero, false
}

func failureValue[In, T any](_ *response.Response[In], cause error) (response.Result[T], bool) {
	return response.Failure[T](cause), true
}

func bodyPolicy[T any]() policy[T, T] {
	return policy[T, T]{
		name:                 "body",
		present:              (*response.Response[T]).Body,
		classifyUnsuccessful: httpError[T],
		classifyMissingData:  httpError[T],
		deliverTerminal:      failStream[T, T],
	}
}

// completionPolicy is bodyPolicy for consumers that ignore the body, so a
// successful envelope without one still counts as success.
func completionPolicy[T any]() policy[T, T] {
	p := bodyPolicy[T]()
	p.name = "completion"
	p.present = func(r *response.Response[T]) (T, bool) {
		v, _ := r.Body()
		return v, true
	}
	return p
}

func responsePolicy[T any]() policy[T, *response.Response[T]] {
	return policy[T, *response.Response[T]]{
		name: "response",
		present: func(r *response.Response[T]) (*response.Response[T], bool) {
			return r, true
		},
		classifyUnsuccessful: httpError[T],
		classifyMissingData:  httpError[T],
		deliverTerminal: func(r *response.Response[T], _ error) (*response.Response[T], bool) {
			return r, r != nil
		},
	}
}

func resultPolicy[T any]() policy[T, response.Result[T]] {
	return policy[T, response.Result[T]]{
		name: "result",
		present: func(r *response.Response[T]) (response.Result[T], bool) {
			return response.ResultOf(r), true
		},
		classifyUnsuccessful: httpError[T],
		classifyMissingData:  httpError[T],
		deliverTerminal:      failureValue[T, T],
	}
}

// data returns the unwrapped payload of a successful GraphQL envelope.
func data[T any](r *response.Response[graphql.Envelope[T]]) (T, bool) {
	env, ok := r.Body()
	if !ok || !env.HasData() {
		var zero T
		return zero, false
	}
	return *env.Data, true
}

func graphQLBodyPolicy[T any]() policy[graphql.Envelope[T], T] {
	return policy[graphql.Envelope[T], T]{
		name:                 "graphql body",
		present:              data[T],
		classifyUnsuccessful: httpError[graphql.Envelope[T]],
		classifyMissingData:  missingData[T],
		deliverTerminal:      failStream[graphql.Envelope[T], T],
	}
}

func graphQLResponsePolicy[T any]() policy[graphql.Envelope[T], *response.Response[T]] {
	return policy[graphql.Envelope[T], *response.Response[T]]{
		name: "graphql response",
		present: func(r *response.Response[graphql.Envelope[T]]) (*response.Response[T], bool) {
			v, ok := data(r)
			if !ok {
				return nil, false
			}
			return response.WithBody(r, v), true
		},
		classifyUnsuccessful: httpError[graphql.Envelope[T]],
		classifyMissingData:  missingData[T],
		deliverTerminal: func(r *response.Response[graphql.Envelope[T]], cause error) (*response.Response[T], bool) {
			switch {
			case r == nil:
				return nil, false
			case r.IsSuccessful():
				return response.Downgrade[T](r, cause), true
			default:
				return response.Retype[T](r), true
			}
		},
	}
}

func graphQLResultPolicy[T any]() policy[graphql.Envelope[T], response.Result[T]] {
	return policy[graphql.Envelope[T], response.Result[T]]{
		name: "graphql result",
		present: func(r *response.Response[graphql.Envelope[T]]) (response.Result[T], bool) {
			v, ok := data(r)
			if !ok {
				return response.Result[T]{}, false
			}
			return response.ResultOf(response.WithBody(r, v)), true
		},
		classifyUnsuccessful: httpError[graphql.Envelope[T]],
		classifyMissingData:  missingData[T],
		deliverTerminal:      failureValue[graphql.Envelope[T], T],
	}
}
