package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"rxcall/adapter"
	"rxcall/client"
	"rxcall/codec"
	"rxcall/graphql"
	"rxcall/response"
	"rxcall/rx"
	"rxcall/scheduler"
)

type callOptions struct {
	method    string
	data      string
	headers   []string
	shape     string
	wrap      string
	query     string
	variables string
	operation string
	field     string
	fieldArgs []string
	selection []string
}

func newCallCmd(a *app) *cobra.Command {
	var o callOptions
	cmd := &cobra.Command{
		Use:   "call <path>",
		Short: "Issue one call and print its events, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runCall(ctx, cmd.OutOrStdout(), args[0], o)
		},
	}
	cmd.Flags().StringVarP(&o.method, "method", "X", "", "HTTP method (GET, or POST for GraphQL)")
	cmd.Flags().StringVarP(&o.data, "data", "d", "", "raw request body")
	cmd.Flags().StringArrayVarP(&o.headers, "header", "H", nil, "request header as 'Name: value'")
	cmd.Flags().StringVar(&o.shape, "shape", "observable", "observable, flowable, single, maybe or completable")
	cmd.Flags().StringVar(&o.wrap, "wrap", "body", "body, response or result")
	cmd.Flags().StringVar(&o.query, "query", "", "GraphQL query document; implies --graphql")
	cmd.Flags().StringVar(&o.variables, "variables", "", "GraphQL variables as a JSON object")
	cmd.Flags().StringVar(&o.field, "field", "", "build a GraphQL query for this root field; implies --graphql")
	cmd.Flags().StringArrayVar(&o.fieldArgs, "arg", nil, "argument of --field as 'name=value', value in JSON or a bare string")
	cmd.Flags().StringSliceVar(&o.selection, "select", nil, "fields to select under --field, dotted for nested ones (id,posts.title)")
	cmd.Flags().StringVar(&o.operation, "operation", "", "operation name of the built query")
	cmd.Flags().Bool("async", false, "run the call asynchronously")
	cmd.Flags().Bool("graphql", false, "unwrap the GraphQL data envelope")
	cmd.Flags().String("scheduler", "none", "deliver on: none, immediate, goroutine, single or pool")
	return cmd
}

// declaredType builds the stream type named by the --shape and --wrap flags.
func declaredType(shape, wrap string) (adapter.Type, error) {
	payload := adapter.Named("Body")
	switch wrap {
	case "body":
	case "response":
		payload = adapter.ResponseOf(payload)
	case "result":
		payload = adapter.ResultOf(payload)
	default:
		return adapter.Type{}, fmt.Errorf("unknown wrap %q", wrap)
	}

	switch shape {
	case "observable":
		return adapter.ObservableOf(payload), nil
	case "flowable":
		return adapter.FlowableOf(payload), nil
	case "single":
		return adapter.SingleOf(payload), nil
	case "maybe":
		return adapter.MaybeOf(payload), nil
	case "completable":
		if wrap != "body" {
			return adapter.Type{}, errors.New("completable does not take --wrap")
		}
		return adapter.CompletableType(), nil
	default:
		return adapter.Type{}, fmt.Errorf("unknown shape %q", shape)
	}
}

func parseHeaders(lines []string) (http.Header, error) {
	h := http.Header{}
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("header %q is not 'Name: value'", line)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}

func (a *app) runCall(ctx context.Context, out io.Writer, path string, o callOptions) error {
	declared, err := declaredType(o.shape, o.wrap)
	if err != nil {
		return err
	}
	header, err := parseHeaders(o.headers)
	if err != nil {
		return err
	}

	sched, closeSched, err := scheduler.Parse(a.cfg.SchedulerName())
	if err != nil {
		return err
	}
	defer closeSched()

	useGraphQL := a.cfg.GraphQL || o.query != "" || o.field != ""
	opts := []adapter.Option{adapter.WithLogger(a.logger)}
	if a.cfg.Async {
		opts = append(opts, adapter.WithAsync())
	}
	if sched != nil {
		opts = append(opts, adapter.WithScheduler(sched))
	}
	if useGraphQL {
		opts = append(opts, adapter.WithGraphQL())
	}
	p, err := adapter.Resolve(declared, opts...)
	if err != nil {
		return err
	}
	a.logger.Debug("pipeline resolved")

	c, closeClient, err := a.newClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	op := client.Operation{Method: o.method, Path: path, Header: header}
	var stream any
	if useGraphQL {
		var req graphql.Request
		req, err = graphqlRequest(o)
		if err != nil {
			return err
		}
		if o.variables != "" {
			if err := json.Unmarshal([]byte(o.variables), &req.Variables); err != nil {
				return fmt.Errorf("--variables: %w", err)
			}
		}
		stream, err = client.InvokeGraphQL[json.RawMessage](ctx, c, op, req, p)
	} else {
		stream, err = invoke(ctx, c, op, o.data, a.cfg.Codec, p)
	}
	if err != nil {
		return err
	}
	return printEvents(ctx, out, stream)
}

// graphqlRequest takes the document from --query, or builds it from --field,
// --arg and --select.
func graphqlRequest(o callOptions) (graphql.Request, error) {
	if o.field == "" {
		return graphql.Request{Query: o.query}, nil
	}
	if o.query != "" {
		return graphql.Request{}, errors.New("--query and --field cannot be used together")
	}

	b := graphql.NewRequest().Operation(graphql.Query, o.operation).ObjectField(o.field)
	if len(o.fieldArgs) > 0 {
		b.Arguments()
		for _, arg := range o.fieldArgs {
			name, raw, ok := strings.Cut(arg, "=")
			if !ok {
				return graphql.Request{}, fmt.Errorf("--arg %q is not 'name=value'", arg)
			}
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				v = raw
			}
			b.Argument(name, v)
		}
		b.Finish()
	}
	selectPaths(b, o.selection)
	return b.Build()
}

// selection is one level of dotted --select paths, in the order given.
type selection struct {
	name     string
	children []*selection
}

func (s *selection) child(name string) *selection {
	for _, c := range s.children {
		if c.name == name {
			return c
		}
	}
	c := &selection{name: name}
	s.children = append(s.children, c)
	return c
}

func selectPaths(b *graphql.Builder, paths []string) {
	root := &selection{}
	for _, path := range paths {
		node := root
		for _, name := range strings.Split(path, ".") {
			node = node.child(strings.TrimSpace(name))
		}
	}
	var write func(s *selection)
	write = func(s *selection) {
		for _, c := range s.children {
			if len(c.children) == 0 {
				b.Field(c.name)
				continue
			}
			b.ObjectField(c.name)
			write(c)
			b.Finish()
		}
	}
	write(root)
}

// invoke picks the body type for the codec: JSON bodies are kept as raw JSON,
// anything else is printed as bytes.
func invoke(ctx context.Context, c *client.Client, op client.Operation, data, codecName string, p adapter.Pipeline) (any, error) {
	var body any
	if data != "" {
		body = []byte(data)
	}
	if ct, _ := codec.ParseType(codecName); ct == codec.CodecTypeJSON {
		return client.Invoke[json.RawMessage](ctx, c, op, body, p)
	}
	return client.Invoke[[]byte](ctx, c, op, body, p)
}

// printer writes one line per event and remembers the terminal one.
type printer struct {
	mu         sync.Mutex
	out        io.Writer
	disposable rx.Disposable
	done       chan struct{}
	once       sync.Once
	err        error
}

func (p *printer) line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) subscribe(d rx.Disposable) {
	p.mu.Lock()
	p.disposable = d
	p.mu.Unlock()
	p.line("subscribe")
}

func (p *printer) next(v any)     { p.line("next %s", formatValue(v)) }
func (p *printer) complete()      { p.line("complete"); p.finish(nil) }
func (p *printer) fail(err error) { p.line("error %v", err); p.finish(err) }

func (p *printer) success(v any) {
	p.line("success %s", formatValue(v))
	p.finish(nil)
}

func (p *printer) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *printer) dispose() {
	p.mu.Lock()
	d := p.disposable
	p.mu.Unlock()
	if d != nil {
		d.Dispose()
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case json.RawMessage:
		return string(bytes.TrimSpace(v))
	case []byte:
		return fmt.Sprintf("%q", v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// printEvents subscribes to stream and writes its events until it
// terminates or ctx is done, in which case the subscription is disposed.
func printEvents(ctx context.Context, out io.Writer, stream any) error {
	p := &printer{out: out, done: make(chan struct{})}

	if !subscribeAny[json.RawMessage](stream, p) &&
		!subscribeAny[[]byte](stream, p) &&
		!subscribeAny[*response.Response[json.RawMessage]](stream, p) &&
		!subscribeAny[*response.Response[[]byte]](stream, p) &&
		!subscribeAny[response.Result[json.RawMessage]](stream, p) &&
		!subscribeAny[response.Result[[]byte]](stream, p) {
		c, ok := stream.(rx.Completable)
		if !ok {
			return fmt.Errorf("unsupported stream %T", stream)
		}
		c.Subscribe(rx.CompletableFuncs{Subscribe: p.subscribe, Complete: p.complete, Error: p.fail})
	}

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		p.dispose()
		p.line("disposed")
		return ctx.Err()
	}
}

// subscribeAny subscribes p to stream if it is a stream of X.
func subscribeAny[X any](stream any, p *printer) bool {
	next := func(v X) { p.next(v) }
	switch s := stream.(type) {
	case rx.Observable[X]:
		s.Subscribe(rx.Funcs[X]{Subscribe: p.subscribe, Next: next, Error: p.fail, Complete: p.complete})
	case rx.Flowable[X]:
		var sub rx.Subscription
		s.Subscribe(rx.SubscriberFuncs[X]{
			Subscribe: func(ss rx.Subscription) {
				sub = ss
				p.subscribe(rx.NewDisposable(ss.Cancel))
				ss.Request(1)
			},
			Next: func(v X) {
				next(v)
				sub.Request(1)
			},
			Error:    p.fail,
			Complete: p.complete,
		})
	case rx.Single[X]:
		s.Subscribe(rx.SingleFuncs[X]{Subscribe: p.subscribe, Success: func(v X) { p.success(v) }, Error: p.fail})
	case rx.Maybe[X]:
		s.Subscribe(rx.MaybeFuncs[X]{Subscribe: p.subscribe, Success: func(v X) { p.success(v) }, Error: p.fail, Complete: p.complete})
	default:
		return false
	}
	return true
}
