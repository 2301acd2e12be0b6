// Package server exposes the methods of registered Go services as HTTP
// endpoints, so that rxcall clients have something real to call.
//
// Request processing pipeline:
//
//	POST /{service}/{method} → middleware chain → decode args (codec by Content-Type)
//	  → reflect.Call → encode reply (codec by Accept) → status
//
// A method error of type *StatusError sets the response status; any other
// error is a 500. Methods whose reply is an empty struct answer 204.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"rxcall/codec"
	"rxcall/registry"
)

// StatusError lets a method choose the HTTP status of its failure.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Msg)
}

// Errorf returns a StatusError with a formatted message.
func Errorf(code int, format string, args ...any) error {
	return &StatusError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Middleware wraps the server's handler.
type Middleware func(next http.Handler) http.Handler

// Server serves registered services over HTTP.
type Server struct {
	mu            sync.RWMutex
	serviceMap    map[string]*service // Registered services: "Arith" → *service
	middlewares   []Middleware        // Applied in the order they were added
	httpServer    *http.Server
	registry      registry.Registry // nil if not using discovery
	advertiseAddr string            // Address registered for clients, e.g. "127.0.0.1:8080"
	shutdown      atomic.Bool
	logger        *zap.Logger
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		serviceMap: make(map[string]*service),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register registers a service receiver (e.g., &Arith{}) with the server.
func (svr *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if _, dup := svr.serviceMap[svc.name]; dup {
		return fmt.Errorf("server: service %s already registered", svc.name)
	}
	svr.serviceMap[svc.name] = svc
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Handler returns the HTTP handler serving every registered service.
func (svr *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{service}/{method}", svr.handleCall)
	var h http.Handler = mux
	for i := len(svr.middlewares) - 1; i >= 0; i-- {
		h = svr.middlewares[i](h)
	}
	return h
}

// Serve registers every service under advertiseAddr in reg (when not nil)
// and serves l until Shutdown.
func (svr *Server) Serve(l net.Listener, advertiseAddr string, reg registry.Registry) error {
	svr.httpServer = &http.Server{Handler: svr.Handler()}
	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		for _, name := range svr.serviceNames() {
			// TTL = 10 seconds, KeepAlive renews automatically
			err := reg.Register(context.Background(), name, registry.ServiceInstance{Addr: advertiseAddr, Weight: 1}, 10)
			if err != nil {
				return fmt.Errorf("server: register %s: %w", name, err)
			}
		}
	}

	svr.logger.Info("serving", zap.Stringer("addr", l.Addr()), zap.Strings("services", svr.serviceNames()))
	err := svr.httpServer.Serve(l)
	if svr.shutdown.Load() && errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown deregisters the services first so clients stop routing here,
// then waits for in-flight calls until ctx is done.
func (svr *Server) Shutdown(ctx context.Context) error {
	var errs error
	if svr.registry != nil {
		for _, name := range svr.serviceNames() {
			errs = multierr.Append(errs, svr.registry.Deregister(ctx, name, svr.advertiseAddr))
		}
	}
	svr.shutdown.Store(true)
	if svr.httpServer != nil {
		errs = multierr.Append(errs, svr.httpServer.Shutdown(ctx))
	}
	return errs
}

func (svr *Server) serviceNames() []string {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	names := make([]string, 0, len(svr.serviceMap))
	for name := range svr.serviceMap {
		names = append(names, name)
	}
	return names
}

func (svr *Server) lookup(serviceName, methodName string) (*service, *methodType) {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	svc := svr.serviceMap[serviceName]
	if svc == nil {
		return nil, nil
	}
	return svc, svc.method[methodName]
}

// codecFor maps a Content-Type or Accept value to a codec; JSON unless
// protobuf is asked for.
func codecFor(header string) codec.Codec {
	mt, _, _ := mime.ParseMediaType(header)
	if mt == codec.GetCodec(codec.CodecTypeProto).ContentType() {
		return codec.GetCodec(codec.CodecTypeProto)
	}
	return codec.GetCodec(codec.CodecTypeJSON)
}

// handleCall dispatches one request to the registered method.
func (svr *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	serviceName, methodName := r.PathValue("service"), r.PathValue("method")
	svc, method := svr.lookup(serviceName, methodName)
	if method == nil {
		http.Error(w, fmt.Sprintf("unknown method %s.%s", serviceName, methodName), http.StatusNotFound)
		return
	}

	argv := reflect.New(method.ArgType)     // e.g., reflect.New(Args) → *Args
	replyv := reflect.New(method.ReplyType) // e.g., reflect.New(Reply) → *Reply

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := codecFor(r.Header.Get("Content-Type")).Decode(body, argv.Interface()); err != nil {
			http.Error(w, fmt.Sprintf("decode %s: %v", method.ArgType, err), http.StatusBadRequest)
			return
		}
	}

	if err := svc.call(r.Context(), method, argv, replyv); err != nil {
		svr.logger.Debug("method failed",
			zap.String("service", serviceName),
			zap.String("method", methodName),
			zap.Error(err))
		var se *StatusError
		if errors.As(err, &se) {
			http.Error(w, se.Msg, se.Code)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if method.empty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		accept = r.Header.Get("Content-Type")
	}
	c := codecFor(accept)
	out, err := c.Encode(replyv.Interface())
	if err != nil {
		svr.logger.Error("encode reply", zap.String("service", serviceName), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", c.ContentType())
	_, _ = w.Write(out)
}
