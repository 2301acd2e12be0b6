package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"rxcall/registry"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Divide(ctx context.Context, args *Args, reply *Reply) error {
	if args.B == 0 {
		return Errorf(http.StatusUnprocessableEntity, "divide by zero")
	}
	reply.Result = args.A / args.B
	return nil
}

func (a *Arith) Reset(args *Args, reply *struct{}) error { return nil }

func (a *Arith) Fail(args *Args, reply *Reply) error { return errors.New("boom") }

// Echo replies with the protobuf string it was sent.
type Echo struct{}

func (e *Echo) Say(in *wrapperspb.StringValue, out *wrapperspb.StringValue) error {
	out.Value = in.GetValue()
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svr := NewServer()
	require.NoError(t, svr.Register(&Arith{}))
	require.NoError(t, svr.Register(&Echo{}))
	srv := httptest.NewServer(svr.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, contentType string, body []byte) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, contentType, bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestRegisterRejectsBadReceivers(t *testing.T) {
	svr := NewServer()
	assert.Error(t, svr.Register(Arith{}))
	assert.Error(t, svr.Register(new(int)))
	assert.Error(t, svr.Register(&struct{}{}))
	require.NoError(t, svr.Register(&Arith{}))
	assert.Error(t, svr.Register(&Arith{}), "duplicate")
}

func TestHandleCall(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		reply  string
	}{
		{"plain method", "/Arith/Add", `{"A":1,"B":2}`, http.StatusOK, "{\"Result\":3}"},
		{"context method", "/Arith/Divide", `{"A":9,"B":3}`, http.StatusOK, "{\"Result\":3}"},
		{"status error", "/Arith/Divide", `{"A":9,"B":0}`, http.StatusUnprocessableEntity, "divide by zero\n"},
		{"plain error", "/Arith/Fail", `{}`, http.StatusInternalServerError, "boom\n"},
		{"empty reply", "/Arith/Reset", ``, http.StatusNoContent, ""},
		{"bad body", "/Arith/Add", `{`, http.StatusBadRequest, ""},
		{"unknown method", "/Arith/Pow", `{}`, http.StatusNotFound, "unknown method Arith.Pow\n"},
		{"unknown service", "/Geo/Add", `{}`, http.StatusNotFound, "unknown method Geo.Add\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv.URL+tt.path, "application/json", []byte(tt.body))
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.reply != "" {
				assert.Equal(t, tt.reply, body)
			}
		})
	}
}

func TestProtoNegotiation(t *testing.T) {
	srv := newTestServer(t)

	in, err := proto.Marshal(wrapperspb.String("hi"))
	require.NoError(t, err)
	resp, body := post(t, srv.URL+"/Echo/Say", "application/x-protobuf", in)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	var out wrapperspb.StringValue
	require.NoError(t, proto.Unmarshal([]byte(body), &out))
	assert.Equal(t, "hi", out.GetValue())

	// protojson for JSON clients
	resp, body = post(t, srv.URL+"/Echo/Say", "application/json", []byte(`"hello"`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"hello"`, body)
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	svr := NewServer()
	require.NoError(t, svr.Register(&Arith{}))
	svr.Use(mw("outer"))
	svr.Use(mw("inner"))

	rec := httptest.NewRecorder()
	svr.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/Arith/Add", bytes.NewBufferString(`{"A":1}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestServeRegistersAndShutdownDeregisters(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	reg := registry.NewStaticRegistry()

	svr := NewServer()
	require.NoError(t, svr.Register(&Arith{}))
	served := make(chan error, 1)
	go func() { served <- svr.Serve(l, l.Addr().String(), reg) }()

	require.Eventually(t, func() bool {
		instances, _ := reg.Discover(context.Background(), "Arith")
		return len(instances) == 1
	}, time.Second, 5*time.Millisecond)

	resp, body := post(t, "http://"+l.Addr().String()+"/Arith/Add", "application/json", []byte(`{"A":2,"B":2}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"Result":4}`, body)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svr.Shutdown(ctx))
	require.NoError(t, <-served)

	instances, _ := reg.Discover(context.Background(), "Arith")
	assert.Empty(t, instances)
}
