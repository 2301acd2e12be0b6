package response

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseConstructors(t *testing.T) {
	raw := Raw{Status: "200 OK", URL: "http://svc/users/1"}

	ok := Success(http.StatusOK, 42, raw)
	assert.True(t, ok.IsSuccessful())
	body, present := ok.Body()
	assert.True(t, present)
	assert.Equal(t, 42, body)

	empty := Empty[int](http.StatusNoContent, raw)
	assert.True(t, empty.IsSuccessful())
	_, present = empty.Body()
	assert.False(t, present)

	failed := Error[int](http.StatusBadGateway, []byte("upstream"), raw)
	assert.False(t, failed.IsSuccessful())
	assert.Equal(t, []byte("upstream"), failed.ErrorBody())
	assert.Nil(t, failed.Err())
}

func TestRetyping(t *testing.T) {
	cause := errors.New("no data")
	src := Success(http.StatusOK, "envelope", Raw{URL: "u"})

	down := Downgrade[int](src, cause)
	assert.False(t, down.IsSuccessful())
	assert.Equal(t, cause, down.Err())
	assert.Equal(t, http.StatusOK, down.StatusCode)

	kept := Retype[bool](down)
	assert.False(t, kept.IsSuccessful())
	assert.Equal(t, cause, kept.Err())

	moved := WithBody(src, 7)
	body, present := moved.Body()
	assert.True(t, present)
	assert.Equal(t, 7, body)
	assert.Equal(t, "u", moved.Raw.URL)
}

func TestResult(t *testing.T) {
	r := ResultOf(Success(http.StatusOK, 1, Raw{}))
	assert.False(t, r.IsError())
	assert.NotNil(t, r.Response())

	f := Failure[int](errors.New("reset"))
	assert.True(t, f.IsError())
	assert.Nil(t, f.Response())
	assert.Equal(t, "Result{error=reset}", f.String())
}

func TestHTTPError(t *testing.T) {
	r := Error[int](http.StatusNotFound, []byte("missing"), Raw{Status: "404 Not Found", URL: "http://svc/x"})
	err := NewHTTPError(r)

	assert.Equal(t, "HTTP 404 Not Found", err.Error())
	assert.Equal(t, []byte("missing"), err.Body)
	assert.Equal(t, "http://svc/x", err.URL)
	assert.Equal(t, "HTTP 204", (&HTTPError{StatusCode: http.StatusNoContent}).Error())
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Method: http.MethodGet, URL: "http://svc", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transport: GET http://svc: connection refused", err.Error())
}
