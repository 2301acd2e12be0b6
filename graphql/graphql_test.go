package graphql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseErrorMessage(t *testing.T) {
	tests := []struct {
		errs []Error
		want string
	}{
		{nil, "graphql: no error message"},
		{[]Error{{}}, "graphql: no error message"},
		{[]Error{{Message: "user not found"}}, "graphql: user not found"},
		{[]Error{{Message: "a"}, {Message: "b"}, {Message: "c"}}, "graphql: a (and 2 more)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, (&ResponseError{Errors: tt.errs}).Error())
	}
}

func TestHasData(t *testing.T) {
	var nilEnvelope *Envelope[string]
	assert.False(t, nilEnvelope.HasData())
	assert.False(t, (&Envelope[string]{}).HasData())

	v := "x"
	assert.True(t, (&Envelope[string]{Data: &v}).HasData())
}
