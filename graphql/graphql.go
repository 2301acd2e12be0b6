// Package graphql defines the data envelope that GraphQL servers nest inside
// a successful HTTP body, and the failure raised when it carries no data.
package graphql

import "fmt"

// Location points into the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is one entry of a GraphQL "errors" list.
type Error struct {
	Message   string     `json:"message"`
	Locations []Location `json:"locations,omitempty"`
	Path      []any      `json:"path,omitempty"`
}

// Envelope is the {data, errors} layer. A nil Data means no data was
// returned, whatever Errors holds.
type Envelope[T any] struct {
	Data   *T
	Errors []Error
}

// HasData reports whether e carries a non-null payload.
func (e *Envelope[T]) HasData() bool {
	return e != nil && e.Data != nil
}

// ResponseError is the application-level failure of an HTTP success whose
// envelope carries no data.
type ResponseError struct {
	StatusCode int
	Errors     []Error
}

func (e *ResponseError) Error() string {
	if len(e.Errors) == 0 || e.Errors[0].Message == "" {
		return "graphql: no error message"
	}
	if len(e.Errors) == 1 {
		return "graphql: " + e.Errors[0].Message
	}
	return fmt.Sprintf("graphql: %s (and %d more)", e.Errors[0].Message, len(e.Errors)-1)
}

// Request is the JSON body of a GraphQL operation.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}
