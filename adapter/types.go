package adapter

import "strings"

// Kind tags a node of a declared result type.
type Kind int

const (
	KindNamed Kind = iota
	KindObservable
	KindFlowable
	KindSingle
	KindMaybe
	KindCompletable
	KindResponse
	KindResult
	KindDataEnvelope
	KindWildcard
)

var kindNames = [...]string{
	KindNamed:        "Named",
	KindObservable:   "Observable",
	KindFlowable:     "Flowable",
	KindSingle:       "Single",
	KindMaybe:        "Maybe",
	KindCompletable:  "Completable",
	KindResponse:     "Response",
	KindResult:       "Result",
	KindDataEnvelope: "DataEnvelope",
	KindWildcard:     "?",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(?)"
	}
	return kindNames[k]
}

// isStream reports whether k is one of the stream containers a declared
// operation may return.
func (k Kind) isStream() bool {
	switch k {
	case KindObservable, KindFlowable, KindSingle, KindMaybe, KindCompletable:
		return true
	}
	return false
}

// Type describes a declared result type as a tree, e.g.
//
//	SingleOf(ResponseOf(Named("User")))  // Single<Response<User>>
//
// A container with nil Args is raw (declared without a type argument).
type Type struct {
	Kind  Kind
	Name  string // KindNamed only
	Args  []Type
	Bound *Type // KindWildcard only; nil means unbounded
}

func Named(name string) Type   { return Type{Kind: KindNamed, Name: name} }
func ObservableOf(t Type) Type { return Type{Kind: KindObservable, Args: []Type{t}} }
func FlowableOf(t Type) Type   { return Type{Kind: KindFlowable, Args: []Type{t}} }
func SingleOf(t Type) Type     { return Type{Kind: KindSingle, Args: []Type{t}} }
func MaybeOf(t Type) Type      { return Type{Kind: KindMaybe, Args: []Type{t}} }
func CompletableType() Type    { return Type{Kind: KindCompletable} }
func ResponseOf(t Type) Type   { return Type{Kind: KindResponse, Args: []Type{t}} }
func ResultOf(t Type) Type     { return Type{Kind: KindResult, Args: []Type{t}} }
func EnvelopeOf(t Type) Type   { return Type{Kind: KindDataEnvelope, Args: []Type{t}} }
func Raw(k Kind) Type          { return Type{Kind: k} }
func Unbounded() Type          { return Type{Kind: KindWildcard} }
func Extends(bound Type) Type  { return Type{Kind: KindWildcard, Bound: &bound} }

// Generic builds a container of kind k with arbitrary type arguments.
func Generic(k Kind, args ...Type) Type { return Type{Kind: k, Args: args} }

// IsUnbounded reports whether t is the wildcard "?" with no upper bound.
func (t Type) IsUnbounded() bool {
	return t.Kind == KindWildcard && t.Bound == nil
}

// upper resolves a bounded wildcard to its bound.
func (t Type) upper() Type {
	for t.Kind == KindWildcard && t.Bound != nil {
		t = *t.Bound
	}
	return t
}

// contains reports whether k occurs anywhere below t.
func (t Type) contains(k Kind) bool {
	for _, a := range t.Args {
		if a.Kind == k || a.contains(k) {
			return true
		}
	}
	if t.Bound != nil {
		return t.Bound.Kind == k || t.Bound.contains(k)
	}
	return false
}

func (t Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Type) write(b *strings.Builder) {
	switch t.Kind {
	case KindNamed:
		b.WriteString(t.Name)
	case KindWildcard:
		b.WriteString("?")
		if t.Bound != nil {
			b.WriteString(" extends ")
			t.Bound.write(b)
		}
		return
	default:
		b.WriteString(t.Kind.String())
	}
	if len(t.Args) == 0 {
		return
	}
	b.WriteByte('<')
	for i, a := range t.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.write(b)
	}
	b.WriteByte('>')
}
