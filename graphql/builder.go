package graphql

import (
	"fmt"
	"reflect"
	"strings"
)

// OperationType is the keyword opening an operation.
type OperationType string

const (
	Query        OperationType = "query"
	Mutation     OperationType = "mutation"
	Subscription OperationType = "subscription"
)

// field is a node of a selection set. An inline fragment has an empty name
// and a type condition in on.
type field struct {
	alias      string
	name       string
	on         string
	args       []argument
	selections []*field
}

type frameKind int

const (
	frameSelection frameKind = iota
	frameArguments
	frameObject
	frameList
)

func (k frameKind) String() string {
	switch k {
	case frameSelection:
		return "selection set"
	case frameArguments:
		return "arguments"
	case frameObject:
		return "input object"
	default:
		return "list"
	}
}

type frame struct {
	kind   frameKind
	field  *field
	object *objectValue
	list   *listValue
}

type variableDefinition struct {
	name string
	typ  string
}

// Builder writes a single-operation GraphQL document step by step. Methods
// that open a nested scope (ObjectField, InlineFragment, Arguments,
// ObjectArgument, ListArgument, ObjectItem) are closed by Finish:
//
//	req, err := graphql.NewRequest().
//		Operation(graphql.Query, "Flights").
//		ObjectField("flights").
//			Arguments().
//				Argument("provider", graphql.Enum("KIWI")).
//				ObjectArgument("pagination").
//					Value("offset", 0).
//					Value("limit", 5).
//				Finish().
//			Finish().
//			Field("id").
//			Field("price").
//		Finish().
//		Build()
//
// renders
//
//	query Flights { flights(provider: KIWI, pagination: { offset: 0, limit: 5 }) { id, price } }
//
// Misuse, such as an Argument outside Arguments, is remembered and returned
// by Build.
type Builder struct {
	op        OperationType
	name      string
	root      field
	defs      []variableDefinition
	variables map[string]any
	stack     []frame
	err       error
}

// NewRequest starts an anonymous query.
func NewRequest() *Builder {
	return (&Builder{}).Operation(Query, "")
}

// Operation starts over with an empty operation of type t. name may be
// empty. Variables are kept.
func (b *Builder) Operation(t OperationType, name string) *Builder {
	b.op, b.name = t, name
	b.root = field{}
	b.stack = []frame{{kind: frameSelection, field: &b.root}}
	if name != "" && !validName(name) {
		b.fail("invalid operation name %q", name)
	}
	return b
}

// Variable declares $name of GraphQL type typ (e.g. "ID!") and sends value
// for it. With an empty typ the value is sent but not declared.
func (b *Builder) Variable(name, typ string, value any) *Builder {
	if !validName(name) {
		return b.fail("invalid variable name %q", name)
	}
	if b.variables == nil {
		b.variables = make(map[string]any)
	}
	b.variables[name] = value
	if typ == "" {
		return b
	}
	if !validType(typ) {
		return b.fail("invalid type %q for $%s", typ, name)
	}
	for i := range b.defs {
		if b.defs[i].name == name {
			b.defs[i].typ = typ
			return b
		}
	}
	b.defs = append(b.defs, variableDefinition{name: name, typ: typ})
	return b
}

// Field selects a leaf field.
func (b *Builder) Field(name string) *Builder {
	return b.addField(&field{name: name}, false)
}

// AliasedField selects a leaf field under a different response key.
func (b *Builder) AliasedField(alias, name string) *Builder {
	return b.addField(&field{alias: alias, name: name}, false)
}

// ObjectField selects a field and enters it, to give it arguments or a
// selection set.
func (b *Builder) ObjectField(name string) *Builder {
	return b.addField(&field{name: name}, true)
}

func (b *Builder) AliasedObjectField(alias, name string) *Builder {
	return b.addField(&field{alias: alias, name: name}, true)
}

// InlineFragment enters a "... on typeName" fragment.
func (b *Builder) InlineFragment(typeName string) *Builder {
	if !validName(typeName) {
		return b.fail("invalid type condition %q", typeName)
	}
	return b.addField(&field{on: typeName}, true)
}

// FieldsOf selects the fields of v's type, descending into nested structs,
// slices and pointers. args gives arguments to fields by dotted response key
// path, e.g. "posts" or "posts.comments". Scalar types select nothing.
func (b *Builder) FieldsOf(v any, args map[string]Args) *Builder {
	t := reflect.TypeOf(v)
	if t == nil {
		return b.fail("FieldsOf needs a typed value, got nil")
	}
	top, ok := b.top(frameSelection)
	if !ok {
		return b.fail("FieldsOf inside %s", top.kind)
	}
	sels, err := selectionsOf(t, "", args, make(map[reflect.Type]bool))
	if err != nil {
		return b.failErr(err)
	}
	top.field.selections = append(top.field.selections, sels...)
	return b
}

// Arguments enters the argument list of the current field.
func (b *Builder) Arguments() *Builder {
	top, ok := b.top(frameSelection)
	switch {
	case !ok:
		return b.fail("Arguments inside %s", top.kind)
	case top.field == &b.root || top.field.on != "":
		return b.fail("Arguments outside a field")
	}
	b.stack = append(b.stack, frame{kind: frameArguments, field: top.field})
	return b
}

// Argument adds name: value to the current arguments or input object.
// value is rendered like encoding/json would encode it, with Enum and Var
// written bare.
func (b *Builder) Argument(name string, value any) *Builder {
	return b.named("Argument", name, value)
}

// Value is Argument for use inside input objects.
func (b *Builder) Value(name string, value any) *Builder {
	return b.named("Value", name, value)
}

// ObjectArgument adds name: { ... } and enters the input object.
func (b *Builder) ObjectArgument(name string) *Builder {
	obj := &objectValue{}
	if b.named("ObjectArgument", name, obj).err == nil {
		b.stack = append(b.stack, frame{kind: frameObject, object: obj})
	}
	return b
}

// ObjectValue is ObjectArgument for use inside input objects.
func (b *Builder) ObjectValue(name string) *Builder {
	return b.ObjectArgument(name)
}

// ListArgument adds name: [ ... ] and enters the list.
func (b *Builder) ListArgument(name string) *Builder {
	list := &listValue{}
	if b.named("ListArgument", name, list).err == nil {
		b.stack = append(b.stack, frame{kind: frameList, list: list})
	}
	return b
}

// ListValue is ListArgument for use inside input objects.
func (b *Builder) ListValue(name string) *Builder {
	return b.ListArgument(name)
}

// Items appends values to the current list.
func (b *Builder) Items(values ...any) *Builder {
	top, ok := b.top(frameList)
	if !ok {
		return b.fail("Items inside %s", top.kind)
	}
	top.list.items = append(top.list.items, values...)
	return b
}

// ObjectItem appends an input object to the current list and enters it.
func (b *Builder) ObjectItem() *Builder {
	top, ok := b.top(frameList)
	if !ok {
		return b.fail("ObjectItem inside %s", top.kind)
	}
	obj := &objectValue{}
	top.list.items = append(top.list.items, obj)
	b.stack = append(b.stack, frame{kind: frameObject, object: obj})
	return b
}

// Finish leaves the innermost open scope. At the top of the operation it
// does nothing.
func (b *Builder) Finish() *Builder {
	if len(b.stack) > 1 {
		b.stack = b.stack[:len(b.stack)-1]
	}
	return b
}

// Build renders the document. Open scopes need not be finished.
func (b *Builder) Build() (Request, error) {
	if b.err != nil {
		return Request{}, b.err
	}
	query, err := b.render()
	if err != nil {
		return Request{}, err
	}
	req := Request{Query: query, OperationName: b.name}
	if len(b.variables) > 0 {
		req.Variables = make(map[string]any, len(b.variables))
		for k, v := range b.variables {
			req.Variables[k] = v
		}
	}
	return req, nil
}

// String renders the document, or the error that prevents it.
func (b *Builder) String() string {
	if b.err != nil {
		return b.err.Error()
	}
	s, err := b.render()
	if err != nil {
		return err.Error()
	}
	return s
}

func (b *Builder) render() (string, error) {
	var sb strings.Builder
	sb.WriteString(string(b.op))
	if b.name != "" {
		sb.WriteString(" " + b.name)
	}
	if len(b.defs) > 0 {
		sb.WriteByte('(')
		for i, d := range b.defs {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%s: %s", d.name, d.typ)
		}
		sb.WriteByte(')')
	}
	sb.WriteByte(' ')
	if err := writeSelections(&sb, b.root.selections); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeSelections(b *strings.Builder, fields []*field) error {
	if len(fields) == 0 {
		b.WriteString("{ }")
		return nil
	}
	b.WriteString("{ ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := f.write(b); err != nil {
			return err
		}
	}
	b.WriteString(" }")
	return nil
}

func (f *field) write(b *strings.Builder) error {
	if f.on != "" {
		b.WriteString("... on " + f.on + " ")
		return writeSelections(b, f.selections)
	}
	if f.alias != "" {
		b.WriteString(f.alias + ": ")
	}
	b.WriteString(f.name)
	if err := writeArguments(b, "(", ")", "", f.args, 0); err != nil {
		return err
	}
	if len(f.selections) > 0 {
		b.WriteByte(' ')
		return writeSelections(b, f.selections)
	}
	return nil
}

func (b *Builder) addField(f *field, enter bool) *Builder {
	if f.on == "" {
		if !validName(f.name) {
			return b.fail("invalid field name %q", f.name)
		}
		if f.alias != "" && !validName(f.alias) {
			return b.fail("invalid alias %q", f.alias)
		}
	}
	top, ok := b.top(frameSelection)
	if !ok {
		return b.fail("field %q inside %s", f.name, top.kind)
	}
	top.field.selections = append(top.field.selections, f)
	if enter {
		b.stack = append(b.stack, frame{kind: frameSelection, field: f})
	}
	return b
}

func (b *Builder) named(method, name string, value any) *Builder {
	if !validName(name) {
		return b.fail("%s: invalid name %q", method, name)
	}
	top, _ := b.top(frameArguments)
	switch top.kind {
	case frameArguments:
		top.field.args = append(top.field.args, argument{name: name, value: value})
	case frameObject:
		top.object.fields = append(top.object.fields, argument{name: name, value: value})
	default:
		return b.fail("%s %q inside %s", method, name, top.kind)
	}
	return b
}

// top returns the innermost scope and whether it is of kind k.
func (b *Builder) top(k frameKind) (frame, bool) {
	if len(b.stack) == 0 {
		b.Operation(Query, "")
	}
	top := b.stack[len(b.stack)-1]
	return top, top.kind == k
}

// validType accepts named, list and non-null type references such as
// "ID!" or "[String!]!".
func validType(typ string) bool {
	depth := 0
	name := false
	for i, r := range typ {
		switch {
		case r == '[' && !name:
			depth++
		case r == ']' && name && depth > 0:
			depth--
		case r == '!' && name && (i == len(typ)-1 || typ[i+1] == ']'):
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', name && r >= '0' && r <= '9':
			name = true
		default:
			return false
		}
	}
	return name && depth == 0
}

func (b *Builder) fail(format string, args ...any) *Builder {
	return b.failErr(fmt.Errorf("graphql: "+format, args...))
}

func (b *Builder) failErr(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}
