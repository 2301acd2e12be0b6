package graphql

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Enum is an enum value. It is written bare, without quotes.
type Enum string

// Var refers to an operation variable declared with Builder.Variable.
type Var string

// Args holds the arguments of one field, written in name order.
type Args map[string]any

func (a Args) list() []argument {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]argument, 0, len(a))
	for _, name := range names {
		out = append(out, argument{name: name, value: a[name]})
	}
	return out
}

// argument is one name: value pair of a field's arguments or of an input
// object.
type argument struct {
	name  string
	value any
}

type objectValue struct {
	fields []argument
}

type listValue struct {
	items []any
}

// maxDepth bounds nesting so that cyclic pointers fail instead of
// recursing forever.
const maxDepth = 32

var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// writeReflect renders rv as a GraphQL input value. Go values map the way
// encoding/json maps them: structs and string-keyed maps become input
// objects, slices and arrays become lists, nil becomes null.
func writeReflect(b *strings.Builder, rv reflect.Value, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("graphql: value nested deeper than %d levels", maxDepth)
	}
	if !rv.IsValid() {
		b.WriteString("null")
		return nil
	}
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		b.WriteString("null")
		return nil
	}

	if rv.CanInterface() {
		switch v := rv.Interface().(type) {
		case Enum:
			if !validName(string(v)) {
				return fmt.Errorf("graphql: invalid enum value %q", v)
			}
			b.WriteString(string(v))
			return nil
		case Var:
			if !validName(string(v)) {
				return fmt.Errorf("graphql: invalid variable name %q", v)
			}
			b.WriteString("$" + string(v))
			return nil
		case *objectValue:
			return writeArguments(b, "{ ", " }", "{}", v.fields, depth+1)
		case *listValue:
			return writeList(b, v.items, depth+1)
		case encoding.TextMarshaler:
			text, err := v.MarshalText()
			if err != nil {
				return fmt.Errorf("graphql: %w", err)
			}
			b.WriteString(quote(string(text)))
			return nil
		}
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return writeReflect(b, rv.Elem(), depth+1)
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("graphql: %v is not a GraphQL float", f)
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, rv.Type().Bits()))
	case reflect.String:
		b.WriteString(quote(rv.String()))
	case reflect.Slice:
		if rv.IsNil() {
			b.WriteString("null")
			return nil
		}
		fallthrough
	case reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i)
		}
		return writeList(b, items, depth+1)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("graphql: map key %s is not a string", rv.Type().Key())
		}
		if rv.IsNil() {
			b.WriteString("null")
			return nil
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		fields := make([]argument, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, argument{name: k.String(), value: rv.MapIndex(k)})
		}
		return writeArguments(b, "{ ", " }", "{}", fields, depth+1)
	case reflect.Struct:
		var fields []argument
		for _, f := range structFields(rv.Type()) {
			fv, err := rv.FieldByIndexErr(f.index)
			if err != nil {
				continue // nil embedded pointer
			}
			if f.omitEmpty && fv.IsZero() {
				continue
			}
			fields = append(fields, argument{name: f.name, value: fv})
		}
		return writeArguments(b, "{ ", " }", "{}", fields, depth+1)
	default:
		return fmt.Errorf("graphql: cannot write %s as a value", rv.Type())
	}
	return nil
}

// item unwraps values collected by reflection so they render like values
// passed in directly.
func item(v any) reflect.Value {
	if rv, ok := v.(reflect.Value); ok {
		return rv
	}
	return reflect.ValueOf(v)
}

func writeList(b *strings.Builder, items []any, depth int) error {
	if len(items) == 0 {
		b.WriteString("[]")
		return nil
	}
	b.WriteByte('[')
	for i, v := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeReflect(b, item(v), depth); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func writeArguments(b *strings.Builder, open, close, empty string, args []argument, depth int) error {
	if len(args) == 0 {
		b.WriteString(empty)
		return nil
	}
	b.WriteString(open)
	for i, a := range args {
		if !validName(a.name) {
			return fmt.Errorf("graphql: invalid argument name %q", a.name)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.name)
		b.WriteString(": ")
		if err := writeReflect(b, item(a.value), depth); err != nil {
			return err
		}
	}
	b.WriteString(close)
	return nil
}

// quote writes s as a GraphQL string literal. GraphQL strings share JSON's
// escapes.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// validName reports whether s matches the GraphQL Name production
// /[_A-Za-z][_0-9A-Za-z]*/.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
