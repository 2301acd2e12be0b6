package graphql

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// structField is an exported struct field as it appears on the wire.
type structField struct {
	index     []int
	key       string // key in the JSON response
	name      string // GraphQL field or input field name
	omitEmpty bool
	typ       reflect.Type
}

// structFields lists the fields of t the way encoding/json sees them.
// Names come from the `graphql` tag, then the `json` tag, then the Go name
// with its leading initialism lowered ("ID" → "id", "URLPath" → "urlPath").
// Untagged embedded structs are flattened.
func structFields(t reflect.Type) []structField {
	var out []structField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		gqlName, gqlOmit, gqlSkip := parseTag(sf.Tag.Get("graphql"))
		jsonName, jsonOmit, jsonSkip := parseTag(sf.Tag.Get("json"))
		if gqlSkip || jsonSkip {
			continue
		}

		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if sf.Anonymous && gqlName == "" && jsonName == "" && ft.Kind() == reflect.Struct && !marshalsItself(ft) {
			for _, inner := range structFields(ft) {
				inner.index = append([]int{i}, inner.index...)
				out = append(out, inner)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		key := jsonName
		if key == "" {
			key = gqlName
		}
		if key == "" {
			key = lowerCamel(sf.Name)
		}
		name := gqlName
		if name == "" {
			name = key
		}
		out = append(out, structField{
			index:     []int{i},
			key:       key,
			name:      name,
			omitEmpty: gqlOmit || jsonOmit,
			typ:       sf.Type,
		})
	}
	return out
}

func parseTag(tag string) (name string, omitEmpty, skip bool) {
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	for _, opt := range strings.Split(opts, ",") {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func lowerCamel(s string) string {
	r := []rune(s)
	for i := 0; i < len(r) && unicode.IsUpper(r[i]); i++ {
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

var jsonMarshalerType = reflect.TypeFor[json.Marshaler]()

// objectType returns the struct type whose fields must be selected for a
// value of type t, or nil when t is a leaf (scalar, enum, or a type that
// marshals itself).
func objectType(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Struct:
			if marshalsItself(t) {
				return nil
			}
			return t
		default:
			return nil
		}
	}
}

func marshalsItself(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return t.Implements(jsonMarshalerType) || pt.Implements(jsonMarshalerType) ||
		t.Implements(textMarshalerType) || pt.Implements(textMarshalerType)
}

// selectionsOf derives the selection set of t. args maps a dotted path of
// response keys, relative to t, to the arguments of that field.
func selectionsOf(t reflect.Type, path string, args map[string]Args, seen map[reflect.Type]bool) ([]*field, error) {
	obj := objectType(t)
	if obj == nil {
		return nil, nil
	}
	if seen[obj] {
		return nil, fmt.Errorf("graphql: %s refers to itself; select its fields by hand", obj)
	}
	seen[obj] = true
	defer delete(seen, obj)

	var out []*field
	for _, sf := range structFields(obj) {
		f := &field{name: sf.name}
		if sf.key != sf.name {
			f.alias = sf.key
		}
		p := sf.key
		if path != "" {
			p = path + "." + sf.key
		}
		if a, ok := args[p]; ok {
			f.args = a.list()
		}
		sub, err := selectionsOf(sf.typ, p, args, seen)
		if err != nil {
			return nil, err
		}
		f.selections = sub
		out = append(out, f)
	}
	return out, nil
}
