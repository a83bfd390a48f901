package urlfilter

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// IntrospectOptions configures FromStruct.
type IntrospectOptions struct {
	// Fields limits introspection to these exposed field names.
	// OPTIONAL: nil means every supported exported field.
	Fields []string

	// Exclude lists field names to skip at every level. This doubles as the
	// recursion guard, e.g. to prevent walking back through the inverse
	// side of a relationship.
	Exclude []string

	// AllowRelated controls whether struct-typed fields produce nested
	// filter sets. When false, relationship fields are skipped.
	AllowRelated bool

	// DefaultField flags one top-level field as the set's default child.
	// OPTIONAL: empty means no default.
	DefaultField string
}

// FromStruct builds a FilterSet by introspecting the struct type of model.
//
// Field names come from the json tag when present and otherwise from the
// snake_cased Go field name. Validators are picked by kind: strings get
// String, integers Int, floats Float, booleans Bool and time.Time gets
// Time. Struct and pointer-to-struct fields become nested filter sets when
// AllowRelated is set; slices of structs do too, slices of primitives
// become plain filters on the element type. Unsupported kinds are skipped.
//
// Recursion through self-referencing types stops at the first repeated type
// on the path. The resulting set carries the model type, so Apply can
// validate it against the backend.
func FromStruct(model any, opts IntrospectOptions) (*FilterSet, error) {
	t := indirectType(model)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("urlfilter: FromStruct requires a struct, got %T", model)
	}

	b := &introspector{
		exclude: make(map[string]struct{}, len(opts.Exclude)),
		opts:    opts,
	}
	for _, name := range opts.Exclude {
		b.exclude[name] = struct{}{}
	}

	fields, err := b.fieldsFor(t, map[reflect.Type]struct{}{t: {}}, true)
	if err != nil {
		return nil, err
	}
	return NewFilterSet(fields, WithModel(t))
}

type introspector struct {
	exclude map[string]struct{}
	opts    IntrospectOptions
}

func (b *introspector) fieldsFor(t reflect.Type, seen map[reflect.Type]struct{}, top bool) (Fields, error) {
	only := map[string]struct{}{}
	if top && b.opts.Fields != nil {
		for _, name := range b.opts.Fields {
			only[name] = struct{}{}
		}
	}

	fields := make(Fields)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := fieldName(sf)
		if _, skip := b.exclude[name]; skip {
			continue
		}
		if top && b.opts.Fields != nil {
			if _, ok := only[name]; !ok {
				continue
			}
		}

		fld, err := b.fieldFor(sf.Type, seen)
		if err != nil {
			return nil, err
		}
		if fld == nil {
			continue
		}
		if top && name == b.opts.DefaultField {
			if leaf, ok := fld.(*Filter); ok {
				AsDefault()(leaf)
			}
		}
		fields[name] = fld
	}
	return fields, nil
}

// fieldFor maps one struct field type onto a leaf filter or nested set.
// Returns nil for types that cannot be filtered.
func (b *introspector) fieldFor(t reflect.Type, seen map[reflect.Type]struct{}) (field, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == reflect.TypeOf(time.Time{}) {
		return NewFilter(Time()), nil
	}

	switch t.Kind() {
	case reflect.String:
		return NewFilter(String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NewFilter(Int()), nil
	case reflect.Float32, reflect.Float64:
		return NewFilter(Float()), nil
	case reflect.Bool:
		return NewFilter(Bool()), nil
	case reflect.Slice, reflect.Array:
		return b.fieldFor(t.Elem(), seen)
	case reflect.Struct:
		if !b.opts.AllowRelated {
			return nil, nil
		}
		if _, cyclic := seen[t]; cyclic {
			return nil, nil
		}
		seen[t] = struct{}{}
		defer delete(seen, t)

		fields, err := b.fieldsFor(t, seen, false)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, nil
		}
		nested, err := NewFilterSet(fields)
		if err != nil {
			return nil, err
		}
		return nested, nil
	default:
		return nil, nil
	}
}

// fieldName resolves the exposed name of a struct field: json tag first,
// snake_cased Go name otherwise.
func fieldName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag != "" {
		name := strings.Split(tag, ",")[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return snakeCase(sf.Name)
}

func snakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// break only on a lower-to-upper boundary, so ID stays "id"
			if i > 0 && !unicode.IsUpper(runes[i-1]) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
