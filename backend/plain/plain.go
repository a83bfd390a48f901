// Package plain filters plain in-memory object collections.
//
// Filtering happens inside a regular loop comparing attributes of
// individual items, so this is not an efficient way to filter large amounts
// of data. Items can be structs, pointers to structs or maps; attribute
// traversal follows the spec's path components, descending into nested
// values and matching any element of intermediate slices.
//
// Evaluation errors fail open: when a comparison cannot be carried out
// against an item (type mismatch, absent attribute), the item is included
// rather than excluded. This keeps unrelated items visible when a filter
// only applies to a subset of a heterogeneous collection.
package plain

import (
	"context"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/mitchellh/mapstructure"

	"github.com/hugr-lab/urlfilter"
)

// Name is the backend name custom filter callables register against.
const Name = "plain"

var supportedLookups = urlfilter.NewLookupSet(
	urlfilter.LookupContains,
	urlfilter.LookupDay,
	urlfilter.LookupEndswith,
	urlfilter.LookupExact,
	urlfilter.LookupGt,
	urlfilter.LookupGte,
	urlfilter.LookupHour,
	urlfilter.LookupIContains,
	urlfilter.LookupIEndswith,
	urlfilter.LookupIExact,
	urlfilter.LookupIIn,
	urlfilter.LookupIn,
	urlfilter.LookupIRegex,
	urlfilter.LookupIsNull,
	urlfilter.LookupIStartswith,
	urlfilter.LookupLt,
	urlfilter.LookupLte,
	urlfilter.LookupMinute,
	urlfilter.LookupMonth,
	urlfilter.LookupRange,
	urlfilter.LookupRegex,
	urlfilter.LookupSecond,
	urlfilter.LookupStartswith,
	urlfilter.LookupWeekDay,
	urlfilter.LookupYear,
)

// Backend filters a plain item slice.
type Backend struct {
	items []any
	specs []*urlfilter.Spec
}

// New creates a plain backend over the given items.
func New(items []any) *Backend {
	return &Backend{items: items}
}

// Name returns "plain".
func (b *Backend) Name() string { return Name }

// SupportedLookups returns the full lookup vocabulary; every lookup is
// evaluated by direct value computation.
func (b *Backend) SupportedLookups() urlfilter.LookupSet { return supportedLookups }

// Bind attaches resolved specifications for the next Apply.
func (b *Backend) Bind(specs []*urlfilter.Spec) { b.specs = specs }

// Model returns nil: plain collections carry no entity type, so cross-model
// enforcement is disabled for this backend.
func (b *Backend) Model() reflect.Type { return nil }

// Empty returns an empty item slice.
func (b *Backend) Empty() any { return []any{} }

// Apply filters the items by every bound spec. An item survives when it
// matches all regular specs; each item is visited once, so the result never
// contains duplicates. Callable specs then run one at a time over the
// surviving slice.
func (b *Backend) Apply(ctx context.Context) (any, error) {
	regular, callable := urlfilter.Partition(b.specs)

	out := make([]any, 0, len(b.items))
	for _, item := range b.items {
		if matchesAll(item, regular) {
			out = append(out, item)
		}
	}

	return urlfilter.ApplyCallables(ctx, any(out), callable)
}

func matchesAll(item any, specs []*urlfilter.Spec) bool {
	for _, spec := range specs {
		matched := matchPath(item, spec.Components, spec)
		if spec.Negated {
			matched = !matched
		}
		if !matched {
			return false
		}
	}
	return true
}

// matchPath walks the remaining path components down into the item and
// compares the terminal value. Intermediate slices match when any element
// matches.
func matchPath(value any, components []string, spec *urlfilter.Spec) bool {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if matchPath(rv.Index(i).Interface(), components, spec) {
				return true
			}
		}
		return false
	}

	if len(components) == 0 {
		ok, err := compare(value, spec)
		if err != nil {
			// fail open
			return true
		}
		return ok
	}

	attrs, err := dictify(value)
	if err != nil {
		return true
	}
	return matchPath(attrs[components[0]], components[1:], spec)
}

// dictify converts a struct, pointer to struct or map into an attribute
// map keyed by the snake_cased field names (or json tags).
func dictify(value any) (map[string]any, error) {
	if m, ok := value.(map[string]any); ok {
		return m, nil
	}

	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "json",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(value); err != nil {
		return nil, err
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	return normalize(rv, out), nil
}

// normalize snake_cases the attribute keys and walks the original struct
// alongside the decoded map to put time values back: mapstructure flattens
// struct-typed fields into nested maps, and time.Time exports no fields, so
// without the repair every time attribute decodes to an empty map.
func normalize(rv reflect.Value, attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[snakeCase(k)] = v
	}

	if rv.Kind() != reflect.Struct {
		return out
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Type.Kind() != reflect.Struct {
			continue
		}
		key := snakeCase(attrKey(sf))
		fv := rv.Field(i)
		if tt, ok := fv.Interface().(time.Time); ok {
			out[key] = tt
			continue
		}
		if nested, ok := out[key].(map[string]any); ok {
			out[key] = normalize(fv, nested)
		}
	}
	return out
}

// attrKey resolves the key mapstructure emitted for a field: json tag name
// when present, Go field name otherwise.
func attrKey(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if i := strings.Index(tag, ","); i != -1 {
		tag = tag[:i]
	}
	if tag != "" && tag != "-" {
		return tag
	}
	return sf.Name
}

// snakeCase mirrors the field naming used when a filter tree is built by
// struct introspection, so introspected components find their attributes.
func snakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
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
