package urlfilter

import (
	"context"
	"reflect"
	"sort"
)

// Lookup names shared across filters and backends.
const (
	LookupExact       = "exact"
	LookupIExact      = "iexact"
	LookupContains    = "contains"
	LookupIContains   = "icontains"
	LookupStartswith  = "startswith"
	LookupIStartswith = "istartswith"
	LookupEndswith    = "endswith"
	LookupIEndswith   = "iendswith"
	LookupGt          = "gt"
	LookupGte         = "gte"
	LookupLt          = "lt"
	LookupLte         = "lte"
	LookupIn          = "in"
	LookupIIn         = "iin"
	LookupRange       = "range"
	LookupIsNull      = "isnull"
	LookupRegex       = "regex"
	LookupIRegex      = "iregex"
	LookupDay         = "day"
	LookupMonth       = "month"
	LookupYear        = "year"
	LookupHour        = "hour"
	LookupMinute      = "minute"
	LookupSecond      = "second"
	LookupWeekDay     = "week_day"
)

// LookupSet is a set of lookup names.
type LookupSet map[string]struct{}

// NewLookupSet builds a LookupSet from the given names.
func NewLookupSet(names ...string) LookupSet {
	s := make(LookupSet, len(names))
	for _, name := range names {
		s[name] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s LookupSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the lookup names in sorted order.
func (s LookupSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend executes resolved filter specifications against a concrete
// collection type. Each backend owns its own value comparison and negation
// implementation; the resolution engine only consumes the lookup vocabulary.
//
// Apply must partition bound specs into regular and callable ones
// (see Partition), commit regular specs in at most two passes (one
// conjunctive inclusion of all non-negated specs, then one application per
// negated spec as intersected individual negations) and finally run
// callable specs one at a time via ApplyCallables. Intersecting individual
// negations matters: NOT (A AND B) is not the same as NOT A AND NOT B, and
// backends must produce the latter.
//
// A backend must not retain a reference to the underlying collection past
// its single Apply call.
type Backend interface {
	// Name identifies the backend. Custom filter callables are registered
	// per backend name (see CustomLookup).
	Name() string

	// SupportedLookups returns the lookup vocabulary this backend can
	// execute. Filters without an explicit lookup list defer to it. A
	// backend that cannot express a lookup natively must omit it here.
	SupportedLookups() LookupSet

	// Bind attaches resolved specifications for the next Apply.
	Bind(specs []*Spec)

	// Model returns the entity type the bound collection is defined over.
	// Callers use it to validate that a filter set's declared entity
	// matches the collection actually being filtered. A nil model disables
	// cross-model enforcement.
	Model() reflect.Type

	// Apply executes the bound specifications and returns the filtered
	// collection.
	Apply(ctx context.Context) (any, error)

	// Empty returns the backend's definitionally-empty collection, used by
	// the StrictEmpty mode and by callers on cross-model mismatches.
	Empty() any
}

// Partition splits specs into regular ones, which a backend can execute via
// its generic path, and callable ones, which must be invoked directly.
func Partition(specs []*Spec) (regular, callable []*Spec) {
	for _, spec := range specs {
		if spec.IsCallable() {
			callable = append(callable, spec)
		} else {
			regular = append(regular, spec)
		}
	}
	return regular, callable
}

// ApplyCallables threads the collection through every callable spec in
// order. Each callable receives the running collection and returns the next
// state. Non-callable specs in the list are an error.
func ApplyCallables(ctx context.Context, queryset any, specs []*Spec) (any, error) {
	for _, spec := range specs {
		next, err := spec.Call(ctx, queryset)
		if err != nil {
			return nil, err
		}
		queryset = next
	}
	return queryset, nil
}
