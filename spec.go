package urlfilter

import (
	"context"
	"fmt"
	"strings"
)

// FilterFunc is handwritten backend-specific filtering logic attached to a
// Spec. It receives the running collection and the spec it serves and must
// return the next collection state. Collections are treated as immutable
// values threaded through the chain, never mutated in place.
type FilterFunc func(ctx context.Context, queryset any, spec *Spec) (any, error)

// Spec is a fully resolved, backend-agnostic filter instruction.
//
// The main job of the FilterSet is to parse submitted lookups into a list of
// specs. The list is then handed to a filter backend to actually filter the
// collection. Keeping specs backend-agnostic is what allows backends over
// heterogeneous data sources (SQL, MongoDB, plain objects) to share one
// resolution engine.
//
// A spec is created once per resolved lookup and consumed exactly once by a
// bound backend.
type Spec struct {
	// Components are the source names of the keys/attributes to be used in
	// filtering, e.g. key user__profile__email resolves to components
	// ["user", "profile", "email"]. Never empty.
	Components []string

	// Lookup names how the final component should be compared,
	// e.g. "exact", "contains", "range".
	Lookup string

	// Value is the typed filter value after validation and coercion.
	Value any

	// Negated is true when the original key carried the negation marker.
	Negated bool

	apply FilterFunc
}

// IsCallable reports whether this spec carries a custom filter callable.
// Callable specs cannot be executed by a backend's generic path and must be
// invoked directly via Call.
func (s *Spec) IsCallable() bool {
	return s.apply != nil
}

// Call invokes the spec's custom filter callable with the running
// collection and returns the next collection state.
func (s *Spec) Call(ctx context.Context, queryset any) (any, error) {
	if s.apply == nil {
		return nil, fmt.Errorf("urlfilter: spec %s has no filter callable", s)
	}
	return s.apply(ctx, queryset, s)
}

// Fingerprint returns the structural identity of the spec: components,
// lookup, value and negation. Two specs built from identical inputs have
// identical fingerprints regardless of construction order, so fingerprints
// can serve as map keys for duplicate detection. The value's dynamic type
// is part of the identity; int64(1) and float64(1) are different values.
func (s *Spec) Fingerprint() string {
	return fmt.Sprintf("%s %s %T=%#v negated=%t",
		strings.Join(s.Components, "."), s.Lookup, s.Value, s.Value, s.Negated)
}

// Equal reports structural equality with another spec. The custom callable
// does not participate in equality.
func (s *Spec) Equal(other *Spec) bool {
	if other == nil {
		return false
	}
	return s.Fingerprint() == other.Fingerprint()
}

func (s *Spec) String() string {
	negated := ""
	if s.Negated {
		negated = "NOT "
	}
	callable := ""
	if s.IsCallable() {
		callable = " via callable"
	}
	return fmt.Sprintf("<Spec %s %s%s %#v%s>",
		strings.Join(s.Components, "."), negated, s.Lookup, s.Value, callable)
}
