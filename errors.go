package urlfilter

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrEmptyResult signals that a filtering pass running under StrictEmpty hit
// a validation failure and was short-circuited. FilterSet.Apply converts it
// into the backend's empty result; callers of FilterSet.Specs observe it via
// errors.Is.
var ErrEmptyResult = errors.New("urlfilter: validation failed, result is empty")

// LookupError indicates an explicit lookup name outside the set allowed for
// the filter or supported by the backend.
type LookupError struct {
	Lookup string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%q lookup is not supported", e.Lookup)
}

// AmbiguityError indicates filtering data more complex than a single lookup
// and value, e.g. an additional lookup specified after the final lookup as
// in field__in__equal=value.
type AmbiguityError struct {
	Key string
}

func (e *AmbiguityError) Error() string {
	return "invalid filtering data: additional lookup specified after the final lookup"
}

// ExplicitLookupError indicates an explicit lookup suffix on a filter that
// does not permit one.
type ExplicitLookupError struct {
	Key string
}

func (e *ExplicitLookupError) Error() string {
	return "this filter does not allow to specify a lookup"
}

// ModelMismatchError indicates a filter set declared over one entity type
// being applied to a backend bound to another. This is a caller-side
// configuration error and is reported eagerly, before any filtering work,
// regardless of the strict mode.
type ModelMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("filter set model %s does not match backend model %s",
		e.Expected, e.Actual)
}

// ValidationError aggregates per-key failures collected during one filtering
// pass under StrictFail. All failures across the whole pass are collected
// before the error is returned, so a caller sees every problem in one
// round-trip.
type ValidationError struct {
	// Fields maps original flat querystring keys to the failures recorded
	// for them. Multiple failures per key accumulate in order.
	Fields map[string]*multierror.Error
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs := make([]string, 0, len(e.Fields[k].Errors))
		for _, err := range e.Fields[k].Errors {
			msgs = append(msgs, err.Error())
		}
		parts = append(parts, k+": "+strings.Join(msgs, "; "))
	}
	return "invalid filters: " + strings.Join(parts, ", ")
}

// Messages returns the error payload as plain text keyed by the original
// querystring key, suitable for serializing into an error response.
func (e *ValidationError) Messages() map[string][]string {
	out := make(map[string][]string, len(e.Fields))
	for k, merr := range e.Fields {
		msgs := make([]string, 0, len(merr.Errors))
		for _, err := range merr.Errors {
			msgs = append(msgs, err.Error())
		}
		out[k] = msgs
	}
	return out
}
