package plain

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/hugr-lab/urlfilter"
)

type compareError struct {
	lookup string
	reason string
}

func (e *compareError) Error() string {
	return fmt.Sprintf("plain: cannot evaluate %q: %s", e.lookup, e.reason)
}

// compare evaluates a single non-negated lookup against the attribute value
// reached at the end of the spec's path.
func compare(attr any, spec *urlfilter.Spec) (bool, error) {
	switch spec.Lookup {
	case urlfilter.LookupExact:
		return equal(attr, spec.Value), nil
	case urlfilter.LookupIExact:
		a, b, err := stringPair(attr, spec.Value, spec.Lookup)
		if err != nil {
			return false, err
		}
		return strings.EqualFold(a, b), nil
	case urlfilter.LookupContains:
		a, b, err := stringPair(attr, spec.Value, spec.Lookup)
		if err != nil {
			return false, err
		}
		return strings.Contains(a, b), nil
	case urlfilter.LookupIContains:
		a, b, err := stringPair(attr, spec.Value, spec.Lookup)
		if err != nil {
			return false, err
		}
		return strings.Contains(strings.ToLower(a), strings.ToLower(b)), nil
	case urlfilter.LookupStartswith:
		a, b, err := stringPair(attr, spec.Value, spec.Lookup)
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(a, b), nil
	case urlfilter.LookupIStartswith:
		a, b, err := stringPair(attr, spec.Value, spec.Lookup)
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(strings.ToLower(a), strings.ToLower(b)), nil
	case urlfilter.LookupEndswith:
		a, b, err := stringPair(attr, spec.Value, spec.Lookup)
		if err != nil {
			return false, err
		}
		return strings.HasSuffix(a, b), nil
	case urlfilter.LookupIEndswith:
		a, b, err := stringPair(attr, spec.Value, spec.Lookup)
		if err != nil {
			return false, err
		}
		return strings.HasSuffix(strings.ToLower(a), strings.ToLower(b)), nil
	case urlfilter.LookupGt:
		return order(attr, spec.Value, spec.Lookup, func(c int) bool { return c > 0 })
	case urlfilter.LookupGte:
		return order(attr, spec.Value, spec.Lookup, func(c int) bool { return c >= 0 })
	case urlfilter.LookupLt:
		return order(attr, spec.Value, spec.Lookup, func(c int) bool { return c < 0 })
	case urlfilter.LookupLte:
		return order(attr, spec.Value, spec.Lookup, func(c int) bool { return c <= 0 })
	case urlfilter.LookupIn:
		for _, candidate := range valueSlice(spec.Value) {
			if equal(attr, candidate) {
				return true, nil
			}
		}
		return false, nil
	case urlfilter.LookupIIn:
		a, ok := asString(attr)
		if !ok {
			return false, &compareError{spec.Lookup, "attribute is not a string"}
		}
		for _, candidate := range valueSlice(spec.Value) {
			if c, ok := asString(candidate); ok && strings.EqualFold(a, c) {
				return true, nil
			}
		}
		return false, nil
	case urlfilter.LookupRange:
		bounds := valueSlice(spec.Value)
		if len(bounds) != 2 {
			return false, &compareError{spec.Lookup, "range needs two bounds"}
		}
		lo, err := order(attr, bounds[0], spec.Lookup, func(c int) bool { return c >= 0 })
		if err != nil {
			return false, err
		}
		hi, err := order(attr, bounds[1], spec.Lookup, func(c int) bool { return c <= 0 })
		if err != nil {
			return false, err
		}
		return lo && hi, nil
	case urlfilter.LookupIsNull:
		want, ok := spec.Value.(bool)
		if !ok {
			return false, &compareError{spec.Lookup, "value is not a bool"}
		}
		return isNil(attr) == want, nil
	case urlfilter.LookupRegex:
		return matchRegexp(attr, spec, false)
	case urlfilter.LookupIRegex:
		return matchRegexp(attr, spec, true)
	case urlfilter.LookupYear:
		return calendar(attr, spec, func(t time.Time) int { return t.Year() })
	case urlfilter.LookupMonth:
		return calendar(attr, spec, func(t time.Time) int { return int(t.Month()) })
	case urlfilter.LookupDay:
		return calendar(attr, spec, func(t time.Time) int { return t.Day() })
	case urlfilter.LookupHour:
		return calendar(attr, spec, func(t time.Time) int { return t.Hour() })
	case urlfilter.LookupMinute:
		return calendar(attr, spec, func(t time.Time) int { return t.Minute() })
	case urlfilter.LookupSecond:
		return calendar(attr, spec, func(t time.Time) int { return t.Second() })
	case urlfilter.LookupWeekDay:
		// ISO 8601 numbering, Monday=1 through Sunday=7.
		return calendar(attr, spec, func(t time.Time) int {
			return (int(t.Weekday())+6)%7 + 1
		})
	}
	return false, &compareError{spec.Lookup, "unknown lookup"}
}

func equal(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			return at.Equal(bt)
		}
	}
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return false
	}
	return a == b
}

func stringPair(a, b any, lookup string) (string, string, error) {
	as, ok := asString(a)
	if !ok {
		return "", "", &compareError{lookup, "attribute is not a string"}
	}
	bs, ok := asString(b)
	if !ok {
		return "", "", &compareError{lookup, "value is not a string"}
	}
	return as, bs, nil
}

func order(a, b any, lookup string, accept func(int) bool) (bool, error) {
	c, err := compareValues(a, b, lookup)
	if err != nil {
		return false, err
	}
	return accept(c), nil
}

func compareValues(a, b any, lookup string) (int, error) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			return at.Compare(bt), nil
		}
	}
	if as, aok := asString(a); aok {
		if bs, bok := asString(b); bok {
			return strings.Compare(as, bs), nil
		}
	}
	return 0, &compareError{lookup, fmt.Sprintf("cannot order %T against %T", a, b)}
}

func matchRegexp(attr any, spec *urlfilter.Spec, insensitive bool) (bool, error) {
	a, ok := asString(attr)
	if !ok {
		return false, &compareError{spec.Lookup, "attribute is not a string"}
	}
	pattern, ok := asString(spec.Value)
	if !ok {
		return false, &compareError{spec.Lookup, "value is not a string"}
	}
	// patterns match from the start of the value, not anywhere inside it
	pattern = `\A(?:` + pattern + `)`
	if insensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, &compareError{spec.Lookup, err.Error()}
	}
	return re.MatchString(a), nil
}

func calendar(attr any, spec *urlfilter.Spec, extract func(time.Time) int) (bool, error) {
	t, ok := asTime(attr)
	if !ok {
		return false, &compareError{spec.Lookup, "attribute is not a time"}
	}
	want, ok := asFloat(spec.Value)
	if !ok {
		return false, &compareError{spec.Lookup, "value is not a number"}
	}
	return float64(extract(t)) == want, nil
}

func valueSlice(value any) []any {
	if s, ok := value.([]any); ok {
		return s
	}
	return []any{value}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
