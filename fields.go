package urlfilter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validator coerces and validates one raw querystring value into a typed
// filter value. Validators are pure: same input, same output, no state.
type Validator interface {
	Clean(raw string) (any, error)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(raw string) (any, error)

// Clean calls f.
func (f ValidatorFunc) Clean(raw string) (any, error) {
	return f(raw)
}

// String returns a validator that accepts any string value as-is.
func String() Validator {
	return ValidatorFunc(func(raw string) (any, error) {
		return raw, nil
	})
}

// Int returns a validator parsing base-10 integers.
func Int() Validator {
	return ValidatorFunc(cleanInt)
}

// IntBetween returns an integer validator enforcing inclusive bounds.
func IntBetween(min, max int64) Validator {
	return ValidatorFunc(func(raw string) (any, error) {
		v, err := cleanInt(raw)
		if err != nil {
			return nil, err
		}
		n := v.(int64)
		if n < min {
			return nil, fmt.Errorf("ensure this value is greater than or equal to %d", min)
		}
		if n > max {
			return nil, fmt.Errorf("ensure this value is less than or equal to %d", max)
		}
		return n, nil
	})
}

func cleanInt(raw string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a whole number", raw)
	}
	return n, nil
}

// Float returns a validator parsing decimal numbers.
func Float() Validator {
	return ValidatorFunc(func(raw string) (any, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	})
}

// Bool returns a validator accepting true/false/1/0, case-insensitive.
func Bool() Validator {
	return ValidatorFunc(func(raw string) (any, error) {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", raw)
	})
}

// Default layouts accepted by Time in order of preference.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time returns a validator parsing timestamps. When no layouts are given,
// RFC 3339 and common date/datetime forms are accepted.
func Time(layouts ...string) Validator {
	if len(layouts) == 0 {
		layouts = timeLayouts
	}
	return ValidatorFunc(func(raw string) (any, error) {
		raw = strings.TrimSpace(raw)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%q is not a valid timestamp", raw)
	})
}

// Date returns a validator parsing calendar dates in the form 2006-01-02.
func Date() Validator {
	return Time("2006-01-02")
}

// ManyOptions configures a multi-value validator.
type ManyOptions struct {
	// Child validates each item after splitting. Defaults to String().
	Child Validator

	// MinItems and MaxItems bound the number of items.
	// Zero means no bound.
	MinItems int
	MaxItems int

	// Delimiter splits the raw value into items. Defaults to ",".
	Delimiter string
}

// Many returns a validator splitting a delimiter-separated value into a
// list, validating each item with the child validator and enforcing item
// count bounds. The cleaned value is a []any of the child's cleaned values.
func Many(opts ManyOptions) Validator {
	child := opts.Child
	if child == nil {
		child = String()
	}
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = ","
	}

	return ValidatorFunc(func(raw string) (any, error) {
		parts := strings.Split(raw, delimiter)

		if opts.MinItems > 0 && len(parts) < opts.MinItems {
			return nil, fmt.Errorf("ensure this value has at least %d items (it has %d)",
				opts.MinItems, len(parts))
		}
		if opts.MaxItems > 0 && len(parts) > opts.MaxItems {
			return nil, fmt.Errorf("ensure this value has at most %d items (it has %d)",
				opts.MaxItems, len(parts))
		}

		values := make([]any, 0, len(parts))
		for _, part := range parts {
			v, err := child.Clean(part)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	})
}
