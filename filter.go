package urlfilter

// Lookups with restricted value domains use a specialized validator even if
// the filter's primary validator is generic.
var lookupValidatorOverrides = map[string]Validator{
	LookupIsNull:  Bool(),
	LookupSecond:  IntBetween(0, 59),
	LookupMinute:  IntBetween(0, 59),
	LookupHour:    IntBetween(0, 23),
	LookupWeekDay: IntBetween(1, 7),
	LookupDay:     IntBetween(1, 31),
	LookupMonth:   IntBetween(1, 12),
	LookupYear:    IntBetween(0, 9999),
}

// manyLookupValidator wraps the filter's validator for lookups taking
// multiple delimiter-separated values.
func manyLookupValidator(lookup string, child Validator) (Validator, bool) {
	switch lookup {
	case LookupIn, LookupIIn:
		return Many(ManyOptions{Child: child, MinItems: 1}), true
	case LookupRange:
		return Many(ManyOptions{Child: child, MinItems: 2, MaxItems: 2}), true
	}
	return nil, false
}

// Resolution is the tagged outcome of resolving one lookup chain against a
// filter tree: resolved to a spec, failed validation, or skipped entirely
// (the lookup matched nothing declared and is assumed to be an unrelated
// querystring key).
type Resolution struct {
	// Spec is set when the lookup resolved to a specification.
	Spec *Spec

	// Err is set when the lookup failed validation.
	Err error
}

// Skipped reports whether the lookup matched nothing and was ignored.
func (r Resolution) Skipped() bool {
	return r.Spec == nil && r.Err == nil
}

func resolved(spec *Spec) Resolution { return Resolution{Spec: spec} }
func failed(err error) Resolution    { return Resolution{Err: err} }
func skipped() Resolution            { return Resolution{} }

// CustomLookup registers backend-specific handwritten filtering logic for a
// lookup name on a filter. Specs resolved through a custom lookup carry the
// callable and are executed directly by the backend rather than through its
// generic path.
type CustomLookup struct {
	// Lookup is the lookup name as exposed in querystring keys. REQUIRED.
	Lookup string

	// Backend is the backend name the callable serves, as reported by
	// Backend.Name (e.g. "plain", "sql", "mongo"). REQUIRED.
	Backend string

	// Apply filters the running collection. REQUIRED.
	Apply FilterFunc

	// Validator overrides the filter's validator for this lookup. Optional.
	Validator Validator
}

type customKey struct {
	lookup  string
	backend string
}

// Filter converts one terminal lookup chain node into a Spec. Each filter is
// declared once as part of a filter tree and bound to its parent set at
// construction time; bound filters are immutable and safe for concurrent
// use across requests.
type Filter struct {
	validator     Validator
	source        string
	lookups       LookupSet // nil means inherit from the backend
	defaultLookup string
	noLookup      bool
	defaultField  bool
	custom        map[customKey]CustomLookup

	// set once at bind time
	name       string
	parent     *FilterSet
	components []string
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithSource overrides the bound name as the path component used in specs.
func WithSource(source string) FilterOption {
	return func(f *Filter) { f.source = source }
}

// WithLookups restricts the filter to the given lookups. Without this
// option the filter defers to the backend's supported lookup set.
func WithLookups(lookups ...string) FilterOption {
	return func(f *Filter) { f.lookups = NewLookupSet(lookups...) }
}

// WithDefaultLookup sets the lookup used when the querystring key does not
// name one explicitly. Defaults to "exact".
func WithDefaultLookup(lookup string) FilterOption {
	return func(f *Filter) { f.defaultLookup = lookup }
}

// AsDefault marks the filter as its parent set's default field: the field
// used when a lookup key references the set without naming a child. At most
// one field per set may be the default.
func AsDefault() FilterOption {
	return func(f *Filter) { f.defaultField = true }
}

// NoLookup forbids explicit lookup suffixes in the URL for this filter,
// e.g. id__gt would be rejected. Useful when a filter should expose a
// single lookup without leaking its name into the URL.
func NoLookup() FilterOption {
	return func(f *Filter) { f.noLookup = true }
}

// WithCustom registers custom per-(lookup, backend) filter callables.
// Registration is explicit and happens at construction time; resolution
// selects the callable matching the active backend's name.
func WithCustom(lookups ...CustomLookup) FilterOption {
	return func(f *Filter) {
		if f.custom == nil {
			f.custom = make(map[customKey]CustomLookup, len(lookups))
		}
		for _, c := range lookups {
			f.custom[customKey{lookup: c.Lookup, backend: c.Backend}] = c
		}
	}
}

// NewFilter creates a leaf filter with the given value validator.
func NewFilter(validator Validator, opts ...FilterOption) *Filter {
	f := &Filter{
		validator:     validator,
		defaultLookup: LookupExact,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Source returns the path component this filter contributes to specs: the
// explicit source when given, the bound name otherwise.
func (f *Filter) Source() string {
	if f.source != "" {
		return f.source
	}
	return f.name
}

// Components returns the full path from the root set down to this filter.
func (f *Filter) Components() []string {
	return f.components
}

func (f *Filter) isDefault() bool { return f.defaultField }

// bind returns a copy of the filter bound to parent under name. The
// receiver is left untouched, so a filter value can be reused across trees.
func (f *Filter) bind(name string, parent *FilterSet) field {
	b := *f
	b.name = name
	b.parent = parent
	b.components = childComponents(parent, b.Source())
	return &b
}

// allowed reports whether lookup may be used with this filter given the
// active backend.
func (f *Filter) allowed(lookup string, rc *resolveContext) bool {
	if f.customFor(lookup, rc) != nil {
		return true
	}
	if f.lookups != nil {
		return f.lookups.Has(lookup)
	}
	if rc.backend != nil {
		return rc.backend.SupportedLookups().Has(lookup)
	}
	return false
}

// customFor returns the custom lookup registration matching the active
// backend, or nil.
func (f *Filter) customFor(lookup string, rc *resolveContext) *CustomLookup {
	if f.custom == nil || rc.backend == nil {
		return nil
	}
	c, ok := f.custom[customKey{lookup: lookup, backend: rc.backend.Name()}]
	if !ok {
		return nil
	}
	return &c
}

// validatorFor selects the validator for the chosen lookup. Custom lookup
// validators take precedence, then multi-value wrapping for membership and
// range lookups, then restricted-domain overrides, then the filter's own
// validator.
func (f *Filter) validatorFor(lookup string, rc *resolveContext) Validator {
	if c := f.customFor(lookup, rc); c != nil && c.Validator != nil {
		return c.Validator
	}
	if v, ok := manyLookupValidator(lookup, f.validator); ok {
		return v
	}
	if v, ok := lookupValidatorOverrides[lookup]; ok {
		return v
	}
	return f.validator
}

// resolve converts a node positioned at this filter into a Resolution.
// The node is either the terminal raw value (default lookup applies) or a
// single {lookup: value} pair (explicit lookup).
func (f *Filter) resolve(n *Node, rc *resolveContext) Resolution {
	var lookup, raw string

	switch {
	case n.IsValue():
		lookup = f.defaultLookup
		raw = n.Value
	case n.IsPair():
		if f.noLookup {
			return failed(&ExplicitLookupError{Key: n.Key})
		}
		lookup = n.Name
		raw = n.Child.Value
	default:
		return failed(&AmbiguityError{Key: n.Key})
	}

	if !f.allowed(lookup, rc) {
		return failed(&LookupError{Lookup: lookup})
	}

	value, err := f.validatorFor(lookup, rc).Clean(raw)
	if err != nil {
		return failed(err)
	}

	spec := &Spec{
		Components: f.components,
		Lookup:     lookup,
		Value:      value,
		Negated:    n.Negated,
	}
	if c := f.customFor(lookup, rc); c != nil {
		spec.apply = c.Apply
	}
	return resolved(spec)
}
