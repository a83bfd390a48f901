package urlfilter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// StrictMode governs how validation failures surface during one filtering
// pass. The mode is fixed per pass; there are no transitions within one
// request.
type StrictMode int

const (
	// StrictDrop silently excludes failing keys and filters with whatever
	// specs succeeded. This is the default: it favors availability over
	// strictness.
	StrictDrop StrictMode = iota

	// StrictFail collects every failure across the whole pass and returns
	// one aggregate ValidationError after the full input has been walked,
	// so the caller sees every problem in one round-trip.
	StrictFail

	// StrictEmpty short-circuits on the first failure. FilterSet.Apply
	// responds with the backend's empty result instead of a partially
	// filtered one, which matters when partial filtering could expose data
	// the caller did not intend to.
	StrictEmpty
)

// field is the contract shared by leaf filters and nested filter sets
// within one tree.
type field interface {
	bind(name string, parent *FilterSet) field
	resolve(n *Node, rc *resolveContext) Resolution
}

// resolveContext carries per-request state through the recursive walk. The
// tree itself stays immutable.
type resolveContext struct {
	backend Backend
}

// Fields declares the named children of a FilterSet. Values are either
// *Filter leaves or nested *FilterSet values. Names must be unique, which
// the map enforces; ordering is irrelevant.
type Fields map[string]field

// FilterSet is a tree of named filters. The root set is the user-facing
// entry point: it parses querystring data into lookup chains, walks them
// recursively through its children and accumulates the resulting specs.
//
// A FilterSet is built once, typically at process startup, and is read-only
// afterwards: per-request state (data, backend, strict mode) travels through
// call arguments, so one set is safe for concurrent requests.
type FilterSet struct {
	children     map[string]field
	defaultChild *Filter
	source       string
	model        reflect.Type
	logger       *slog.Logger

	// set once at bind time; zero-valued on the root
	name       string
	parent     *FilterSet
	components []string
}

// SetOption configures a FilterSet.
type SetOption func(*FilterSet)

// WithSetSource overrides the bound name as the path component a nested set
// contributes to specs.
func WithSetSource(source string) SetOption {
	return func(fs *FilterSet) { fs.source = source }
}

// WithModel declares the entity type this set filters. Apply validates the
// declared type against the backend's model before any filtering work and
// fails eagerly on mismatch.
func WithModel(model any) SetOption {
	return func(fs *FilterSet) { fs.model = indirectType(model) }
}

// WithLogger attaches a logger used to report silently skipped keys at
// debug level. Without it the set does not log.
func WithLogger(logger *slog.Logger) SetOption {
	return func(fs *FilterSet) { fs.logger = logger }
}

func indirectType(model any) reflect.Type {
	if model == nil {
		return nil
	}
	t, ok := model.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(model)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// NewFilterSet builds a filter tree from the declared fields. Children are
// bound immediately; the returned set is immutable.
//
// Returns an error if more than one field is flagged as the default.
func NewFilterSet(fields Fields, opts ...SetOption) (*FilterSet, error) {
	fs := &FilterSet{}
	for _, opt := range opts {
		opt(fs)
	}

	fs.children = make(map[string]field, len(fields))
	var defaults []string
	for name, fld := range fields {
		bound := fld.bind(name, fs)
		fs.children[name] = bound
		if leaf, ok := bound.(*Filter); ok && leaf.isDefault() {
			defaults = append(defaults, name)
			fs.defaultChild = leaf
		}
	}

	if len(defaults) > 1 {
		sort.Strings(defaults)
		return nil, fmt.Errorf("urlfilter: multiple default filters declared: %s",
			strings.Join(defaults, ", "))
	}

	return fs, nil
}

// MustFilterSet is like NewFilterSet but panics on error. Intended for
// static tree definitions at process startup.
func MustFilterSet(fields Fields, opts ...SetOption) *FilterSet {
	fs, err := NewFilterSet(fields, opts...)
	if err != nil {
		panic(err)
	}
	return fs
}

// Source returns the path component this set contributes to specs: the
// explicit source when given, the bound name otherwise.
func (fs *FilterSet) Source() string {
	if fs.source != "" {
		return fs.source
	}
	return fs.name
}

// Components returns the full path from the root down to this set.
// Empty on the root.
func (fs *FilterSet) Components() []string {
	return fs.components
}

func childComponents(parent *FilterSet, source string) []string {
	if parent == nil {
		return []string{source}
	}
	return append(append([]string(nil), parent.components...), source)
}

// bind returns a copy of the set bound to parent under name. All children
// are rebound recursively since their path components change.
func (fs *FilterSet) bind(name string, parent *FilterSet) field {
	b := &FilterSet{
		source: fs.source,
		model:  fs.model,
		logger: fs.logger,
		name:   name,
		parent: parent,
	}
	b.components = childComponents(parent, b.Source())

	b.children = make(map[string]field, len(fs.children))
	for childName, child := range fs.children {
		bound := child.bind(childName, b)
		b.children[childName] = bound
		if leaf, ok := bound.(*Filter); ok && leaf.isDefault() {
			b.defaultChild = leaf
		}
	}
	return b
}

// resolve dispatches one lookup chain node against this set's children.
func (fs *FilterSet) resolve(n *Node, rc *resolveContext) Resolution {
	if n.IsValue() {
		// A bare value addressed at this set, e.g. bar=5 where bar is a
		// nested set: delegate to the default child when there is one.
		if fs.defaultChild == nil {
			return skipped()
		}
		return fs.defaultChild.resolve(n, rc)
	}

	child, ok := fs.children[n.Name]
	if !ok {
		// The unmatched segment may be a lookup on the default child, e.g.
		// bar__gt=5. Only nested sets reinterpret this way; on the root the
		// filter must be named explicitly.
		if fs.defaultChild != nil && fs.parent != nil {
			return fs.defaultChild.resolve(n, rc)
		}
		return skipped()
	}
	return child.resolve(n.Child, rc)
}

// Specs resolves querystring data into an ordered list of filter
// specifications against the given backend's lookup vocabulary.
//
// Keys failing the filter key grammar and keys matching no declared filter
// are silently skipped under every mode. Validation failures surface
// according to mode: dropped, aggregated into a ValidationError, or
// short-circuited into ErrEmptyResult.
//
// Duplicate querystring keys produce independent specs; no deduplication is
// performed.
func (fs *FilterSet) Specs(data url.Values, backend Backend, mode StrictMode) ([]*Spec, error) {
	rc := &resolveContext{backend: backend}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var specs []*Spec
	var fails map[string]*multierror.Error

	for _, key := range keys {
		if !ValidKey(key) {
			fs.debug("skipping querystring key: invalid filter key syntax", "key", key)
			continue
		}
		for _, value := range data[key] {
			res := fs.resolve(ParseKey(key, value), rc)
			switch {
			case res.Err != nil:
				switch mode {
				case StrictEmpty:
					return nil, fmt.Errorf("%w (key %q: %v)", ErrEmptyResult, key, res.Err)
				case StrictFail:
					if fails == nil {
						fails = make(map[string]*multierror.Error)
					}
					fails[key] = multierror.Append(fails[key], res.Err)
				default:
					fs.debug("dropping querystring key: validation failed",
						"key", key, "error", res.Err)
				}
			case res.Skipped():
				fs.debug("skipping querystring key: no matching filter", "key", key)
			default:
				specs = append(specs, res.Spec)
			}
		}
	}

	if len(fails) > 0 {
		return nil, &ValidationError{Fields: fails}
	}
	return specs, nil
}

// Apply resolves data into specifications and executes them against the
// backend, returning the filtered collection.
//
// The declared model, when set, is checked against the backend's model
// before any filtering work; a mismatch is a configuration error reported
// regardless of mode. Under StrictEmpty a validation failure yields the
// backend's empty result with a nil error.
func (fs *FilterSet) Apply(ctx context.Context, data url.Values, backend Backend, mode StrictMode) (any, error) {
	if backend == nil {
		return nil, errors.New("urlfilter: nil backend")
	}
	if err := fs.checkModel(backend); err != nil {
		return nil, err
	}

	specs, err := fs.Specs(data, backend, mode)
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			return backend.Empty(), nil
		}
		return nil, err
	}

	backend.Bind(specs)
	return backend.Apply(ctx)
}

func (fs *FilterSet) checkModel(backend Backend) error {
	actual := backend.Model()
	if fs.model == nil || actual == nil {
		return nil
	}
	if actual != fs.model {
		return &ModelMismatchError{Expected: fs.model, Actual: actual}
	}
	return nil
}

func (fs *FilterSet) debug(msg string, args ...any) {
	if fs.logger != nil {
		fs.logger.Debug(msg, args...)
	}
}

// String renders the declared tree with one line per filter, children
// indented under their parent set. Debugging aid only.
func (fs *FilterSet) String() string {
	var sb strings.Builder
	fs.write(&sb, "")
	return strings.TrimRight(sb.String(), "\n")
}

func (fs *FilterSet) write(sb *strings.Builder, prefix string) {
	names := make([]string, 0, len(fs.children))
	for name := range fs.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch child := fs.children[name].(type) {
		case *Filter:
			marker := ""
			if child.isDefault() {
				marker = " (default)"
			}
			fmt.Fprintf(sb, "%s%s = Filter(source=%q, default_lookup=%q)%s\n",
				prefix, name, child.Source(), child.defaultLookup, marker)
		case *FilterSet:
			fmt.Fprintf(sb, "%s%s = FilterSet(source=%q)\n", prefix, name, child.Source())
			child.write(sb, prefix+"  ")
		}
	}
}
