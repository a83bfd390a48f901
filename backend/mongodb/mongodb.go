// Package mongodb translates resolved filter specifications into BSON
// filter documents and runs them against a MongoDB collection.
//
// Related path components map onto dotted field paths, so filters on
// embedded documents need no join bookkeeping. Negated specifications are
// collected into a single $nor array, which MongoDB evaluates as the
// conjunction of the individual negations.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hugr-lab/urlfilter"
)

// Name is the backend name custom filter callables register against.
const Name = "mongo"

var supportedLookups = urlfilter.NewLookupSet(
	urlfilter.LookupContains,
	urlfilter.LookupEndswith,
	urlfilter.LookupExact,
	urlfilter.LookupGt,
	urlfilter.LookupGte,
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
	urlfilter.LookupRange,
	urlfilter.LookupRegex,
	urlfilter.LookupStartswith,
)

// Options configures a Backend.
type Options struct {
	// Collection to query. May be nil when the backend is only used to
	// render filter documents; Apply then returns an error.
	Collection *mongo.Collection
	// Model is an optional value of the entity type documents represent.
	Model any
}

// Backend renders and executes BSON filters for resolved specifications.
type Backend struct {
	coll  *mongo.Collection
	model reflect.Type

	specs []*urlfilter.Spec
}

// New creates a MongoDB backend.
func New(opts Options) *Backend {
	b := &Backend{coll: opts.Collection}
	if opts.Model != nil {
		t := reflect.TypeOf(opts.Model)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		b.model = t
	}
	return b
}

// Name returns "mongo".
func (b *Backend) Name() string { return Name }

// SupportedLookups returns the lookups this backend can render.
func (b *Backend) SupportedLookups() urlfilter.LookupSet { return supportedLookups }

// Bind attaches resolved specifications for the next Apply.
func (b *Backend) Bind(specs []*urlfilter.Spec) { b.specs = specs }

// Model returns the configured entity type, or nil when none was given.
func (b *Backend) Model() reflect.Type { return b.model }

// Empty returns an empty document slice.
func (b *Backend) Empty() any { return []bson.M{} }

// Apply renders the bound specifications and executes a Find, returning
// documents as []bson.M. Callable specs then run over the decoded slice.
func (b *Backend) Apply(ctx context.Context) (any, error) {
	if b.coll == nil {
		return nil, errors.New("mongodb: no collection configured")
	}

	regular, callable := urlfilter.Partition(b.specs)

	doc, err := b.FilterDocument(regular)
	if err != nil {
		return nil, err
	}

	cursor, err := b.coll.Find(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("mongodb: find: %w", err)
	}
	out := []bson.M{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decode: %w", err)
	}
	return urlfilter.ApplyCallables(ctx, any(out), callable)
}

// FilterDocument renders the specifications into a single BSON filter.
// Positive conditions go into an $and array; negated ones into $nor.
func (b *Backend) FilterDocument(specs []*urlfilter.Spec) (bson.D, error) {
	var and, nor bson.A
	for _, spec := range specs {
		cond, err := condition(spec)
		if err != nil {
			return nil, err
		}
		clause := bson.D{{Key: strings.Join(spec.Components, "."), Value: cond}}
		if spec.Negated {
			nor = append(nor, clause)
			continue
		}
		and = append(and, clause)
	}

	doc := bson.D{}
	if len(and) > 0 {
		doc = append(doc, bson.E{Key: "$and", Value: and})
	}
	if len(nor) > 0 {
		doc = append(doc, bson.E{Key: "$nor", Value: nor})
	}
	return doc, nil
}

func condition(spec *urlfilter.Spec) (any, error) {
	switch spec.Lookup {
	case urlfilter.LookupExact:
		return spec.Value, nil
	case urlfilter.LookupIExact:
		return anchored(spec.Value, "^", "$", "i"), nil
	case urlfilter.LookupContains:
		return anchored(spec.Value, "", "", ""), nil
	case urlfilter.LookupIContains:
		return anchored(spec.Value, "", "", "i"), nil
	case urlfilter.LookupStartswith:
		return anchored(spec.Value, "^", "", ""), nil
	case urlfilter.LookupIStartswith:
		return anchored(spec.Value, "^", "", "i"), nil
	case urlfilter.LookupEndswith:
		return anchored(spec.Value, "", "$", ""), nil
	case urlfilter.LookupIEndswith:
		return anchored(spec.Value, "", "$", "i"), nil
	case urlfilter.LookupGt:
		return bson.D{{Key: "$gt", Value: spec.Value}}, nil
	case urlfilter.LookupGte:
		return bson.D{{Key: "$gte", Value: spec.Value}}, nil
	case urlfilter.LookupLt:
		return bson.D{{Key: "$lt", Value: spec.Value}}, nil
	case urlfilter.LookupLte:
		return bson.D{{Key: "$lte", Value: spec.Value}}, nil
	case urlfilter.LookupIn:
		return bson.D{{Key: "$in", Value: values(spec.Value)}}, nil
	case urlfilter.LookupIIn:
		patterns := bson.A{}
		for _, v := range values(spec.Value) {
			patterns = append(patterns, anchored(v, "^", "$", "i"))
		}
		return bson.D{{Key: "$in", Value: patterns}}, nil
	case urlfilter.LookupRange:
		bounds := values(spec.Value)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("mongodb: range lookup needs two bounds, got %v", spec.Value)
		}
		return bson.D{
			{Key: "$gte", Value: bounds[0]},
			{Key: "$lte", Value: bounds[1]},
		}, nil
	case urlfilter.LookupIsNull:
		want, ok := spec.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("mongodb: isnull lookup needs a bool, got %T", spec.Value)
		}
		if want {
			return nil, nil
		}
		return bson.D{{Key: "$ne", Value: nil}}, nil
	case urlfilter.LookupRegex:
		return primitive.Regex{Pattern: fmt.Sprintf("%v", spec.Value)}, nil
	case urlfilter.LookupIRegex:
		return primitive.Regex{Pattern: fmt.Sprintf("%v", spec.Value), Options: "i"}, nil
	}
	return nil, fmt.Errorf("mongodb: unsupported lookup %q", spec.Lookup)
}

// anchored builds a literal-match regex from a filter value. The value is
// quoted so regex metacharacters in user input match themselves.
func anchored(value any, prefix, suffix, options string) primitive.Regex {
	return primitive.Regex{
		Pattern: prefix + regexp.QuoteMeta(fmt.Sprintf("%v", value)) + suffix,
		Options: options,
	}
}

func values(value any) []any {
	if s, ok := value.([]any); ok {
		return s
	}
	return []any{value}
}
