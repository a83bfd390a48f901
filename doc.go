// Package urlfilter resolves flat, querystring-style filter expressions into
// backend-agnostic filter specifications and applies them against
// heterogeneous data sources.
//
// A querystring key such as
//
//	user__profile__email__endswith!=gmail.com
//
// is parsed into a chain of path components (user, profile, email), a lookup
// (endswith), a negation marker and a raw value. The package walks a
// declared tree of filters, validates and coerces the value per lookup, and
// emits a list of Spec values that any backend can execute.
//
// # Declaring a filter tree
//
//	books := urlfilter.MustFilterSet(urlfilter.Fields{
//	    "title": urlfilter.NewFilter(urlfilter.String()),
//	    "pages": urlfilter.NewFilter(urlfilter.Int()),
//	    "author": urlfilter.MustFilterSet(urlfilter.Fields{
//	        "id":   urlfilter.NewFilter(urlfilter.Int(), urlfilter.AsDefault()),
//	        "name": urlfilter.NewFilter(urlfilter.String()),
//	    }),
//	})
//
// Trees can also be generated from a struct type with FromStruct. A tree is
// built once at startup and is immutable afterwards, so a single tree
// serves concurrent requests.
//
// # Filtering
//
//	backend := plain.New(items)
//	result, err := books.Apply(ctx, request.URL.Query(), backend, urlfilter.StrictDrop)
//
// The strict mode decides how validation failures surface: StrictDrop
// ignores failing keys, StrictFail aggregates every failure into one
// ValidationError, StrictEmpty returns the backend's empty result on the
// first failure.
//
// # Backends
//
// Three backends ship as subpackages:
//   - backend/plain filters in-memory object collections
//   - backend/sqldb renders SQL WHERE clauses over database/sql
//   - backend/mongodb builds BSON filter documents for MongoDB
//
// Implement the Backend interface to execute specs against other sources.
//
// # Custom filter callables
//
// A filter can register handwritten per-backend filtering logic for a
// lookup name:
//
//	urlfilter.NewFilter(urlfilter.String(), urlfilter.WithCustom(urlfilter.CustomLookup{
//	    Lookup:  "near",
//	    Backend: "plain",
//	    Apply:   filterNear,
//	}))
//
// Specs resolved through a custom lookup bypass the backend's generic path
// and are invoked one at a time with the running collection.
package urlfilter
