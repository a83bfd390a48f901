// Package sqldb translates resolved filter specifications into SQL WHERE
// clauses and runs them through database/sql.
//
// The backend needs a Schema describing the root table, its filterable
// columns and the relations reachable from it. Related path components
// become JOINs with stable aliases; crossing a to-many relation switches
// the query to SELECT DISTINCT so joined rows do not duplicate results.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/hugr-lab/urlfilter"
)

// Name is the backend name custom filter callables register against.
const Name = "sql"

// Dialect selects the placeholder style of the target database.
type Dialect int

const (
	// DialectDefault uses "?" placeholders (sqlite, mysql, duckdb).
	DialectDefault Dialect = iota
	// DialectPostgres uses numbered "$1" placeholders.
	DialectPostgres
)

// Relation describes a join from one table to another, keyed in
// Schema.Relations by the querystring path component that reaches it.
type Relation struct {
	// Schema of the related table.
	Schema *Schema
	// LocalColumn on the owning table and ForeignColumn on the related
	// table form the join condition.
	LocalColumn   string
	ForeignColumn string
	// Many marks a to-many relation. Queries crossing one use DISTINCT.
	Many bool
}

// Schema describes a filterable table.
type Schema struct {
	// Table name as it appears in SQL.
	Table string
	// Columns maps path components to column names. A component absent
	// from the map is used as the column name directly.
	Columns map[string]string
	// Relations maps path components to related tables.
	Relations map[string]*Relation
}

func (s *Schema) column(component string) string {
	if c, ok := s.Columns[component]; ok {
		return c
	}
	return component
}

// Options configures a Backend.
type Options struct {
	// DB to execute queries on. May be nil when the backend is only used
	// to render SQL; Apply then returns an error.
	DB *sql.DB
	// Schema of the root table. Required.
	Schema *Schema
	// Dialect of the target database. Defaults to DialectDefault.
	Dialect Dialect
	// Model is an optional value of the entity type rows represent. When
	// set, the filter tree's model is checked against it.
	Model any
}

// Backend renders and executes SQL for resolved filter specifications.
type Backend struct {
	db      *sql.DB
	schema  *Schema
	dialect Dialect
	model   reflect.Type

	specs []*urlfilter.Spec
}

// sqlalchemy-grade vocabulary: value comparisons only, no calendar
// extraction or regular expressions.
var supportedLookups = urlfilter.NewLookupSet(
	urlfilter.LookupContains,
	urlfilter.LookupEndswith,
	urlfilter.LookupExact,
	urlfilter.LookupGt,
	urlfilter.LookupGte,
	urlfilter.LookupIContains,
	urlfilter.LookupIEndswith,
	urlfilter.LookupIExact,
	urlfilter.LookupIn,
	urlfilter.LookupIsNull,
	urlfilter.LookupIStartswith,
	urlfilter.LookupLt,
	urlfilter.LookupLte,
	urlfilter.LookupRange,
	urlfilter.LookupStartswith,
)

// New creates a SQL backend. The schema is validated eagerly so that a
// misconfigured relation fails at construction rather than per request.
func New(opts Options) (*Backend, error) {
	if opts.Schema == nil {
		return nil, errors.New("sqldb: schema is required")
	}
	if err := validateSchema(opts.Schema, map[*Schema]struct{}{}); err != nil {
		return nil, err
	}

	b := &Backend{
		db:      opts.DB,
		schema:  opts.Schema,
		dialect: opts.Dialect,
	}
	if opts.Model != nil {
		t := reflect.TypeOf(opts.Model)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		b.model = t
	}
	return b, nil
}

func validateSchema(s *Schema, seen map[*Schema]struct{}) error {
	if _, ok := seen[s]; ok {
		return nil
	}
	seen[s] = struct{}{}

	if s.Table == "" {
		return errors.New("sqldb: schema table name is required")
	}
	for component, rel := range s.Relations {
		if rel.Schema == nil {
			return fmt.Errorf("sqldb: relation %q has no schema", component)
		}
		if rel.LocalColumn == "" || rel.ForeignColumn == "" {
			return fmt.Errorf("sqldb: relation %q needs local and foreign columns", component)
		}
		if err := validateSchema(rel.Schema, seen); err != nil {
			return err
		}
	}
	return nil
}

// Name returns "sql".
func (b *Backend) Name() string { return Name }

// SupportedLookups returns the lookups this backend can render.
func (b *Backend) SupportedLookups() urlfilter.LookupSet { return supportedLookups }

// Bind attaches resolved specifications for the next Apply.
func (b *Backend) Bind(specs []*urlfilter.Spec) { b.specs = specs }

// Model returns the configured entity type, or nil when none was given.
func (b *Backend) Model() reflect.Type { return b.model }

// Empty returns an empty row slice.
func (b *Backend) Empty() any { return []map[string]any{} }

// Apply renders the bound specifications into a SELECT and executes it,
// returning rows as []map[string]any. Callable specs then run over the
// scanned rows.
func (b *Backend) Apply(ctx context.Context) (any, error) {
	if b.db == nil {
		return nil, errors.New("sqldb: no database configured")
	}

	regular, callable := urlfilter.Partition(b.specs)

	stmt, args, err := b.selectSQL(regular)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: query: %w", err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return urlfilter.ApplyCallables(ctx, any(out), callable)
}

// WhereClause renders the given specifications into a WHERE clause with
// its JOIN list and argument slice. The distinct flag reports whether a
// to-many relation was crossed.
func (b *Backend) WhereClause(specs []*urlfilter.Spec) (clause string, joins []string, args []any, distinct bool, err error) {
	q := &queryBuilder{
		backend: b,
		aliases: map[string]string{"": "t0"},
	}
	for _, spec := range specs {
		if err := q.addSpec(spec); err != nil {
			return "", nil, nil, false, err
		}
	}
	return strings.Join(q.conds, " AND "), q.joins, q.args, q.distinct, nil
}

// SelectSQL renders the full statement selecting the root table's columns
// under the bound specifications.
func (b *Backend) SelectSQL(specs []*urlfilter.Spec) (string, []any, error) {
	return b.selectSQL(specs)
}

func (b *Backend) selectSQL(specs []*urlfilter.Spec) (string, []any, error) {
	where, joins, args, distinct, err := b.WhereClause(specs)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString("t0.* FROM ")
	sb.WriteString(b.schema.Table)
	sb.WriteString(" AS t0")
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return sb.String(), args, nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqldb: columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqldb: scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if raw, ok := values[i].([]byte); ok {
				row[c] = string(raw)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
