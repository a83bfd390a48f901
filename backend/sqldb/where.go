package sqldb

import (
	"fmt"
	"strings"

	"github.com/hugr-lab/urlfilter"
)

// queryBuilder accumulates the JOINs, conditions and arguments for one
// rendered statement. Aliases are assigned per relation path so repeated
// filters on the same relation share a single JOIN.
type queryBuilder struct {
	backend *Backend

	aliases  map[string]string
	joins    []string
	conds    []string
	args     []any
	distinct bool
}

func (q *queryBuilder) addSpec(spec *urlfilter.Spec) error {
	if len(spec.Components) == 0 {
		return fmt.Errorf("sqldb: spec %q has no path", spec.Lookup)
	}

	schema := q.backend.schema
	alias := q.aliases[""]
	path := ""
	for _, component := range spec.Components[:len(spec.Components)-1] {
		rel, ok := schema.Relations[component]
		if !ok {
			return fmt.Errorf("sqldb: %q is not a relation of %s", component, schema.Table)
		}
		if rel.Many {
			q.distinct = true
		}

		path += "/" + component
		next, ok := q.aliases[path]
		if !ok {
			next = fmt.Sprintf("t%d", len(q.aliases))
			q.aliases[path] = next
			q.joins = append(q.joins, fmt.Sprintf(
				"JOIN %s AS %s ON %s.%s = %s.%s",
				rel.Schema.Table, next,
				alias, rel.LocalColumn,
				next, rel.ForeignColumn,
			))
		}
		alias, schema = next, rel.Schema
	}

	column := schema.column(spec.Components[len(spec.Components)-1])
	cond, err := q.condition(alias+"."+column, spec)
	if err != nil {
		return err
	}
	if spec.Negated {
		cond = "NOT (" + cond + ")"
	}
	q.conds = append(q.conds, cond)
	return nil
}

func (q *queryBuilder) condition(column string, spec *urlfilter.Spec) (string, error) {
	switch spec.Lookup {
	case urlfilter.LookupExact:
		return column + " = " + q.arg(spec.Value), nil
	case urlfilter.LookupIExact:
		return "LOWER(" + column + ") = LOWER(" + q.arg(spec.Value) + ")", nil
	case urlfilter.LookupContains:
		return q.like(column, spec.Value, "%", "%", false), nil
	case urlfilter.LookupIContains:
		return q.like(column, spec.Value, "%", "%", true), nil
	case urlfilter.LookupStartswith:
		return q.like(column, spec.Value, "", "%", false), nil
	case urlfilter.LookupIStartswith:
		return q.like(column, spec.Value, "", "%", true), nil
	case urlfilter.LookupEndswith:
		return q.like(column, spec.Value, "%", "", false), nil
	case urlfilter.LookupIEndswith:
		return q.like(column, spec.Value, "%", "", true), nil
	case urlfilter.LookupGt:
		return column + " > " + q.arg(spec.Value), nil
	case urlfilter.LookupGte:
		return column + " >= " + q.arg(spec.Value), nil
	case urlfilter.LookupLt:
		return column + " < " + q.arg(spec.Value), nil
	case urlfilter.LookupLte:
		return column + " <= " + q.arg(spec.Value), nil
	case urlfilter.LookupIn:
		values, ok := spec.Value.([]any)
		if !ok {
			values = []any{spec.Value}
		}
		holders := make([]string, len(values))
		for i, v := range values {
			holders[i] = q.arg(v)
		}
		return column + " IN (" + strings.Join(holders, ", ") + ")", nil
	case urlfilter.LookupRange:
		bounds, ok := spec.Value.([]any)
		if !ok || len(bounds) != 2 {
			return "", fmt.Errorf("sqldb: range lookup needs two bounds, got %v", spec.Value)
		}
		return column + " BETWEEN " + q.arg(bounds[0]) + " AND " + q.arg(bounds[1]), nil
	case urlfilter.LookupIsNull:
		want, ok := spec.Value.(bool)
		if !ok {
			return "", fmt.Errorf("sqldb: isnull lookup needs a bool, got %T", spec.Value)
		}
		if want {
			return column + " IS NULL", nil
		}
		return column + " IS NOT NULL", nil
	}
	return "", fmt.Errorf("sqldb: unsupported lookup %q", spec.Lookup)
}

func (q *queryBuilder) like(column string, value any, prefix, suffix string, insensitive bool) string {
	pattern := prefix + escapeLike(fmt.Sprintf("%v", value)) + suffix
	holder := q.arg(pattern)
	if insensitive {
		return "LOWER(" + column + ") LIKE LOWER(" + holder + ") ESCAPE '\\'"
	}
	return column + " LIKE " + holder + " ESCAPE '\\'"
}

// arg records a query argument and returns its placeholder token.
func (q *queryBuilder) arg(value any) string {
	q.args = append(q.args, value)
	if q.backend.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", len(q.args))
	}
	return "?"
}

// escapeLike neutralizes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
