package sqldb

import (
	"context"
	"database/sql"
	"net/url"
	"reflect"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hugr-lab/urlfilter"
)

func productSchema() *Schema {
	return &Schema{
		Table: "products",
		Relations: map[string]*Relation{
			"manufacturer": {
				Schema: &Schema{
					Table:   "manufacturers",
					Columns: map[string]string{"title": "name"},
				},
				LocalColumn:   "manufacturer_id",
				ForeignColumn: "id",
			},
			"reviews": {
				Schema:        &Schema{Table: "reviews"},
				LocalColumn:   "id",
				ForeignColumn: "product_id",
				Many:          true,
			},
		},
	}
}

func renderBackend(t *testing.T, dialect Dialect) *Backend {
	t.Helper()
	b, err := New(Options{Schema: productSchema(), Dialect: dialect})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func TestWhereClauseLookups(t *testing.T) {
	tests := []struct {
		name   string
		spec   *urlfilter.Spec
		clause string
		args   []any
	}{
		{
			"exact",
			&urlfilter.Spec{Components: []string{"name"}, Lookup: urlfilter.LookupExact, Value: "Widget"},
			"t0.name = ?",
			[]any{"Widget"},
		},
		{
			"iexact",
			&urlfilter.Spec{Components: []string{"name"}, Lookup: urlfilter.LookupIExact, Value: "widget"},
			"LOWER(t0.name) = LOWER(?)",
			[]any{"widget"},
		},
		{
			"contains",
			&urlfilter.Spec{Components: []string{"name"}, Lookup: urlfilter.LookupContains, Value: "50%_off"},
			`t0.name LIKE ? ESCAPE '\'`,
			[]any{`%50\%\_off%`},
		},
		{
			"istartswith",
			&urlfilter.Spec{Components: []string{"name"}, Lookup: urlfilter.LookupIStartswith, Value: "wid"},
			`LOWER(t0.name) LIKE LOWER(?) ESCAPE '\'`,
			[]any{"wid%"},
		},
		{
			"endswith",
			&urlfilter.Spec{Components: []string{"name"}, Lookup: urlfilter.LookupEndswith, Value: "kit"},
			`t0.name LIKE ? ESCAPE '\'`,
			[]any{"%kit"},
		},
		{
			"gt",
			&urlfilter.Spec{Components: []string{"price"}, Lookup: urlfilter.LookupGt, Value: 9.99},
			"t0.price > ?",
			[]any{9.99},
		},
		{
			"in",
			&urlfilter.Spec{Components: []string{"status"}, Lookup: urlfilter.LookupIn, Value: []any{"a", "b"}},
			"t0.status IN (?, ?)",
			[]any{"a", "b"},
		},
		{
			"range",
			&urlfilter.Spec{Components: []string{"price"}, Lookup: urlfilter.LookupRange, Value: []any{1.0, 5.0}},
			"t0.price BETWEEN ? AND ?",
			[]any{1.0, 5.0},
		},
		{
			"isnull true",
			&urlfilter.Spec{Components: []string{"discontinued"}, Lookup: urlfilter.LookupIsNull, Value: true},
			"t0.discontinued IS NULL",
			nil,
		},
		{
			"isnull false",
			&urlfilter.Spec{Components: []string{"discontinued"}, Lookup: urlfilter.LookupIsNull, Value: false},
			"t0.discontinued IS NOT NULL",
			nil,
		},
		{
			"negated",
			&urlfilter.Spec{Components: []string{"name"}, Lookup: urlfilter.LookupExact, Value: "x", Negated: true},
			"NOT (t0.name = ?)",
			[]any{"x"},
		},
	}

	b := renderBackend(t, DialectDefault)
	for _, tt := range tests {
		clause, joins, args, distinct, err := b.WhereClause([]*urlfilter.Spec{tt.spec})
		if err != nil {
			t.Errorf("%s: WhereClause failed: %v", tt.name, err)
			continue
		}
		if clause != tt.clause {
			t.Errorf("%s: expected clause %q, got %q", tt.name, tt.clause, clause)
		}
		if len(tt.args) == 0 && len(args) != 0 || len(tt.args) > 0 && !reflect.DeepEqual(args, tt.args) {
			t.Errorf("%s: expected args %v, got %v", tt.name, tt.args, args)
		}
		if len(joins) != 0 {
			t.Errorf("%s: expected no joins, got %v", tt.name, joins)
		}
		if distinct {
			t.Errorf("%s: expected no distinct", tt.name)
		}
	}
}

func TestWhereClauseJoins(t *testing.T) {
	b := renderBackend(t, DialectDefault)

	specs := []*urlfilter.Spec{
		{Components: []string{"manufacturer", "country"}, Lookup: urlfilter.LookupExact, Value: "DE"},
		// column mapping: title resolves to manufacturers.name
		{Components: []string{"manufacturer", "title"}, Lookup: urlfilter.LookupExact, Value: "Acme"},
	}

	clause, joins, args, distinct, err := b.WhereClause(specs)
	if err != nil {
		t.Fatalf("WhereClause failed: %v", err)
	}

	// both specs share a single join with a stable alias
	if len(joins) != 1 {
		t.Fatalf("expected 1 join, got %v", joins)
	}
	want := "JOIN manufacturers AS t1 ON t0.manufacturer_id = t1.id"
	if joins[0] != want {
		t.Errorf("expected join %q, got %q", want, joins[0])
	}
	if clause != "t1.country = ? AND t1.name = ?" {
		t.Errorf("unexpected clause %q", clause)
	}
	if !reflect.DeepEqual(args, []any{"DE", "Acme"}) {
		t.Errorf("unexpected args %v", args)
	}
	if distinct {
		t.Error("to-one relation must not force distinct")
	}
}

func TestWhereClauseManyRelationDistinct(t *testing.T) {
	b := renderBackend(t, DialectDefault)

	specs := []*urlfilter.Spec{
		{Components: []string{"reviews", "rating"}, Lookup: urlfilter.LookupGte, Value: int64(4)},
	}
	_, _, _, distinct, err := b.WhereClause(specs)
	if err != nil {
		t.Fatalf("WhereClause failed: %v", err)
	}
	if !distinct {
		t.Error("expected distinct when crossing a to-many relation")
	}

	stmt, _, err := b.SelectSQL(specs)
	if err != nil {
		t.Fatalf("SelectSQL failed: %v", err)
	}
	if !strings.HasPrefix(stmt, "SELECT DISTINCT t0.*") {
		t.Errorf("expected SELECT DISTINCT, got %q", stmt)
	}
}

func TestWhereClauseUnknownRelation(t *testing.T) {
	b := renderBackend(t, DialectDefault)
	specs := []*urlfilter.Spec{
		{Components: []string{"vendor", "name"}, Lookup: urlfilter.LookupExact, Value: "x"},
	}
	if _, _, _, _, err := b.WhereClause(specs); err == nil {
		t.Error("expected error for unknown relation")
	}
}

func TestWhereClauseUnsupportedLookup(t *testing.T) {
	b := renderBackend(t, DialectDefault)
	specs := []*urlfilter.Spec{
		{Components: []string{"name"}, Lookup: urlfilter.LookupRegex, Value: "^a"},
	}
	if _, _, _, _, err := b.WhereClause(specs); err == nil {
		t.Error("expected error for unrenderable lookup")
	}
}

func TestPostgresPlaceholders(t *testing.T) {
	b := renderBackend(t, DialectPostgres)

	specs := []*urlfilter.Spec{
		{Components: []string{"price"}, Lookup: urlfilter.LookupRange, Value: []any{1.0, 5.0}},
		{Components: []string{"status"}, Lookup: urlfilter.LookupExact, Value: "new"},
	}
	clause, _, args, _, err := b.WhereClause(specs)
	if err != nil {
		t.Fatalf("WhereClause failed: %v", err)
	}
	if clause != "t0.price BETWEEN $1 AND $2 AND t0.status = $3" {
		t.Errorf("unexpected clause %q", clause)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %v", args)
	}
}

func TestSelectSQL(t *testing.T) {
	b := renderBackend(t, DialectDefault)

	specs := []*urlfilter.Spec{
		{Components: []string{"manufacturer", "country"}, Lookup: urlfilter.LookupExact, Value: "DE"},
		{Components: []string{"price"}, Lookup: urlfilter.LookupLt, Value: 100.0},
	}
	stmt, args, err := b.SelectSQL(specs)
	if err != nil {
		t.Fatalf("SelectSQL failed: %v", err)
	}

	want := "SELECT t0.* FROM products AS t0 " +
		"JOIN manufacturers AS t1 ON t0.manufacturer_id = t1.id " +
		"WHERE t1.country = ? AND t0.price < ?"
	if stmt != want {
		t.Errorf("expected\n%s\ngot\n%s", want, stmt)
	}
	if !reflect.DeepEqual(args, []any{"DE", 100.0}) {
		t.Errorf("unexpected args %v", args)
	}
}

func TestSelectSQLNoSpecs(t *testing.T) {
	b := renderBackend(t, DialectDefault)
	stmt, args, err := b.SelectSQL(nil)
	if err != nil {
		t.Fatalf("SelectSQL failed: %v", err)
	}
	if stmt != "SELECT t0.* FROM products AS t0" {
		t.Errorf("unexpected statement %q", stmt)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without schema")
	}
	if _, err := New(Options{Schema: &Schema{}}); err == nil {
		t.Error("expected error without table name")
	}
	if _, err := New(Options{Schema: &Schema{
		Table: "a",
		Relations: map[string]*Relation{
			"b": {Schema: &Schema{Table: "b"}},
		},
	}}); err == nil {
		t.Error("expected error for relation without join columns")
	}
}

func TestApplyWithoutDB(t *testing.T) {
	b := renderBackend(t, DialectDefault)
	if _, err := b.Apply(context.Background()); err == nil {
		t.Error("expected error without a database")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// a single connection keeps the in-memory database alive
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE manufacturers (id INTEGER PRIMARY KEY, name TEXT, country TEXT)`,
		`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT, price REAL, manufacturer_id INTEGER)`,
		`INSERT INTO manufacturers VALUES (1, 'Acme Corp', 'US'), (2, 'Widgetwerk', 'DE')`,
		`INSERT INTO products VALUES
			(1, 'Widget Pro', 49.90, 2),
			(2, 'widget mini', 9.50, 2),
			(3, 'Gadget', 120.00, 1),
			(4, 'Sprocket', 35.00, 1)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func TestApplySQLite(t *testing.T) {
	db := openTestDB(t)

	fs := urlfilter.MustFilterSet(urlfilter.Fields{
		"name":  urlfilter.NewFilter(urlfilter.String()),
		"price": urlfilter.NewFilter(urlfilter.Float()),
		"manufacturer": urlfilter.MustFilterSet(urlfilter.Fields{
			"country": urlfilter.NewFilter(urlfilter.String()),
		}),
	})

	backend, err := New(Options{
		DB: db,
		Schema: &Schema{
			Table: "products",
			Relations: map[string]*Relation{
				"manufacturer": {
					Schema:        &Schema{Table: "manufacturers"},
					LocalColumn:   "manufacturer_id",
					ForeignColumn: "id",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	run := func(query string) []string {
		t.Helper()
		data, err := url.ParseQuery(query)
		if err != nil {
			t.Fatalf("ParseQuery(%q): %v", query, err)
		}
		out, err := fs.Apply(context.Background(), data, backend, urlfilter.StrictFail)
		if err != nil {
			t.Fatalf("Apply(%q): %v", query, err)
		}
		var names []string
		for _, row := range out.([]map[string]any) {
			names = append(names, row["name"].(string))
		}
		return names
	}

	got := run("name__icontains=widget")
	if len(got) != 2 {
		t.Errorf("icontains: expected 2 rows, got %v", got)
	}

	got = run("price__range=10,100&manufacturer__country=DE")
	if len(got) != 1 || got[0] != "Widget Pro" {
		t.Errorf("range+join: expected [Widget Pro], got %v", got)
	}

	got = run("name!=Gadget")
	if len(got) != 3 {
		t.Errorf("negated exact: expected 3 rows, got %v", got)
	}

	got = run("price__lt=40")
	if len(got) != 2 {
		t.Errorf("lt: expected 2 rows, got %v", got)
	}
}

func TestBackendContract(t *testing.T) {
	b := renderBackend(t, DialectDefault)

	if b.Name() != "sql" {
		t.Errorf("expected name sql, got %q", b.Name())
	}
	if b.SupportedLookups().Has(urlfilter.LookupRegex) {
		t.Error("regex must not be advertised")
	}
	if !b.SupportedLookups().Has(urlfilter.LookupRange) {
		t.Error("range must be advertised")
	}
	if rows, ok := b.Empty().([]map[string]any); !ok || len(rows) != 0 {
		t.Errorf("expected empty row slice, got %v", b.Empty())
	}
}
