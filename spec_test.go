package urlfilter

import (
	"context"
	"strings"
	"testing"
)

func TestSpecFingerprintEquality(t *testing.T) {
	a := &Spec{Components: []string{"user", "email"}, Lookup: LookupEndswith, Value: "gmail.com"}
	b := &Spec{Components: []string{"user", "email"}, Lookup: LookupEndswith, Value: "gmail.com"}

	if !a.Equal(b) {
		t.Error("expected structurally identical specs to be equal")
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("expected identical fingerprints, got %q and %q", a.Fingerprint(), b.Fingerprint())
	}
}

func TestSpecFingerprintDistinguishes(t *testing.T) {
	base := &Spec{Components: []string{"id"}, Lookup: LookupExact, Value: int64(1)}
	variants := []*Spec{
		{Components: []string{"pk"}, Lookup: LookupExact, Value: int64(1)},
		{Components: []string{"id"}, Lookup: LookupGt, Value: int64(1)},
		{Components: []string{"id"}, Lookup: LookupExact, Value: int64(2)},
		{Components: []string{"id"}, Lookup: LookupExact, Value: int64(1), Negated: true},
	}

	for i, v := range variants {
		if base.Equal(v) {
			t.Errorf("variant %d: expected inequality with %s", i, v)
		}
	}
}

func TestSpecEqualNil(t *testing.T) {
	s := &Spec{Components: []string{"id"}, Lookup: LookupExact, Value: int64(1)}
	if s.Equal(nil) {
		t.Error("expected inequality with nil")
	}
}

func TestSpecValueTypeMatters(t *testing.T) {
	a := &Spec{Components: []string{"id"}, Lookup: LookupExact, Value: int64(1)}
	b := &Spec{Components: []string{"id"}, Lookup: LookupExact, Value: float64(1)}
	if a.Equal(b) {
		t.Error("expected typed values of different kinds to differ")
	}
}

func TestSpecString(t *testing.T) {
	s := &Spec{Components: []string{"user", "email"}, Lookup: LookupContains, Value: "x", Negated: true}
	out := s.String()
	if !strings.Contains(out, "user.email") || !strings.Contains(out, "NOT") {
		t.Errorf("unexpected representation: %s", out)
	}
}

func TestPartition(t *testing.T) {
	callable := &Spec{
		Components: []string{"name"},
		Lookup:     "fuzzy",
		Value:      "x",
		apply: func(ctx context.Context, queryset any, spec *Spec) (any, error) {
			return queryset, nil
		},
	}
	regular := &Spec{Components: []string{"name"}, Lookup: LookupExact, Value: "x"}

	r, c := Partition([]*Spec{callable, regular})
	if len(r) != 1 || !r[0].Equal(regular) {
		t.Errorf("expected one regular spec, got %v", r)
	}
	if len(c) != 1 || !c[0].IsCallable() {
		t.Errorf("expected one callable spec, got %v", c)
	}
}

func TestApplyCallablesThreading(t *testing.T) {
	add := func(s string) *Spec {
		return &Spec{
			Components: []string{"tag"},
			Lookup:     "append",
			Value:      s,
			apply: func(ctx context.Context, queryset any, spec *Spec) (any, error) {
				return queryset.(string) + spec.Value.(string), nil
			},
		}
	}

	out, err := ApplyCallables(context.Background(), "seed:", []*Spec{add("a"), add("b")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "seed:ab" {
		t.Errorf("expected collection threaded through both callables, got %v", out)
	}
}

func TestCallWithoutCallable(t *testing.T) {
	s := &Spec{Components: []string{"id"}, Lookup: LookupExact, Value: int64(1)}
	if _, err := s.Call(context.Background(), nil); err == nil {
		t.Error("expected error calling a spec without a callable")
	}
}
