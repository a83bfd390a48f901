package urlfilter

import (
	"reflect"
	"testing"
)

func TestValidKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"id", true},
		{"id!", true},
		{"user__email__endswith", true},
		{"user__email__endswith!", true},
		{"_private", true},
		{"field2__in", true},
		{"", false},
		{"2field", false},
		{"id!!", false},
		{"id!__gt", false},
		{"user__", false},
		{"__user", false},
		{"user____name", false},
		{"user__!", false},
		{"user-name", false},
		{"user name", false},
		{"page[size]", false},
	}

	for _, tt := range tests {
		if got := ValidKey(tt.key); got != tt.valid {
			t.Errorf("ValidKey(%q): expected %t, got %t", tt.key, tt.valid, got)
		}
	}
}

func TestParseKeySingle(t *testing.T) {
	n := ParseKey("id", "42")

	if n.Name != "id" {
		t.Fatalf("expected name %q, got %q", "id", n.Name)
	}
	if n.Negated {
		t.Error("expected non-negated node")
	}
	if !n.Child.IsValue() {
		t.Fatal("expected terminal value child")
	}
	if n.Child.Value != "42" {
		t.Errorf("expected value %q, got %q", "42", n.Child.Value)
	}
}

func TestParseKeyChain(t *testing.T) {
	n := ParseKey("user__profile__email__endswith", "gmail.com")

	want := []string{"user", "profile", "email", "endswith"}
	for i, name := range want {
		if n == nil || n.IsValue() {
			t.Fatalf("chain ended early at segment %d", i)
		}
		if n.Name != name {
			t.Errorf("segment %d: expected %q, got %q", i, name, n.Name)
		}
		n = n.Child
	}
	if !n.IsValue() {
		t.Fatal("expected terminal value node")
	}
	if n.Value != "gmail.com" {
		t.Errorf("expected value %q, got %q", "gmail.com", n.Value)
	}
}

func TestParseKeyNegated(t *testing.T) {
	n := ParseKey("name__contains!", "foo")

	if !n.Negated {
		t.Fatal("expected negated chain")
	}
	if n.Name != "name" {
		t.Errorf("expected name %q, got %q", "name", n.Name)
	}
	// the original key is preserved for error reporting
	if n.Key != "name__contains!" {
		t.Errorf("expected key %q, got %q", "name__contains!", n.Key)
	}
	for c := n; c != nil; c = c.Child {
		if !c.Negated {
			t.Error("expected every node in the chain to carry the negation")
		}
	}
}

func TestNodeIsPair(t *testing.T) {
	n := ParseKey("name__contains", "foo")

	if n.IsPair() {
		t.Error("two-segment chain head is not a pair")
	}
	if !n.Child.IsPair() {
		t.Error("expected {contains: foo} to be a pair")
	}
	if n.Child.Child.IsPair() {
		t.Error("terminal value is not a pair")
	}
}

func TestNodeFlatten(t *testing.T) {
	n := ParseKey("user__email__endswith", "gmail.com")

	want := map[string]any{
		"user": map[string]any{
			"email": map[string]any{
				"endswith": "gmail.com",
			},
		},
	}
	if got := n.Flatten(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
