package urlfilter

import (
	"regexp"
	"strings"
)

// Separator splits path components in querystring filter keys.
const Separator = "__"

// NegationSuffix marks a negated filter key, e.g. "name__contains!=foo".
const NegationSuffix = "!"

// Each path segment of a filter key must be an identifier. The segments are
// checked one by one: a single anchored pattern over the whole key cannot
// tell a separator apart from underscores inside an identifier, so keys
// like "user__" or "__user" would slip through.
var segmentRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidKey reports whether key matches the filter key grammar
// name[__<relation>]*[__<lookup>][!]. Keys failing the grammar are assumed
// to belong to unrelated querystring usage (pagination, ordering, etc.)
// and are silently skipped during resolution.
func ValidKey(key string) bool {
	key = strings.TrimSuffix(key, NegationSuffix)
	for _, segment := range strings.Split(key, Separator) {
		if !segmentRegexp.MatchString(segment) {
			return false
		}
	}
	return true
}

// Node is one querystring key/value pair parsed into a strictly nested
// single-child chain. For example the pair
//
//	user__profile__email__endswith=gmail.com
//
// parses into the chain
//
//	user -> profile -> email -> endswith -> "gmail.com"
//
// where every non-terminal node carries exactly one child and the terminal
// node carries the raw value. Duplicate querystring keys produce independent
// chains; chains are never merged across keys.
//
// Nodes are created fresh per filtering request, are immutable and are
// discarded after one pass.
type Node struct {
	// Key is the original flat querystring key, kept for error reporting.
	Key string

	// Negated is true when the key carried the trailing negation marker.
	Negated bool

	// Name is the path segment this node introduces.
	// Empty on the terminal value node.
	Name string

	// Child is the next node in the chain. Nil on the terminal value node.
	Child *Node

	// Value is the raw querystring value. Set on the terminal node only.
	Value string
}

// ParseKey parses one querystring key/value pair into a Node chain.
// Segments [a, b, c] with value v produce a -> b -> c -> v.
//
// Any string is structurally valid here; validation happens downstream
// during resolution.
func ParseKey(key, value string) *Node {
	negated := strings.HasSuffix(key, NegationSuffix)
	path := strings.TrimSuffix(key, NegationSuffix)
	segments := strings.Split(path, Separator)

	node := &Node{Key: key, Negated: negated, Value: value}
	for i := len(segments) - 1; i >= 0; i-- {
		node = &Node{Key: key, Negated: negated, Name: segments[i], Child: node}
	}
	return node
}

// IsValue reports whether the node is the terminal raw value.
func (n *Node) IsValue() bool {
	return n.Child == nil
}

// IsPair reports whether the node wraps exactly one terminal value, i.e. it
// has the shape {name: value} with no further nesting. A leaf filter
// interprets such a node as an explicit lookup name and its value.
func (n *Node) IsPair() bool {
	return n.Child != nil && n.Child.Child == nil
}

// Flatten reconstructs the plain nested mapping represented by the chain.
// Used for diagnostics only.
func (n *Node) Flatten() any {
	if n.IsValue() {
		return n.Value
	}
	return map[string]any{n.Name: n.Child.Flatten()}
}
