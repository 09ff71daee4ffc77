package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind tags an addressable entity.
type Kind string

const (
	KindFunction Kind = "function"
	KindVariable Kind = "variable"
	KindAction   Kind = "action"
	KindType     Kind = "type"
)

// Node is either an Entity or a Tree.
type Node interface {
	isNode()
}

// Entity is an addressable node of the declaration tree.
type Entity interface {
	Node

	// ID is process-unique and never changes.
	ID() string

	// Path is the dotted name assigned at registration.
	// Nested schema items that are never registered have an empty path.
	Path() string

	// Kind returns the entity kind tag.
	Kind() Kind

	// Predicates returns the access predicates, evaluated in order.
	Predicates() []Predicate

	// Bind assigns the registration path. It fails if the entity is
	// already bound to a different path.
	Bind(path string) error
}

// Predicate decides whether an entity is visible to a caller.
type Predicate func(Caller) bool

// Hints are opaque UI layout hints.
type Hints map[string]any

// MergeHints returns a new Hints with over applied on top of base.
func MergeHints(base, over Hints) Hints {
	if len(base) == 0 && len(over) == 0 {
		return nil
	}
	out := make(Hints, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Base holds the fields shared by every entity.
type Base struct {
	// Use lists access predicates. All must pass.
	Use []Predicate

	// Metadata carries opaque layout hints for clients.
	Metadata map[string]any

	id   string
	path string
	kind Kind
}

func (b *Base) isNode() {}

// ID returns the entity id.
func (b *Base) ID() string { return b.id }

// Path returns the registration path.
func (b *Base) Path() string { return b.path }

// Kind returns the kind tag.
func (b *Base) Kind() Kind { return b.kind }

// Predicates returns the access predicates.
func (b *Base) Predicates() []Predicate { return b.Use }

// Bind assigns the registration path.
func (b *Base) Bind(path string) error {
	if b.path != "" && b.path != path {
		return &Error{
			Kind:    ErrInvalidDefinition,
			Target:  path,
			Message: fmt.Sprintf("entity %s is already registered at %q", b.id, b.path),
		}
	}
	b.path = path
	return nil
}

func (b *Base) stamp(kind Kind) {
	b.id = uuid.NewString()
	b.kind = kind
}

// Member is one keyed child of a Tree.
type Member struct {
	Key  string
	Node Node
}

// Tree is a namespace: an ordered, non-addressable grouping of nodes.
// Declaration order is preserved through registration and listing.
type Tree []Member

func (Tree) isNode() {}

// Caller is the caller context injected by the transport.
type Caller map[string]any

// Value looks up a dotted key, descending into nested maps.
func (c Caller) Value(key string) any {
	var cur any = map[string]any(c)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if cm, isCaller := cur.(Caller); isCaller {
				m = cm
			} else {
				return nil
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// Bool returns the boolean at key, or false.
func (c Caller) Bool(key string) bool {
	b, _ := c.Value(key).(bool)
	return b
}

// String returns the string at key, or "".
func (c Caller) String(key string) string {
	s, _ := c.Value(key).(string)
	return s
}

// Strings returns the string list at key.
func (c Caller) Strings(key string) []string {
	switch v := c.Value(key).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Map returns the nested object at key, or nil.
func (c Caller) Map(key string) map[string]any {
	switch v := c.Value(key).(type) {
	case map[string]any:
		return v
	case Caller:
		return v
	default:
		return nil
	}
}
