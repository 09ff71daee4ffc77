// Package registry flattens a declaration tree into addressable entities.
// It assigns every leaf a dotted path, rejects duplicate paths, and provides
// lookup by path and by id for the runtime and the introspector.
package registry

import (
	"fmt"
	"strings"

	"github.com/dapp-works/urpc/core/schema"
)

// Registry indexes registered entities by path and by id.
// It is built once and never mutated afterwards, so concurrent reads need
// no locking.
type Registry struct {
	// entities in declaration order
	entities []schema.Entity

	byPath map[string]schema.Entity
	byID   map[string]schema.Entity
}

// New flattens tree and builds both indices.
// Returns a *DuplicatePathError if two entities resolve to the same path, or
// a schema.ErrInvalidDefinition error for malformed declarations.
func New(tree schema.Tree) (*Registry, error) {
	r := &Registry{
		byPath: make(map[string]schema.Entity),
		byID:   make(map[string]schema.Entity),
	}

	if err := r.flatten(tree, ""); err != nil {
		return nil, err
	}

	// Build the id index after all paths are known
	for _, e := range r.entities {
		if existing, ok := r.byID[e.ID()]; ok {
			return nil, schema.Errorf(schema.ErrInvalidDefinition, e.Path(),
				"id %s is shared with %q", e.ID(), existing.Path())
		}
		r.byID[e.ID()] = e
	}

	return r, nil
}

// MustNew is like New but panics on error. Intended for static declarations.
func MustNew(tree schema.Tree) *Registry {
	r, err := New(tree)
	if err != nil {
		panic(err)
	}
	return r
}

// flatten walks the tree depth-first, prefixing child keys with their
// parent's path.
func (r *Registry) flatten(tree schema.Tree, prefix string) error {
	for _, m := range tree {
		if m.Key == "" {
			return schema.Errorf(schema.ErrInvalidDefinition, prefix, "empty key")
		}
		if strings.Contains(m.Key, ".") {
			return schema.Errorf(schema.ErrInvalidDefinition, prefix, "key %q must not contain '.'", m.Key)
		}

		path := m.Key
		if prefix != "" {
			path = prefix + "." + m.Key
		}

		switch node := m.Node.(type) {
		case schema.Tree:
			if err := r.flatten(node, path); err != nil {
				return err
			}
		case schema.Entity:
			if err := r.add(path, node); err != nil {
				return err
			}
		case nil:
			return schema.Errorf(schema.ErrInvalidDefinition, path, "nil node")
		default:
			return schema.Errorf(schema.ErrInvalidDefinition, path, "unsupported node %T", m.Node)
		}
	}
	return nil
}

func (r *Registry) add(path string, e schema.Entity) error {
	if err := validate(path, e); err != nil {
		return err
	}

	if existing, exists := r.byPath[path]; exists {
		return &DuplicatePathError{Path: path, Existing: existing.ID(), Duplicate: e.ID()}
	}

	if err := e.Bind(path); err != nil {
		return err
	}

	r.byPath[path] = e
	r.entities = append(r.entities, e)
	return nil
}

// validate checks required members of each entity kind.
func validate(path string, e schema.Entity) error {
	switch v := e.(type) {
	case *schema.Variable:
		if v == nil || v.Read == nil {
			return schema.Errorf(schema.ErrInvalidDefinition, path, "variable has no read")
		}
	case *schema.Function:
		if v == nil || v.Invoke == nil {
			return schema.Errorf(schema.ErrInvalidDefinition, path, "function has no invoke")
		}
	case *schema.Action:
		if v == nil || v.Invoke == nil {
			return schema.Errorf(schema.ErrInvalidDefinition, path, "action has no invoke")
		}
	case *schema.TypeDescriptor:
		if v == nil {
			return schema.Errorf(schema.ErrInvalidDefinition, path, "nil type")
		}
	}

	if e.ID() == "" {
		return schema.Errorf(schema.ErrInvalidDefinition, path, "entity was not created with a Define constructor")
	}
	return nil
}

// Lookup resolves target by id first, then by path.
// Ids take precedence because they stay stable if paths are reorganized.
func (r *Registry) Lookup(target string) (schema.Entity, bool) {
	if e, ok := r.byID[target]; ok {
		return e, true
	}
	e, ok := r.byPath[target]
	return e, ok
}

// ByPath returns the entity registered at path.
func (r *Registry) ByPath(path string) (schema.Entity, bool) {
	e, ok := r.byPath[path]
	return e, ok
}

// ByID returns the entity with the given id.
func (r *Registry) ByID(id string) (schema.Entity, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// Entities returns all entities in declaration order.
func (r *Registry) Entities() []schema.Entity {
	out := make([]schema.Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Filter returns entities whose path equals prefix or lies under it,
// in declaration order. An empty prefix matches everything.
func (r *Registry) Filter(prefix string) []schema.Entity {
	if prefix == "" {
		return r.Entities()
	}
	var out []schema.Entity
	for _, e := range r.entities {
		if MatchPrefix(e.Path(), prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Paths returns every registered path in declaration order.
func (r *Registry) Paths() []string {
	paths := make([]string, len(r.entities))
	for i, e := range r.entities {
		paths[i] = e.Path()
	}
	return paths
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	return len(r.entities)
}

// MatchPrefix reports whether path equals prefix or is nested under it.
func MatchPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, ".")
	return path == prefix || strings.HasPrefix(path, prefix+".")
}

// DuplicatePathError reports two declarations resolving to the same path.
type DuplicatePathError struct {
	Path      string
	Existing  string // id of the entity registered first
	Duplicate string // id of the rejected entity
}

// Error returns the error message.
func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("duplicate path %q: already claimed by entity %s", e.Path, e.Existing)
}

// ErrorKind implements schema.Kinded.
func (e *DuplicatePathError) ErrorKind() schema.ErrorKind {
	return schema.ErrDuplicatePath
}
