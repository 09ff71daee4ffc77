package schema

import (
	"context"
	"encoding/json"
	"sync"
)

// Item is an entry of a variable's resolved schema:
// *TypeDescriptor, *Function or *Action.
type Item interface {
	Entity
	isItem()
}

// Schema maps a field name to its schema item.
type Schema map[string]Item

// Scope is passed to a SchemaResolver.
type Scope struct {
	Value  any
	Self   *Variable
	Caller Caller
}

// SchemaResolver computes a value- and caller-dependent sub-schema.
type SchemaResolver func(ctx context.Context, scope Scope) (Schema, error)

// ReadFunc returns a variable's current value.
type ReadFunc func(ctx context.Context) (any, error)

// WriteFunc stores a new value and returns the resulting value.
type WriteFunc func(ctx context.Context, value any, caller Caller) (any, error)

// Variable is observable, optionally mutable state. The variable's own
// storage is the source of truth; the engine only calls Read and Write.
type Variable struct {
	Base

	// Read is required.
	Read ReadFunc

	// Write is optional. Variables without Write are read-only.
	Write WriteFunc

	// Schema resolves the variable's sub-schema. Optional.
	Schema SchemaResolver

	// Patch overrides DefaultPatchPolicy when set.
	Patch *PatchPolicy

	UIHints Hints

	// Patch hooks. Each is optional.
	OnCreate func(ctx context.Context, value any) error
	OnUpdate func(ctx context.Context, key string, value any) error
	OnDelete func(ctx context.Context, key string) error

	// OnPatch replaces the default patch pipeline entirely.
	OnPatch func(ctx context.Context, ops []Operation, caller Caller) (any, error)
}

// CanWrite reports whether the variable declares Write.
func (v *Variable) CanWrite() bool {
	return v.Write != nil
}

// Policy returns the effective patch policy.
func (v *Variable) Policy() PatchPolicy {
	if v.Patch == nil {
		return DefaultPatchPolicy()
	}
	return *v.Patch
}

// DefineVariable stamps a fresh id and the variable kind onto v and wraps
// Read so that repeated reads within one resolution pass (see WithReadCache)
// return the value read first.
func DefineVariable(v Variable) *Variable {
	out := v
	out.stamp(KindVariable)
	if read := out.Read; read != nil {
		id := out.id
		out.Read = func(ctx context.Context) (any, error) {
			cache := readCacheFrom(ctx)
			if cache == nil {
				return read(ctx)
			}
			return cache.load(ctx, id, read)
		}
	}
	return &out
}

type readCacheKey struct{}

type readCache struct {
	mu     sync.Mutex
	values map[string]any
}

func (c *readCache) load(ctx context.Context, id string, read ReadFunc) (any, error) {
	c.mu.Lock()
	if v, ok := c.values[id]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := read(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.values[id] = v
	c.mu.Unlock()
	return v, nil
}

// WithReadCache returns a context that scopes one resolution pass.
// Variable reads made with it are cached until the context is dropped.
func WithReadCache(ctx context.Context) context.Context {
	if readCacheFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, readCacheKey{}, &readCache{values: make(map[string]any)})
}

func readCacheFrom(ctx context.Context) *readCache {
	c, _ := ctx.Value(readCacheKey{}).(*readCache)
	return c
}

// AutoApply names the accessor whose value a patch is applied to.
type AutoApply struct {
	// Target defaults to the variable's Read.
	Target ReadFunc
}

// PatchPolicy governs how structural patches against a variable are
// validated, hooked and applied.
type PatchPolicy struct {
	Enabled     bool
	AllowCreate bool
	AllowUpdate bool
	AllowDelete bool

	// AutoApply is nil when auto-apply is disabled.
	AutoApply *AutoApply
}

// DefaultPatchPolicy enables everything and auto-applies to Read.
func DefaultPatchPolicy() PatchPolicy {
	return PatchPolicy{
		Enabled:     true,
		AllowCreate: true,
		AllowUpdate: true,
		AllowDelete: true,
		AutoApply:   &AutoApply{},
	}
}

// MarshalJSON renders the policy without its accessor.
func (p PatchPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Enabled     bool `json:"enabled"`
		AllowCreate bool `json:"allowCreate"`
		AllowUpdate bool `json:"allowUpdate"`
		AllowDelete bool `json:"allowDelete"`
		AutoApply   bool `json:"autoApply"`
	}{p.Enabled, p.AllowCreate, p.AllowUpdate, p.AllowDelete, p.AutoApply != nil})
}

// Operation is one RFC 6902 patch operation.
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	From  string `json:"from,omitempty"`
}

// Patch operation names.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpMove    = "move"
	OpCopy    = "copy"
	OpTest    = "test"
)

// MarshalJSON keeps an explicit null value for operations that carry one.
func (o Operation) MarshalJSON() ([]byte, error) {
	switch o.Op {
	case OpAdd, OpReplace, OpTest:
		return json.Marshal(struct {
			Op    string `json:"op"`
			Path  string `json:"path"`
			Value any    `json:"value"`
		}{o.Op, o.Path, o.Value})
	case OpMove, OpCopy:
		return json.Marshal(struct {
			Op   string `json:"op"`
			From string `json:"from"`
			Path string `json:"path"`
		}{o.Op, o.From, o.Path})
	default:
		return json.Marshal(struct {
			Op   string `json:"op"`
			Path string `json:"path"`
		}{o.Op, o.Path})
	}
}
