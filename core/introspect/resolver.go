package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/dapp-works/urpc/core/access"
	"github.com/dapp-works/urpc/core/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxDepth bounds composite type nesting when Config.MaxDepth is zero.
const DefaultMaxDepth = 8

// Config configures a Resolver.
type Config struct {
	// MaxDepth caps nested schema resolution. Zero means DefaultMaxDepth.
	MaxDepth int

	// Concurrency limits parallel entity resolution in LoadFull and
	// LoadVars. Zero or negative means unlimited.
	Concurrency int

	Logger zerolog.Logger
}

// Source lists registered entities under a namespace prefix.
// *registry.Registry implements it.
type Source interface {
	Filter(prefix string) []schema.Entity
}

// Resolver builds descriptors. It holds no per-request state and is safe for
// concurrent use.
type Resolver struct {
	maxDepth    int
	concurrency int
	logger      zerolog.Logger
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &Resolver{
		maxDepth:    cfg.MaxDepth,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// DescribeFunction resolves a function or action descriptor.
// owner is nil for top-level functions.
func (r *Resolver) DescribeFunction(ctx context.Context, fn schema.Invocable, owner *schema.Owner) (*schema.FunctionDescriptor, error) {
	p := r.newPass(nil)
	return p.describeFunction(ctx, fn, owner, fn.Path())
}

// DescribeVariable resolves a variable descriptor for caller.
func (r *Resolver) DescribeVariable(ctx context.Context, v *schema.Variable, caller schema.Caller) (*schema.VariableDescriptor, error) {
	ctx = schema.WithReadCache(ctx)
	p := r.newPass(caller)
	return p.describeVariable(ctx, v)
}

// Describe resolves the descriptor of a function or variable.
// Types and actions are not addressable on their own and are rejected.
func (r *Resolver) Describe(ctx context.Context, e schema.Entity, caller schema.Caller) (schema.Descriptor, error) {
	switch v := e.(type) {
	case *schema.Variable:
		return r.DescribeVariable(ctx, v, caller)
	case *schema.Function:
		return r.DescribeFunction(ctx, v, nil)
	default:
		return nil, schema.Errorf(schema.ErrInvalidDefinition, e.Path(), "%s entities have no standalone descriptor", e.Kind())
	}
}

// Schema returns the caller-visible resolved schema of v for value.
// The dispatcher uses it to locate nested actions and functions.
func (r *Resolver) Schema(ctx context.Context, v *schema.Variable, value any, caller schema.Caller) (schema.Schema, error) {
	raw, err := rawSchema(ctx, v, value, caller)
	if err != nil {
		return nil, err
	}
	return access.FilterSchema(raw, caller), nil
}

func rawSchema(ctx context.Context, v *schema.Variable, value any, caller schema.Caller) (schema.Schema, error) {
	if v.Schema == nil {
		return schema.Schema{}, nil
	}
	s, err := v.Schema(ctx, schema.Scope{Value: value, Self: v, Caller: caller})
	if err != nil {
		return nil, fmt.Errorf("resolve schema of %s: %w", v.Path(), err)
	}
	return s, nil
}

// LoadFull resolves every function and variable under namespace that is
// visible to caller, in registration order. Entities resolve concurrently
// but share one read cache, so each variable is read at most once.
func (r *Resolver) LoadFull(ctx context.Context, src Source, namespace string, caller schema.Caller) ([]schema.Descriptor, error) {
	start := time.Now()
	ctx = schema.WithReadCache(ctx)

	var targets []schema.Entity
	for _, e := range src.Filter(namespace) {
		switch e.Kind() {
		case schema.KindFunction, schema.KindVariable:
		default:
			continue
		}
		if access.IsVisible(e, caller) {
			targets = append(targets, e)
		}
	}

	out := make([]schema.Descriptor, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, e := range targets {
		i, e := i, e
		g.Go(func() error {
			d, err := r.Describe(gctx, e, caller)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("namespace", namespace).
		Int("entities", len(out)).
		Dur("duration", time.Since(start)).
		Msg("schema loaded")
	return out, nil
}

// LoadVars reads the current value of every caller-visible variable under
// namespace, in registration order.
func (r *Resolver) LoadVars(ctx context.Context, src Source, namespace string, caller schema.Caller) ([]schema.VarValue, error) {
	ctx = schema.WithReadCache(ctx)

	var vars []*schema.Variable
	for _, e := range src.Filter(namespace) {
		if v, ok := e.(*schema.Variable); ok && access.IsVisible(v, caller) {
			vars = append(vars, v)
		}
	}

	out := make([]schema.VarValue, len(vars))
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, v := range vars {
		i, v := i, v
		g.Go(func() error {
			value, err := v.Read(gctx)
			if err != nil {
				return fmt.Errorf("read %s: %w", v.Path(), err)
			}
			out[i] = schema.VarValue{Path: v.Path(), Value: value}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// frame is one entry of the resolution stack.
type frame struct {
	id    string
	label string
}

// pass holds the state of a single descriptor resolution.
type pass struct {
	r      *Resolver
	caller schema.Caller
	stack  []frame
}

func (r *Resolver) newPass(caller schema.Caller) *pass {
	return &pass{r: r, caller: caller}
}

// enter pushes an entity onto the resolution stack.
func (p *pass) enter(id, label string) error {
	chain := func() []string {
		labels := make([]string, 0, len(p.stack)+1)
		for _, f := range p.stack {
			labels = append(labels, f.label)
		}
		return append(labels, label)
	}

	if id != "" {
		for _, f := range p.stack {
			if f.id == id {
				return &SchemaCycleError{Chain: chain()}
			}
		}
	}
	if len(p.stack) >= p.r.maxDepth {
		return &SchemaCycleError{Chain: chain(), MaxDepth: p.r.maxDepth}
	}
	p.stack = append(p.stack, frame{id: id, label: label})
	return nil
}

func (p *pass) leave() {
	p.stack = p.stack[:len(p.stack)-1]
}

func (p *pass) describeVariable(ctx context.Context, v *schema.Variable) (*schema.VariableDescriptor, error) {
	if err := p.enter(v.ID(), v.Path()); err != nil {
		return nil, err
	}
	defer p.leave()

	value, err := v.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", v.Path(), err)
	}

	raw, err := rawSchema(ctx, v, value, p.caller)
	if err != nil {
		return nil, err
	}
	declared := access.FilterSchema(raw, p.caller)

	// Undeclared properties of the value get inferred types. Declared
	// entries win, including ones the caller cannot see.
	props := properties(exemplar(value))
	merged := make(schema.Schema, len(declared)+len(props))
	for name, item := range declared {
		merged[name] = item
	}
	for name, prop := range props {
		if _, ok := raw[name]; ok {
			continue
		}
		merged[name] = schema.InferType(prop)
	}

	resolved, err := p.resolveEntries(ctx, merged, value, props, v, v.Path())
	if err != nil {
		return nil, err
	}

	p.r.logger.Debug().
		Str("path", v.Path()).
		Int("fields", len(resolved)).
		Msg("variable resolved")

	return &schema.VariableDescriptor{
		ID:          v.ID(),
		Path:        v.Path(),
		Kind:        schema.KindVariable,
		Value:       value,
		CanWrite:    v.CanWrite(),
		PatchPolicy: v.Policy(),
		Schema:      resolved,
		UIHints:     v.UIHints,
		Metadata:    v.Metadata,
	}, nil
}

// resolveEntries describes a schema in two phases: all type fields first,
// then every function and action with the phase-one types in its owner.
func (p *pass) resolveEntries(ctx context.Context, s schema.Schema, value any, props map[string]any, self *schema.Variable, basePath string) (map[string]any, error) {
	out := make(map[string]any, len(s))
	owner := &schema.Owner{Variable: self, Value: value, Types: make(map[string]*schema.TypeDescriptor)}

	for _, name := range sortedNames(s) {
		td, ok := s[name].(*schema.TypeDescriptor)
		if !ok {
			continue
		}
		info, err := p.describeType(ctx, td, props[name], name)
		if err != nil {
			return nil, err
		}
		owner.Types[name] = td
		out[name] = info
	}

	for _, name := range sortedNames(s) {
		fn, ok := s[name].(schema.Invocable)
		if !ok {
			continue
		}
		path := name
		if basePath != "" {
			path = basePath + "." + name
		}
		d, err := p.describeFunction(ctx, fn, owner, path)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}

func (p *pass) describeType(ctx context.Context, td *schema.TypeDescriptor, value any, name string) (*schema.TypeInfo, error) {
	hints, err := typeHints(ctx, td)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}

	info := &schema.TypeInfo{
		ID:      td.ID(),
		Kind:    schema.KindType,
		Class:   td.Class,
		Default: td.Default,
		UIHints: hints,
	}
	if td.Schema == nil {
		return info, nil
	}

	if err := p.enter(td.ID(), name); err != nil {
		return nil, err
	}
	defer p.leave()

	sub, err := td.Schema(ctx, schema.Scope{Value: value, Caller: p.caller})
	if err != nil {
		return nil, fmt.Errorf("resolve schema of field %s: %w", name, err)
	}
	nested, err := p.resolveEntries(ctx, access.FilterSchema(sub, p.caller), value, properties(exemplar(value)), nil, "")
	if err != nil {
		return nil, err
	}
	info.Schema = nested
	return info, nil
}

func (p *pass) describeFunction(ctx context.Context, fn schema.Invocable, owner *schema.Owner, path string) (*schema.FunctionDescriptor, error) {
	callee := fn.Callee()
	shape := callee.ResolveInput(owner)

	input := make(map[string]any, len(shape))
	var hints map[string]schema.Hints
	setHints := func(field string, h schema.Hints) {
		if len(h) == 0 {
			return
		}
		if hints == nil {
			hints = make(map[string]schema.Hints)
		}
		hints[field] = h
	}

	for field, v := range shape {
		td, ok := v.(*schema.TypeDescriptor)
		if !ok {
			input[field] = v
			setHints(field, callee.Hints[field])
			continue
		}
		input[field] = td.Default
		th, err := typeHints(ctx, td)
		if err != nil {
			return nil, fmt.Errorf("%s input %s: %w", path, field, err)
		}
		// Type hints win over the function's hints for the same key.
		setHints(field, schema.MergeHints(callee.Hints[field], th))
	}
	for field, h := range callee.Hints {
		if _, seen := shape[field]; !seen {
			setHints(field, h)
		}
	}

	var metadata map[string]any
	switch f := fn.(type) {
	case *schema.Function:
		metadata = f.Metadata
	case *schema.Action:
		metadata = f.Metadata
	}

	return &schema.FunctionDescriptor{
		ID:       fn.ID(),
		Path:     path,
		Kind:     fn.Kind(),
		Input:    input,
		UIHints:  hints,
		Metadata: metadata,
		Confirm:  callee.Confirm,
	}, nil
}

// typeHints merges a type's UI hints with its enumerated options.
func typeHints(ctx context.Context, td *schema.TypeDescriptor) (schema.Hints, error) {
	if !td.HasEnum() {
		return schema.MergeHints(td.UIHints, nil), nil
	}
	opts, err := td.Options(ctx)
	if err != nil {
		return nil, err
	}
	return schema.MergeHints(td.UIHints, schema.Hints{"options": opts}), nil
}

func sortedNames(s schema.Schema) []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// exemplar returns the first element of a sequence, or value itself.
// Empty sequences have no exemplar.
func exemplar(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	case []byte, string:
		return v
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 0 {
			return nil
		}
		return rv.Index(0).Interface()
	}
	return value
}

// properties returns the top-level properties of an object-like value.
// Structs are viewed through their JSON encoding.
func properties(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case schema.Caller:
		return v
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Struct:
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}
