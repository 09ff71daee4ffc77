// Package runtime dispatches wire requests to registered entities.
// It resolves targets through the registry, enforces access predicates,
// delegates introspection to the resolver and patches to the patch engine,
// and publishes change events for transports.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dapp-works/urpc/core/access"
	"github.com/dapp-works/urpc/core/events"
	"github.com/dapp-works/urpc/core/introspect"
	"github.com/dapp-works/urpc/core/patch"
	"github.com/dapp-works/urpc/core/registry"
	"github.com/dapp-works/urpc/core/schema"
	"github.com/rs/zerolog"
)

// Runtime is the dispatch environment for one registry.
type Runtime struct {
	// registry is built before the runtime and never mutated
	registry *registry.Registry

	resolver *introspect.Resolver
	patcher  *patch.Engine

	// events carries change notices to transports
	events *events.Bus

	// recorder observes every dispatch (optional)
	recorder Recorder

	// channels are the transports, started in registration order
	channels []Channel

	handlers map[Op]handler

	logger zerolog.Logger
}

// Config configures the runtime.
type Config struct {
	// MaxDepth caps nested schema resolution. Zero means the resolver default.
	MaxDepth int

	// Concurrency limits parallel resolution in loadFull. Zero means unlimited.
	Concurrency int

	// Recorder observes dispatches and patch operations (optional).
	Recorder Recorder

	// Events is the bus change notices are published on. A new bus is
	// created when nil.
	Events *events.Bus

	Logger zerolog.Logger
}

// Recorder observes dispatch outcomes. status is "ok", an error kind, or
// "error" for unclassified failures.
type Recorder interface {
	ObserveDispatch(op string, status string, duration time.Duration)
	PatchOperation(op string)
}

// Channel is a transport adapter (HTTP, WebSocket, ...).
type Channel interface {
	// Name returns the channel name.
	Name() string

	// Start starts serving. It must not block.
	Start(ctx context.Context) error

	// Stop stops serving.
	Stop(ctx context.Context) error
}

// Request is an inbound wire message. Caller is injected by the transport.
type Request struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
	Caller schema.Caller   `json:"-"`
}

type handler func(ctx context.Context, params json.RawMessage, caller schema.Caller) (any, error)

// New creates a runtime over reg.
func New(reg *registry.Registry, config Config) *Runtime {
	bus := config.Events
	if bus == nil {
		bus = events.NewBus(config.Logger)
	}

	var patchRecorder patch.Recorder
	if config.Recorder != nil {
		patchRecorder = config.Recorder
	}

	r := &Runtime{
		registry: reg,
		resolver: introspect.New(introspect.Config{
			MaxDepth:    config.MaxDepth,
			Concurrency: config.Concurrency,
			Logger:      config.Logger,
		}),
		patcher:  patch.New(patch.Config{Logger: config.Logger, Recorder: patchRecorder}),
		events:   bus,
		recorder: config.Recorder,
		logger:   config.Logger,
	}

	r.handlers = map[Op]handler{
		OpLoadFull:       bind(r.handleLoadFull),
		OpLoadVars:       bind(r.handleLoadVars),
		OpFunctionCall:   bind(r.handleFunctionCall),
		OpVariableGet:    bind(r.handleVariableGet),
		OpVariableSet:    bind(r.handleVariableSet),
		OpVariableAction: bind(r.handleVariableAction),
		OpVariableCall:   bind(r.handleVariableCall),
		OpVariablePatch:  bind(r.handleVariablePatch),
	}
	return r
}

// Registry returns the entity registry.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}

// Events returns the change event bus.
func (r *Runtime) Events() *events.Bus {
	return r.events
}

// Resolver returns the descriptor resolver.
func (r *Runtime) Resolver() *introspect.Resolver {
	return r.resolver
}

// Handle dispatches one wire request.
func (r *Runtime) Handle(ctx context.Context, req Request) (any, error) {
	start := time.Now()

	op, ok := ParseOp(req.Name)
	if !ok {
		err := schema.Errorf(schema.ErrBadRequest, req.Name, "invalid name")
		r.observe(req.Name, req.Params, err, start)
		return nil, err
	}

	result, err := r.handlers[op](ctx, req.Params, req.Caller)
	r.observe(string(op), req.Params, err, start)
	return result, err
}

func (r *Runtime) observe(op string, params json.RawMessage, err error, start time.Time) {
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = string(schema.KindOf(err))
		if status == "" {
			status = "error"
		}
	}
	if r.recorder != nil {
		r.recorder.ObserveDispatch(op, status, elapsed)
	}

	target := targetOf(params)
	switch {
	case err == nil:
		r.logger.Debug().
			Str("op", op).
			Str("target", target).
			Dur("duration", elapsed).
			Msg("dispatch")
	case status == "error":
		r.logger.Error().Err(err).
			Str("op", op).
			Str("target", target).
			Dur("duration", elapsed).
			Msg("dispatch failed")
	default:
		r.logger.Warn().Err(err).
			Str("op", op).
			Str("target", target).
			Str("kind", status).
			Msg("dispatch rejected")
	}
}

// targetOf extracts the addressed entity from raw params for logging.
func targetOf(params json.RawMessage) string {
	var p struct {
		Name      string `json:"name"`
		Method    string `json:"method"`
		Namespace string `json:"namespace"`
	}
	if len(params) == 0 || json.Unmarshal(params, &p) != nil {
		return ""
	}
	switch {
	case p.Name != "":
		return p.Name
	case p.Method != "":
		return p.Method
	default:
		return p.Namespace
	}
}

// bind adapts a typed handler to the dispatch table. Missing or null params
// decode to the zero value.
func bind[P any](fn func(ctx context.Context, params P, caller schema.Caller) (any, error)) handler {
	return func(ctx context.Context, raw json.RawMessage, caller schema.Caller) (any, error) {
		var params P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, &schema.Error{Kind: schema.ErrBadRequest, Message: "decode params", Err: err}
			}
		}
		return fn(ctx, params, caller)
	}
}

// publish emits a change event when anyone listens.
func (r *Runtime) publish(ctx context.Context, op Op, e schema.Entity, member string) {
	name := string(op)
	if !op.Mutates() || !r.events.HasSubscribers(name) {
		return
	}
	r.events.PublishAsync(ctx, events.Event{
		Name:   name,
		Path:   e.Path(),
		ID:     e.ID(),
		Member: member,
	})
}

// okResult is returned when a callback produces no value.
func okResult() map[string]any {
	return map[string]any{"ok": true}
}

// lookup resolves target to a caller-visible entity. Hidden entities are
// reported exactly like missing ones.
func (r *Runtime) lookup(target string, caller schema.Caller) (schema.Entity, error) {
	e, ok := r.registry.Lookup(target)
	if !ok || !access.IsVisible(e, caller) {
		return nil, schema.Errorf(schema.ErrUnknownTarget, target, "no such entity")
	}
	return e, nil
}

func (r *Runtime) lookupFunction(target string, caller schema.Caller) (*schema.Function, error) {
	e, err := r.lookup(target, caller)
	if err != nil {
		return nil, err
	}
	fn, ok := e.(*schema.Function)
	if !ok {
		return nil, schema.Errorf(schema.ErrUnknownTarget, target, "%s is not a function", e.Kind())
	}
	return fn, nil
}

func (r *Runtime) lookupVariable(target string, caller schema.Caller) (*schema.Variable, error) {
	e, err := r.lookup(target, caller)
	if err != nil {
		return nil, err
	}
	v, ok := e.(*schema.Variable)
	if !ok {
		return nil, schema.Errorf(schema.ErrUnknownTarget, target, "%s is not a variable", e.Kind())
	}
	return v, nil
}

// LoadFull returns the descriptors of every caller-visible function and
// variable under namespace.
func (r *Runtime) LoadFull(ctx context.Context, namespace string, caller schema.Caller) ([]schema.Descriptor, error) {
	return r.resolver.LoadFull(ctx, r.registry, namespace, caller)
}

// LoadVars returns the current values of every caller-visible variable
// under namespace.
func (r *Runtime) LoadVars(ctx context.Context, namespace string, caller schema.Caller) ([]schema.VarValue, error) {
	return r.resolver.LoadVars(ctx, r.registry, namespace, caller)
}

// CallFunction invokes the function at target.
func (r *Runtime) CallFunction(ctx context.Context, target string, input map[string]any, caller schema.Caller) (any, error) {
	fn, err := r.lookupFunction(target, caller)
	if err != nil {
		return nil, err
	}
	result, err := fn.Invoke(ctx, schema.Call{Input: input, Caller: caller})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, OpFunctionCall, fn, "")
	if result == nil {
		return okResult(), nil
	}
	return result, nil
}

// ReadVariable returns the current value of the variable at target.
func (r *Runtime) ReadVariable(ctx context.Context, target string, caller schema.Caller) (any, error) {
	v, err := r.lookupVariable(target, caller)
	if err != nil {
		return nil, err
	}
	return v.Read(ctx)
}

// SetVariable writes value to the variable at target and returns the
// write's result.
func (r *Runtime) SetVariable(ctx context.Context, target string, value any, caller schema.Caller) (any, error) {
	v, err := r.lookupVariable(target, caller)
	if err != nil {
		return nil, err
	}
	if !v.CanWrite() {
		return nil, schema.Errorf(schema.ErrNotWritable, v.Path(), "variable is read-only")
	}
	result, err := v.Write(ctx, value, caller)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, OpVariableSet, v, "")
	return result, nil
}

// InvokeAction runs the action named action in the variable's resolved
// schema. value is the element the action applies to; input defaults to
// value when value is an object.
func (r *Runtime) InvokeAction(ctx context.Context, target, action string, value any, input map[string]any, caller schema.Caller) (any, error) {
	v, err := r.lookupVariable(target, caller)
	if err != nil {
		return nil, err
	}
	item, err := r.member(ctx, v, action, caller)
	if err != nil {
		return nil, err
	}
	a, ok := item.(*schema.Action)
	if !ok {
		return nil, schema.Errorf(schema.ErrUnknownAction, v.Path(), "no action %q", action)
	}

	if input == nil {
		input, _ = value.(map[string]any)
	}
	result, err := a.Invoke(ctx, schema.Call{Input: input, Value: value, Caller: caller})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, OpVariableAction, v, action)
	if result == nil {
		return okResult(), nil
	}
	return result, nil
}

// CallMethod runs the function or action named method in the variable's
// resolved schema with the variable's current value.
func (r *Runtime) CallMethod(ctx context.Context, target, method string, input map[string]any, caller schema.Caller) (any, error) {
	v, err := r.lookupVariable(target, caller)
	if err != nil {
		return nil, err
	}
	// The cache covers resolution only; the method must see its own writes.
	rctx := schema.WithReadCache(ctx)
	value, err := v.Read(rctx)
	if err != nil {
		return nil, err
	}
	s, err := r.resolver.Schema(rctx, v, value, caller)
	if err != nil {
		return nil, err
	}
	fn, ok := s[method].(schema.Invocable)
	if !ok {
		return nil, schema.Errorf(schema.ErrUnknownMethod, v.Path(), "no method %q", method)
	}

	result, err := fn.Callee().Invoke(ctx, schema.Call{Input: input, Value: value, Caller: caller})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, OpVariableCall, v, method)
	if result == nil {
		return okResult(), nil
	}
	return result, nil
}

// PatchVariable applies ops to the variable at target.
func (r *Runtime) PatchVariable(ctx context.Context, target string, ops []schema.Operation, caller schema.Caller) (any, error) {
	v, err := r.lookupVariable(target, caller)
	if err != nil {
		return nil, err
	}
	result, err := r.patcher.Apply(ctx, v, ops, caller)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, OpVariablePatch, v, "")
	return result, nil
}

// member resolves the variable's schema for its current value and returns
// the caller-visible entry name.
func (r *Runtime) member(ctx context.Context, v *schema.Variable, name string, caller schema.Caller) (schema.Item, error) {
	ctx = schema.WithReadCache(ctx)
	value, err := v.Read(ctx)
	if err != nil {
		return nil, err
	}
	s, err := r.resolver.Schema(ctx, v, value, caller)
	if err != nil {
		return nil, err
	}
	item, ok := s[name]
	if !ok {
		return nil, schema.Errorf(schema.ErrUnknownAction, v.Path(), "no action %q", name)
	}
	return item, nil
}

// RegisterChannel adds a transport.
func (r *Runtime) RegisterChannel(ch Channel) {
	r.channels = append(r.channels, ch)
}

// Start starts all channels in registration order.
func (r *Runtime) Start(ctx context.Context) error {
	for _, ch := range r.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %q: %w", ch.Name(), err)
		}
		r.logger.Info().Str("channel", ch.Name()).Msg("channel started")
	}
	return nil
}

// Stop stops all channels in reverse order.
func (r *Runtime) Stop(ctx context.Context) error {
	for i := len(r.channels) - 1; i >= 0; i-- {
		ch := r.channels[i]
		if err := ch.Stop(ctx); err != nil {
			return fmt.Errorf("stop channel %q: %w", ch.Name(), err)
		}
	}
	return nil
}
