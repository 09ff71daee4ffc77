package schema

import (
	"context"
	"encoding/json"
	"fmt"
)

// Fields maps a field name to either a literal example value (used as the
// default and as a shape hint) or a *TypeDescriptor.
type Fields map[string]any

// Call is what an invocation receives.
type Call struct {
	// Input is the caller-supplied input.
	Input map[string]any

	// Value is the owning variable's current value, if any.
	Value any

	// Caller is the transport-supplied caller context.
	Caller Caller
}

// Get returns the input field name.
func (c Call) Get(name string) any {
	return c.Input[name]
}

// Int returns the input field name as an int. JSON numbers decode as
// float64 and are truncated.
func (c Call) Int(name string) int {
	switch v := c.Input[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// String returns the input field name as a string.
func (c Call) String(name string) string {
	switch v := c.Input[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// InvokeFunc executes a function or action.
type InvokeFunc func(ctx context.Context, call Call) (any, error)

// InputFunc computes an input shape, optionally from the owning variable.
// owner is nil for top-level functions.
type InputFunc func(owner *Owner) Fields

// Owner exposes the already-resolved state of the variable that owns a
// nested function or action.
type Owner struct {
	Variable *Variable
	Value    any

	// Types holds the variable's type fields resolved before any nested
	// function or action is described.
	Types map[string]*TypeDescriptor
}

// Pick returns the named type fields of the owner. Unknown names are skipped.
func (o *Owner) Pick(names ...string) Fields {
	out := make(Fields, len(names))
	if o == nil {
		return out
	}
	for _, name := range names {
		if td, ok := o.Types[name]; ok {
			out[name] = td
		}
	}
	return out
}

// Callable is the executable part shared by Function and Action.
type Callable struct {
	// Input is a literal input shape. Ignored when InputFunc is set.
	Input Fields

	// InputFunc resolves the input shape at introspection time.
	InputFunc InputFunc

	// Invoke runs the operation.
	Invoke InvokeFunc

	// Confirm asks clients to confirm before invoking.
	Confirm bool

	// Hints are per-field UI hints.
	Hints map[string]Hints
}

// ResolveInput returns the input shape for owner.
func (c *Callable) ResolveInput(owner *Owner) Fields {
	if c.InputFunc != nil {
		return c.InputFunc(owner)
	}
	return c.Input
}

// Invocable is implemented by *Function and *Action.
type Invocable interface {
	Item
	Callee() *Callable
}

// Function is a callable operation.
type Function struct {
	Base
	Callable
}

func (f *Function) isItem() {}

// Callee returns the executable part.
func (f *Function) Callee() *Callable { return &f.Callable }

// Action is a callable bound to a variable's current value.
type Action struct {
	Base
	Callable
}

func (a *Action) isItem() {}

// Callee returns the executable part.
func (a *Action) Callee() *Callable { return &a.Callable }

// DefineFunction stamps a fresh id and the function kind onto fn.
func DefineFunction(fn Function) *Function {
	f := fn
	f.stamp(KindFunction)
	return &f
}

// DefineAction stamps a fresh id and the action kind onto a.
func DefineAction(a Action) *Action {
	out := a
	out.stamp(KindAction)
	return &out
}
