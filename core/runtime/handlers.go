package runtime

import (
	"context"

	"github.com/dapp-works/urpc/core/schema"
)

type loadParams struct {
	Namespace string `json:"namespace"`
}

type functionCallParams struct {
	Method string         `json:"method"`
	Input  map[string]any `json:"input"`
}

type variableGetParams struct {
	Name string `json:"name"`
}

type variableSetParams struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type variableActionParams struct {
	Name   string         `json:"name"`
	Action string         `json:"action"`
	Value  any            `json:"value"`
	Input  map[string]any `json:"input"`
}

type variableCallParams struct {
	Name   string         `json:"name"`
	Method string         `json:"method"`
	Input  map[string]any `json:"input"`
}

type variablePatchParams struct {
	Name string             `json:"name"`
	Ops  []schema.Operation `json:"ops"`
}

func required(field, value string) error {
	if value == "" {
		return schema.Errorf(schema.ErrBadRequest, "", "missing %s", field)
	}
	return nil
}

func (r *Runtime) handleLoadFull(ctx context.Context, p loadParams, caller schema.Caller) (any, error) {
	return r.LoadFull(ctx, p.Namespace, caller)
}

func (r *Runtime) handleLoadVars(ctx context.Context, p loadParams, caller schema.Caller) (any, error) {
	return r.LoadVars(ctx, p.Namespace, caller)
}

func (r *Runtime) handleFunctionCall(ctx context.Context, p functionCallParams, caller schema.Caller) (any, error) {
	if err := required("method", p.Method); err != nil {
		return nil, err
	}
	return r.CallFunction(ctx, p.Method, p.Input, caller)
}

func (r *Runtime) handleVariableGet(ctx context.Context, p variableGetParams, caller schema.Caller) (any, error) {
	if err := required("name", p.Name); err != nil {
		return nil, err
	}
	return r.ReadVariable(ctx, p.Name, caller)
}

func (r *Runtime) handleVariableSet(ctx context.Context, p variableSetParams, caller schema.Caller) (any, error) {
	if err := required("name", p.Name); err != nil {
		return nil, err
	}
	return r.SetVariable(ctx, p.Name, p.Value, caller)
}

func (r *Runtime) handleVariableAction(ctx context.Context, p variableActionParams, caller schema.Caller) (any, error) {
	if err := required("name", p.Name); err != nil {
		return nil, err
	}
	if err := required("action", p.Action); err != nil {
		return nil, err
	}
	return r.InvokeAction(ctx, p.Name, p.Action, p.Value, p.Input, caller)
}

func (r *Runtime) handleVariableCall(ctx context.Context, p variableCallParams, caller schema.Caller) (any, error) {
	if err := required("name", p.Name); err != nil {
		return nil, err
	}
	if err := required("method", p.Method); err != nil {
		return nil, err
	}
	return r.CallMethod(ctx, p.Name, p.Method, p.Input, caller)
}

func (r *Runtime) handleVariablePatch(ctx context.Context, p variablePatchParams, caller schema.Caller) (any, error) {
	if err := required("name", p.Name); err != nil {
		return nil, err
	}
	return r.PatchVariable(ctx, p.Name, p.Ops, caller)
}
