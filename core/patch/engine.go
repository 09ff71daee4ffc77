// Package patch applies RFC 6902 operation lists to variables.
//
// The pipeline for a variable without an OnPatch override:
//
//  1. reject the request if the variable's policy disables patching or
//     forbids one of the operations,
//  2. fire hooks in order: "add" at an append position (/-) calls OnCreate,
//     "replace" at /key calls OnUpdate and "remove" at /key calls OnDelete,
//  3. when auto-apply is configured, apply the whole list to the target
//     accessor's current value and return the result; otherwise return the
//     variable's current value.
//
// A failing hook aborts the request with schema.ErrPatchHookFailure. Hooks
// that already ran are not rolled back.
package patch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dapp-works/urpc/core/schema"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-openapi/jsonpointer"
	"github.com/rs/zerolog"
)

// Recorder counts applied operations by name.
type Recorder interface {
	PatchOperation(op string)
}

// Config configures an Engine.
type Config struct {
	Logger zerolog.Logger

	// Recorder is optional.
	Recorder Recorder
}

// Engine runs the patch pipeline. It holds no state between calls.
type Engine struct {
	logger   zerolog.Logger
	recorder Recorder
}

// New creates a patch engine.
func New(cfg Config) *Engine {
	return &Engine{logger: cfg.Logger, recorder: cfg.Recorder}
}

// Apply runs ops against v on behalf of caller and returns the patched
// document. With auto-apply on, a writable variable receives the patched
// document through its Write.
func (e *Engine) Apply(ctx context.Context, v *schema.Variable, ops []schema.Operation, caller schema.Caller) (any, error) {
	policy := v.Policy()
	if err := checkPolicy(v.Path(), policy, ops); err != nil {
		return nil, err
	}

	steps, err := parse(v.Path(), ops)
	if err != nil {
		return nil, err
	}

	if v.OnPatch != nil {
		result, err := v.OnPatch(ctx, ops, caller)
		if err != nil {
			return nil, err
		}
		e.record(ops)
		return result, nil
	}

	for _, s := range steps {
		if err := e.runHook(ctx, v, s); err != nil {
			e.logger.Warn().Err(err).
				Str("path", v.Path()).
				Str("op", s.op.Op).
				Str("pointer", s.op.Path).
				Msg("patch hook failed")
			return nil, &schema.Error{
				Kind:    schema.ErrPatchHookFailure,
				Target:  v.Path(),
				Message: fmt.Sprintf("%s %s", s.op.Op, s.op.Path),
				Err:     err,
			}
		}
	}

	if policy.AutoApply == nil {
		e.record(ops)
		return v.Read(ctx)
	}

	read := policy.AutoApply.Target
	if read == nil {
		read = v.Read
	}
	doc, err := read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read patch target of %s: %w", v.Path(), err)
	}

	result, err := ApplyDocument(doc, ops)
	if err != nil {
		return nil, &schema.Error{Kind: schema.ErrInvalidPatch, Target: v.Path(), Message: "apply", Err: err}
	}
	e.record(ops)

	// Read-only variables only see the patched copy.
	if !v.CanWrite() {
		return result, nil
	}
	written, err := v.Write(ctx, result, caller)
	if err != nil {
		return nil, fmt.Errorf("write patched %s: %w", v.Path(), err)
	}
	if written == nil {
		return result, nil
	}
	return written, nil
}

func (e *Engine) record(ops []schema.Operation) {
	if e.recorder == nil {
		return
	}
	for _, op := range ops {
		e.recorder.PatchOperation(op.Op)
	}
}

// step is an operation with its decoded path.
type step struct {
	op     schema.Operation
	tokens []string
}

func parse(target string, ops []schema.Operation) ([]step, error) {
	steps := make([]step, len(ops))
	for i, op := range ops {
		switch op.Op {
		case schema.OpAdd, schema.OpRemove, schema.OpReplace, schema.OpTest:
		case schema.OpMove, schema.OpCopy:
			if _, err := jsonpointer.New(op.From); err != nil {
				return nil, schema.Errorf(schema.ErrInvalidPatch, target, "operation %d: from %q: %v", i, op.From, err)
			}
		default:
			return nil, schema.Errorf(schema.ErrInvalidPatch, target, "operation %d: unknown op %q", i, op.Op)
		}

		ptr, err := jsonpointer.New(op.Path)
		if err != nil {
			return nil, schema.Errorf(schema.ErrInvalidPatch, target, "operation %d: path %q: %v", i, op.Path, err)
		}
		steps[i] = step{op: op, tokens: ptr.DecodedTokens()}
	}
	return steps, nil
}

// checkPolicy rejects operations the policy does not allow.
// move needs both create and delete, copy needs create.
func checkPolicy(target string, p schema.PatchPolicy, ops []schema.Operation) error {
	if !p.Enabled {
		return schema.Errorf(schema.ErrPatchRejected, target, "patching is disabled")
	}
	for _, op := range ops {
		var allowed bool
		switch op.Op {
		case schema.OpAdd, schema.OpCopy:
			allowed = p.AllowCreate
		case schema.OpReplace:
			allowed = p.AllowUpdate
		case schema.OpRemove:
			allowed = p.AllowDelete
		case schema.OpMove:
			allowed = p.AllowCreate && p.AllowDelete
		default:
			allowed = true
		}
		if !allowed {
			return schema.Errorf(schema.ErrPatchRejected, target, "%s is not allowed", op.Op)
		}
	}
	return nil
}

func (e *Engine) runHook(ctx context.Context, v *schema.Variable, s step) error {
	switch s.op.Op {
	case schema.OpAdd:
		if v.OnCreate != nil && len(s.tokens) > 0 && s.tokens[len(s.tokens)-1] == "-" {
			return v.OnCreate(ctx, s.op.Value)
		}
	case schema.OpReplace:
		if v.OnUpdate != nil && len(s.tokens) == 1 {
			return v.OnUpdate(ctx, s.tokens[0], s.op.Value)
		}
	case schema.OpRemove:
		if v.OnDelete != nil && len(s.tokens) == 1 {
			return v.OnDelete(ctx, s.tokens[0])
		}
	}
	return nil
}

// ApplyDocument applies ops to a JSON-compatible document and returns the
// patched copy. doc itself is not modified.
func ApplyDocument(doc any, ops []schema.Operation) (any, error) {
	if len(ops) == 0 {
		return doc, nil
	}

	original, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	patched, err := p.Apply(original)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
