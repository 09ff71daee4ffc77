// Package example declares the demo tree served by `urpc serve`.
//
// Every variable keeps its state in a ports.DocumentStore, so the same tree
// runs over the in-memory store in tests and over SQLite in a deployment.
package example

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/dapp-works/urpc/core/access"
	"github.com/dapp-works/urpc/core/schema"
	"github.com/dapp-works/urpc/ports"
)

// Document keys.
const (
	KeyData        = "data"
	KeyTest        = "test"
	KeyCollections = "collections"
)

// Seeds returns the initial documents.
func Seeds() map[string]any {
	return map[string]any{
		KeyData: map[string]any{"foo": 123},
		KeyTest: map[string]any{
			"foo":       123,
			"bool":      true,
			"enum_item": "Apple",
			"enums":     []any{"Apple", "Banana", "Orange"},
		},
		KeyCollections: []any{
			map[string]any{"foo": "Data1", "bool": true, "enum_item": "Apple"},
			map[string]any{"foo": "Data2", "bool": false, "enum_item": "Banana"},
		},
	}
}

// Seed writes the initial documents that are not stored yet. With reset
// every document is overwritten.
func Seed(ctx context.Context, store ports.DocumentStore, reset bool) error {
	for key, doc := range Seeds() {
		if !reset {
			if _, err := store.Get(ctx, key); err == nil {
				continue
			} else if !errors.Is(err, ports.ErrNotFound) {
				return fmt.Errorf("seed %s: %w", key, err)
			}
		}
		if err := store.Put(ctx, key, doc); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}

type demo struct {
	store ports.DocumentStore
	fruit *schema.TypeDescriptor
}

// Tree builds the demo declarations over store.
func Tree(store ports.DocumentStore) schema.Tree {
	d := &demo{store: store}

	// fruit enumerates the current test.enums on every introspection
	d.fruit = schema.DefineType(schema.TypeDescriptor{
		EnumFunc: func(ctx context.Context) ([]any, error) {
			doc, err := d.object(ctx, KeyTest)
			if err != nil {
				return nil, err
			}
			enums, _ := doc["enums"].([]any)
			return enums, nil
		},
		Default: "Banana",
		UIHints: schema.Hints{"required": true},
	})

	return schema.Tree{
		{Key: "sum", Node: schema.DefineFunction(schema.Function{Callable: schema.Callable{
			Input: schema.Fields{"a": 0, "b": 0},
			Invoke: func(ctx context.Context, call schema.Call) (any, error) {
				return call.Int("a") + call.Int("b"), nil
			},
		}})},
		{Key: "data", Node: d.data()},
		{Key: "test", Node: schema.Tree{
			{Key: "update", Node: schema.DefineFunction(schema.Function{Callable: schema.Callable{
				Input:  schema.Fields{"fruit": d.fruit},
				Invoke: d.mergeInto(KeyTest),
			}})},
			{Key: "test", Node: d.test()},
		}},
		{Key: "object", Node: schema.Tree{
			{Key: "sum1", Node: sum1()},
			{Key: "collections", Node: d.collections()},
		}},
		{Key: "admin", Node: schema.Tree{
			{Key: "reset", Node: schema.DefineFunction(schema.Function{
				Base: schema.Base{
					Use:      []schema.Predicate{access.Any(access.Teams("bd", "operator"), access.MustExpr(`isAdmin == true`))},
					Metadata: map[string]any{"description": "Restore every demo document to its seed"},
				},
				Callable: schema.Callable{
					Confirm: true,
					Invoke: func(ctx context.Context, call schema.Call) (any, error) {
						return nil, Seed(ctx, d.store, true)
					},
				},
			})},
		}},
	}
}

func (d *demo) data() *schema.Variable {
	return schema.DefineVariable(schema.Variable{
		Read: d.read(KeyData),
		Write: func(ctx context.Context, value any, caller schema.Caller) (any, error) {
			patch, ok := value.(map[string]any)
			if !ok {
				return nil, schema.Errorf(schema.ErrBadRequest, "data", "value must be an object")
			}
			return d.store.Update(ctx, KeyData, func(doc any) (any, error) {
				return merge(doc, patch), nil
			})
		},
		Patch: &schema.PatchPolicy{Enabled: true, AllowCreate: true, AllowUpdate: true, AllowDelete: true},
		OnUpdate: func(ctx context.Context, key string, value any) error {
			_, err := d.store.Update(ctx, KeyData, func(doc any) (any, error) {
				return merge(doc, map[string]any{key: value}), nil
			})
			return err
		},
		OnDelete: func(ctx context.Context, key string) error {
			_, err := d.store.Update(ctx, KeyData, func(doc any) (any, error) {
				m, _ := doc.(map[string]any)
				delete(m, key)
				return m, nil
			})
			return err
		},
		UIHints: schema.Hints{"label": "Data"},
	})
}

func (d *demo) test() *schema.Variable {
	return schema.DefineVariable(schema.Variable{
		Read: d.read(KeyTest),
		Schema: func(ctx context.Context, scope schema.Scope) (schema.Schema, error) {
			return schema.Schema{
				"enum_item": d.fruit,
				"update": schema.DefineFunction(schema.Function{Callable: schema.Callable{
					InputFunc: func(o *schema.Owner) schema.Fields {
						fields := o.Pick("enum_item", "foo", "enums")
						fields["bool"] = d.fruit
						return fields
					},
					Invoke: d.mergeInto(KeyTest),
				}}),
			}, nil
		},
	})
}

func sum1() *schema.Function {
	return schema.DefineFunction(schema.Function{Callable: schema.Callable{
		Input: schema.Fields{
			"a": "text text text text text text text text text text text text text text ",
			"b": 0,
		},
		Hints: map[string]schema.Hints{
			"a": {"description": "test desc"},
		},
		Invoke: func(ctx context.Context, call schema.Call) (any, error) {
			return call.String("a") + strconv.Itoa(call.Int("b")), nil
		},
	}})
}

func (d *demo) collections() *schema.Variable {
	return schema.DefineVariable(schema.Variable{
		Read:  d.read(KeyCollections),
		Patch: &schema.PatchPolicy{Enabled: true, AllowCreate: true, AllowUpdate: true, AllowDelete: true},
		OnCreate: func(ctx context.Context, value any) error {
			_, err := d.store.Update(ctx, KeyCollections, func(doc any) (any, error) {
				items, _ := doc.([]any)
				return append(items, value), nil
			})
			return err
		},
		OnUpdate: func(ctx context.Context, key string, value any) error {
			return d.updateItem(ctx, key, func(items []any, i int) []any {
				items[i] = value
				return items
			})
		},
		OnDelete: func(ctx context.Context, key string) error {
			return d.updateItem(ctx, key, func(items []any, i int) []any {
				return append(items[:i], items[i+1:]...)
			})
		},
		Schema: func(ctx context.Context, scope schema.Scope) (schema.Schema, error) {
			return schema.Schema{
				"enum_item": d.fruit,
				"update": schema.DefineAction(schema.Action{Callable: schema.Callable{
					InputFunc: func(o *schema.Owner) schema.Fields {
						fields := o.Pick("bool", "foo")
						fields["enum_item"] = d.fruit
						fields["test"] = 1
						return fields
					},
					Invoke: d.updateMatching,
				}}),
				"create": schema.DefineFunction(schema.Function{Callable: schema.Callable{
					InputFunc: func(o *schema.Owner) schema.Fields {
						return o.Pick("enum_item", "bool", "foo")
					},
					Invoke: func(ctx context.Context, call schema.Call) (any, error) {
						if _, err := d.store.Update(ctx, KeyCollections, func(doc any) (any, error) {
							items, _ := doc.([]any)
							return append(items, call.Input), nil
						}); err != nil {
							return nil, err
						}
						return true, nil
					},
				}}),
			}, nil
		},
	})
}

// updateMatching merges the action input into the first collection item
// equal to the value the client acted on.
func (d *demo) updateMatching(ctx context.Context, call schema.Call) (any, error) {
	fields := make(map[string]any, len(call.Input))
	for k, v := range call.Input {
		if k != "test" {
			fields[k] = v
		}
	}

	var updated any
	_, err := d.store.Update(ctx, KeyCollections, func(doc any) (any, error) {
		items, _ := doc.([]any)
		for i, item := range items {
			if reflect.DeepEqual(item, call.Value) {
				items[i] = merge(item, fields)
				updated = items[i]
				return items, nil
			}
		}
		return nil, schema.Errorf(schema.ErrBadRequest, "object.collections", "no item matches the value")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (d *demo) updateItem(ctx context.Context, key string, fn func(items []any, i int) []any) error {
	i, err := strconv.Atoi(key)
	if err != nil {
		return fmt.Errorf("collection index %q: %w", key, err)
	}
	_, err = d.store.Update(ctx, KeyCollections, func(doc any) (any, error) {
		items, _ := doc.([]any)
		if i < 0 || i >= len(items) {
			return nil, fmt.Errorf("collection index %d out of range", i)
		}
		return fn(items, i), nil
	})
	return err
}

func (d *demo) read(key string) schema.ReadFunc {
	return func(ctx context.Context) (any, error) {
		doc, err := d.store.Get(ctx, key)
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return doc, err
	}
}

func (d *demo) object(ctx context.Context, key string) (map[string]any, error) {
	doc, err := d.read(key)(ctx)
	if err != nil {
		return nil, err
	}
	m, _ := doc.(map[string]any)
	return m, nil
}

func (d *demo) mergeInto(key string) schema.InvokeFunc {
	return func(ctx context.Context, call schema.Call) (any, error) {
		_, err := d.store.Update(ctx, key, func(doc any) (any, error) {
			return merge(doc, call.Input), nil
		})
		return nil, err
	}
}

func merge(doc any, fields map[string]any) map[string]any {
	m, _ := doc.(map[string]any)
	if m == nil {
		m = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		m[k] = v
	}
	return m
}
