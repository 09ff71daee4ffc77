/*
Package schema defines the entity model for declared operations and state.

A backend declares a tree of entities. Leaves are addressable entities:
functions, variables, actions and type descriptors. Inner nodes are
namespaces (Tree) that only group paths and are never addressable.

# Declaring Entities

Every leaf is built with one of the Define constructors, which stamp a
process-unique id and the kind tag:

	sum := schema.DefineFunction(schema.Function{
		Callable: schema.Callable{
			Input: schema.Fields{"a": 0, "b": 0},
			Invoke: func(ctx context.Context, call schema.Call) (any, error) {
				return call.Int("a") + call.Int("b"), nil
			},
		},
	})

	data := schema.DefineVariable(schema.Variable{
		Read:  func(ctx context.Context) (any, error) { return store.Get(ctx, "data") },
		Write: func(ctx context.Context, v any, _ schema.Caller) (any, error) { return store.Merge(ctx, "data", v) },
	})

	tree := schema.Tree{
		{Key: "sum", Node: sum},
		{Key: "object", Node: schema.Tree{
			{Key: "data", Node: data},
		}},
	}

The registry flattens the tree into dotted paths ("sum", "object.data").

# Type Descriptors

A TypeDescriptor describes one field: its default value, enumerated
options and UI hints. Enumerations can be fixed (Enum) or computed on
every introspection request (EnumFunc):

	fruit := schema.DefineType(schema.TypeDescriptor{
		EnumFunc: func(ctx context.Context) ([]any, error) { return loadFruits(ctx) },
		Default:  "Banana",
		UIHints:  schema.Hints{"required": true},
	})

# Variable Schemas

A variable may attach a SchemaResolver that computes its sub-schema from
its current value and the caller. Nested functions and actions in that
schema can derive their own input from the type fields already resolved
for the variable through Owner:

	Schema: func(ctx context.Context, s schema.Scope) (schema.Schema, error) {
		return schema.Schema{
			"enum_item": fruit,
			"create":    create, // InputFunc: func(o *schema.Owner) schema.Fields { return o.Pick("enum_item", "foo") }
		}, nil
	},

# Caller Context

Caller is the context supplied by the transport on every request. Access
predicates (Base.Use) are evaluated against it; all of them must pass for
an entity to be visible.
*/
package schema
