package schema

import (
	"context"
	"fmt"
	"reflect"
)

// Option is a normalized enumerated value.
type Option struct {
	Label any `json:"label"`
	Value any `json:"value"`
}

// EnumFunc computes enumerated values on demand.
type EnumFunc func(ctx context.Context) ([]any, error)

// TypeDescriptor describes an atomic, enumerated or composite field type.
type TypeDescriptor struct {
	Base

	// Class is a type name shown to clients ("string", "int", ...).
	Class string

	// Enum lists raw values or Option / {"label","value"} pairs.
	Enum []any

	// EnumFunc, when set, replaces Enum and is evaluated per request.
	EnumFunc EnumFunc

	// Default is the field's default value.
	Default any

	UIHints Hints

	// Schema resolves the sub-schema of composite types from the field value.
	Schema SchemaResolver
}

func (t *TypeDescriptor) isItem() {}

// HasEnum reports whether the type declares enumerated values.
func (t *TypeDescriptor) HasEnum() bool {
	return t.EnumFunc != nil || len(t.Enum) > 0
}

// Options returns the enumerated values normalized to label/value pairs.
// A missing label defaults to the raw value.
func (t *TypeDescriptor) Options(ctx context.Context) ([]Option, error) {
	raw := t.Enum
	if t.EnumFunc != nil {
		values, err := t.EnumFunc(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate values: %w", err)
		}
		raw = values
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return NormalizeOptions(raw), nil
}

// NormalizeOptions converts raw enumerated values to options.
func NormalizeOptions(raw []any) []Option {
	out := make([]Option, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case Option:
			if v.Label == nil {
				v.Label = v.Value
			}
			out = append(out, v)
		case map[string]any:
			value, hasValue := v["value"]
			if !hasValue {
				out = append(out, Option{Label: item, Value: item})
				continue
			}
			label, ok := v["label"]
			if !ok || label == nil {
				label = value
			}
			out = append(out, Option{Label: label, Value: value})
		default:
			out = append(out, Option{Label: item, Value: item})
		}
	}
	return out
}

// DefineType stamps a fresh id and the type kind onto t.
func DefineType(t TypeDescriptor) *TypeDescriptor {
	out := t
	out.stamp(KindType)
	if out.Class == "" && out.Default != nil {
		out.Class = TypeName(out.Default)
	}
	return &out
}

// InferType synthesizes a minimal descriptor for an undeclared field.
// It carries no id and is never registered.
func InferType(value any) *TypeDescriptor {
	td := &TypeDescriptor{Class: TypeName(value), Default: value}
	td.kind = KindType
	return td
}

// TypeName returns the runtime type name of a JSON-like value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	case float32, float64:
		return "float"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Pointer:
		rv := reflect.ValueOf(v)
		if rv.IsNil() {
			return "null"
		}
		return TypeName(rv.Elem().Interface())
	default:
		return reflect.TypeOf(v).String()
	}
}
