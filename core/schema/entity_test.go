package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestDefine_StampsKindAndID(t *testing.T) {
	fn := DefineFunction(Function{})
	v := DefineVariable(Variable{Read: func(context.Context) (any, error) { return 1, nil }})
	a := DefineAction(Action{})
	td := DefineType(TypeDescriptor{Default: "x"})

	tests := []struct {
		name string
		e    Entity
		want Kind
	}{
		{"function", fn, KindFunction},
		{"variable", v, KindVariable},
		{"action", a, KindAction},
		{"type", td, KindType},
	}

	seen := make(map[string]bool)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.e.Kind() != tt.want {
				t.Errorf("Kind() = %q, want %q", tt.e.Kind(), tt.want)
			}
			if tt.e.ID() == "" {
				t.Fatal("ID() should not be empty")
			}
			if seen[tt.e.ID()] {
				t.Errorf("ID %s is not unique", tt.e.ID())
			}
			seen[tt.e.ID()] = true
			if tt.e.Path() != "" {
				t.Errorf("Path() = %q before registration, want empty", tt.e.Path())
			}
		})
	}

	if td.Class != "string" {
		t.Errorf("DefineType Class = %q, want string (derived from default)", td.Class)
	}
}

func TestDefine_DoesNotAliasInput(t *testing.T) {
	decl := Function{Callable: Callable{Input: Fields{"a": 0}}}
	f1 := DefineFunction(decl)
	f2 := DefineFunction(decl)
	if f1 == f2 || f1.ID() == f2.ID() {
		t.Error("each DefineFunction call should produce a distinct entity")
	}
}

func TestBase_Bind(t *testing.T) {
	fn := DefineFunction(Function{})

	if err := fn.Bind("a.b"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if fn.Path() != "a.b" {
		t.Errorf("Path() = %q, want a.b", fn.Path())
	}
	if err := fn.Bind("a.b"); err != nil {
		t.Errorf("rebinding the same path should succeed: %v", err)
	}

	err := fn.Bind("c")
	if err == nil {
		t.Fatal("binding a second path should fail")
	}
	if KindOf(err) != ErrInvalidDefinition {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), ErrInvalidDefinition)
	}
}

func TestCaller_Lookups(t *testing.T) {
	c := Caller{
		"isAdmin": true,
		"name":    "ada",
		"user": map[string]any{
			"isSuperAdmin": true,
			"teams":        []any{"bd", 3, "operator"},
		},
		"roles": []string{"a", "b"},
	}

	if !c.Bool("isAdmin") {
		t.Error("Bool(isAdmin) = false, want true")
	}
	if !c.Bool("user.isSuperAdmin") {
		t.Error("Bool(user.isSuperAdmin) = false, want true")
	}
	if c.Bool("missing.key") {
		t.Error("Bool(missing.key) = true, want false")
	}
	if c.String("name") != "ada" {
		t.Errorf("String(name) = %q", c.String("name"))
	}
	if got := c.Strings("user.teams"); len(got) != 2 || got[0] != "bd" || got[1] != "operator" {
		t.Errorf("Strings(user.teams) = %v", got)
	}
	if got := c.Strings("roles"); len(got) != 2 {
		t.Errorf("Strings(roles) = %v", got)
	}
	if m := c.Map("user"); m == nil || m["isSuperAdmin"] != true {
		t.Errorf("Map(user) = %v", m)
	}
	if c.Map("name") != nil {
		t.Error("Map(name) should be nil for a scalar")
	}
	if c.Value("name.deeper") != nil {
		t.Error("descending into a scalar should return nil")
	}

	var nilCaller Caller
	if nilCaller.Bool("x") {
		t.Error("nil caller should report false")
	}
}

func TestMergeHints(t *testing.T) {
	got := MergeHints(Hints{"a": 1, "b": 1}, Hints{"b": 2, "c": 2})
	want := Hints{"a": 1, "b": 2, "c": 2}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("MergeHints() = %v, want %v", got, want)
	}
	if MergeHints(nil, nil) != nil {
		t.Error("MergeHints(nil, nil) should be nil")
	}
}

func TestNormalizeOptions(t *testing.T) {
	got := NormalizeOptions([]any{
		"Apple",
		Option{Value: "b"},
		Option{Label: "Cherry", Value: "c"},
		map[string]any{"label": "Date", "value": "d"},
		map[string]any{"value": "e"},
		2,
	})

	want := []Option{
		{Label: "Apple", Value: "Apple"},
		{Label: "b", Value: "b"},
		{Label: "Cherry", Value: "c"},
		{Label: "Date", Value: "d"},
		{Label: "e", Value: "e"},
		{Label: 2, Value: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTypeDescriptor_Options(t *testing.T) {
	calls := 0
	td := DefineType(TypeDescriptor{
		EnumFunc: func(context.Context) ([]any, error) {
			calls++
			return []any{"x", "y"}, nil
		},
	})
	if !td.HasEnum() {
		t.Fatal("HasEnum() = false")
	}
	opts, err := td.Options(context.Background())
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if len(opts) != 2 || opts[1].Label != "y" {
		t.Errorf("Options() = %v", opts)
	}
	if calls != 1 {
		t.Errorf("EnumFunc called %d times, want 1", calls)
	}

	failing := DefineType(TypeDescriptor{
		EnumFunc: func(context.Context) ([]any, error) { return nil, errors.New("boom") },
	})
	if _, err := failing.Options(context.Background()); err == nil {
		t.Error("Options() should surface EnumFunc errors")
	}

	plain := DefineType(TypeDescriptor{Default: 1})
	if plain.HasEnum() {
		t.Error("HasEnum() = true for a type without enumeration")
	}
}

func TestTypeName(t *testing.T) {
	var nilPtr *int
	n := 3
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"s", "string"},
		{true, "bool"},
		{7, "int"},
		{int64(7), "int"},
		{1.5, "float"},
		{map[string]any{}, "object"},
		{[]any{}, "array"},
		{[]string{"a"}, "array"},
		{struct{}{}, "object"},
		{&n, "int"},
		{nilPtr, "null"},
	}
	for _, tt := range tests {
		if got := TypeName(tt.in); got != tt.want {
			t.Errorf("TypeName(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	inferred := InferType(12.5)
	if inferred.Kind() != KindType || inferred.Class != "float" || inferred.Default != 12.5 {
		t.Errorf("InferType() = %+v", inferred)
	}
	if inferred.ID() != "" {
		t.Error("inferred types carry no id")
	}
}

func TestOwner_Pick(t *testing.T) {
	foo := DefineType(TypeDescriptor{Default: 1})
	o := &Owner{Types: map[string]*TypeDescriptor{"foo": foo}}

	got := o.Pick("foo", "missing")
	if len(got) != 1 || got["foo"] != foo {
		t.Errorf("Pick() = %v", got)
	}

	var nilOwner *Owner
	if len(nilOwner.Pick("foo")) != 0 {
		t.Error("nil owner should pick nothing")
	}
}

func TestCallable_ResolveInput(t *testing.T) {
	literal := Callable{Input: Fields{"a": 0}}
	if got := literal.ResolveInput(nil); got["a"] != 0 {
		t.Errorf("literal input = %v", got)
	}

	var seen *Owner
	dynamic := Callable{
		Input: Fields{"ignored": true},
		InputFunc: func(o *Owner) Fields {
			seen = o
			return Fields{"b": 1}
		},
	}
	owner := &Owner{Value: 42}
	got := dynamic.ResolveInput(owner)
	if _, ok := got["ignored"]; ok {
		t.Error("InputFunc should take precedence over Input")
	}
	if seen != owner {
		t.Error("InputFunc should receive the owner")
	}
}

func TestCall_Accessors(t *testing.T) {
	c := Call{Input: map[string]any{
		"f":   2.9,
		"i":   4,
		"n":   json.Number("12"),
		"s":   "str",
		"num": 5,
	}}
	if c.Int("f") != 2 || c.Int("i") != 4 || c.Int("n") != 12 || c.Int("missing") != 0 {
		t.Error("Int() conversions are wrong")
	}
	if c.String("s") != "str" || c.String("num") != "5" || c.String("missing") != "" {
		t.Error("String() conversions are wrong")
	}
	if c.Get("s") != "str" {
		t.Error("Get() = wrong value")
	}
}

func TestDefineVariable_ReadCache(t *testing.T) {
	reads := 0
	v := DefineVariable(Variable{Read: func(context.Context) (any, error) {
		reads++
		return reads, nil
	}})

	// Without a pass scope every read hits the source.
	ctx := context.Background()
	v.Read(ctx)
	v.Read(ctx)
	if reads != 2 {
		t.Fatalf("reads = %d, want 2", reads)
	}

	pass := WithReadCache(ctx)
	first, _ := v.Read(pass)
	second, _ := v.Read(pass)
	if first != second {
		t.Errorf("reads within one pass differ: %v vs %v", first, second)
	}
	if reads != 3 {
		t.Errorf("reads = %d, want 3", reads)
	}
	if WithReadCache(pass) != pass {
		t.Error("nested WithReadCache should reuse the pass scope")
	}

	// A new pass reads again.
	next, _ := v.Read(WithReadCache(ctx))
	if next == first {
		t.Error("a new pass should not see the previous pass cache")
	}
}

func TestDefineVariable_ReadErrorNotCached(t *testing.T) {
	fail := true
	v := DefineVariable(Variable{Read: func(context.Context) (any, error) {
		if fail {
			return nil, errors.New("unavailable")
		}
		return "ok", nil
	}})
	pass := WithReadCache(context.Background())
	if _, err := v.Read(pass); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	got, err := v.Read(pass)
	if err != nil || got != "ok" {
		t.Errorf("Read() = %v, %v; failed reads must not be cached", got, err)
	}
}

func TestVariable_PolicyAndWrite(t *testing.T) {
	v := DefineVariable(Variable{Read: func(context.Context) (any, error) { return nil, nil }})
	if v.CanWrite() {
		t.Error("CanWrite() = true without Write")
	}
	p := v.Policy()
	if !p.Enabled || !p.AllowCreate || !p.AllowUpdate || !p.AllowDelete || p.AutoApply == nil {
		t.Errorf("default policy = %+v", p)
	}

	custom := DefineVariable(Variable{
		Read:  func(context.Context) (any, error) { return nil, nil },
		Write: func(_ context.Context, v any, _ Caller) (any, error) { return v, nil },
		Patch: &PatchPolicy{Enabled: true},
	})
	if !custom.CanWrite() {
		t.Error("CanWrite() = false with Write")
	}
	if custom.Policy().AllowCreate || custom.Policy().AutoApply != nil {
		t.Error("explicit policy should not be merged with defaults")
	}
}

func TestPatchPolicy_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(DefaultPatchPolicy())
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	want := `{"enabled":true,"allowCreate":true,"allowUpdate":true,"allowDelete":true,"autoApply":true}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}

func TestOperation_MarshalJSON(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{Operation{Op: OpAdd, Path: "/a", Value: nil}, `{"op":"add","path":"/a","value":null}`},
		{Operation{Op: OpReplace, Path: "/foo", Value: 456}, `{"op":"replace","path":"/foo","value":456}`},
		{Operation{Op: OpRemove, Path: "/foo", Value: "ignored"}, `{"op":"remove","path":"/foo"}`},
		{Operation{Op: OpMove, From: "/a", Path: "/b"}, `{"op":"move","from":"/a","path":"/b"}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.op)
		if err != nil {
			t.Fatalf("Marshal error = %v", err)
		}
		if string(b) != tt.want {
			t.Errorf("json = %s, want %s", b, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	base := Errorf(ErrNotWritable, "data", "variable has no write")
	wrapped := fmt.Errorf("dispatch: %w", base)

	if KindOf(wrapped) != ErrNotWritable {
		t.Errorf("KindOf(wrapped) = %q", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("unclassified errors should have no kind")
	}
	if base.Error() != `NotWritable "data": variable has no write` {
		t.Errorf("Error() = %q", base.Error())
	}

	inner := errors.New("disk full")
	withCause := &Error{Kind: ErrPatchHookFailure, Err: inner}
	if !errors.Is(withCause, inner) {
		t.Error("Unwrap should expose the cause")
	}
}
