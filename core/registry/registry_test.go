package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/dapp-works/urpc/core/schema"
)

func makeFunc() *schema.Function {
	return schema.DefineFunction(schema.Function{
		Callable: schema.Callable{
			Input: schema.Fields{"a": 0},
			Invoke: func(ctx context.Context, call schema.Call) (any, error) {
				return nil, nil
			},
		},
	})
}

func makeVar() *schema.Variable {
	return schema.DefineVariable(schema.Variable{
		Read: func(ctx context.Context) (any, error) { return 1, nil },
	})
}

func TestNew_FlattensNestedTree(t *testing.T) {
	sum := makeFunc()
	data := makeVar()
	create := makeFunc()
	fruit := schema.DefineType(schema.TypeDescriptor{Default: "Banana"})

	r, err := New(schema.Tree{
		{Key: "sum", Node: sum},
		{Key: "object", Node: schema.Tree{
			{Key: "data", Node: data},
			{Key: "collections", Node: schema.Tree{
				{Key: "create", Node: create},
			}},
		}},
		{Key: "fruit", Node: fruit},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	wantPaths := []string{"sum", "object.data", "object.collections.create", "fruit"}
	gotPaths := r.Paths()
	if len(gotPaths) != len(wantPaths) {
		t.Fatalf("Paths() = %v, want %v", gotPaths, wantPaths)
	}
	for i := range wantPaths {
		if gotPaths[i] != wantPaths[i] {
			t.Errorf("Paths()[%d] = %q, want %q", i, gotPaths[i], wantPaths[i])
		}
	}

	if create.Path() != "object.collections.create" {
		t.Errorf("entity path = %q", create.Path())
	}
	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}
}

func TestNew_DuplicatePath(t *testing.T) {
	_, err := New(schema.Tree{
		{Key: "a", Node: schema.Tree{{Key: "b", Node: makeFunc()}}},
		{Key: "a", Node: schema.Tree{{Key: "b", Node: makeVar()}}},
	})
	if err == nil {
		t.Fatal("New() should fail on duplicate path")
	}

	var dup *DuplicatePathError
	if !errors.As(err, &dup) {
		t.Fatalf("error type = %T, want *DuplicatePathError", err)
	}
	if dup.Path != "a.b" {
		t.Errorf("Path = %q, want a.b", dup.Path)
	}
	if schema.KindOf(err) != schema.ErrDuplicatePath {
		t.Errorf("KindOf() = %q", schema.KindOf(err))
	}
}

func TestNew_SameEntityTwice(t *testing.T) {
	fn := makeFunc()
	_, err := New(schema.Tree{
		{Key: "first", Node: fn},
		{Key: "second", Node: fn},
	})
	if schema.KindOf(err) != schema.ErrInvalidDefinition {
		t.Errorf("KindOf() = %q, want InvalidDefinition (err = %v)", schema.KindOf(err), err)
	}
}

func TestNew_CopiedEntitySharesID(t *testing.T) {
	fn := makeFunc()
	// A struct copy of a defined entity keeps its id.
	copied := *fn
	_, err := New(schema.Tree{
		{Key: "first", Node: fn},
		{Key: "second", Node: &copied},
	})
	if err == nil {
		t.Fatal("New() should reject a shared id")
	}
	if schema.KindOf(err) != schema.ErrInvalidDefinition {
		t.Errorf("KindOf() = %q", schema.KindOf(err))
	}
}

func TestNew_InvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		tree schema.Tree
	}{
		{"variable without read", schema.Tree{{Key: "v", Node: schema.DefineVariable(schema.Variable{})}}},
		{"function without invoke", schema.Tree{{Key: "f", Node: schema.DefineFunction(schema.Function{})}}},
		{"action without invoke", schema.Tree{{Key: "a", Node: schema.DefineAction(schema.Action{})}}},
		{"not defined", schema.Tree{{Key: "f", Node: &schema.Function{Callable: schema.Callable{
			Invoke: func(context.Context, schema.Call) (any, error) { return nil, nil },
		}}}}},
		{"nil node", schema.Tree{{Key: "x", Node: nil}}},
		{"empty key", schema.Tree{{Key: "", Node: makeFunc()}}},
		{"dotted key", schema.Tree{{Key: "a.b", Node: makeFunc()}}},
		{"nil variable", schema.Tree{{Key: "v", Node: (*schema.Variable)(nil)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.tree)
			if err == nil {
				t.Fatal("New() should fail")
			}
			if r != nil {
				t.Error("registry must not become ready on error")
			}
			if schema.KindOf(err) != schema.ErrInvalidDefinition {
				t.Errorf("KindOf() = %q, want InvalidDefinition", schema.KindOf(err))
			}
		})
	}
}

func TestLookup_IDAndPathResolveSameInstance(t *testing.T) {
	data := makeVar()
	r := MustNew(schema.Tree{{Key: "data", Node: data}})

	byID, ok := r.Lookup(data.ID())
	if !ok {
		t.Fatal("Lookup(id) failed")
	}
	byPath, ok := r.Lookup("data")
	if !ok {
		t.Fatal("Lookup(path) failed")
	}
	if byID != byPath || byID != schema.Entity(data) {
		t.Error("id and path indices must resolve to the same instance")
	}

	if e, ok := r.ByID(data.ID()); !ok || e != schema.Entity(data) {
		t.Error("ByID() mismatch")
	}
	if e, ok := r.ByPath("data"); !ok || e != schema.Entity(data) {
		t.Error("ByPath() mismatch")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}
}

func TestLookup_IDTakesPrecedence(t *testing.T) {
	target := makeFunc()
	decoy := makeFunc()
	// Register decoy at a path equal to target's id.
	r := MustNew(schema.Tree{
		{Key: "real", Node: target},
		{Key: target.ID(), Node: decoy},
	})

	got, ok := r.Lookup(target.ID())
	if !ok || got != schema.Entity(target) {
		t.Error("Lookup should prefer the id index")
	}
}

func TestFilter(t *testing.T) {
	r := MustNew(schema.Tree{
		{Key: "sum", Node: makeFunc()},
		{Key: "object", Node: schema.Tree{
			{Key: "a", Node: makeVar()},
			{Key: "b", Node: makeFunc()},
		}},
		{Key: "objects", Node: makeVar()},
	})

	tests := []struct {
		prefix string
		want   int
	}{
		{"", 4},
		{"object", 2},
		{"object.", 2},
		{"object.a", 1},
		{"obj", 0},
		{"sum", 1},
	}
	for _, tt := range tests {
		if got := len(r.Filter(tt.prefix)); got != tt.want {
			t.Errorf("Filter(%q) = %d entities, want %d", tt.prefix, got, tt.want)
		}
	}
}

func TestEntities_ReturnsCopy(t *testing.T) {
	r := MustNew(schema.Tree{{Key: "sum", Node: makeFunc()}})
	list := r.Entities()
	list[0] = nil
	if r.Entities()[0] == nil {
		t.Error("Entities() should not expose internal slice")
	}
}

func TestMustNew_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustNew should panic on invalid tree")
		}
	}()
	MustNew(schema.Tree{{Key: "v", Node: schema.DefineVariable(schema.Variable{})}})
}
