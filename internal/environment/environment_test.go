package environment_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/environment"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

func TestGetValueFallsThroughToGlobalCell(t *testing.T) {
	tab := symtab.New()
	v := tab.Variable("x")
	v.SetValue(object.NewNumber(1))

	got, err := environment.GetValue(nil, v)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if got.String() != "1" {
		t.Errorf("got %s, want 1", got.String())
	}
}

func TestGetValueUnboundReportsError(t *testing.T) {
	tab := symtab.New()
	v := tab.Variable("y")
	if _, err := environment.GetValue(nil, v); err == nil {
		t.Fatal("expected an UnboundVariable error")
	}
}

func TestFrameShadowsGlobal(t *testing.T) {
	tab := symtab.New()
	v := tab.Variable("x")
	v.SetValue(object.NewNumber(1))

	frame := environment.Extend(object.ValueNamespace, []*object.Variable{v}, []object.Value{object.NewNumber(2)}, nil)
	got, err := environment.GetValue(frame, v)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if got.String() != "2" {
		t.Errorf("got %s, want the frame-bound 2, not the global 1", got.String())
	}

	// Global binding is untouched.
	if v.GetValue().String() != "1" {
		t.Error("frame binding should not mutate the global cell")
	}
}

func TestSetValueUpdatesInnermostBinding(t *testing.T) {
	tab := symtab.New()
	v := tab.Variable("x")

	inner := environment.Extend(object.ValueNamespace, []*object.Variable{v}, []object.Value{object.NewNumber(1)}, nil)
	outer := environment.Extend(object.ValueNamespace, []*object.Variable{v}, []object.Value{object.NewNumber(99)}, inner)

	environment.SetValue(outer, v, object.NewNumber(2))
	got, _ := environment.GetValue(outer, v)
	if got.String() != "2" {
		t.Errorf("SetValue should update the frame nearest to outer's chain start, got %s", got.String())
	}
	// The inner frame's own slot must be unaffected.
	if inner.Slots[0].String() != "1" {
		t.Error("SetValue mutated a frame other than the innermost matching one")
	}
}

func TestValueAndFunctionNamespacesAreIndependent(t *testing.T) {
	tab := symtab.New()
	v := tab.Variable("f")

	valFrame := environment.Extend(object.ValueNamespace, []*object.Variable{v}, []object.Value{object.NewNumber(1)}, nil)

	// Looking up v in the function namespace should skip the
	// value-namespace frame entirely, even though it's on the chain.
	if _, err := environment.GetFunction(valFrame, v); err == nil {
		t.Fatal("GetFunction found a binding through a value-namespace frame")
	}

	environment.SetFunction(valFrame, v, object.NewNumber(42))
	got, err := environment.GetFunction(valFrame, v)
	if err != nil {
		t.Fatalf("GetFunction: %v", err)
	}
	if got.String() != "42" {
		t.Errorf("got %s, want 42", got.String())
	}
}
