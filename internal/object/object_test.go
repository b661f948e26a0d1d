package object_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/object"
)

func TestSingletonsAreSharedByValue(t *testing.T) {
	if object.Bool(true) != object.True {
		t.Error("Bool(true) is not the True singleton")
	}
	if object.Bool(false) != object.False {
		t.Error("Bool(false) is not the False singleton")
	}
}

func TestStringRoundTrip(t *testing.T) {
	cases := []struct {
		v    object.Value
		want string
	}{
		{object.Void, "#v"},
		{object.True, "#t"},
		{object.False, "#f"},
		{object.NewNumber(3.5), "3.5"},
		{object.NewString("a\"b"), `"a\"b"`},
		{object.EmptyList, "()"},
		{object.NewVector([]object.Value{object.NewNumber(1), object.NewNumber(2)}), "#(1 2)"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestConsStringProperAndDotted(t *testing.T) {
	proper := object.NewCons(object.NewNumber(1), object.NewCons(object.NewNumber(2), object.EmptyList))
	if got := proper.String(); got != "(1 2)" {
		t.Errorf("proper list = %q, want (1 2)", got)
	}
	dotted := object.NewCons(object.NewNumber(1), object.NewNumber(2))
	if got := dotted.String(); got != "(1 . 2)" {
		t.Errorf("dotted pair = %q, want (1 . 2)", got)
	}
}

func TestIsProperList(t *testing.T) {
	proper := object.NewCons(object.NewNumber(1), object.NewCons(object.NewNumber(2), object.EmptyList))
	if !object.IsProperList(proper) {
		t.Error("proper list reported as improper")
	}
	dotted := object.NewCons(object.NewNumber(1), object.NewNumber(2))
	if object.IsProperList(dotted) {
		t.Error("dotted pair reported as proper")
	}
	if !object.IsProperList(object.EmptyList) {
		t.Error("empty list reported as improper")
	}
}

func TestListSliceRoundTrip(t *testing.T) {
	items := []object.Value{object.NewNumber(1), object.NewNumber(2), object.NewNumber(3)}
	list := object.SliceToList(items)
	got, ok := object.ListToSlice(list)
	if !ok {
		t.Fatal("ListToSlice reported not-a-proper-list for a freshly built list")
	}
	if len(got) != len(items) {
		t.Fatalf("len = %d, want %d", len(got), len(items))
	}
	for i := range items {
		if got[i].String() != items[i].String() {
			t.Errorf("item %d = %s, want %s", i, got[i].String(), items[i].String())
		}
	}
}

func TestListToSliceRejectsImproperList(t *testing.T) {
	dotted := object.NewCons(object.NewNumber(1), object.NewNumber(2))
	if _, ok := object.ListToSlice(dotted); ok {
		t.Error("ListToSlice accepted a dotted pair as a proper list")
	}
}

func TestPrimaryAndAllValues(t *testing.T) {
	bare := object.NewNumber(5)
	if object.PrimaryValue(bare) != bare {
		t.Error("PrimaryValue of a bare value should return itself")
	}
	if vals := object.AllValues(bare); len(vals) != 1 || vals[0] != bare {
		t.Error("AllValues of a bare value should be a one-element slice")
	}

	mv := object.NewMultiValue([]object.Value{object.NewNumber(1), object.NewNumber(2)})
	if object.PrimaryValue(mv) != mv.Values[0] {
		t.Error("PrimaryValue of a MultiValue should be its first element")
	}
	if vals := object.AllValues(mv); len(vals) != 2 {
		t.Errorf("AllValues of a 2-element MultiValue returned %d values", len(vals))
	}

	empty := object.NewMultiValue(nil)
	if object.PrimaryValue(empty) != object.Void {
		t.Error("PrimaryValue of an empty MultiValue should be Void")
	}
}

func TestVariableBindingCellsAreIndependent(t *testing.T) {
	v := &object.Variable{Name: "x"}
	if v.HasValue() || v.HasFunction() {
		t.Fatal("a fresh Variable should be unbound in both namespaces")
	}
	v.SetValue(object.NewNumber(1))
	if !v.HasValue() {
		t.Error("SetValue should bind the value cell")
	}
	if v.HasFunction() {
		t.Error("SetValue should not bind the function cell")
	}
	v.SetFunction(object.NewNumber(2))
	if v.GetValue().String() != "1" || v.GetFunction().String() != "2" {
		t.Error("value and function cells should hold independent bindings")
	}
}
