package primitives_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/primitives"
	"github.com/evl-lang/evl/internal/symtab"
)

func call(t *testing.T, tab *symtab.Table, name string, args ...object.Value) (object.Value, error) {
	t.Helper()
	v, ok := tab.LookupVariable(name)
	if !ok || !v.HasFunction() {
		t.Fatalf("primitive %q is not registered", name)
	}
	fn, ok := v.GetFunction().(*object.PrimitiveFunction)
	if !ok {
		t.Fatalf("%q's function cell is not a PrimitiveFunction", name)
	}
	if !fn.AcceptsArity(len(args)) {
		t.Fatalf("%q does not accept %d arguments", name, len(args))
	}
	return fn.Fn(args)
}

func num(v float64) object.Value { return object.NewNumber(v) }

func TestArithmeticPrimitives(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	cases := []struct {
		name string
		args []object.Value
		want string
	}{
		{"_+", []object.Value{num(1), num(2), num(3)}, "6"},
		{"_-", []object.Value{num(10), num(3), num(2)}, "5"},
		{"_-", []object.Value{num(5)}, "-5"},
		{"_*", []object.Value{num(2), num(3), num(4)}, "24"},
		{"_/", []object.Value{num(12), num(2), num(3)}, "2"},
	}
	for _, c := range cases {
		got, err := call(t, tab, c.name, c.args...)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got.String() != c.want {
			t.Errorf("%s(%v) = %s, want %s", c.name, c.args, got.String(), c.want)
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)
	if _, err := call(t, tab, "_/", num(1), num(0)); err == nil {
		t.Fatal("expected a division-by-zero error")
	}
}

func TestComparisonChaining(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	got, err := call(t, tab, "_<", num(1), num(2), num(3))
	if err != nil {
		t.Fatalf("_<: %v", err)
	}
	if got != object.True {
		t.Error("(_< 1 2 3) should be true")
	}

	got, err = call(t, tab, "_<", num(1), num(3), num(2))
	if err != nil {
		t.Fatalf("_<: %v", err)
	}
	if got != object.False {
		t.Error("(_< 1 3 2) should be false")
	}
}

func TestEqualityPredicatesDiffer(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	a := object.SliceToList([]object.Value{num(1), num(2)})
	b := object.SliceToList([]object.Value{num(1), num(2)})

	eq, err := call(t, tab, "_eq?", a, b)
	if err != nil {
		t.Fatalf("_eq?: %v", err)
	}
	if eq != object.False {
		t.Error("two freshly built equal-but-distinct lists should not be _eq?")
	}
	eqSame, err := call(t, tab, "_eq?", a, a)
	if err != nil {
		t.Fatalf("_eq?: %v", err)
	}
	if eqSame != object.True {
		t.Error("a value should be _eq? to itself")
	}

	eql, err := call(t, tab, "_eql?", a, b)
	if err != nil {
		t.Fatalf("_eql?: %v", err)
	}
	if eql != object.False {
		t.Error("_eql? must not recurse into cons structure")
	}

	equal, err := call(t, tab, "_equal?", a, b)
	if err != nil {
		t.Fatalf("_equal?: %v", err)
	}
	if equal != object.True {
		t.Error("two structurally equal lists should be _equal?")
	}
}

func TestEqIsReferenceIdentityForNumbers(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	n1, n2 := num(5), num(5)
	eqNum, err := call(t, tab, "_eq?", n1, n2)
	if err != nil {
		t.Fatalf("_eq?: %v", err)
	}
	if eqNum != object.False {
		t.Error("two separately built numbers are distinct references, not _eq?")
	}

	eqlNum, err := call(t, tab, "_eql?", n1, n2)
	if err != nil {
		t.Fatalf("_eql?: %v", err)
	}
	if eqlNum != object.True {
		t.Error("equal-valued numbers should be _eql?")
	}
}

func TestEqlComparesAtomsByContent(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	cases := []struct {
		name string
		a, b object.Value
		want *object.BooleanValue
	}{
		{"strings by content", object.NewString("hi"), object.NewString("hi"), object.True},
		{"strings differing", object.NewString("hi"), object.NewString("ho"), object.False},
		{"characters by code unit", object.NewCharacter('a'), object.NewCharacter('a'), object.True},
		{"booleans are singletons", object.True, object.Bool(true), object.True},
		{"void is a singleton", object.Void, object.Void, object.True},
	}
	for _, c := range cases {
		got, err := call(t, tab, "_eql?", c.a, c.b)
		if err != nil {
			t.Fatalf("%s: _eql?: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestConsCarCdr(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	pair, err := call(t, tab, "_cons", num(1), num(2))
	if err != nil {
		t.Fatalf("_cons: %v", err)
	}
	car, err := call(t, tab, "_car", pair)
	if err != nil {
		t.Fatalf("_car: %v", err)
	}
	if car.String() != "1" {
		t.Errorf("_car = %s, want 1", car.String())
	}
	cdr, err := call(t, tab, "_cdr", pair)
	if err != nil {
		t.Fatalf("_cdr: %v", err)
	}
	if cdr.String() != "2" {
		t.Errorf("_cdr = %s, want 2", cdr.String())
	}
}

func TestSetCarSetCdrMutateInPlace(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	pair, _ := call(t, tab, "_cons", num(1), num(2))
	if _, err := call(t, tab, "_set-car!", pair, num(9)); err != nil {
		t.Fatalf("_set-car!: %v", err)
	}
	if pair.(*object.Cons).Car.String() != "9" {
		t.Error("_set-car! should mutate the cons in place")
	}
}

func TestNullAndPairPredicates(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	isNull, _ := call(t, tab, "_null?", object.EmptyList)
	if isNull != object.True {
		t.Error("_null? on the empty list should be true")
	}
	pair, _ := call(t, tab, "_cons", num(1), object.EmptyList)
	isPair, _ := call(t, tab, "_pair?", pair)
	if isPair != object.True {
		t.Error("_pair? on a cons should be true")
	}
}

func TestLengthRejectsImproperList(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)
	dotted, _ := call(t, tab, "_cons", num(1), num(2))
	if _, err := call(t, tab, "_length", dotted); err == nil {
		t.Fatal("_length should reject a dotted pair")
	}
}

func TestVectorOperations(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)

	vec, err := call(t, tab, "_vector", num(1), num(2), num(3))
	if err != nil {
		t.Fatalf("_vector: %v", err)
	}
	length, _ := call(t, tab, "_vector-length", vec)
	if length.String() != "3" {
		t.Errorf("_vector-length = %s, want 3", length.String())
	}
	ref, err := call(t, tab, "_vector-ref", vec, num(1))
	if err != nil {
		t.Fatalf("_vector-ref: %v", err)
	}
	if ref.String() != "2" {
		t.Errorf("_vector-ref = %s, want 2", ref.String())
	}
	if _, err := call(t, tab, "_vector-set!", vec, num(1), num(42)); err != nil {
		t.Fatalf("_vector-set!: %v", err)
	}
	ref2, _ := call(t, tab, "_vector-ref", vec, num(1))
	if ref2.String() != "42" {
		t.Errorf("after _vector-set!, _vector-ref = %s, want 42", ref2.String())
	}
}

func TestVectorRefOutOfRange(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)
	vec, _ := call(t, tab, "_vector", num(1))
	if _, err := call(t, tab, "_vector-ref", vec, num(5)); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}

func TestErrorPrimitiveSignals(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)
	_, err := call(t, tab, "_error", object.NewString("boom"))
	if err == nil {
		t.Fatal("_error should return a non-nil error")
	}
}

func TestValuesBuildsMultiValue(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)
	v, err := call(t, tab, "_values", num(1), num(2), num(3))
	if err != nil {
		t.Fatalf("_values: %v", err)
	}
	mv, ok := v.(*object.MultiValue)
	if !ok || len(mv.Values) != 3 {
		t.Fatalf("_values should build a 3-element MultiValue, got %v", v)
	}
}

func TestBoundPredicates(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)
	v := tab.Variable("unbound-thing")

	boundVal, err := call(t, tab, "_bound-value?", v)
	if err != nil {
		t.Fatalf("_bound-value?: %v", err)
	}
	if boundVal != object.False {
		t.Error("a fresh variable should report unbound in the value namespace")
	}

	v.SetValue(num(1))
	boundVal2, _ := call(t, tab, "_bound-value?", v)
	if boundVal2 != object.True {
		t.Error("after SetValue, _bound-value? should report true")
	}

	name, err := call(t, tab, "_variable-name", v)
	if err != nil {
		t.Fatalf("_variable-name: %v", err)
	}
	if name.(*object.String).Value != "unbound-thing" {
		t.Errorf("_variable-name = %v, want unbound-thing", name)
	}
}
