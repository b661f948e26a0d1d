package primitives

import (
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// registerComparison binds the numeric ordering predicates plus the
// three equality predicates: `_eq?` is reference identity, `_eql?` is
// identity for most kinds but by-content for Number, Character, and
// String, and `_equal?` additionally recurses into cons/vector
// structure with `_eql?` at the leaves.
func registerComparison(t *symtab.Table) {
	bind(t, "_=", prim("_=", 1, object.Unbounded, numChain(func(a, b float64) bool { return a == b })))
	bind(t, "_<", prim("_<", 1, object.Unbounded, numChain(func(a, b float64) bool { return a < b })))
	bind(t, "_>", prim("_>", 1, object.Unbounded, numChain(func(a, b float64) bool { return a > b })))
	bind(t, "_<=", prim("_<=", 1, object.Unbounded, numChain(func(a, b float64) bool { return a <= b })))
	bind(t, "_>=", prim("_>=", 1, object.Unbounded, numChain(func(a, b float64) bool { return a >= b })))
	bind(t, "_eq?", prim("_eq?", 2, 2, eqFn))
	bind(t, "_eql?", prim("_eql?", 2, 2, eqlFn))
	bind(t, "_equal?", prim("_equal?", 2, 2, equalFn))
}

// numChain builds a variadic primitive testing ok(args[i], args[i+1])
// across every adjacent pair, mirroring Lisp's chained comparison
// convention ((_< 1 2 3) is true iff 1<2 and 2<3).
func numChain(ok func(a, b float64) bool) func([]object.Value) (object.Value, error) {
	return func(args []object.Value) (object.Value, error) {
		prev, err := asNumber("comparison", args[0])
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			n, err := asNumber("comparison", a)
			if err != nil {
				return nil, err
			}
			if !ok(prev, n) {
				return object.False, nil
			}
			prev = n
		}
		return object.True, nil
	}
}

func eqFn(args []object.Value) (object.Value, error) {
	return object.Bool(args[0] == args[1]), nil
}

func eqlFn(args []object.Value) (object.Value, error) {
	return object.Bool(eqlValue(args[0], args[1])), nil
}

func equalFn(args []object.Value) (object.Value, error) {
	return object.Bool(structEqual(args[0], args[1])), nil
}

// eqlValue is identity for most kinds; Number, Character, and String
// compare by content. Plain `==` over the Value interface is pointer
// identity for every kind, which already covers the singletons and
// the interned symbols.
func eqlValue(a, b object.Value) bool {
	switch x := a.(type) {
	case *object.Number:
		y, ok := b.(*object.Number)
		return ok && x.Value == y.Value
	case *object.Character:
		y, ok := b.(*object.Character)
		return ok && x.CodeUnit == y.CodeUnit
	case *object.String:
		y, ok := b.(*object.String)
		return ok && x.Value == y.Value
	default:
		return a == b
	}
}

// structEqual recurses into Cons and Vector structure; every other
// kind falls back to eqlValue.
func structEqual(a, b object.Value) bool {
	switch x := a.(type) {
	case *object.Cons:
		y, ok := b.(*object.Cons)
		return ok && structEqual(x.Car, y.Car) && structEqual(x.Cdr, y.Cdr)
	case *object.Vector:
		y, ok := b.(*object.Vector)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !structEqual(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	default:
		return eqlValue(a, b)
	}
}
