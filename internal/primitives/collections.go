package primitives

import (
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// registerCollections binds the list and vector operations: the
// minimal Lisp kernel (cons/car/cdr/list/null?/pair?) plus the vector
// counterparts a teaching evaluator needs to exercise object.Vector.
func registerCollections(t *symtab.Table) {
	bind(t, "_cons", prim("_cons", 2, 2, func(a []object.Value) (object.Value, error) {
		return object.NewCons(a[0], a[1]), nil
	}))
	bind(t, "_car", prim("_car", 1, 1, func(a []object.Value) (object.Value, error) {
		c, ok := a[0].(*object.Cons)
		if !ok {
			return nil, notACons("_car", a[0])
		}
		return c.Car, nil
	}))
	bind(t, "_cdr", prim("_cdr", 1, 1, func(a []object.Value) (object.Value, error) {
		c, ok := a[0].(*object.Cons)
		if !ok {
			return nil, notACons("_cdr", a[0])
		}
		return c.Cdr, nil
	}))
	bind(t, "_set-car!", prim("_set-car!", 2, 2, func(a []object.Value) (object.Value, error) {
		c, ok := a[0].(*object.Cons)
		if !ok {
			return nil, notACons("_set-car!", a[0])
		}
		c.Car = a[1]
		return object.Void, nil
	}))
	bind(t, "_set-cdr!", prim("_set-cdr!", 2, 2, func(a []object.Value) (object.Value, error) {
		c, ok := a[0].(*object.Cons)
		if !ok {
			return nil, notACons("_set-cdr!", a[0])
		}
		c.Cdr = a[1]
		return object.Void, nil
	}))
	bind(t, "_list", prim("_list", 0, object.Unbounded, func(a []object.Value) (object.Value, error) {
		return object.SliceToList(a), nil
	}))
	bind(t, "_null?", prim("_null?", 1, 1, func(a []object.Value) (object.Value, error) {
		_, ok := a[0].(*object.EmptyListValue)
		return object.Bool(ok), nil
	}))
	bind(t, "_pair?", prim("_pair?", 1, 1, func(a []object.Value) (object.Value, error) {
		_, ok := a[0].(*object.Cons)
		return object.Bool(ok), nil
	}))
	bind(t, "_length", prim("_length", 1, 1, func(a []object.Value) (object.Value, error) {
		items, ok := object.ListToSlice(a[0])
		if !ok {
			return nil, &everror.EvaluatorError{Message: "_length: not a proper list"}
		}
		return object.NewNumber(float64(len(items))), nil
	}))

	bind(t, "_vector", prim("_vector", 0, object.Unbounded, func(a []object.Value) (object.Value, error) {
		items := append([]object.Value(nil), a...)
		return object.NewVector(items), nil
	}))
	bind(t, "_vector-ref", prim("_vector-ref", 2, 2, func(a []object.Value) (object.Value, error) {
		v, ok := a[0].(*object.Vector)
		if !ok {
			return nil, notAVector("_vector-ref", a[0])
		}
		i, err := vectorIndex("_vector-ref", a[1], len(v.Items))
		if err != nil {
			return nil, err
		}
		return v.Items[i], nil
	}))
	bind(t, "_vector-set!", prim("_vector-set!", 3, 3, func(a []object.Value) (object.Value, error) {
		v, ok := a[0].(*object.Vector)
		if !ok {
			return nil, notAVector("_vector-set!", a[0])
		}
		i, err := vectorIndex("_vector-set!", a[1], len(v.Items))
		if err != nil {
			return nil, err
		}
		v.Items[i] = a[2]
		return object.Void, nil
	}))
	bind(t, "_vector-length", prim("_vector-length", 1, 1, func(a []object.Value) (object.Value, error) {
		v, ok := a[0].(*object.Vector)
		if !ok {
			return nil, notAVector("_vector-length", a[0])
		}
		return object.NewNumber(float64(len(v.Items))), nil
	}))
}

func notACons(op string, v object.Value) error {
	return &everror.EvaluatorError{Message: op + ": expected a cons, got " + v.Kind().String()}
}

func notAVector(op string, v object.Value) error {
	return &everror.EvaluatorError{Message: op + ": expected a vector, got " + v.Kind().String()}
}

func vectorIndex(op string, v object.Value, length int) (int, error) {
	n, err := asNumber(op, v)
	if err != nil {
		return 0, err
	}
	i := int(n)
	if float64(i) != n || i < 0 || i >= length {
		return 0, &everror.EvaluatorError{Message: op + ": index out of range"}
	}
	return i, nil
}
