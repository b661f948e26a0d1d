package primitives

import (
	"fmt"

	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// registerArithmetic binds `_+`, `_-`, `_*`, `_/`, each variadic over
// one or more numbers (source-level `+` is an alias a prelude can
// install with fset!).
func registerArithmetic(t *symtab.Table) {
	bind(t, "_+", prim("_+", 1, object.Unbounded, addFn))
	bind(t, "_-", prim("_-", 1, object.Unbounded, subFn))
	bind(t, "_*", prim("_*", 1, object.Unbounded, mulFn))
	bind(t, "_/", prim("_/", 1, object.Unbounded, divFn))
}

func addFn(args []object.Value) (object.Value, error) {
	sum := 0.0
	for _, a := range args {
		n, err := asNumber("_+", a)
		if err != nil {
			return nil, err
		}
		sum += n
	}
	return object.NewNumber(sum), nil
}

func subFn(args []object.Value) (object.Value, error) {
	first, err := asNumber("_-", args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return object.NewNumber(-first), nil
	}
	for _, a := range args[1:] {
		n, err := asNumber("_-", a)
		if err != nil {
			return nil, err
		}
		first -= n
	}
	return object.NewNumber(first), nil
}

func mulFn(args []object.Value) (object.Value, error) {
	product := 1.0
	for _, a := range args {
		n, err := asNumber("_*", a)
		if err != nil {
			return nil, err
		}
		product *= n
	}
	return object.NewNumber(product), nil
}

func divFn(args []object.Value) (object.Value, error) {
	first, err := asNumber("_/", args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		if first == 0 {
			return nil, divByZero("_/")
		}
		return object.NewNumber(1 / first), nil
	}
	for _, a := range args[1:] {
		n, err := asNumber("_/", a)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, divByZero("_/")
		}
		first /= n
	}
	return object.NewNumber(first), nil
}

func divByZero(op string) error {
	return &everror.EvaluatorError{Message: fmt.Sprintf("%s: division by zero", op)}
}
