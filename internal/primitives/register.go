// Package primitives implements EVL's host-callable primitive
// functions: one small file per concern, registered through a single
// table-building entry point. Each primitive is bound directly into
// its Variable's function-namespace cell, so a primitive is reached
// exactly the way a user-defined function is, through the same
// function-cell/lexical-frame lookup path.
package primitives

import (
	"fmt"

	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// Register interns every primitive's canonical name in t and binds its
// function-namespace cell to the corresponding *object.PrimitiveFunction.
// INITIALIZE (internal/host) calls this once per fresh session.
func Register(t *symtab.Table) {
	registerArithmetic(t)
	registerComparison(t)
	registerCollections(t)
	registerVariables(t)
	registerControl(t)
}

// bind interns name and sets its function cell to fn.
func bind(t *symtab.Table, name string, fn *object.PrimitiveFunction) {
	t.Variable(name).SetFunction(fn)
}

func prim(name string, min, max int, f func([]object.Value) (object.Value, error)) *object.PrimitiveFunction {
	return &object.PrimitiveFunction{Name: name, MinArity: min, MaxArity: max, Fn: f}
}

func asNumber(op string, v object.Value) (float64, error) {
	n, ok := v.(*object.Number)
	if !ok {
		return 0, &everror.EvaluatorError{Message: fmt.Sprintf("%s: expected a number, got %s", op, v.Kind())}
	}
	return n.Value, nil
}
