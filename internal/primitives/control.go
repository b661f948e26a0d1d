package primitives

import (
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// registerControl binds `_error` (signals a catchable EvaluatorError)
// and `_values` (builds the MultiValue a multiple-value-call/-apply
// caller spreads).
func registerControl(t *symtab.Table) {
	bind(t, "_error", prim("_error", 1, object.Unbounded, errorFn))
	bind(t, "_values", prim("_values", 0, object.Unbounded, valuesFn))
}

func errorFn(args []object.Value) (object.Value, error) {
	msg, ok := args[0].(*object.String)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "_error: first argument must be a string"}
	}
	return nil, &everror.EvaluatorError{Message: msg.Value}
}

func valuesFn(args []object.Value) (object.Value, error) {
	return object.NewMultiValue(append([]object.Value(nil), args...)), nil
}
