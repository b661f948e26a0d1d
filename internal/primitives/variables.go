package primitives

import (
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// registerVariables binds introspection over a Variable's global
// binding cells — the primitive-level surface
// a program needs to ask "is this bound?" without tripping
// UnboundVariable.
func registerVariables(t *symtab.Table) {
	bind(t, "_bound-value?", prim("_bound-value?", 1, 1, func(a []object.Value) (object.Value, error) {
		v, err := asVariable("_bound-value?", a[0])
		if err != nil {
			return nil, err
		}
		return object.Bool(v.HasValue()), nil
	}))
	bind(t, "_bound-function?", prim("_bound-function?", 1, 1, func(a []object.Value) (object.Value, error) {
		v, err := asVariable("_bound-function?", a[0])
		if err != nil {
			return nil, err
		}
		return object.Bool(v.HasFunction()), nil
	}))
	bind(t, "_variable-name", prim("_variable-name", 1, 1, func(a []object.Value) (object.Value, error) {
		v, err := asVariable("_variable-name", a[0])
		if err != nil {
			return nil, err
		}
		return object.NewString(v.Name), nil
	}))
}

func asVariable(op string, v object.Value) (*object.Variable, error) {
	vv, ok := v.(*object.Variable)
	if !ok {
		return nil, &everror.EvaluatorError{Message: op + ": expected a variable, got " + v.Kind().String()}
	}
	return vv, nil
}
