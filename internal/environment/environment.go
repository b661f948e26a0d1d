// Package environment implements frame-chain variable lookup and
// assignment over internal/object.Frame. It holds no
// state of its own: every evaluator threads its own *object.Frame
// chains (one lexical, one dynamic) and calls these functions to
// resolve or bind a Variable within them.
package environment

import (
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
)

// find walks the chain from frame outward, skipping frames whose
// namespace does not match ns, and linearly searching the ones that
// do. It returns the owning frame and slot index, or (nil, -1)
// if v is bound nowhere on the chain.
func find(frame *object.Frame, ns object.Namespace, v *object.Variable) (*object.Frame, int) {
	for f := frame; f != nil; f = f.Parent {
		if f.Namespace != ns {
			continue
		}
		if i := f.IndexOf(v); i >= 0 {
			return f, i
		}
	}
	return nil, -1
}

// GetValue resolves v in the value namespace: the frame chain first,
// falling through to v's global value cell, else UnboundVariable.
func GetValue(frame *object.Frame, v *object.Variable) (object.Value, error) {
	if f, i := find(frame, object.ValueNamespace, v); f != nil {
		return f.Slots[i], nil
	}
	if v.HasValue() {
		return v.GetValue(), nil
	}
	return nil, everror.NewUnboundVariable("value", v.Name)
}

// SetValue updates v's innermost value-namespace binding on frame's
// chain, or its global cell if unbound anywhere on the chain.
func SetValue(frame *object.Frame, v *object.Variable, val object.Value) {
	if f, i := find(frame, object.ValueNamespace, v); f != nil {
		f.Slots[i] = val
		return
	}
	v.SetValue(val)
}

// GetFunction resolves v in the function namespace.
func GetFunction(frame *object.Frame, v *object.Variable) (object.Value, error) {
	if f, i := find(frame, object.FunctionNamespace, v); f != nil {
		return f.Slots[i], nil
	}
	if v.HasFunction() {
		return v.GetFunction(), nil
	}
	return nil, everror.NewUnboundVariable("function", v.Name)
}

// SetFunction updates v's innermost function-namespace binding, or its
// global cell if unbound anywhere on the chain.
func SetFunction(frame *object.Frame, v *object.Variable, val object.Value) {
	if f, i := find(frame, object.FunctionNamespace, v); f != nil {
		f.Slots[i] = val
		return
	}
	v.SetFunction(val)
}

// Extend builds a new lexical-or-dynamic frame binding vars to vals,
// enclosed by parent. len(vars) must equal len(vals); callers build
// vals via internal/params before calling this.
func Extend(ns object.Namespace, vars []*object.Variable, vals []object.Value, parent *object.Frame) *object.Frame {
	return object.NewFrame(ns, vars, vals, parent)
}
