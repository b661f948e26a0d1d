// Package trampolinepp implements EVL's sixth evaluator strategy:
// trampoline's bounce loop, driven over a
// form preprocessed once into an internal/pp.Node tree instead of
// re-dispatching on a head symbol at every step. Lexically-scoped
// variable references compile to a direct frame-chain walk when their
// binder is statically known, and
// a call whose operator position is an _flambda applied to _mlambda
// operands is recognized as a scope-local macro and expanded inline at
// preprocess time rather than at every call. _for-each is not
// implemented by this strategy, matching trampoline.
package trampolinepp

import (
	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/pp"
)

// Evaluator is the trampoline++ evaluator.
type Evaluator struct {
	rt *pp.Runtime
}

// New creates a trampoline++ evaluator. abort may be nil.
func New(abort *eval.AbortFlag) *Evaluator {
	return &Evaluator{rt: pp.NewRuntime(abort)}
}

// Eval preprocesses form once and drives it to a value. Preprocessing
// happens fresh per call (the node cache that actually pays for itself
// across iterations lives on closures, populated once per closure
// instance and reused on every later call to it — the shape a
// self-tail-recursive loop takes).
func (e *Evaluator) Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error) {
	node, err := pp.Preprocess(form)
	if err != nil {
		return nil, err
	}
	return e.rt.Run(node, lex, dyn)
}
