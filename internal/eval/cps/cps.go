// Package cps implements EVL's second evaluator strategy: every eval
// step takes an explicit continuation function; results flow forward
// through continuation calls rather than back
// through Go return values. The host Go stack still grows with nested
// forms — nothing here is trampolined — but the *shape* of "what
// happens next" is reified as a Go closure at every step, which is the
// point of this strategy relative to plainrec's direct recursion.
package cps

import (
	"github.com/evl-lang/evl/internal/environment"
	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/formanalyzer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/params"
)

// Cont receives an evaluation result and produces the computation's
// final outcome; errors still propagate through ordinary Go returns
// rather than through a failure continuation.
type Cont func(object.Value) (object.Value, error)

// Evaluator is the closure-passing evaluator.
type Evaluator struct {
	Abort *eval.AbortFlag
}

// New creates a CPS evaluator. abort may be nil.
func New(abort *eval.AbortFlag) *Evaluator {
	return &Evaluator{Abort: abort}
}

// Eval evaluates form to completion, returning its value directly.
func (e *Evaluator) Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error) {
	return e.evalK(form, lex, dyn, identity)
}

func identity(v object.Value) (object.Value, error) { return v, nil }

func (e *Evaluator) evalK(form object.Value, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	if err := eval.CheckAbort(e.Abort); err != nil {
		return nil, err
	}
	switch v := form.(type) {
	case *object.VoidValue, *object.BooleanValue, *object.Number, *object.Character,
		*object.String, *object.Keyword, *object.Vector, *object.PrimitiveFunction, *object.Closure:
		return k(form)
	case *object.EmptyListValue:
		return nil, &everror.EvaluatorError{Message: "the empty list is not a form"}
	case *object.Variable:
		val, err := environment.GetValue(lex, v)
		if err != nil {
			return nil, err
		}
		return k(val)
	case *object.Cons:
		return e.evalConsK(v, lex, dyn, k)
	default:
		return nil, &everror.CannotHappen{Message: "unexpected value kind reached Eval"}
	}
}

func (e *Evaluator) evalConsK(c *object.Cons, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	if name, ok := formanalyzer.IsSpecialOperator(c); ok {
		return e.evalSpecialK(name, c, lex, dyn, k)
	}
	return e.evalCallK(c, lex, dyn, k)
}

func (e *Evaluator) evalSpecialK(name string, form object.Value, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	switch name {
	case "quote":
		f, err := formanalyzer.AnalyzeQuote(form)
		if err != nil {
			return nil, err
		}
		return k(f.Datum)

	case "progn":
		f, err := formanalyzer.AnalyzeProgn(form)
		if err != nil {
			return nil, err
		}
		return e.evalSeqK(f.Body, 0, lex, dyn, k)

	case "if":
		f, err := formanalyzer.AnalyzeIf(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Test, lex, dyn, func(test object.Value) (object.Value, error) {
			b, ok := object.PrimaryValue(test).(*object.BooleanValue)
			if !ok {
				return nil, &everror.EvaluatorError{Message: "test-form does not evaluate to a boolean"}
			}
			if b.Value {
				return e.evalK(f.Then, lex, dyn, k)
			}
			return e.evalK(f.Else, lex, dyn, k)
		})

	case "_vlambda":
		return e.evalLambdaK(formanalyzer.AnalyzeVLambda, form, lex, k)
	case "_mlambda":
		return e.evalLambdaK(formanalyzer.AnalyzeMLambda, form, lex, k)
	case "_flambda":
		return e.evalLambdaK(formanalyzer.AnalyzeFLambda, form, lex, k)
	case "_dlambda":
		return e.evalLambdaK(formanalyzer.AnalyzeDLambda, form, lex, k)

	case "vref":
		f, err := formanalyzer.AnalyzeVRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetValue(lex, f.Name)
		if err != nil {
			return nil, err
		}
		return k(val)
	case "fref":
		f, err := formanalyzer.AnalyzeFRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetFunction(lex, f.Name)
		if err != nil {
			return nil, err
		}
		return k(val)
	case "dref":
		f, err := formanalyzer.AnalyzeDRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetValue(dyn, f.Name)
		if err != nil {
			return nil, err
		}
		return k(val)

	case "vset!":
		f, err := formanalyzer.AnalyzeVSet(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Value, lex, dyn, func(val object.Value) (object.Value, error) {
			environment.SetValue(lex, f.Name, object.PrimaryValue(val))
			return k(object.Void)
		})
	case "fset!":
		f, err := formanalyzer.AnalyzeFSet(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Value, lex, dyn, func(val object.Value) (object.Value, error) {
			environment.SetFunction(lex, f.Name, object.PrimaryValue(val))
			return k(object.Void)
		})
	case "dset!":
		f, err := formanalyzer.AnalyzeDSet(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Value, lex, dyn, func(val object.Value) (object.Value, error) {
			environment.SetValue(dyn, f.Name, object.PrimaryValue(val))
			return k(object.Void)
		})

	case "_for-each":
		f, err := formanalyzer.AnalyzeForEach(form)
		if err != nil {
			return nil, err
		}
		return e.evalForEachK(f, lex, dyn, k)

	case "_catch-errors":
		f, err := formanalyzer.AnalyzeCatchErrors(form)
		if err != nil {
			return nil, err
		}
		_, err = e.Eval(f.Try, lex, dyn)
		if err == nil {
			return k(object.Void)
		}
		if _, aborted := err.(*everror.Aborted); aborted {
			return nil, err
		}
		if ee, ok := everror.AsError(err); ok {
			return k(object.NewString(string(ee.Kind())))
		}
		return k(object.NewString("Error"))

	case "apply":
		f, err := formanalyzer.AnalyzeApply(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Fn, lex, dyn, func(callee object.Value) (object.Value, error) {
			return e.evalArgsK(f.Args, lex, dyn, func(args []object.Value) (object.Value, error) {
				return e.evalK(f.Spread, lex, dyn, func(spread object.Value) (object.Value, error) {
					return e.applyCallableK(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn, k)
				})
			})
		})

	case "multiple-value-call":
		f, err := formanalyzer.AnalyzeMultipleValueCall(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Fn, lex, dyn, func(callee object.Value) (object.Value, error) {
			return e.evalAllValuesK(f.Operands, lex, dyn, func(args []object.Value) (object.Value, error) {
				return e.applyCallableK(object.PrimaryValue(callee), args, nil, false, dyn, k)
			})
		})

	case "multiple-value-apply":
		f, err := formanalyzer.AnalyzeMultipleValueApply(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Fn, lex, dyn, func(callee object.Value) (object.Value, error) {
			return e.evalAllValuesK(f.Operands, lex, dyn, func(args []object.Value) (object.Value, error) {
				return e.evalK(f.Spread, lex, dyn, func(spread object.Value) (object.Value, error) {
					return e.applyCallableK(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn, k)
				})
			})
		})

	default:
		return nil, &everror.CannotHappen{Message: "unrecognized special operator " + name}
	}
}

func (e *Evaluator) evalLambdaK(
	analyze func(object.Value) (*formanalyzer.LambdaForm, error),
	form object.Value,
	lex *object.Frame,
	k Cont,
) (object.Value, error) {
	f, err := analyze(form)
	if err != nil {
		return nil, err
	}
	return k(&object.Closure{
		Scope:     f.Kind.Scope(),
		Namespace: f.Kind.Namespace(),
		Macro:     f.Kind.Macro(),
		Params:    f.Params,
		Rest:      f.Rest,
		Body:      f.Body,
		Env:       lex,
	})
}

func (e *Evaluator) evalSeqK(body []object.Value, i int, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	if len(body) == 0 {
		return k(object.Void)
	}
	if i == len(body)-1 {
		return e.evalK(body[i], lex, dyn, k)
	}
	return e.evalK(body[i], lex, dyn, func(object.Value) (object.Value, error) {
		return e.evalSeqK(body, i+1, lex, dyn, k)
	})
}

func (e *Evaluator) evalForEachK(f *formanalyzer.ForEachForm, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	return e.evalK(f.Fn, lex, dyn, func(callee object.Value) (object.Value, error) {
		return e.evalK(f.List, lex, dyn, func(listVal object.Value) (object.Value, error) {
			items, ok := object.ListToSlice(object.PrimaryValue(listVal))
			if !ok {
				return nil, &everror.EvaluatorError{Message: "_for-each's second operand must be a proper list"}
			}
			return e.forEachStep(object.PrimaryValue(callee), items, 0, dyn, k)
		})
	})
}

func (e *Evaluator) forEachStep(callee object.Value, items []object.Value, i int, dyn *object.Frame, k Cont) (object.Value, error) {
	if i == len(items) {
		return k(object.Void)
	}
	return e.applyCallableK(callee, []object.Value{items[i]}, nil, false, dyn, func(object.Value) (object.Value, error) {
		return e.forEachStep(callee, items, i+1, dyn, k)
	})
}

// evalArgsK evaluates forms left-to-right, projecting each to its
// primary value, then invokes k with the accumulated argument slice.
func (e *Evaluator) evalArgsK(forms []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	return e.evalArgsFromK(forms, 0, make([]object.Value, len(forms)), lex, dyn, k)
}

func (e *Evaluator) evalArgsFromK(forms []object.Value, i int, acc []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	if i == len(forms) {
		return k(acc)
	}
	return e.evalK(forms[i], lex, dyn, func(v object.Value) (object.Value, error) {
		acc[i] = object.PrimaryValue(v)
		return e.evalArgsFromK(forms, i+1, acc, lex, dyn, k)
	})
}

// evalAllValuesK evaluates forms left-to-right, flattening each
// operand's full value set into the accumulated argument slice.
func (e *Evaluator) evalAllValuesK(forms []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	return e.evalAllValuesFromK(forms, 0, nil, lex, dyn, k)
}

func (e *Evaluator) evalAllValuesFromK(forms []object.Value, i int, acc []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	if i == len(forms) {
		return k(acc)
	}
	return e.evalK(forms[i], lex, dyn, func(v object.Value) (object.Value, error) {
		return e.evalAllValuesFromK(forms, i+1, append(acc, object.AllValues(v)...), lex, dyn, k)
	})
}

func (e *Evaluator) evalCallK(c *object.Cons, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	items, ok := object.ListToSlice(c)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "a call form must be a proper list"}
	}
	if len(items) == 0 {
		return nil, &everror.CannotHappen{Message: "empty call form reached evalCall"}
	}
	headForm, operandForms := items[0], items[1:]

	resolveHead := func(cont func(object.Value) (object.Value, error)) (object.Value, error) {
		if headVar, ok := headForm.(*object.Variable); ok {
			callee, err := environment.GetFunction(lex, headVar)
			if err != nil {
				return nil, err
			}
			return cont(callee)
		}
		return e.evalK(headForm, lex, dyn, cont)
	}

	return resolveHead(func(callee object.Value) (object.Value, error) {
		callee = object.PrimaryValue(callee)
		if cl, ok := callee.(*object.Closure); ok && cl.Macro {
			return e.applyCallableK(cl, operandForms, nil, false, dyn, func(expansion object.Value) (object.Value, error) {
				return e.evalK(expansion, lex, dyn, k)
			})
		}
		return e.evalArgsK(operandForms, lex, dyn, func(args []object.Value) (object.Value, error) {
			return e.applyCallableK(callee, args, nil, false, dyn, k)
		})
	})
}

// applyCallableK binds args (plus, when hasSpread, spread's elements)
// to callee's parameters and evaluates its body with k as the body's
// final continuation — the defining CPS move: the callee's result
// continuation IS the caller's continuation, not a fresh return point.
func (e *Evaluator) applyCallableK(callee object.Value, args []object.Value, spread object.Value, hasSpread bool, dyn *object.Frame, k Cont) (object.Value, error) {
	switch c := callee.(type) {
	case *object.PrimitiveFunction:
		all := args
		if hasSpread {
			items, ok := object.ListToSlice(spread)
			if !ok {
				return nil, &everror.EvaluatorError{
					Sub:     everror.MalformedSpreadableSequenceOfObjects,
					Message: "apply's final operand must be a proper list",
				}
			}
			all = append(append([]object.Value(nil), args...), items...)
		}
		if !c.AcceptsArity(len(all)) {
			if len(all) < c.MinArity {
				return nil, &everror.EvaluatorError{Sub: everror.TooFewArguments, Message: c.Name + ": too few arguments"}
			}
			return nil, &everror.EvaluatorError{Sub: everror.TooManyArguments, Message: c.Name + ": too many arguments"}
		}
		v, err := c.Fn(all)
		if err != nil {
			return nil, err
		}
		return k(v)

	case *object.Closure:
		var slots []object.Value
		var err error
		if hasSpread {
			slots, err = params.PairApply(c.Params, c.Rest, args, spread)
		} else {
			slots, err = params.PairCall(c.Params, c.Rest, args)
		}
		if err != nil {
			return nil, err
		}
		vars := c.Params
		if c.Rest != nil {
			vars = append(append([]*object.Variable(nil), c.Params...), c.Rest)
		}
		switch c.Scope {
		case object.LexicalScope:
			newLex := environment.Extend(c.Namespace, vars, slots, c.Env)
			return e.evalSeqK(c.Body, 0, newLex, dyn, k)
		default: // DynamicScope
			newDyn := environment.Extend(object.ValueNamespace, vars, slots, dyn)
			return e.evalSeqK(c.Body, 0, c.Env, newDyn, k)
		}

	default:
		return nil, &everror.EvaluatorError{Message: "attempt to call a non-callable value"}
	}
}
