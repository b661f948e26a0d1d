// Package oocps implements EVL's third evaluator strategy: identical
// operational semantics to cps, but every
// continuation is a tagged record with an Invoke operation instead of
// an opaque Go closure, so the set of live continuation shapes is
// enumerable (each concrete type's Tag names its shape) rather than
// hidden inside captured closure state.
package oocps

import (
	"github.com/evl-lang/evl/internal/environment"
	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/formanalyzer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/params"
)

// Cont is implemented by every continuation record.
type Cont interface {
	Invoke(v object.Value) (object.Value, error)
	Tag() string
}

// Evaluator is the object-oriented CPS evaluator.
type Evaluator struct {
	Abort *eval.AbortFlag
}

// New creates an OO-CPS evaluator. abort may be nil.
func New(abort *eval.AbortFlag) *Evaluator {
	return &Evaluator{Abort: abort}
}

// Eval evaluates form to completion, returning its value directly.
func (e *Evaluator) Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error) {
	return e.evalK(form, lex, dyn, identityCont{})
}

type identityCont struct{}

func (identityCont) Invoke(v object.Value) (object.Value, error) { return v, nil }
func (identityCont) Tag() string                                 { return "identity" }

func (e *Evaluator) evalK(form object.Value, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	if err := eval.CheckAbort(e.Abort); err != nil {
		return nil, err
	}
	switch v := form.(type) {
	case *object.VoidValue, *object.BooleanValue, *object.Number, *object.Character,
		*object.String, *object.Keyword, *object.Vector, *object.PrimitiveFunction, *object.Closure:
		return k.Invoke(form)
	case *object.EmptyListValue:
		return nil, &everror.EvaluatorError{Message: "the empty list is not a form"}
	case *object.Variable:
		val, err := environment.GetValue(lex, v)
		if err != nil {
			return nil, err
		}
		return k.Invoke(val)
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

// ---- continuation records ------------------------------------------------

type ifCont struct {
	e         *Evaluator
	then, els object.Value
	lex, dyn  *object.Frame
	k         Cont
}

func (c *ifCont) Tag() string { return "if" }
func (c *ifCont) Invoke(test object.Value) (object.Value, error) {
	b, ok := object.PrimaryValue(test).(*object.BooleanValue)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "test-form does not evaluate to a boolean"}
	}
	if b.Value {
		return c.e.evalK(c.then, c.lex, c.dyn, c.k)
	}
	return c.e.evalK(c.els, c.lex, c.dyn, c.k)
}

type seqCont struct {
	e        *Evaluator
	body     []object.Value
	i        int
	lex, dyn *object.Frame
	k        Cont
}

func (c *seqCont) Tag() string { return "seq" }
func (c *seqCont) Invoke(object.Value) (object.Value, error) {
	return c.e.evalSeqK(c.body, c.i+1, c.lex, c.dyn, c.k)
}

// assignCont stores a value into one of the three namespaces once its
// right-hand side has been evaluated.
type assignCont struct {
	ns    string // "value", "function", "dynamic"
	frame *object.Frame
	name  *object.Variable
	k     Cont
}

func (c *assignCont) Tag() string { return "assign:" + c.ns }
func (c *assignCont) Invoke(val object.Value) (object.Value, error) {
	val = object.PrimaryValue(val)
	switch c.ns {
	case "value", "dynamic":
		environment.SetValue(c.frame, c.name, val)
	case "function":
		environment.SetFunction(c.frame, c.name, val)
	}
	return c.k.Invoke(object.Void)
}

// argCont accumulates positional argument values one at a time.
type argCont struct {
	e        *Evaluator
	forms    []object.Value
	i        int
	acc      []object.Value
	lex, dyn *object.Frame
	k        func([]object.Value) (object.Value, error)
}

func (c *argCont) Tag() string { return "arg" }
func (c *argCont) Invoke(v object.Value) (object.Value, error) {
	c.acc[c.i] = object.PrimaryValue(v)
	return c.e.evalArgsFromK(c.forms, c.i+1, c.acc, c.lex, c.dyn, c.k)
}

// allValuesCont accumulates the flattened value set of each operand.
type allValuesCont struct {
	e        *Evaluator
	forms    []object.Value
	i        int
	acc      []object.Value
	lex, dyn *object.Frame
	k        func([]object.Value) (object.Value, error)
}

func (c *allValuesCont) Tag() string { return "all-values" }
func (c *allValuesCont) Invoke(v object.Value) (object.Value, error) {
	return c.e.evalAllValuesFromK(c.forms, c.i+1, append(c.acc, object.AllValues(v)...), c.lex, c.dyn, c.k)
}

// callHeadCont resolves a call form's head into a callee, then either
// expands a macro or evaluates operands.
type callHeadCont struct {
	e        *Evaluator
	operands []object.Value
	lex, dyn *object.Frame
	k        Cont
}

func (c *callHeadCont) Tag() string { return "call-head" }
func (c *callHeadCont) Invoke(callee object.Value) (object.Value, error) {
	callee = object.PrimaryValue(callee)
	if cl, ok := callee.(*object.Closure); ok && cl.Macro {
		return c.e.applyCallableK(cl, c.operands, nil, false, c.dyn, &expandCont{e: c.e, lex: c.lex, dyn: c.dyn, k: c.k})
	}
	return c.e.evalArgsK(c.operands, c.lex, c.dyn, func(args []object.Value) (object.Value, error) {
		return c.e.applyCallableK(callee, args, nil, false, c.dyn, c.k)
	})
}

// expandCont evaluates a macro's expansion in the caller's environment.
type expandCont struct {
	e        *Evaluator
	lex, dyn *object.Frame
	k        Cont
}

func (c *expandCont) Tag() string { return "expand" }
func (c *expandCont) Invoke(expansion object.Value) (object.Value, error) {
	return c.e.evalK(expansion, c.lex, c.dyn, c.k)
}

// ---- special operators ---------------------------------------------------

func (e *Evaluator) evalSpecialK(name string, form object.Value, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	switch name {
	case "quote":
		f, err := formanalyzer.AnalyzeQuote(form)
		if err != nil {
			return nil, err
		}
		return k.Invoke(f.Datum)

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
		return e.evalK(f.Test, lex, dyn, &ifCont{e: e, then: f.Then, els: f.Else, lex: lex, dyn: dyn, k: k})

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
		return k.Invoke(val)
	case "fref":
		f, err := formanalyzer.AnalyzeFRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetFunction(lex, f.Name)
		if err != nil {
			return nil, err
		}
		return k.Invoke(val)
	case "dref":
		f, err := formanalyzer.AnalyzeDRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetValue(dyn, f.Name)
		if err != nil {
			return nil, err
		}
		return k.Invoke(val)

	case "vset!":
		f, err := formanalyzer.AnalyzeVSet(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Value, lex, dyn, &assignCont{ns: "value", frame: lex, name: f.Name, k: k})
	case "fset!":
		f, err := formanalyzer.AnalyzeFSet(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Value, lex, dyn, &assignCont{ns: "function", frame: lex, name: f.Name, k: k})
	case "dset!":
		f, err := formanalyzer.AnalyzeDSet(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Value, lex, dyn, &assignCont{ns: "dynamic", frame: dyn, name: f.Name, k: k})

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
			return k.Invoke(object.Void)
		}
		if _, aborted := err.(*everror.Aborted); aborted {
			return nil, err
		}
		if ee, ok := everror.AsError(err); ok {
			return k.Invoke(object.NewString(string(ee.Kind())))
		}
		return k.Invoke(object.NewString("Error"))

	case "apply":
		f, err := formanalyzer.AnalyzeApply(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Fn, lex, dyn, funcCont(func(callee object.Value) (object.Value, error) {
			return e.evalArgsK(f.Args, lex, dyn, func(args []object.Value) (object.Value, error) {
				return e.evalK(f.Spread, lex, dyn, funcCont(func(spread object.Value) (object.Value, error) {
					return e.applyCallableK(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn, k)
				}))
			})
		}))

	case "multiple-value-call":
		f, err := formanalyzer.AnalyzeMultipleValueCall(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Fn, lex, dyn, funcCont(func(callee object.Value) (object.Value, error) {
			return e.evalAllValuesK(f.Operands, lex, dyn, func(args []object.Value) (object.Value, error) {
				return e.applyCallableK(object.PrimaryValue(callee), args, nil, false, dyn, k)
			})
		}))

	case "multiple-value-apply":
		f, err := formanalyzer.AnalyzeMultipleValueApply(form)
		if err != nil {
			return nil, err
		}
		return e.evalK(f.Fn, lex, dyn, funcCont(func(callee object.Value) (object.Value, error) {
			return e.evalAllValuesK(f.Operands, lex, dyn, func(args []object.Value) (object.Value, error) {
				return e.evalK(f.Spread, lex, dyn, funcCont(func(spread object.Value) (object.Value, error) {
					return e.applyCallableK(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn, k)
				}))
			})
		}))

	default:
		return nil, &everror.CannotHappen{Message: "unrecognized special operator " + name}
	}
}

// funcCont adapts a plain Go func into a Cont for the handful of
// one-off staging steps (apply/multiple-value-* operand threading)
// where naming a dedicated struct type would not add clarity.
type funcCont func(object.Value) (object.Value, error)

func (f funcCont) Tag() string { return "stage" }

func (f funcCont) Invoke(v object.Value) (object.Value, error) { return f(v) }

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
	return k.Invoke(&object.Closure{
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
		return k.Invoke(object.Void)
	}
	if i == len(body)-1 {
		return e.evalK(body[i], lex, dyn, k)
	}
	return e.evalK(body[i], lex, dyn, &seqCont{e: e, body: body, i: i, lex: lex, dyn: dyn, k: k})
}

func (e *Evaluator) evalForEachK(f *formanalyzer.ForEachForm, lex, dyn *object.Frame, k Cont) (object.Value, error) {
	return e.evalK(f.Fn, lex, dyn, funcCont(func(callee object.Value) (object.Value, error) {
		return e.evalK(f.List, lex, dyn, funcCont(func(listVal object.Value) (object.Value, error) {
			items, ok := object.ListToSlice(object.PrimaryValue(listVal))
			if !ok {
				return nil, &everror.EvaluatorError{Message: "_for-each's second operand must be a proper list"}
			}
			return e.forEachStep(object.PrimaryValue(callee), items, 0, dyn, k)
		}))
	}))
}

func (e *Evaluator) forEachStep(callee object.Value, items []object.Value, i int, dyn *object.Frame, k Cont) (object.Value, error) {
	if i == len(items) {
		return k.Invoke(object.Void)
	}
	return e.applyCallableK(callee, []object.Value{items[i]}, nil, false, dyn, funcCont(func(object.Value) (object.Value, error) {
		return e.forEachStep(callee, items, i+1, dyn, k)
	}))
}

func (e *Evaluator) evalArgsK(forms []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	return e.evalArgsFromK(forms, 0, make([]object.Value, len(forms)), lex, dyn, k)
}

func (e *Evaluator) evalArgsFromK(forms []object.Value, i int, acc []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	if i == len(forms) {
		return k(acc)
	}
	return e.evalK(forms[i], lex, dyn, &argCont{e: e, forms: forms, i: i, acc: acc, lex: lex, dyn: dyn, k: k})
}

func (e *Evaluator) evalAllValuesK(forms []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	return e.evalAllValuesFromK(forms, 0, nil, lex, dyn, k)
}

func (e *Evaluator) evalAllValuesFromK(forms []object.Value, i int, acc []object.Value, lex, dyn *object.Frame, k func([]object.Value) (object.Value, error)) (object.Value, error) {
	if i == len(forms) {
		return k(acc)
	}
	return e.evalK(forms[i], lex, dyn, &allValuesCont{e: e, forms: forms, i: i, acc: acc, lex: lex, dyn: dyn, k: k})
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

	hc := &callHeadCont{e: e, operands: operandForms, lex: lex, dyn: dyn, k: k}
	if headVar, ok := headForm.(*object.Variable); ok {
		callee, err := environment.GetFunction(lex, headVar)
		if err != nil {
			return nil, err
		}
		return hc.Invoke(callee)
	}
	return e.evalK(headForm, lex, dyn, hc)
}

// applyCallableK binds args (plus, when hasSpread, spread's elements)
// to callee's parameters and evaluates its body with k as the body's
// final continuation.
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
		return k.Invoke(v)

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
