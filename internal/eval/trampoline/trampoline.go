// Package trampoline implements EVL's fifth evaluator strategy: a
// host loop alternately dispatches a single
// evaluation step and, when that step lands in tail position, resumes
// with the next step instead of recursing — so a self-tail-recursive
// EVL loop runs in constant Go stack depth no matter how many times it
// iterates. Every step produces an Outcome: either a finished Result
// or an EvalReq bounce naming the next form/environment to run.
// _for-each is not implemented by this strategy.
package trampoline

import (
	"github.com/evl-lang/evl/internal/environment"
	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/formanalyzer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/params"
)

// Outcome is produced by every evaluation step.
type Outcome interface{ isOutcome() }

// Result is a step's finished value.
type Result struct{ Value object.Value }

func (Result) isOutcome() {}

// EvalReq asks the host loop to evaluate Form under Lex/Dyn next,
// reusing the current Go frame rather than recursing.
type EvalReq struct {
	Form     object.Value
	Lex, Dyn *object.Frame
}

func (EvalReq) isOutcome() {}

// Evaluator is the trampoline evaluator.
type Evaluator struct {
	Abort *eval.AbortFlag
}

// New creates a trampoline evaluator. abort may be nil.
func New(abort *eval.AbortFlag) *Evaluator {
	return &Evaluator{Abort: abort}
}

// Eval drives the bounce loop to completion. Nested, non-tail
// sub-evaluations (a test expression, call arguments, a
// _catch-errors try body) recurse into Eval again — bounded by AST
// nesting depth, not by how many times a loop iterates — while tail
// positions (a closure body's last form, an if branch, a macro's
// expansion) flow back around this same loop via EvalReq.
func (e *Evaluator) Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error) {
	return e.runToValue(e.evalStep(form, lex, dyn))
}

func (e *Evaluator) runToValue(out Outcome, err error) (object.Value, error) {
	for err == nil {
		switch o := out.(type) {
		case Result:
			return o.Value, nil
		case EvalReq:
			if cerr := eval.CheckAbort(e.Abort); cerr != nil {
				return nil, cerr
			}
			out, err = e.evalStep(o.Form, o.Lex, o.Dyn)
		}
	}
	return nil, err
}

func (e *Evaluator) evalStep(form object.Value, lex, dyn *object.Frame) (Outcome, error) {
	if err := eval.CheckAbort(e.Abort); err != nil {
		return nil, err
	}
	switch v := form.(type) {
	case *object.VoidValue, *object.BooleanValue, *object.Number, *object.Character,
		*object.String, *object.Keyword, *object.Vector, *object.PrimitiveFunction, *object.Closure:
		return Result{form}, nil
	case *object.EmptyListValue:
		return nil, &everror.EvaluatorError{Message: "the empty list is not a form"}
	case *object.Variable:
		val, err := environment.GetValue(lex, v)
		if err != nil {
			return nil, err
		}
		return Result{val}, nil
	case *object.Cons:
		return e.stepCons(v, lex, dyn)
	default:
		return nil, &everror.CannotHappen{Message: "unexpected value kind reached Eval"}
	}
}

func (e *Evaluator) stepCons(c *object.Cons, lex, dyn *object.Frame) (Outcome, error) {
	if name, ok := formanalyzer.IsSpecialOperator(c); ok {
		return e.stepSpecial(name, c, lex, dyn)
	}
	return e.stepCall(c, lex, dyn)
}

// bounceBody evaluates all but the last form of body for effect
// (recursing, one bounded Go frame per non-tail form) and hands the
// last form back as an EvalReq bounce.
func (e *Evaluator) bounceBody(body []object.Value, lex, dyn *object.Frame) (Outcome, error) {
	if len(body) == 0 {
		return Result{object.Void}, nil
	}
	for _, f := range body[:len(body)-1] {
		if _, err := e.Eval(f, lex, dyn); err != nil {
			return nil, err
		}
	}
	return EvalReq{Form: body[len(body)-1], Lex: lex, Dyn: dyn}, nil
}

func (e *Evaluator) stepSpecial(name string, form object.Value, lex, dyn *object.Frame) (Outcome, error) {
	switch name {
	case "quote":
		f, err := formanalyzer.AnalyzeQuote(form)
		if err != nil {
			return nil, err
		}
		return Result{f.Datum}, nil

	case "progn":
		f, err := formanalyzer.AnalyzeProgn(form)
		if err != nil {
			return nil, err
		}
		return e.bounceBody(f.Body, lex, dyn)

	case "if":
		f, err := formanalyzer.AnalyzeIf(form)
		if err != nil {
			return nil, err
		}
		test, err := e.Eval(f.Test, lex, dyn)
		if err != nil {
			return nil, err
		}
		b, ok := object.PrimaryValue(test).(*object.BooleanValue)
		if !ok {
			return nil, &everror.EvaluatorError{Message: "test-form does not evaluate to a boolean"}
		}
		if b.Value {
			return EvalReq{Form: f.Then, Lex: lex, Dyn: dyn}, nil
		}
		return EvalReq{Form: f.Else, Lex: lex, Dyn: dyn}, nil

	case "_vlambda":
		return e.stepLambda(formanalyzer.AnalyzeVLambda, form, lex)
	case "_mlambda":
		return e.stepLambda(formanalyzer.AnalyzeMLambda, form, lex)
	case "_flambda":
		return e.stepLambda(formanalyzer.AnalyzeFLambda, form, lex)
	case "_dlambda":
		return e.stepLambda(formanalyzer.AnalyzeDLambda, form, lex)

	case "vref":
		f, err := formanalyzer.AnalyzeVRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetValue(lex, f.Name)
		if err != nil {
			return nil, err
		}
		return Result{val}, nil
	case "fref":
		f, err := formanalyzer.AnalyzeFRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetFunction(lex, f.Name)
		if err != nil {
			return nil, err
		}
		return Result{val}, nil
	case "dref":
		f, err := formanalyzer.AnalyzeDRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetValue(dyn, f.Name)
		if err != nil {
			return nil, err
		}
		return Result{val}, nil

	case "vset!":
		f, err := formanalyzer.AnalyzeVSet(form)
		if err != nil {
			return nil, err
		}
		val, err := e.Eval(f.Value, lex, dyn)
		if err != nil {
			return nil, err
		}
		environment.SetValue(lex, f.Name, object.PrimaryValue(val))
		return Result{object.Void}, nil
	case "fset!":
		f, err := formanalyzer.AnalyzeFSet(form)
		if err != nil {
			return nil, err
		}
		val, err := e.Eval(f.Value, lex, dyn)
		if err != nil {
			return nil, err
		}
		environment.SetFunction(lex, f.Name, object.PrimaryValue(val))
		return Result{object.Void}, nil
	case "dset!":
		f, err := formanalyzer.AnalyzeDSet(form)
		if err != nil {
			return nil, err
		}
		val, err := e.Eval(f.Value, lex, dyn)
		if err != nil {
			return nil, err
		}
		environment.SetValue(dyn, f.Name, object.PrimaryValue(val))
		return Result{object.Void}, nil

	case "_for-each":
		return nil, &everror.FormAnalyzerError{Operator: "_for-each", Message: "not implemented by the trampoline evaluator"}

	case "_catch-errors":
		f, err := formanalyzer.AnalyzeCatchErrors(form)
		if err != nil {
			return nil, err
		}
		_, err = e.Eval(f.Try, lex, dyn)
		if err == nil {
			return Result{object.Void}, nil
		}
		if _, aborted := err.(*everror.Aborted); aborted {
			return nil, err
		}
		if ee, ok := everror.AsError(err); ok {
			return Result{object.NewString(string(ee.Kind()))}, nil
		}
		return Result{object.NewString("Error")}, nil

	case "apply":
		f, err := formanalyzer.AnalyzeApply(form)
		if err != nil {
			return nil, err
		}
		callee, err := e.Eval(f.Fn, lex, dyn)
		if err != nil {
			return nil, err
		}
		args, err := e.evalArgs(f.Args, lex, dyn)
		if err != nil {
			return nil, err
		}
		spread, err := e.Eval(f.Spread, lex, dyn)
		if err != nil {
			return nil, err
		}
		return e.stepApplyCallable(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn)

	case "multiple-value-call":
		f, err := formanalyzer.AnalyzeMultipleValueCall(form)
		if err != nil {
			return nil, err
		}
		callee, err := e.Eval(f.Fn, lex, dyn)
		if err != nil {
			return nil, err
		}
		args, err := e.evalAllValues(f.Operands, lex, dyn)
		if err != nil {
			return nil, err
		}
		return e.stepApplyCallable(object.PrimaryValue(callee), args, nil, false, dyn)

	case "multiple-value-apply":
		f, err := formanalyzer.AnalyzeMultipleValueApply(form)
		if err != nil {
			return nil, err
		}
		callee, err := e.Eval(f.Fn, lex, dyn)
		if err != nil {
			return nil, err
		}
		args, err := e.evalAllValues(f.Operands, lex, dyn)
		if err != nil {
			return nil, err
		}
		spread, err := e.Eval(f.Spread, lex, dyn)
		if err != nil {
			return nil, err
		}
		return e.stepApplyCallable(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn)

	default:
		return nil, &everror.CannotHappen{Message: "unrecognized special operator " + name}
	}
}

func (e *Evaluator) stepLambda(
	analyze func(object.Value) (*formanalyzer.LambdaForm, error),
	form object.Value,
	lex *object.Frame,
) (Outcome, error) {
	f, err := analyze(form)
	if err != nil {
		return nil, err
	}
	return Result{&object.Closure{
		Scope:     f.Kind.Scope(),
		Namespace: f.Kind.Namespace(),
		Macro:     f.Kind.Macro(),
		Params:    f.Params,
		Rest:      f.Rest,
		Body:      f.Body,
		Env:       lex,
	}}, nil
}

func (e *Evaluator) evalArgs(forms []object.Value, lex, dyn *object.Frame) ([]object.Value, error) {
	args := make([]object.Value, len(forms))
	for i, f := range forms {
		v, err := e.Eval(f, lex, dyn)
		if err != nil {
			return nil, err
		}
		args[i] = object.PrimaryValue(v)
	}
	return args, nil
}

func (e *Evaluator) evalAllValues(forms []object.Value, lex, dyn *object.Frame) ([]object.Value, error) {
	var args []object.Value
	for _, f := range forms {
		v, err := e.Eval(f, lex, dyn)
		if err != nil {
			return nil, err
		}
		args = append(args, object.AllValues(v)...)
	}
	return args, nil
}

func (e *Evaluator) stepCall(c *object.Cons, lex, dyn *object.Frame) (Outcome, error) {
	items, ok := object.ListToSlice(c)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "a call form must be a proper list"}
	}
	if len(items) == 0 {
		return nil, &everror.CannotHappen{Message: "empty call form reached evalCall"}
	}
	headForm, operandForms := items[0], items[1:]

	var callee object.Value
	var err error
	if headVar, ok := headForm.(*object.Variable); ok {
		callee, err = environment.GetFunction(lex, headVar)
	} else {
		callee, err = e.Eval(headForm, lex, dyn)
	}
	if err != nil {
		return nil, err
	}
	callee = object.PrimaryValue(callee)

	if cl, ok := callee.(*object.Closure); ok && cl.Macro {
		expansion, err := e.invokeToCompletion(cl, operandForms, dyn)
		if err != nil {
			return nil, err
		}
		return EvalReq{Form: expansion, Lex: lex, Dyn: dyn}, nil
	}

	args, err := e.evalArgs(operandForms, lex, dyn)
	if err != nil {
		return nil, err
	}
	return e.stepApplyCallable(callee, args, nil, false, dyn)
}

// invokeToCompletion fully runs a closure call (used for a macro's own
// body, whose expansion value must be known before the caller's tail
// position can bounce to it).
func (e *Evaluator) invokeToCompletion(cl *object.Closure, args []object.Value, dyn *object.Frame) (object.Value, error) {
	return e.runToValue(e.stepApplyCallable(cl, args, nil, false, dyn))
}

// stepApplyCallable binds args (plus, when hasSpread, spread's
// elements) to callee's parameters. A closure's body becomes an
// EvalReq bounce in its new environment rather than a recursive call,
// which is what keeps a tail-recursive EVL loop from growing the Go
// stack across iterations.
func (e *Evaluator) stepApplyCallable(callee object.Value, args []object.Value, spread object.Value, hasSpread bool, dyn *object.Frame) (Outcome, error) {
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
		return Result{v}, nil

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
			return e.bounceBody(c.Body, newLex, dyn)
		default: // DynamicScope
			newDyn := environment.Extend(object.ValueNamespace, vars, slots, dyn)
			return e.bounceBody(c.Body, c.Env, newDyn)
		}

	default:
		return nil, &everror.EvaluatorError{Message: "attempt to call a non-callable value"}
	}
}
