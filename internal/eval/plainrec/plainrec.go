// Package plainrec implements EVL's first evaluator strategy: a
// direct host-recursive interpreter with no tail-call optimisation.
// The dynamic environment is threaded as an extra argument on every
// call, exactly mirroring the lexical chain's shape.
package plainrec

import (
	"github.com/evl-lang/evl/internal/environment"
	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/formanalyzer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/params"
)

// Evaluator is the plain recursive evaluator. It carries no per-call
// state beyond the optional abort flag; Eval recurses directly through
// the Go call stack, one Go frame per EVL form.
type Evaluator struct {
	Abort *eval.AbortFlag
}

// New creates a plain recursive evaluator. abort may be nil.
func New(abort *eval.AbortFlag) *Evaluator {
	return &Evaluator{Abort: abort}
}

// Eval evaluates form under the given lexical and dynamic frame
// chains (either may be nil, meaning "the global frame").
func (e *Evaluator) Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error) {
	if err := eval.CheckAbort(e.Abort); err != nil {
		return nil, err
	}
	switch v := form.(type) {
	case *object.VoidValue, *object.BooleanValue, *object.Number, *object.Character,
		*object.String, *object.Keyword, *object.Vector, *object.PrimitiveFunction, *object.Closure:
		return form, nil
	case *object.EmptyListValue:
		return nil, &everror.EvaluatorError{Message: "the empty list is not a form"}
	case *object.Variable:
		return environment.GetValue(lex, v)
	case *object.Cons:
		return e.evalCons(v, lex, dyn)
	default:
		return nil, &everror.CannotHappen{Message: "unexpected value kind reached Eval"}
	}
}

func (e *Evaluator) evalCons(c *object.Cons, lex, dyn *object.Frame) (object.Value, error) {
	if name, ok := formanalyzer.IsSpecialOperator(c); ok {
		return e.evalSpecial(name, c, lex, dyn)
	}
	return e.evalCall(c, lex, dyn)
}

func (e *Evaluator) evalSpecial(name string, form object.Value, lex, dyn *object.Frame) (object.Value, error) {
	switch name {
	case "quote":
		f, err := formanalyzer.AnalyzeQuote(form)
		if err != nil {
			return nil, err
		}
		return f.Datum, nil

	case "progn":
		f, err := formanalyzer.AnalyzeProgn(form)
		if err != nil {
			return nil, err
		}
		return e.evalProgn(f.Body, lex, dyn)

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
			return e.Eval(f.Then, lex, dyn)
		}
		return e.Eval(f.Else, lex, dyn)

	case "_vlambda":
		return e.evalLambda(formanalyzer.AnalyzeVLambda, form, lex)
	case "_mlambda":
		return e.evalLambda(formanalyzer.AnalyzeMLambda, form, lex)
	case "_flambda":
		return e.evalLambda(formanalyzer.AnalyzeFLambda, form, lex)
	case "_dlambda":
		return e.evalLambda(formanalyzer.AnalyzeDLambda, form, lex)

	case "vref":
		f, err := formanalyzer.AnalyzeVRef(form)
		if err != nil {
			return nil, err
		}
		return environment.GetValue(lex, f.Name)
	case "fref":
		f, err := formanalyzer.AnalyzeFRef(form)
		if err != nil {
			return nil, err
		}
		return environment.GetFunction(lex, f.Name)
	case "dref":
		f, err := formanalyzer.AnalyzeDRef(form)
		if err != nil {
			return nil, err
		}
		return environment.GetValue(dyn, f.Name)

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
		return object.Void, nil
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
		return object.Void, nil
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
		return object.Void, nil

	case "_for-each":
		return nil, &everror.FormAnalyzerError{Operator: "_for-each", Message: "not implemented by the plain recursive evaluator"}

	case "_catch-errors":
		f, err := formanalyzer.AnalyzeCatchErrors(form)
		if err != nil {
			return nil, err
		}
		return e.evalCatchErrors(f, lex, dyn)

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
		return e.applyCallable(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn)

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
		return e.applyCallable(object.PrimaryValue(callee), args, nil, false, dyn)

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
		return e.applyCallable(object.PrimaryValue(callee), args, object.PrimaryValue(spread), true, dyn)

	default:
		return nil, &everror.CannotHappen{Message: "unrecognized special operator " + name}
	}
}

func (e *Evaluator) evalLambda(
	analyze func(object.Value) (*formanalyzer.LambdaForm, error),
	form object.Value,
	lex *object.Frame,
) (object.Value, error) {
	f, err := analyze(form)
	if err != nil {
		return nil, err
	}
	return &object.Closure{
		Scope:     f.Kind.Scope(),
		Namespace: f.Kind.Namespace(),
		Macro:     f.Kind.Macro(),
		Params:    f.Params,
		Rest:      f.Rest,
		Body:      f.Body,
		Env:       lex,
	}, nil
}

func (e *Evaluator) evalCatchErrors(f *formanalyzer.CatchErrorsForm, lex, dyn *object.Frame) (object.Value, error) {
	_, err := e.Eval(f.Try, lex, dyn)
	if err == nil {
		return object.Void, nil
	}
	if _, aborted := err.(*everror.Aborted); aborted {
		return nil, err
	}
	if ee, ok := everror.AsError(err); ok {
		return object.NewString(string(ee.Kind())), nil
	}
	return object.NewString("Error"), nil
}

func (e *Evaluator) evalProgn(body []object.Value, lex, dyn *object.Frame) (object.Value, error) {
	result := object.Value(object.Void)
	for _, f := range body {
		v, err := e.Eval(f, lex, dyn)
		if err != nil {
			return nil, err
		}
		result = v
	}
	return result, nil
}

// evalArgs evaluates each operand left-to-right, projecting each to
// its primary value.
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

// evalAllValues evaluates each operand left-to-right and appends every
// one of its constituent values.
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

func (e *Evaluator) evalCall(c *object.Cons, lex, dyn *object.Frame) (object.Value, error) {
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
		expansion, err := e.invoke(cl, operandForms, dyn)
		if err != nil {
			return nil, err
		}
		return e.Eval(expansion, lex, dyn)
	}

	args, err := e.evalArgs(operandForms, lex, dyn)
	if err != nil {
		return nil, err
	}
	return e.applyCallable(callee, args, nil, false, dyn)
}

// invoke calls a closure with already-prepared (possibly unevaluated,
// for a macro) argument values.
func (e *Evaluator) invoke(cl *object.Closure, args []object.Value, dyn *object.Frame) (object.Value, error) {
	v, err := e.applyCallable(cl, args, nil, false, dyn)
	return v, err
}

// applyCallable binds args (plus, when hasSpread, the elements of
// spread) to callee's parameters and evaluates its body; callee may be
// a PrimitiveFunction or a Closure of any scope/namespace/macro
// combination.
func (e *Evaluator) applyCallable(callee object.Value, args []object.Value, spread object.Value, hasSpread bool, dyn *object.Frame) (object.Value, error) {
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
		return c.Fn(all)

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
			return e.evalProgn(c.Body, newLex, dyn)
		default: // DynamicScope
			newDyn := environment.Extend(object.ValueNamespace, vars, slots, dyn)
			return e.evalProgn(c.Body, c.Env, newDyn)
		}

	default:
		return nil, &everror.EvaluatorError{Message: "attempt to call a non-callable value"}
	}
}
