// Package sboocps implements EVL's fourth evaluator strategy:
// stack-based object-oriented CPS. Continuations and dynamic
// frames share one explicit stack (Stack); resuming pops elements
// until a continuation node is found, skipping past (and discarding)
// any dynamic frame markers along the way — their dynamic extent has
// ended once the search reaches them. _catch-errors records the
// stack's length on entry and truncates back to it on catch, repairing
// whatever a failed sub-computation left behind.
package sboocps

import (
	"github.com/evl-lang/evl/internal/environment"
	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/formanalyzer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/params"
)

// Cont is implemented by every continuation pushed onto a Stack.
type Cont interface {
	Resume(e *Evaluator, v object.Value, stack *Stack) (object.Value, error)
	Tag() string
}

// StackElem is either a contElem (a pending continuation) or a
// dynFrameElem (a live dynamic binding frame visible to dref/dset!
// lookups but invisible to continuation search).
type StackElem interface{ isStackElem() }

type contElem struct{ cont Cont }

func (contElem) isStackElem() {}

type dynFrameElem struct{ frame *object.Frame }

func (dynFrameElem) isStackElem() {}

// Stack is the one explicit stack shared by continuations and dynamic
// frames.
type Stack []StackElem

// Evaluator is the stack-based OO-CPS evaluator.
type Evaluator struct {
	Abort *eval.AbortFlag
}

// New creates a stack-based OO-CPS evaluator. abort may be nil.
func New(abort *eval.AbortFlag) *Evaluator {
	return &Evaluator{Abort: abort}
}

// Eval evaluates form under lex (the lexical chain, an ordinary
// pointer chain) and dyn (seeded as the stack's outermost dynamic
// frame, if non-nil).
func (e *Evaluator) Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error) {
	stack := Stack{}
	if dyn != nil {
		stack = append(stack, dynFrameElem{frame: dyn})
	}
	return e.evalK(form, lex, &stack)
}

// resume pops the next continuation off stack and hands it v,
// discarding any dynamic-frame markers encountered along the way —
// their scope has ended once the search reaches them. An empty stack
// means v is the final answer.
func (e *Evaluator) resume(stack *Stack, v object.Value) (object.Value, error) {
	for {
		n := len(*stack)
		if n == 0 {
			return v, nil
		}
		top := (*stack)[n-1]
		*stack = (*stack)[:n-1]
		if ce, ok := top.(contElem); ok {
			return ce.cont.Resume(e, v, stack)
		}
	}
}

func findDynamic(stack *Stack, v *object.Variable) (*object.Frame, int) {
	for i := len(*stack) - 1; i >= 0; i-- {
		df, ok := (*stack)[i].(dynFrameElem)
		if !ok {
			continue
		}
		for f := df.frame; f != nil; f = f.Parent {
			if f.Namespace != object.ValueNamespace {
				continue
			}
			if idx := f.IndexOf(v); idx >= 0 {
				return f, idx
			}
		}
	}
	return nil, -1
}

func getDynamic(stack *Stack, v *object.Variable) (object.Value, error) {
	if f, i := findDynamic(stack, v); f != nil {
		return f.Slots[i], nil
	}
	if v.HasValue() {
		return v.GetValue(), nil
	}
	return nil, everror.NewUnboundVariable("value", v.Name)
}

func setDynamic(stack *Stack, v *object.Variable, val object.Value) {
	if f, i := findDynamic(stack, v); f != nil {
		f.Slots[i] = val
		return
	}
	v.SetValue(val)
}

func (e *Evaluator) evalK(form object.Value, lex *object.Frame, stack *Stack) (object.Value, error) {
	if err := eval.CheckAbort(e.Abort); err != nil {
		return nil, err
	}
	switch v := form.(type) {
	case *object.VoidValue, *object.BooleanValue, *object.Number, *object.Character,
		*object.String, *object.Keyword, *object.Vector, *object.PrimitiveFunction, *object.Closure:
		return e.resume(stack, form)
	case *object.EmptyListValue:
		return nil, &everror.EvaluatorError{Message: "the empty list is not a form"}
	case *object.Variable:
		val, err := environment.GetValue(lex, v)
		if err != nil {
			return nil, err
		}
		return e.resume(stack, val)
	case *object.Cons:
		return e.evalConsK(v, lex, stack)
	default:
		return nil, &everror.CannotHappen{Message: "unexpected value kind reached Eval"}
	}
}

func (e *Evaluator) evalConsK(c *object.Cons, lex *object.Frame, stack *Stack) (object.Value, error) {
	if name, ok := formanalyzer.IsSpecialOperator(c); ok {
		return e.evalSpecialK(name, c, lex, stack)
	}
	return e.evalCallK(c, lex, stack)
}

// ---- continuation records --------------------------------------------------

// haltCont stops a resume search at its position, returning the value
// synchronously to the Go call that performed the bracketed
// sub-evaluation (used by _catch-errors and _for-each's per-item call).
type haltCont struct{}

func (haltCont) Tag() string { return "halt" }
func (haltCont) Resume(_ *Evaluator, v object.Value, _ *Stack) (object.Value, error) {
	return v, nil
}

// runBracketed evaluates compute with a fresh halt barrier on top of
// stack, restoring stack to its prior length afterward regardless of
// outcome.
func (e *Evaluator) runBracketed(stack *Stack, compute func(*Stack) (object.Value, error)) (object.Value, error) {
	snap := len(*stack)
	*stack = append(*stack, contElem{haltCont{}})
	v, err := compute(stack)
	*stack = (*stack)[:snap]
	return v, err
}

type ifCont struct {
	lex       *object.Frame
	then, els object.Value
}

func (c *ifCont) Tag() string { return "if" }
func (c *ifCont) Resume(e *Evaluator, test object.Value, stack *Stack) (object.Value, error) {
	b, ok := object.PrimaryValue(test).(*object.BooleanValue)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "test-form does not evaluate to a boolean"}
	}
	if b.Value {
		return e.evalK(c.then, c.lex, stack)
	}
	return e.evalK(c.els, c.lex, stack)
}

type seqCont struct {
	lex  *object.Frame
	body []object.Value
	i    int
}

func (c *seqCont) Tag() string { return "seq" }
func (c *seqCont) Resume(e *Evaluator, _ object.Value, stack *Stack) (object.Value, error) {
	return e.evalSeqK(c.body, c.i+1, c.lex, stack)
}

func (e *Evaluator) evalSeqK(body []object.Value, i int, lex *object.Frame, stack *Stack) (object.Value, error) {
	if len(body) == 0 {
		return e.resume(stack, object.Void)
	}
	if i == len(body)-1 {
		return e.evalK(body[i], lex, stack)
	}
	*stack = append(*stack, contElem{&seqCont{lex: lex, body: body, i: i}})
	return e.evalK(body[i], lex, stack)
}

type assignCont struct {
	kind string // "value", "function", "dynamic"
	lex  *object.Frame
	name *object.Variable
}

func (c *assignCont) Tag() string { return "assign:" + c.kind }
func (c *assignCont) Resume(e *Evaluator, val object.Value, stack *Stack) (object.Value, error) {
	val = object.PrimaryValue(val)
	switch c.kind {
	case "value":
		environment.SetValue(c.lex, c.name, val)
	case "function":
		environment.SetFunction(c.lex, c.name, val)
	case "dynamic":
		setDynamic(stack, c.name, val)
	}
	return e.resume(stack, object.Void)
}

// thunkCont wraps a one-off staging step (operand-by-operand
// evaluation for apply/multiple-value-* and _for-each) as a stack
// entry, rather than a bespoke named record, since its shape is purely
// sequential plumbing rather than a distinct control shape.
type thunkCont struct {
	fn func(object.Value, *Stack) (object.Value, error)
}

func (c *thunkCont) Tag() string { return "thunk" }
func (c *thunkCont) Resume(_ *Evaluator, v object.Value, stack *Stack) (object.Value, error) {
	return c.fn(v, stack)
}

type argCont struct {
	forms  []object.Value
	i      int
	acc    []object.Value
	lex    *object.Frame
	callee object.Value
}

func (c *argCont) Tag() string { return "arg" }
func (c *argCont) Resume(e *Evaluator, v object.Value, stack *Stack) (object.Value, error) {
	c.acc[c.i] = object.PrimaryValue(v)
	return e.evalArgsFromK(c.forms, c.i+1, c.acc, c.lex, c.callee, stack)
}

type headCont struct {
	operands []object.Value
	lex      *object.Frame
}

func (c *headCont) Tag() string { return "call-head" }
func (c *headCont) Resume(e *Evaluator, callee object.Value, stack *Stack) (object.Value, error) {
	return e.dispatchCall(object.PrimaryValue(callee), c.operands, c.lex, stack)
}

type expandCont struct {
	lex *object.Frame
}

func (c *expandCont) Tag() string { return "expand" }
func (c *expandCont) Resume(e *Evaluator, expansion object.Value, stack *Stack) (object.Value, error) {
	return e.evalK(expansion, c.lex, stack)
}

// ---- special operators -----------------------------------------------------

func (e *Evaluator) evalSpecialK(name string, form object.Value, lex *object.Frame, stack *Stack) (object.Value, error) {
	switch name {
	case "quote":
		f, err := formanalyzer.AnalyzeQuote(form)
		if err != nil {
			return nil, err
		}
		return e.resume(stack, f.Datum)

	case "progn":
		f, err := formanalyzer.AnalyzeProgn(form)
		if err != nil {
			return nil, err
		}
		return e.evalSeqK(f.Body, 0, lex, stack)

	case "if":
		f, err := formanalyzer.AnalyzeIf(form)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, contElem{&ifCont{lex: lex, then: f.Then, els: f.Else}})
		return e.evalK(f.Test, lex, stack)

	case "_vlambda":
		return e.evalLambdaK(formanalyzer.AnalyzeVLambda, form, lex, stack)
	case "_mlambda":
		return e.evalLambdaK(formanalyzer.AnalyzeMLambda, form, lex, stack)
	case "_flambda":
		return e.evalLambdaK(formanalyzer.AnalyzeFLambda, form, lex, stack)
	case "_dlambda":
		return e.evalLambdaK(formanalyzer.AnalyzeDLambda, form, lex, stack)

	case "vref":
		f, err := formanalyzer.AnalyzeVRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetValue(lex, f.Name)
		if err != nil {
			return nil, err
		}
		return e.resume(stack, val)
	case "fref":
		f, err := formanalyzer.AnalyzeFRef(form)
		if err != nil {
			return nil, err
		}
		val, err := environment.GetFunction(lex, f.Name)
		if err != nil {
			return nil, err
		}
		return e.resume(stack, val)
	case "dref":
		f, err := formanalyzer.AnalyzeDRef(form)
		if err != nil {
			return nil, err
		}
		val, err := getDynamic(stack, f.Name)
		if err != nil {
			return nil, err
		}
		return e.resume(stack, val)

	case "vset!":
		f, err := formanalyzer.AnalyzeVSet(form)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, contElem{&assignCont{kind: "value", lex: lex, name: f.Name}})
		return e.evalK(f.Value, lex, stack)
	case "fset!":
		f, err := formanalyzer.AnalyzeFSet(form)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, contElem{&assignCont{kind: "function", lex: lex, name: f.Name}})
		return e.evalK(f.Value, lex, stack)
	case "dset!":
		f, err := formanalyzer.AnalyzeDSet(form)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, contElem{&assignCont{kind: "dynamic", lex: lex, name: f.Name}})
		return e.evalK(f.Value, lex, stack)

	case "_for-each":
		f, err := formanalyzer.AnalyzeForEach(form)
		if err != nil {
			return nil, err
		}
		return e.evalForEachK(f, lex, stack)

	case "_catch-errors":
		f, err := formanalyzer.AnalyzeCatchErrors(form)
		if err != nil {
			return nil, err
		}
		_, err = e.runBracketed(stack, func(s *Stack) (object.Value, error) {
			return e.evalK(f.Try, lex, s)
		})
		if err == nil {
			return e.resume(stack, object.Void)
		}
		if _, aborted := err.(*everror.Aborted); aborted {
			return nil, err
		}
		if ee, ok := everror.AsError(err); ok {
			return e.resume(stack, object.NewString(string(ee.Kind())))
		}
		return e.resume(stack, object.NewString("Error"))

	case "apply":
		f, err := formanalyzer.AnalyzeApply(form)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, contElem{&thunkCont{fn: func(calleeVal object.Value, s *Stack) (object.Value, error) {
			callee := object.PrimaryValue(calleeVal)
			return e.evalArgList(f.Args, lex, s, func(args []object.Value, s2 *Stack) (object.Value, error) {
				*s2 = append(*s2, contElem{&thunkCont{fn: func(spreadVal object.Value, s3 *Stack) (object.Value, error) {
					return e.applyCallableK(callee, args, object.PrimaryValue(spreadVal), true, s3)
				}}})
				return e.evalK(f.Spread, lex, s2)
			})
		}}})
		return e.evalK(f.Fn, lex, stack)

	case "multiple-value-call":
		f, err := formanalyzer.AnalyzeMultipleValueCall(form)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, contElem{&thunkCont{fn: func(calleeVal object.Value, s *Stack) (object.Value, error) {
			callee := object.PrimaryValue(calleeVal)
			return e.evalAllValuesList(f.Operands, lex, s, func(args []object.Value, s2 *Stack) (object.Value, error) {
				return e.applyCallableK(callee, args, nil, false, s2)
			})
		}}})
		return e.evalK(f.Fn, lex, stack)

	case "multiple-value-apply":
		f, err := formanalyzer.AnalyzeMultipleValueApply(form)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, contElem{&thunkCont{fn: func(calleeVal object.Value, s *Stack) (object.Value, error) {
			callee := object.PrimaryValue(calleeVal)
			return e.evalAllValuesList(f.Operands, lex, s, func(args []object.Value, s2 *Stack) (object.Value, error) {
				*s2 = append(*s2, contElem{&thunkCont{fn: func(spreadVal object.Value, s3 *Stack) (object.Value, error) {
					return e.applyCallableK(callee, args, object.PrimaryValue(spreadVal), true, s3)
				}}})
				return e.evalK(f.Spread, lex, s2)
			})
		}}})
		return e.evalK(f.Fn, lex, stack)

	default:
		return nil, &everror.CannotHappen{Message: "unrecognized special operator " + name}
	}
}

func (e *Evaluator) evalLambdaK(
	analyze func(object.Value) (*formanalyzer.LambdaForm, error),
	form object.Value,
	lex *object.Frame,
	stack *Stack,
) (object.Value, error) {
	f, err := analyze(form)
	if err != nil {
		return nil, err
	}
	cl := &object.Closure{
		Scope:     f.Kind.Scope(),
		Namespace: f.Kind.Namespace(),
		Macro:     f.Kind.Macro(),
		Params:    f.Params,
		Rest:      f.Rest,
		Body:      f.Body,
		Env:       lex,
	}
	return e.resume(stack, cl)
}

func (e *Evaluator) evalForEachK(f *formanalyzer.ForEachForm, lex *object.Frame, stack *Stack) (object.Value, error) {
	*stack = append(*stack, contElem{&thunkCont{fn: func(calleeVal object.Value, s *Stack) (object.Value, error) {
		callee := object.PrimaryValue(calleeVal)
		*s = append(*s, contElem{&thunkCont{fn: func(listVal object.Value, s2 *Stack) (object.Value, error) {
			items, ok := object.ListToSlice(object.PrimaryValue(listVal))
			if !ok {
				return nil, &everror.EvaluatorError{Message: "_for-each's second operand must be a proper list"}
			}
			for _, item := range items {
				if err := eval.CheckAbort(e.Abort); err != nil {
					return nil, err
				}
				if _, err := e.runBracketed(s2, func(bs *Stack) (object.Value, error) {
					return e.applyCallableK(callee, []object.Value{item}, nil, false, bs)
				}); err != nil {
					return nil, err
				}
			}
			return e.resume(s2, object.Void)
		}}})
		return e.evalK(f.List, lex, s)
	}}})
	return e.evalK(f.Fn, lex, stack)
}

// evalArgList evaluates forms left-to-right, projecting each to its
// primary value, then invokes then with the accumulated slice.
func (e *Evaluator) evalArgList(forms []object.Value, lex *object.Frame, stack *Stack, then func([]object.Value, *Stack) (object.Value, error)) (object.Value, error) {
	return e.evalArgListFrom(forms, 0, make([]object.Value, len(forms)), lex, stack, then)
}

func (e *Evaluator) evalArgListFrom(forms []object.Value, i int, acc []object.Value, lex *object.Frame, stack *Stack, then func([]object.Value, *Stack) (object.Value, error)) (object.Value, error) {
	if i == len(forms) {
		return then(acc, stack)
	}
	*stack = append(*stack, contElem{&thunkCont{fn: func(v object.Value, s *Stack) (object.Value, error) {
		acc[i] = object.PrimaryValue(v)
		return e.evalArgListFrom(forms, i+1, acc, lex, s, then)
	}}})
	return e.evalK(forms[i], lex, stack)
}

// evalAllValuesList evaluates forms left-to-right, appending every
// constituent value of each operand (multiple-value-call/apply).
func (e *Evaluator) evalAllValuesList(forms []object.Value, lex *object.Frame, stack *Stack, then func([]object.Value, *Stack) (object.Value, error)) (object.Value, error) {
	return e.evalAllValuesFrom(forms, 0, nil, lex, stack, then)
}

func (e *Evaluator) evalAllValuesFrom(forms []object.Value, i int, acc []object.Value, lex *object.Frame, stack *Stack, then func([]object.Value, *Stack) (object.Value, error)) (object.Value, error) {
	if i == len(forms) {
		return then(acc, stack)
	}
	*stack = append(*stack, contElem{&thunkCont{fn: func(v object.Value, s *Stack) (object.Value, error) {
		return e.evalAllValuesFrom(forms, i+1, append(acc, object.AllValues(v)...), lex, s, then)
	}}})
	return e.evalK(forms[i], lex, stack)
}

func (e *Evaluator) evalCallK(c *object.Cons, lex *object.Frame, stack *Stack) (object.Value, error) {
	items, ok := object.ListToSlice(c)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "a call form must be a proper list"}
	}
	if len(items) == 0 {
		return nil, &everror.CannotHappen{Message: "empty call form reached evalCall"}
	}
	headForm, operandForms := items[0], items[1:]

	if headVar, ok := headForm.(*object.Variable); ok {
		callee, err := environment.GetFunction(lex, headVar)
		if err != nil {
			return nil, err
		}
		return e.dispatchCall(object.PrimaryValue(callee), operandForms, lex, stack)
	}
	*stack = append(*stack, contElem{&headCont{operands: operandForms, lex: lex}})
	return e.evalK(headForm, lex, stack)
}

func (e *Evaluator) dispatchCall(callee object.Value, operandForms []object.Value, lex *object.Frame, stack *Stack) (object.Value, error) {
	if cl, ok := callee.(*object.Closure); ok && cl.Macro {
		*stack = append(*stack, contElem{&expandCont{lex: lex}})
		return e.applyCallableK(cl, operandForms, nil, false, stack)
	}
	return e.evalArgsFromK(operandForms, 0, make([]object.Value, len(operandForms)), lex, callee, stack)
}

func (e *Evaluator) evalArgsFromK(forms []object.Value, i int, acc []object.Value, lex *object.Frame, callee object.Value, stack *Stack) (object.Value, error) {
	if i == len(forms) {
		return e.applyCallableK(callee, acc, nil, false, stack)
	}
	*stack = append(*stack, contElem{&argCont{forms: forms, i: i, acc: acc, lex: lex, callee: callee}})
	return e.evalK(forms[i], lex, stack)
}

// applyCallableK binds args (plus, when hasSpread, spread's elements)
// to callee's parameters and evaluates its body, resuming stack with
// the result. A dynamic closure pushes a dynFrameElem for its body's
// extent instead of threading a separate dynamic-frame pointer; once
// the body's value reaches resume, the search naturally pops (and so
// ends) that frame.
func (e *Evaluator) applyCallableK(callee object.Value, args []object.Value, spread object.Value, hasSpread bool, stack *Stack) (object.Value, error) {
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
		return e.resume(stack, v)

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
			return e.evalSeqK(c.Body, 0, newLex, stack)
		default: // DynamicScope
			*stack = append(*stack, dynFrameElem{frame: object.NewFrame(object.ValueNamespace, vars, slots, nil)})
			return e.evalSeqK(c.Body, 0, c.Env, stack)
		}

	default:
		return nil, &everror.EvaluatorError{Message: "attempt to call a non-callable value"}
	}
}
