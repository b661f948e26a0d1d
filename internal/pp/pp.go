// Package pp implements EVL's preprocessing pass: it
// turns a raw object.Value form into a tree of Node values that know
// how to evaluate themselves, so the trampoline++ evaluator (internal
// /eval/trampolinepp) never re-runs formanalyzer or re-dispatches on a
// head symbol once a form has been preprocessed once.
//
// Two optimizations live here. First, lexical addressing: while
// preprocessing descends into a lambda's body it tracks the static
// shape of the lexical frame chain that body will run under (one
// level per enclosing lexically-scoped lambda, exactly mirroring what
// internal/environment.Extend builds at call time), so a vref/fref
// reference to an enclosing parameter compiles to a direct
// (depth, slot) walk instead of a linear scan. dref/dset! can never be
// addressed this way — the dynamic chain's shape depends on the call
// site, not lexical position — and always fall back to a scan.
// Second, macro-let recognition: a call whose operator position is
// itself an _flambda form and whose operands are all _mlambda forms
// introduces scope-local macros; every occurrence of one of those
// names within the _flambda's body is expanded right here, at
// preprocess time, instead of at every call.
package pp

import (
	"github.com/evl-lang/evl/internal/environment"
	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/eval/plainrec"
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/formanalyzer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/params"
)

// Outcome is produced by every Node's Step.
type Outcome interface{ isOutcome() }

// Result is a finished value.
type Result struct{ Value object.Value }

func (Result) isOutcome() {}

// EvalReq asks the driving loop to run Node under Lex/Dyn next,
// without growing the Go stack — the tail-call-safety mechanism
// shared with internal/eval/trampoline.
type EvalReq struct {
	Node     Node
	Lex, Dyn *object.Frame
}

func (EvalReq) isOutcome() {}

// Node is one preprocessed form. Each concrete type implements its own
// evaluation shape directly (virtual dispatch) rather than switching
// on a head symbol at run time.
type Node interface {
	Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error)
}

// Runtime carries the one piece of state the node tree needs at run
// time beyond the lexical/dynamic frame chains: the abort flag, and a
// cache from a closure instance to its preprocessed body (populated
// eagerly for lambdas built by lambdaNode, lazily for any closure
// value reaching a call site from elsewhere).
type Runtime struct {
	Abort  *eval.AbortFlag
	bodies map[*object.Closure][]Node
}

// NewRuntime creates a Runtime. abort may be nil.
func NewRuntime(abort *eval.AbortFlag) *Runtime {
	return &Runtime{Abort: abort, bodies: make(map[*object.Closure][]Node)}
}

// Run drives n to completion, starting a fresh bounce loop.
func (rt *Runtime) Run(n Node, lex, dyn *object.Frame) (object.Value, error) {
	return rt.runToValue(n.Step(rt, lex, dyn))
}

func (rt *Runtime) runToValue(out Outcome, err error) (object.Value, error) {
	for err == nil {
		switch o := out.(type) {
		case Result:
			return o.Value, nil
		case EvalReq:
			if cerr := eval.CheckAbort(rt.Abort); cerr != nil {
				return nil, cerr
			}
			out, err = o.Node.Step(rt, o.Lex, o.Dyn)
		}
	}
	return nil, err
}

// nodeBodyFor returns the cached node tree for a closure's body,
// preprocessing and caching it on first encounter (for a lexical
// closure, against a minimal scope covering only its own parameters).
func (rt *Runtime) nodeBodyFor(c *object.Closure) ([]Node, error) {
	if nodes, ok := rt.bodies[c]; ok {
		return nodes, nil
	}
	var sc *scope
	if c.Scope == object.LexicalScope {
		vars := c.Params
		if c.Rest != nil {
			vars = append(append([]*object.Variable(nil), c.Params...), c.Rest)
		}
		sc = &scope{ns: c.Namespace, vars: vars}
	}
	// A dynamic closure's parameters live on the dynamic chain while
	// its body runs under the captured lexical chain, whose shape is
	// unknown here; every reference in it falls back to a scan.
	nodes, err := preprocessAll(c.Body, sc, nil)
	if err != nil {
		return nil, err
	}
	rt.bodies[c] = nodes
	return nodes, nil
}

// scope mirrors, at preprocess time, the shape of the lexical frame
// chain a body will run under.
type scope struct {
	ns     object.Namespace
	vars   []*object.Variable
	parent *scope
}

func (s *scope) find(v *object.Variable, ns object.Namespace) (depth, slot int, ok bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.ns == ns {
			for i, vv := range cur.vars {
				if vv == v {
					return depth, i, true
				}
			}
		}
		depth++
	}
	return 0, 0, false
}

// macroDef is a compile-time-visible macro binding: an _mlambda's
// parsed params/rest/body, expanded inline wherever its name is called
// within the introducing _flambda's extent.
type macroDef struct {
	params []*object.Variable
	rest   *object.Variable
	body   []object.Value
}

type macroEnv struct {
	defs   map[*object.Variable]*macroDef
	parent *macroEnv
}

func (m *macroEnv) lookup(v *object.Variable) (*macroDef, bool) {
	for cur := m; cur != nil; cur = cur.parent {
		if d, ok := cur.defs[v]; ok {
			return d, true
		}
	}
	return nil, false
}

// Preprocess compiles form into a Node tree at top level, with no
// statically-known enclosing lambdas or scope-local macros.
func Preprocess(form object.Value) (Node, error) {
	return preprocess(form, nil, nil)
}

func preprocessAll(forms []object.Value, s *scope, m *macroEnv) ([]Node, error) {
	nodes := make([]Node, len(forms))
	for i, f := range forms {
		n, err := preprocess(f, s, m)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func preprocess(form object.Value, s *scope, m *macroEnv) (Node, error) {
	switch v := form.(type) {
	case *object.VoidValue, *object.BooleanValue, *object.Number, *object.Character,
		*object.String, *object.Keyword, *object.Vector, *object.PrimitiveFunction, *object.Closure:
		return literalNode{Datum: form}, nil
	case *object.EmptyListValue:
		return nil, &everror.EvaluatorError{Message: "the empty list is not a form"}
	case *object.Variable:
		return resolveRef(v, object.ValueNamespace, s), nil
	case *object.Cons:
		return preprocessCons(v, s, m)
	default:
		return nil, &everror.CannotHappen{Message: "unexpected value kind reached Preprocess"}
	}
}

func resolveRef(v *object.Variable, ns object.Namespace, s *scope) Node {
	if depth, slot, ok := s.find(v, ns); ok {
		return lexRefNode{Depth: depth, Slot: slot}
	}
	switch ns {
	case object.FunctionNamespace:
		return fallbackFuncNode{Var: v}
	default:
		return fallbackValNode{Var: v}
	}
}

// resolveSet compiles an assignment the same way resolveRef compiles a
// reference: a statically-visible binder becomes a direct (depth, slot)
// store, anything else a scan falling through to the global cell.
func resolveSet(v *object.Variable, ns object.Namespace, s *scope, val Node) Node {
	if depth, slot, ok := s.find(v, ns); ok {
		return lexSetNode{Depth: depth, Slot: slot, Value: val}
	}
	if ns == object.FunctionNamespace {
		return fsetNode{Name: v, Value: val}
	}
	return vsetNode{Name: v, Value: val}
}

func preprocessCons(c *object.Cons, s *scope, m *macroEnv) (Node, error) {
	if name, ok := formanalyzer.IsSpecialOperator(c); ok {
		return preprocessSpecial(name, c, s, m)
	}
	return preprocessCall(c, s, m)
}

func preprocessSpecial(name string, form object.Value, s *scope, m *macroEnv) (Node, error) {
	switch name {
	case "quote":
		f, err := formanalyzer.AnalyzeQuote(form)
		if err != nil {
			return nil, err
		}
		return literalNode{Datum: f.Datum}, nil

	case "progn":
		f, err := formanalyzer.AnalyzeProgn(form)
		if err != nil {
			return nil, err
		}
		body, err := preprocessAll(f.Body, s, m)
		if err != nil {
			return nil, err
		}
		return seqNode{Body: body}, nil

	case "if":
		f, err := formanalyzer.AnalyzeIf(form)
		if err != nil {
			return nil, err
		}
		test, err := preprocess(f.Test, s, m)
		if err != nil {
			return nil, err
		}
		then, err := preprocess(f.Then, s, m)
		if err != nil {
			return nil, err
		}
		els, err := preprocess(f.Else, s, m)
		if err != nil {
			return nil, err
		}
		return ifNode{Test: test, Then: then, Else: els}, nil

	case "_vlambda":
		return preprocessLambda(formanalyzer.AnalyzeVLambda, form, s, m)
	case "_mlambda":
		return preprocessLambda(formanalyzer.AnalyzeMLambda, form, s, m)
	case "_flambda":
		return preprocessLambda(formanalyzer.AnalyzeFLambda, form, s, m)
	case "_dlambda":
		return preprocessLambda(formanalyzer.AnalyzeDLambda, form, s, m)

	case "vref":
		f, err := formanalyzer.AnalyzeVRef(form)
		if err != nil {
			return nil, err
		}
		return resolveRef(f.Name, object.ValueNamespace, s), nil
	case "fref":
		f, err := formanalyzer.AnalyzeFRef(form)
		if err != nil {
			return nil, err
		}
		return resolveRef(f.Name, object.FunctionNamespace, s), nil
	case "dref":
		f, err := formanalyzer.AnalyzeDRef(form)
		if err != nil {
			return nil, err
		}
		return fallbackDynNode{Var: f.Name}, nil

	case "vset!":
		f, err := formanalyzer.AnalyzeVSet(form)
		if err != nil {
			return nil, err
		}
		val, err := preprocess(f.Value, s, m)
		if err != nil {
			return nil, err
		}
		return resolveSet(f.Name, object.ValueNamespace, s, val), nil
	case "fset!":
		f, err := formanalyzer.AnalyzeFSet(form)
		if err != nil {
			return nil, err
		}
		val, err := preprocess(f.Value, s, m)
		if err != nil {
			return nil, err
		}
		return resolveSet(f.Name, object.FunctionNamespace, s, val), nil
	case "dset!":
		f, err := formanalyzer.AnalyzeDSet(form)
		if err != nil {
			return nil, err
		}
		val, err := preprocess(f.Value, s, m)
		if err != nil {
			return nil, err
		}
		return dsetNode{Name: f.Name, Value: val}, nil

	case "_for-each":
		return notImplNode{Op: "_for-each"}, nil

	case "_catch-errors":
		f, err := formanalyzer.AnalyzeCatchErrors(form)
		if err != nil {
			return nil, err
		}
		try, err := preprocess(f.Try, s, m)
		if err != nil {
			return nil, err
		}
		return catchErrorsNode{Try: try}, nil

	case "apply":
		f, err := formanalyzer.AnalyzeApply(form)
		if err != nil {
			return nil, err
		}
		fn, err := preprocess(f.Fn, s, m)
		if err != nil {
			return nil, err
		}
		args, err := preprocessAll(f.Args, s, m)
		if err != nil {
			return nil, err
		}
		spread, err := preprocess(f.Spread, s, m)
		if err != nil {
			return nil, err
		}
		return applyNode{Fn: fn, Args: args, Spread: spread}, nil

	case "multiple-value-call":
		f, err := formanalyzer.AnalyzeMultipleValueCall(form)
		if err != nil {
			return nil, err
		}
		fn, err := preprocess(f.Fn, s, m)
		if err != nil {
			return nil, err
		}
		ops, err := preprocessAll(f.Operands, s, m)
		if err != nil {
			return nil, err
		}
		return mvCallNode{Fn: fn, Operands: ops}, nil

	case "multiple-value-apply":
		f, err := formanalyzer.AnalyzeMultipleValueApply(form)
		if err != nil {
			return nil, err
		}
		fn, err := preprocess(f.Fn, s, m)
		if err != nil {
			return nil, err
		}
		ops, err := preprocessAll(f.Operands, s, m)
		if err != nil {
			return nil, err
		}
		spread, err := preprocess(f.Spread, s, m)
		if err != nil {
			return nil, err
		}
		return mvApplyNode{Fn: fn, Operands: ops, Spread: spread}, nil

	default:
		return nil, &everror.CannotHappen{Message: "unrecognized special operator " + name}
	}
}

func preprocessLambda(
	analyze func(object.Value) (*formanalyzer.LambdaForm, error),
	form object.Value,
	s *scope,
	m *macroEnv,
) (Node, error) {
	f, err := analyze(form)
	if err != nil {
		return nil, err
	}
	vars := f.Params
	if f.Rest != nil {
		vars = append(append([]*object.Variable(nil), f.Params...), f.Rest)
	}
	bodyScope := s
	if f.Kind.Scope() == object.LexicalScope {
		bodyScope = &scope{ns: f.Kind.Namespace(), vars: vars, parent: s}
	}
	body, err := preprocessAll(f.Body, bodyScope, m)
	if err != nil {
		return nil, err
	}
	return lambdaNode{
		Kind: f.Kind, Params: f.Params, Rest: f.Rest, RawBody: f.Body, BodyNodes: body,
	}, nil
}

// preprocessCall handles the three call shapes: a statically-known
// macro invocation (expanded here, no node emitted for the call
// itself), a macro-let introduction, or an ordinary call compiled to
// callNode with the dynamic macro check deferred to run time.
func preprocessCall(c *object.Cons, s *scope, m *macroEnv) (Node, error) {
	items, ok := object.ListToSlice(c)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "a call form must be a proper list"}
	}
	if len(items) == 0 {
		return nil, &everror.CannotHappen{Message: "empty call form reached Preprocess"}
	}
	headForm, operandForms := items[0], items[1:]

	if headVar, ok := headForm.(*object.Variable); ok {
		if def, ok := m.lookup(headVar); ok {
			expansion, err := expandMacro(def, operandForms)
			if err != nil {
				return nil, err
			}
			return preprocess(expansion, s, m)
		}
	}

	if letDef, names, ok := asMacroLet(headForm, operandForms); ok {
		nm := &macroEnv{defs: make(map[*object.Variable]*macroDef), parent: m}
		for i, name := range names {
			nm.defs[name] = letDef[i]
		}
		flambda, _ := formanalyzer.AnalyzeFLambda(headForm)
		body, err := preprocessAll(flambda.Body, s, nm)
		if err != nil {
			return nil, err
		}
		return seqNode{Body: body}, nil
	}

	var head Node
	var err error
	rawOperands := append([]object.Value(nil), operandForms...)
	if headVar, ok := headForm.(*object.Variable); ok {
		head = resolveRef(headVar, object.FunctionNamespace, s)
	} else {
		head, err = preprocess(headForm, s, m)
		if err != nil {
			return nil, err
		}
	}
	argNodes, err := preprocessAll(operandForms, s, m)
	if err != nil {
		return nil, err
	}
	return callNode{Head: head, RawOperands: rawOperands, Args: argNodes}, nil
}

// asMacroLet recognizes `((_flambda (m1 m2 ...) body...) (_mlambda ...) (_mlambda ...) ...)`.
func asMacroLet(headForm object.Value, operandForms []object.Value) ([]*macroDef, []*object.Variable, bool) {
	headCons, ok := headForm.(*object.Cons)
	if !ok {
		return nil, nil, false
	}
	if name, ok := formanalyzer.IsSpecialOperator(headCons); !ok || name != "_flambda" {
		return nil, nil, false
	}
	flambda, err := formanalyzer.AnalyzeFLambda(headForm)
	if err != nil || flambda.Rest != nil || len(flambda.Params) != len(operandForms) {
		return nil, nil, false
	}
	defs := make([]*macroDef, len(operandForms))
	for i, op := range operandForms {
		opCons, ok := op.(*object.Cons)
		if !ok {
			return nil, nil, false
		}
		if name, ok := formanalyzer.IsSpecialOperator(opCons); !ok || name != "_mlambda" {
			return nil, nil, false
		}
		mf, err := formanalyzer.AnalyzeMLambda(op)
		if err != nil {
			return nil, nil, false
		}
		defs[i] = &macroDef{params: mf.Params, rest: mf.Rest, body: mf.Body}
	}
	return defs, flambda.Params, true
}

// expandMacro evaluates a macro's body against its (unevaluated)
// call-site operand forms, using the plain recursive evaluator —
// ordinary evaluation logic, reused rather than duplicated, since
// compile-time macro expansion is just "call a closure with these
// values," and the values here happen to be raw forms treated as data.
func expandMacro(def *macroDef, operandForms []object.Value) (object.Value, error) {
	slots, err := params.PairCall(def.params, def.rest, operandForms)
	if err != nil {
		return nil, err
	}
	vars := def.params
	if def.rest != nil {
		vars = append(append([]*object.Variable(nil), def.params...), def.rest)
	}
	frame := environment.Extend(object.ValueNamespace, vars, slots, nil)
	pr := plainrec.New(nil)
	result := object.Value(object.Void)
	for _, f := range def.body {
		v, err := pr.Eval(f, frame, nil)
		if err != nil {
			return nil, err
		}
		result = v
	}
	return result, nil
}

// ---- node implementations ---------------------------------------------

type literalNode struct{ Datum object.Value }

func (n literalNode) Step(_ *Runtime, _, _ *object.Frame) (Outcome, error) {
	return Result{n.Datum}, nil
}

type lexRefNode struct{ Depth, Slot int }

func (n lexRefNode) Step(_ *Runtime, lex, _ *object.Frame) (Outcome, error) {
	f := lex
	for i := 0; i < n.Depth; i++ {
		if f == nil {
			return nil, &everror.CannotHappen{Message: "lexical address walked off the frame chain"}
		}
		f = f.Parent
	}
	if f == nil {
		return nil, &everror.CannotHappen{Message: "lexical address walked off the frame chain"}
	}
	return Result{f.Slots[n.Slot]}, nil
}

type fallbackValNode struct{ Var *object.Variable }

func (n fallbackValNode) Step(_ *Runtime, lex, _ *object.Frame) (Outcome, error) {
	val, err := environment.GetValue(lex, n.Var)
	if err != nil {
		return nil, err
	}
	return Result{val}, nil
}

type fallbackFuncNode struct{ Var *object.Variable }

func (n fallbackFuncNode) Step(_ *Runtime, lex, _ *object.Frame) (Outcome, error) {
	val, err := environment.GetFunction(lex, n.Var)
	if err != nil {
		return nil, err
	}
	return Result{val}, nil
}

type fallbackDynNode struct{ Var *object.Variable }

func (n fallbackDynNode) Step(_ *Runtime, _, dyn *object.Frame) (Outcome, error) {
	val, err := environment.GetValue(dyn, n.Var)
	if err != nil {
		return nil, err
	}
	return Result{val}, nil
}

type ifNode struct{ Test, Then, Else Node }

func (n ifNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	test, err := rt.Run(n.Test, lex, dyn)
	if err != nil {
		return nil, err
	}
	b, ok := object.PrimaryValue(test).(*object.BooleanValue)
	if !ok {
		return nil, &everror.EvaluatorError{Message: "test-form does not evaluate to a boolean"}
	}
	if b.Value {
		return EvalReq{Node: n.Then, Lex: lex, Dyn: dyn}, nil
	}
	return EvalReq{Node: n.Else, Lex: lex, Dyn: dyn}, nil
}

type seqNode struct{ Body []Node }

func (n seqNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	return bounceBody(rt, n.Body, lex, dyn)
}

func bounceBody(rt *Runtime, body []Node, lex, dyn *object.Frame) (Outcome, error) {
	if len(body) == 0 {
		return Result{object.Void}, nil
	}
	for _, n := range body[:len(body)-1] {
		if _, err := rt.Run(n, lex, dyn); err != nil {
			return nil, err
		}
	}
	return EvalReq{Node: body[len(body)-1], Lex: lex, Dyn: dyn}, nil
}

type lexSetNode struct {
	Depth, Slot int
	Value       Node
}

func (n lexSetNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	val, err := rt.Run(n.Value, lex, dyn)
	if err != nil {
		return nil, err
	}
	f := lex
	for i := 0; i < n.Depth; i++ {
		if f == nil {
			return nil, &everror.CannotHappen{Message: "lexical address walked off the frame chain"}
		}
		f = f.Parent
	}
	if f == nil {
		return nil, &everror.CannotHappen{Message: "lexical address walked off the frame chain"}
	}
	f.Slots[n.Slot] = object.PrimaryValue(val)
	return Result{object.Void}, nil
}

type vsetNode struct {
	Name  *object.Variable
	Value Node
}

func (n vsetNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	val, err := rt.Run(n.Value, lex, dyn)
	if err != nil {
		return nil, err
	}
	environment.SetValue(lex, n.Name, object.PrimaryValue(val))
	return Result{object.Void}, nil
}

type fsetNode struct {
	Name  *object.Variable
	Value Node
}

func (n fsetNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	val, err := rt.Run(n.Value, lex, dyn)
	if err != nil {
		return nil, err
	}
	environment.SetFunction(lex, n.Name, object.PrimaryValue(val))
	return Result{object.Void}, nil
}

type dsetNode struct {
	Name  *object.Variable
	Value Node
}

func (n dsetNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	val, err := rt.Run(n.Value, lex, dyn)
	if err != nil {
		return nil, err
	}
	environment.SetValue(dyn, n.Name, object.PrimaryValue(val))
	return Result{object.Void}, nil
}

type lambdaNode struct {
	Kind      formanalyzer.LambdaKind
	Params    []*object.Variable
	Rest      *object.Variable
	RawBody   []object.Value
	BodyNodes []Node
}

func (n lambdaNode) Step(rt *Runtime, lex, _ *object.Frame) (Outcome, error) {
	cl := &object.Closure{
		Scope:     n.Kind.Scope(),
		Namespace: n.Kind.Namespace(),
		Macro:     n.Kind.Macro(),
		Params:    n.Params,
		Rest:      n.Rest,
		Body:      n.RawBody,
		Env:       lex,
	}
	rt.bodies[cl] = n.BodyNodes
	return Result{cl}, nil
}

type notImplNode struct{ Op string }

func (n notImplNode) Step(_ *Runtime, _, _ *object.Frame) (Outcome, error) {
	return nil, &everror.FormAnalyzerError{Operator: n.Op, Message: "not implemented by the trampoline++ evaluator"}
}

type catchErrorsNode struct{ Try Node }

func (n catchErrorsNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	_, err := rt.Run(n.Try, lex, dyn)
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
}

func evalArgs(rt *Runtime, nodes []Node, lex, dyn *object.Frame) ([]object.Value, error) {
	args := make([]object.Value, len(nodes))
	for i, n := range nodes {
		v, err := rt.Run(n, lex, dyn)
		if err != nil {
			return nil, err
		}
		args[i] = object.PrimaryValue(v)
	}
	return args, nil
}

func evalAllValues(rt *Runtime, nodes []Node, lex, dyn *object.Frame) ([]object.Value, error) {
	var args []object.Value
	for _, n := range nodes {
		v, err := rt.Run(n, lex, dyn)
		if err != nil {
			return nil, err
		}
		args = append(args, object.AllValues(v)...)
	}
	return args, nil
}

type applyNode struct {
	Fn     Node
	Args   []Node
	Spread Node
}

func (n applyNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	calleeVal, err := rt.Run(n.Fn, lex, dyn)
	if err != nil {
		return nil, err
	}
	args, err := evalArgs(rt, n.Args, lex, dyn)
	if err != nil {
		return nil, err
	}
	spreadVal, err := rt.Run(n.Spread, lex, dyn)
	if err != nil {
		return nil, err
	}
	return ApplyCallable(rt, object.PrimaryValue(calleeVal), args, object.PrimaryValue(spreadVal), true, dyn)
}

type mvCallNode struct {
	Fn       Node
	Operands []Node
}

func (n mvCallNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	calleeVal, err := rt.Run(n.Fn, lex, dyn)
	if err != nil {
		return nil, err
	}
	args, err := evalAllValues(rt, n.Operands, lex, dyn)
	if err != nil {
		return nil, err
	}
	return ApplyCallable(rt, object.PrimaryValue(calleeVal), args, nil, false, dyn)
}

type mvApplyNode struct {
	Fn       Node
	Operands []Node
	Spread   Node
}

func (n mvApplyNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	calleeVal, err := rt.Run(n.Fn, lex, dyn)
	if err != nil {
		return nil, err
	}
	args, err := evalAllValues(rt, n.Operands, lex, dyn)
	if err != nil {
		return nil, err
	}
	spreadVal, err := rt.Run(n.Spread, lex, dyn)
	if err != nil {
		return nil, err
	}
	return ApplyCallable(rt, object.PrimaryValue(calleeVal), args, object.PrimaryValue(spreadVal), true, dyn)
}

type callNode struct {
	Head        Node
	RawOperands []object.Value
	Args        []Node
}

func (n callNode) Step(rt *Runtime, lex, dyn *object.Frame) (Outcome, error) {
	calleeVal, err := rt.Run(n.Head, lex, dyn)
	if err != nil {
		return nil, err
	}
	callee := object.PrimaryValue(calleeVal)

	if cl, ok := callee.(*object.Closure); ok && cl.Macro {
		expansionVal, err := invokeMacro(rt, cl, n.RawOperands, dyn)
		if err != nil {
			return nil, err
		}
		expansionNode, err := Preprocess(expansionVal)
		if err != nil {
			return nil, err
		}
		return EvalReq{Node: expansionNode, Lex: lex, Dyn: dyn}, nil
	}

	args, err := evalArgs(rt, n.Args, lex, dyn)
	if err != nil {
		return nil, err
	}
	return ApplyCallable(rt, callee, args, nil, false, dyn)
}

// invokeMacro runs a macro closure discovered only at run time (its
// binding wasn't a statically-visible _mlambda literal) to completion
// against its raw, unevaluated operand forms.
func invokeMacro(rt *Runtime, cl *object.Closure, operandForms []object.Value, dyn *object.Frame) (object.Value, error) {
	out, err := ApplyCallable(rt, cl, operandForms, nil, false, dyn)
	if err != nil {
		return nil, err
	}
	return rt.runToValue(out, nil)
}

// ApplyCallable binds args (plus, when hasSpread, spread's elements)
// to callee's parameters. A closure's body becomes an EvalReq bounce
// (after fetching/building its cached node tree) rather than a
// recursive call, preserving tail-call safety across repeated calls to
// the same closure instance.
func ApplyCallable(rt *Runtime, callee object.Value, args []object.Value, spread object.Value, hasSpread bool, dyn *object.Frame) (Outcome, error) {
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
		nodes, err := rt.nodeBodyFor(c)
		if err != nil {
			return nil, err
		}
		switch c.Scope {
		case object.LexicalScope:
			newLex := environment.Extend(c.Namespace, vars, slots, c.Env)
			return bounceBody(rt, nodes, newLex, dyn)
		default: // DynamicScope
			newDyn := environment.Extend(object.ValueNamespace, vars, slots, dyn)
			return bounceBody(rt, nodes, c.Env, newDyn)
		}

	default:
		return nil, &everror.EvaluatorError{Message: "attempt to call a non-callable value"}
	}
}
