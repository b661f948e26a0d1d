// Package formanalyzer validates the shape of each recognized special
// operator and destructures it into its typed parts.
// Evaluators call IsSpecialOperator first; on a miss they treat the
// form as an ordinary call.
package formanalyzer

import (
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
)

// names enumerates the recognized special operators.
var names = map[string]bool{
	"quote":                true,
	"progn":                true,
	"if":                   true,
	"_vlambda":             true,
	"_mlambda":             true,
	"_flambda":             true,
	"_dlambda":             true,
	"vref":                 true,
	"vset!":                true,
	"fref":                 true,
	"fset!":                true,
	"dref":                 true,
	"dset!":                true,
	"_for-each":            true,
	"_catch-errors":        true,
	"apply":                true,
	"multiple-value-call":  true,
	"multiple-value-apply": true,
}

// IsSpecialOperator reports whether form is a list headed by a
// recognized special-operator name, returning that name.
func IsSpecialOperator(form object.Value) (string, bool) {
	cons, ok := form.(*object.Cons)
	if !ok {
		return "", false
	}
	v, ok := cons.Car.(*object.Variable)
	if !ok {
		return "", false
	}
	if !names[v.Name] {
		return "", false
	}
	return v.Name, true
}

// operands returns the proper-list tail of form as a slice, or a
// FormAnalyzerError if it is not a proper list.
func operands(op string, form object.Value) ([]object.Value, error) {
	cons := form.(*object.Cons)
	items, ok := object.ListToSlice(cons.Cdr)
	if !ok {
		return nil, &everror.FormAnalyzerError{Operator: op, Message: "operand list must be a proper list"}
	}
	return items, nil
}

func arityError(op, want string) error {
	return &everror.FormAnalyzerError{Operator: op, Message: "expected " + want}
}

// ---- quote --------------------------------------------------------------

// QuoteForm is `(quote x)`.
type QuoteForm struct{ Datum object.Value }

func AnalyzeQuote(form object.Value) (*QuoteForm, error) {
	ops, err := operands("quote", form)
	if err != nil {
		return nil, err
	}
	if len(ops) != 1 {
		return nil, arityError("quote", "exactly one operand")
	}
	return &QuoteForm{Datum: ops[0]}, nil
}

// ---- progn ----------------------------------------------------------------

// PrognForm is `(progn f1 ... fn)`, n >= 0.
type PrognForm struct{ Body []object.Value }

func AnalyzeProgn(form object.Value) (*PrognForm, error) {
	ops, err := operands("progn", form)
	if err != nil {
		return nil, err
	}
	return &PrognForm{Body: ops}, nil
}

// ---- if ---------------------------------------------------------------

// IfForm is `(if test then else)`: ternary, no implicit else.
type IfForm struct {
	Test, Then, Else object.Value
}

func AnalyzeIf(form object.Value) (*IfForm, error) {
	ops, err := operands("if", form)
	if err != nil {
		return nil, err
	}
	if len(ops) != 3 {
		return nil, arityError("if", "exactly three operands (test, then, else)")
	}
	return &IfForm{Test: ops[0], Then: ops[1], Else: ops[2]}, nil
}

// ---- the four lambda variants -----------------------------------------

// LambdaKind selects one of the four (scope, namespace, macro-flag)
// combinations behind _vlambda/_mlambda/_flambda/_dlambda.
type LambdaKind int

const (
	VLambda LambdaKind = iota // lexical / value / non-macro
	MLambda                   // lexical / value / macro
	FLambda                   // lexical / function / non-macro
	DLambda                   // dynamic / value / non-macro
)

func (k LambdaKind) Scope() object.Scope {
	if k == DLambda {
		return object.DynamicScope
	}
	return object.LexicalScope
}

func (k LambdaKind) Namespace() object.Namespace {
	if k == FLambda {
		return object.FunctionNamespace
	}
	return object.ValueNamespace
}

func (k LambdaKind) Macro() bool { return k == MLambda }

func (k LambdaKind) operatorName() string {
	switch k {
	case VLambda:
		return "_vlambda"
	case MLambda:
		return "_mlambda"
	case FLambda:
		return "_flambda"
	default:
		return "_dlambda"
	}
}

// LambdaForm destructures a lambda-variant form: `(_Xlambda params body...)`.
type LambdaForm struct {
	Kind   LambdaKind
	Params []*object.Variable
	Rest   *object.Variable
	Body   []object.Value
}

func analyzeLambda(kind LambdaKind, form object.Value) (*LambdaForm, error) {
	op := kind.operatorName()
	ops, err := operands(op, form)
	if err != nil {
		return nil, err
	}
	if len(ops) < 1 {
		return nil, arityError(op, "a parameter list followed by a body")
	}
	params, rest, err := ParseParams(op, ops[0])
	if err != nil {
		return nil, err
	}
	return &LambdaForm{Kind: kind, Params: params, Rest: rest, Body: ops[1:]}, nil
}

func AnalyzeVLambda(form object.Value) (*LambdaForm, error) { return analyzeLambda(VLambda, form) }
func AnalyzeMLambda(form object.Value) (*LambdaForm, error) { return analyzeLambda(MLambda, form) }
func AnalyzeFLambda(form object.Value) (*LambdaForm, error) { return analyzeLambda(FLambda, form) }
func AnalyzeDLambda(form object.Value) (*LambdaForm, error) { return analyzeLambda(DLambda, form) }

// ParseParams destructures a parameter specification: a proper list of
// distinct variables, an improper list whose final Cdr is a variable
// (the rest-parameter), or a bare variable meaning "all arguments into
// this one".
func ParseParams(op string, spec object.Value) (params []*object.Variable, rest *object.Variable, err error) {
	if v, ok := spec.(*object.Variable); ok {
		return nil, v, nil
	}

	seen := map[string]bool{}
	cur := spec
	for {
		switch t := cur.(type) {
		case *object.EmptyListValue:
			return params, nil, nil
		case *object.Cons:
			v, ok := t.Car.(*object.Variable)
			if !ok {
				return nil, nil, &everror.FormAnalyzerError{Operator: op, Message: "parameter list must contain only variables"}
			}
			if seen[v.Name] {
				return nil, nil, &everror.FormAnalyzerError{Operator: op, Message: "duplicate parameter " + v.Name}
			}
			seen[v.Name] = true
			params = append(params, v)
			cur = t.Cdr
		case *object.Variable:
			if seen[t.Name] {
				return nil, nil, &everror.FormAnalyzerError{Operator: op, Message: "duplicate parameter " + t.Name}
			}
			return params, t, nil
		default:
			return nil, nil, &everror.FormAnalyzerError{Operator: op, Message: "malformed parameter list"}
		}
	}
}

// ---- vref/fref/dref, vset!/fset!/dset! -------------------------------

// RefForm is `(vref name)` / `(fref name)` / `(dref name)`.
type RefForm struct{ Name *object.Variable }

func analyzeRef(op string, form object.Value) (*RefForm, error) {
	ops, err := operands(op, form)
	if err != nil {
		return nil, err
	}
	if len(ops) != 1 {
		return nil, arityError(op, "exactly one operand (a variable)")
	}
	v, ok := ops[0].(*object.Variable)
	if !ok {
		return nil, arityError(op, "a variable operand")
	}
	return &RefForm{Name: v}, nil
}

func AnalyzeVRef(form object.Value) (*RefForm, error) { return analyzeRef("vref", form) }
func AnalyzeFRef(form object.Value) (*RefForm, error) { return analyzeRef("fref", form) }
func AnalyzeDRef(form object.Value) (*RefForm, error) { return analyzeRef("dref", form) }

// SetForm is `(vset! name value)` / `(fset! name value)` / `(dset! name value)`.
type SetForm struct {
	Name  *object.Variable
	Value object.Value
}

func analyzeSet(op string, form object.Value) (*SetForm, error) {
	ops, err := operands(op, form)
	if err != nil {
		return nil, err
	}
	if len(ops) != 2 {
		return nil, arityError(op, "exactly two operands (a variable and a value form)")
	}
	v, ok := ops[0].(*object.Variable)
	if !ok {
		return nil, arityError(op, "a variable as the first operand")
	}
	return &SetForm{Name: v, Value: ops[1]}, nil
}

func AnalyzeVSet(form object.Value) (*SetForm, error) { return analyzeSet("vset!", form) }
func AnalyzeFSet(form object.Value) (*SetForm, error) { return analyzeSet("fset!", form) }
func AnalyzeDSet(form object.Value) (*SetForm, error) { return analyzeSet("dset!", form) }

// ---- _for-each --------------------------------------------------------

// ForEachForm is `(_for-each fn list)`.
type ForEachForm struct{ Fn, List object.Value }

func AnalyzeForEach(form object.Value) (*ForEachForm, error) {
	ops, err := operands("_for-each", form)
	if err != nil {
		return nil, err
	}
	if len(ops) != 2 {
		return nil, arityError("_for-each", "exactly two operands (a function and a list)")
	}
	return &ForEachForm{Fn: ops[0], List: ops[1]}, nil
}

// ---- _catch-errors ------------------------------------------------------

// CatchErrorsForm is `(_catch-errors try)`.
type CatchErrorsForm struct{ Try object.Value }

func AnalyzeCatchErrors(form object.Value) (*CatchErrorsForm, error) {
	ops, err := operands("_catch-errors", form)
	if err != nil {
		return nil, err
	}
	if len(ops) != 1 {
		return nil, arityError("_catch-errors", "exactly one operand")
	}
	return &CatchErrorsForm{Try: ops[0]}, nil
}

// ---- apply --------------------------------------------------------------

// ApplyForm is `(apply fn a1 ... an spread)`; spread must evaluate to a
// proper list whose elements become additional trailing arguments.
type ApplyForm struct {
	Fn     object.Value
	Args   []object.Value
	Spread object.Value
}

func AnalyzeApply(form object.Value) (*ApplyForm, error) {
	ops, err := operands("apply", form)
	if err != nil {
		return nil, err
	}
	if len(ops) < 2 {
		return nil, arityError("apply", "a function, zero or more arguments, and a final spread operand")
	}
	last := len(ops) - 1
	return &ApplyForm{Fn: ops[0], Args: ops[1:last], Spread: ops[last]}, nil
}

// ---- multiple-value-call / multiple-value-apply -------------------------

// MultipleValueCallForm is `(multiple-value-call fn op1 ... opn)`; every
// operand's full set of values is appended into
// the argument list.
type MultipleValueCallForm struct {
	Fn       object.Value
	Operands []object.Value
}

func AnalyzeMultipleValueCall(form object.Value) (*MultipleValueCallForm, error) {
	ops, err := operands("multiple-value-call", form)
	if err != nil {
		return nil, err
	}
	if len(ops) < 1 {
		return nil, arityError("multiple-value-call", "a function and zero or more operands")
	}
	return &MultipleValueCallForm{Fn: ops[0], Operands: ops[1:]}, nil
}

// MultipleValueApplyForm combines multiple-value-call's value-spreading
// with apply's final spread operand.
type MultipleValueApplyForm struct {
	Fn       object.Value
	Operands []object.Value
	Spread   object.Value
}

func AnalyzeMultipleValueApply(form object.Value) (*MultipleValueApplyForm, error) {
	ops, err := operands("multiple-value-apply", form)
	if err != nil {
		return nil, err
	}
	if len(ops) < 2 {
		return nil, arityError("multiple-value-apply", "a function, zero or more operands, and a final spread operand")
	}
	last := len(ops) - 1
	return &MultipleValueApplyForm{Fn: ops[0], Operands: ops[1:last], Spread: ops[last]}, nil
}
