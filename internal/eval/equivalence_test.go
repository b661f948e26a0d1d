// Package eval's equivalence_test verifies the semantic-equivalence
// law: a form that terminates under all evaluators must produce equal
// primary values under every one of the six strategies.
package eval_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/eval/cps"
	"github.com/evl-lang/evl/internal/eval/oocps"
	"github.com/evl-lang/evl/internal/eval/plainrec"
	"github.com/evl-lang/evl/internal/eval/sboocps"
	"github.com/evl-lang/evl/internal/eval/trampoline"
	"github.com/evl-lang/evl/internal/eval/trampolinepp"
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/lexer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/primitives"
	"github.com/evl-lang/evl/internal/reader"
	"github.com/evl-lang/evl/internal/symtab"
)

// evaluator is the interface every internal/eval/* strategy satisfies.
type evaluator interface {
	Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error)
}

type strategy struct {
	name string
	new  func(*eval.AbortFlag) evaluator
}

func strategies() []strategy {
	return []strategy{
		{"plainrec", func(a *eval.AbortFlag) evaluator { return plainrec.New(a) }},
		{"cps", func(a *eval.AbortFlag) evaluator { return cps.New(a) }},
		{"oocps", func(a *eval.AbortFlag) evaluator { return oocps.New(a) }},
		{"sboocps", func(a *eval.AbortFlag) evaluator { return sboocps.New(a) }},
		{"trampoline", func(a *eval.AbortFlag) evaluator { return trampoline.New(a) }},
		{"trampolinepp", func(a *eval.AbortFlag) evaluator { return trampolinepp.New(a) }},
	}
}

// evalUnderEach parses source once per strategy (each strategy gets
// its own fresh symbol table, since trampolinepp's preprocessor
// caches addressing state per closure instance) and evaluates every
// form in it in order, returning the last form's primary value.
func evalUnderEach(t *testing.T, source string) map[string]object.Value {
	t.Helper()
	results := make(map[string]object.Value)
	for _, s := range strategies() {
		tab := symtab.New()
		primitives.Register(tab)
		forms, err := reader.New(lexer.New(source), tab).ReadAll()
		if err != nil {
			t.Fatalf("%s: parse error: %v", s.name, err)
		}
		ev := s.new(nil)
		var result object.Value = object.Void
		for _, f := range forms {
			result, err = ev.Eval(f, nil, nil)
			if err != nil {
				t.Fatalf("%s: eval error: %v", s.name, err)
			}
		}
		results[s.name] = object.PrimaryValue(result)
	}
	return results
}

func assertAllEqual(t *testing.T, source string) map[string]object.Value {
	t.Helper()
	results := evalUnderEach(t, source)
	var want string
	var wantName string
	first := true
	for _, s := range strategies() {
		got := results[s.name].String()
		if first {
			want, wantName = got, s.name
			first = false
			continue
		}
		if got != want {
			t.Errorf("%s produced %q, but %s produced %q for %q", s.name, got, wantName, want, source)
		}
	}
	return results
}

func TestEquivalenceSimpleForms(t *testing.T) {
	cases := []string{
		`(quote a)`,
		`(if #t 'a 'b)`,
		`(if #f 'a 'b)`,
		`(progn 1 2 3)`,
		`(_+ 1 2 3)`,
		`(_* 2 3 4)`,
		`((_vlambda (x y) (_+ x y)) 1 2)`,
		`(vset! x 10) (vset! x (_+ x 5)) x`,
		`(_car (_cons 1 2))`,
		`(_cdr (_cons 1 2))`,
		`(apply (fref _+) (_list 1 2 3))`,
		`(_values 1 2 3)`,
		`(_catch-errors (_error "oops"))`,
		`((_flambda (x) (_* (fref x) (fref x))) 6)`,
	}
	for _, c := range cases {
		c := c
		t.Run(c, func(t *testing.T) {
			assertAllEqual(t, c)
		})
	}
}

// TestEquivalenceOrderOfEffects checks the order-of-effects law:
// (progn (vset! x 1) (vset! x 2) x) yields 2 under every strategy.
func TestEquivalenceOrderOfEffects(t *testing.T) {
	results := assertAllEqual(t, `(progn (vset! x 1) (vset! x 2) x)`)
	for name, v := range results {
		if v.String() != "2" {
			t.Errorf("%s: got %s, want 2", name, v.String())
		}
	}
}

// TestEquivalenceMacro checks that a macro closure's operands are
// passed unevaluated and its expansion is evaluated in the caller's
// environment, identically across strategies: my-if builds the list
// (if c th el) out of its own unevaluated operands and the expansion
// is then evaluated where the call appears.
func TestEquivalenceMacro(t *testing.T) {
	results := assertAllEqual(t, `
		(fset! my-if (_mlambda (c th el)
			(_cons (quote if) (_cons c (_cons th (_cons el (quote ())))))))
		(my-if #t (quote yes) (quote no))
	`)
	for name, v := range results {
		if v.String() != "yes" {
			t.Errorf("%s: macro expansion got %s, want yes", name, v.String())
		}
	}
}

// TestApplySpreading checks the apply-spreading law:
// (apply f (list 1 2 3)) is equivalent to (f 1 2 3).
func TestApplySpreading(t *testing.T) {
	results := evalUnderEach(t, `(apply (fref _+) (_list 1 2 3))`)
	for name, v := range results {
		if v.String() != "6" {
			t.Errorf("%s: apply spreading got %s, want 6", name, v.String())
		}
	}
}

// TestApplyMalformedSpread checks that applying with a non-list tail
// signals MalformedSpreadableSequenceOfObjects; it runs under the
// plainrec strategy only, with a primitive callee.
func TestApplyMalformedSpread(t *testing.T) {
	tab := symtab.New()
	primitives.Register(tab)
	forms, err := reader.New(lexer.New(`(apply (fref _+) 1 2 3)`), tab).ReadAll()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = plainrec.New(nil).Eval(forms[0], nil, nil)
	if err == nil {
		t.Fatal("expected an error applying a non-list spread operand")
	}
	evErr, ok := err.(*everror.EvaluatorError)
	if !ok {
		t.Fatalf("got error %v (%T), want *everror.EvaluatorError", err, err)
	}
	if evErr.Sub != everror.MalformedSpreadableSequenceOfObjects {
		t.Errorf("got sub-kind %q, want MalformedSpreadableSequenceOfObjects", evErr.Sub)
	}
}

// TestTailSafety checks the tail-safety law: trampoline and
// trampolinepp must evaluate a deep self-tail-recursive loop without
// growing the Go call stack in proportion to the iteration count. The
// recursive/CPS evaluators are not required to (and, run at this
// depth, would overflow the Go stack), so this only exercises the two
// bounce-loop strategies.
func TestTailSafety(t *testing.T) {
	const source = `
		(fset! test-loop (_vlambda (n)
			(if (_= n 0) 0 (test-loop (_- n 1)))))
		(test-loop 1000000)
	`
	for _, name := range []string{"trampoline", "trampolinepp"} {
		name := name
		t.Run(name, func(t *testing.T) {
			tab := symtab.New()
			primitives.Register(tab)
			forms, err := reader.New(lexer.New(source), tab).ReadAll()
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			var ev evaluator
			if name == "trampoline" {
				ev = trampoline.New(nil)
			} else {
				ev = trampolinepp.New(nil)
			}
			var result object.Value = object.Void
			for _, f := range forms {
				result, err = ev.Eval(f, nil, nil)
				if err != nil {
					t.Fatalf("%s: eval error: %v", name, err)
				}
			}
			if object.PrimaryValue(result).String() != "0" {
				t.Errorf("%s: got %s, want 0", name, result.String())
			}
		})
	}
}
