// Package evl is EVL's public library facade: a small, host-protocol-
// and CLI-independent surface for embedding the core. New() returns
// an Engine bound to one of the six interchangeable evaluator
// strategies; callers Parse source into forms and Eval them.
package evl

import (
	"fmt"

	"github.com/evl-lang/evl/internal/eval"
	"github.com/evl-lang/evl/internal/eval/cps"
	"github.com/evl-lang/evl/internal/eval/oocps"
	"github.com/evl-lang/evl/internal/eval/plainrec"
	"github.com/evl-lang/evl/internal/eval/sboocps"
	"github.com/evl-lang/evl/internal/eval/trampoline"
	"github.com/evl-lang/evl/internal/eval/trampolinepp"
	"github.com/evl-lang/evl/internal/lexer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/primitives"
	"github.com/evl-lang/evl/internal/reader"
	"github.com/evl-lang/evl/internal/symtab"
)

// Strategy names one of the six evaluator strategies.
type Strategy string

const (
	PlainRec     Strategy = "plainrec"
	CPS          Strategy = "cps"
	OOCPS        Strategy = "oocps"
	SBOOCPS      Strategy = "sboocps"
	Trampoline   Strategy = "trampoline"
	TrampolinePP Strategy = "trampolinepp"
)

// evaluator is the interface every internal/eval/* strategy satisfies.
type evaluator interface {
	Eval(form object.Value, lex, dyn *object.Frame) (object.Value, error)
}

// newEvaluator builds the evaluator named by s. Unknown names default
// to trampolinepp, matching the CLI's "default last" rule.
func newEvaluator(s Strategy, abort *eval.AbortFlag) evaluator {
	switch s {
	case PlainRec:
		return plainrec.New(abort)
	case CPS:
		return cps.New(abort)
	case OOCPS:
		return oocps.New(abort)
	case SBOOCPS:
		return sboocps.New(abort)
	case Trampoline:
		return trampoline.New(abort)
	default:
		return trampolinepp.New(abort)
	}
}

// Engine is one evaluator session: its own symbol tables bound to one
// evaluator strategy.
type Engine struct {
	Strategy Strategy
	Abort    eval.AbortFlag

	tab  *symtab.Table
	eval evaluator
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithStrategy selects one of the six evaluator strategies. The
// default is TrampolinePP.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) { e.Strategy = s }
}

// New creates a fresh Engine: a clean symbol table with every
// primitive registered and *features* naming the selected strategy.
func New(opts ...Option) *Engine {
	e := &Engine{Strategy: TrampolinePP}
	for _, opt := range opts {
		opt(e)
	}
	e.tab = symtab.New()
	primitives.Register(e.tab)
	e.tab.SetFeatures([]string{string(e.Strategy)})
	e.eval = newEvaluator(e.Strategy, &e.Abort)
	return e
}

// Reset tears down all interned state and installs a fresh table,
// exactly as a new INITIALIZE request would.
func (e *Engine) Reset() {
	e.Abort.Store(false)
	e.tab = symtab.New()
	primitives.Register(e.tab)
	e.tab.SetFeatures([]string{string(e.Strategy)})
	e.eval = newEvaluator(e.Strategy, &e.Abort)
}

// NewReader creates a reader.Reader over source, interning symbols
// through this Engine's table.
func (e *Engine) NewReader(source string) *reader.Reader {
	return reader.New(lexer.New(source), e.tab)
}

// Parse reads every top-level form in source.
func (e *Engine) Parse(source string) ([]object.Value, error) {
	return e.NewReader(source).ReadAll()
}

// ParseFirst reads the first top-level form in source, reader.ErrEOF
// when none is present.
func (e *Engine) ParseFirst(source string) (object.Value, error) {
	return e.NewReader(source).Read()
}

// Eval evaluates form in the global environment (nil lexical and
// dynamic frames).
func (e *Engine) Eval(form object.Value) (object.Value, error) {
	return e.eval.Eval(form, nil, nil)
}

// EvalSource parses every form in source and evaluates them in order,
// returning the last form's result.
func (e *Engine) EvalSource(source string) (object.Value, error) {
	forms, err := e.Parse(source)
	if err != nil {
		return nil, err
	}
	var result object.Value = object.Void
	for _, f := range forms {
		result, err = e.Eval(f)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ConvertToXML re-scans source into its mixed EVL/XML rendering. It
// uses the tokenizer only,
// independent of any Engine/evaluator state, but is exposed here too
// so callers need only import pkg/evl.
func ConvertToXML(source string) (string, error) {
	return convertToXML(source)
}

// Stringify renders v as the host protocol does: one string per
// constituent value.
func Stringify(v object.Value) []string {
	vals := object.AllValues(v)
	out := make([]string, len(vals))
	for i, val := range vals {
		out[i] = val.String()
	}
	return out
}

// Variable returns the engine's interned variable named name, useful
// for embedders wiring host functions into the global environment
// before evaluating a script.
func (e *Engine) Variable(name string) *object.Variable {
	return e.tab.Variable(name)
}

// Table exposes the engine's symbol table for embedders that need
// direct access.
func (e *Engine) Table() *symtab.Table {
	return e.tab
}

// errUnsupportedStrategy is returned by ParseStrategy for an
// unrecognized name, e.g. one internal/host decodes from a JSON field.
func errUnsupportedStrategy(name string) error {
	return fmt.Errorf("evl: unsupported evaluator strategy %q", name)
}

// ParseStrategy validates and converts a string (as received over the
// host protocol or a CLI flag) into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case PlainRec, CPS, OOCPS, SBOOCPS, Trampoline, TrampolinePP:
		return Strategy(name), nil
	default:
		return "", errUnsupportedStrategy(name)
	}
}
