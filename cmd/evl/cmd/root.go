// Package cmd implements the evl command-line surface with
// github.com/spf13/cobra: a root command carrying the evaluator
// selection flags and the ordered -l/-e/--convert operations.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evl-lang/evl/pkg/evl"
)

// strategyFlags are the six mutually-exclusive evaluator-selection
// flags; the last one set wins, and trampolinepp is the
// default when none is given ("default last").
var strategyFlags = []struct {
	name     string
	strategy evl.Strategy
}{
	{"plainrec", evl.PlainRec},
	{"cps", evl.CPS},
	{"oocps", evl.OOCPS},
	{"sboocps", evl.SBOOCPS},
	{"trampoline", evl.Trampoline},
	{"trampolinepp", evl.TrampolinePP},
}

var selectedStrategy = evl.TrampolinePP

// ops accumulates -l/-e/--convert operations in the order they appear
// on the command line; cobra/pflag tracks each flag's own repetitions
// independently, so the ordering across distinct flag names is
// recovered here by having every flag's Value.Set append to this one
// shared slice.
var ops []operation

type opKind int

const (
	opLoad opKind = iota
	opEval
	opConvert
)

type operation struct {
	kind opKind
	arg  string
}

// orderedFlag is a pflag.Value that records every Set call, in order,
// onto the shared ops slice rather than holding just its own latest
// value.
type orderedFlag struct{ kind opKind }

func (f orderedFlag) String() string { return "" }
func (f orderedFlag) Type() string   { return "string" }
func (f orderedFlag) Set(v string) error {
	ops = append(ops, operation{kind: f.kind, arg: v})
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "evl",
	Short: "EVL Lisp interpreter",
	Long: `evl runs programs written in EVL, an educational Lisp-family
language with six interchangeable evaluator strategies.

Select an evaluator strategy with one of --plainrec, --cps, --oocps,
--sboocps, --trampoline, --trampolinepp (default: --trampolinepp), then
give a sequence of -l <file>, -e <form>, --convert <file> operations to
run in order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOperations,
}

func init() {
	for _, sf := range strategyFlags {
		sf := sf
		rootCmd.Flags().Var(boolStrategyFlag{sf.strategy}, sf.name, fmt.Sprintf("select the %s evaluator strategy", sf.name))
		rootCmd.Flags().Lookup(sf.name).NoOptDefVal = "true"
	}
	rootCmd.Flags().VarP(orderedFlag{opLoad}, "load", "l", "load and evaluate a file")
	rootCmd.Flags().VarP(orderedFlag{opEval}, "eval", "e", "evaluate an inline form")
	rootCmd.Flags().Var(orderedFlag{opConvert}, "convert", "convert a file's EVL source to mixed EVL/XML and print it")
}

// boolStrategyFlag is a pflag.Value so that a bare --plainrec (no
// argument) selects a strategy; setting
// any of the six updates selectedStrategy, so the last one given wins.
type boolStrategyFlag struct{ strategy evl.Strategy }

func (f boolStrategyFlag) String() string   { return "" }
func (f boolStrategyFlag) Type() string     { return "bool" }
func (f boolStrategyFlag) IsBoolFlag() bool { return true }
func (f boolStrategyFlag) Set(v string) error {
	if v == "true" {
		selectedStrategy = f.strategy
	}
	return nil
}

func runOperations(_ *cobra.Command, _ []string) error {
	engine := evl.New(evl.WithStrategy(selectedStrategy))
	for _, op := range ops {
		if err := runOperation(engine, op); err != nil {
			fmt.Fprintln(os.Stdout, err.Error())
			return err
		}
	}
	return nil
}

func runOperation(engine *evl.Engine, op operation) error {
	switch op.kind {
	case opLoad:
		content, err := os.ReadFile(op.arg)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", op.arg, err)
		}
		_, err = engine.EvalSource(string(content))
		return err
	case opEval:
		_, err := engine.EvalSource(op.arg)
		return err
	case opConvert:
		content, err := os.ReadFile(op.arg)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", op.arg, err)
		}
		xmlOut, err := evl.ConvertToXML(string(content))
		if err != nil {
			return err
		}
		fmt.Println(xmlOut)
		return nil
	default:
		return fmt.Errorf("unknown operation")
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
