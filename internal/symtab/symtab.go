// Package symtab owns EVL's two process-wide intern tables. Keywords
// and Variables are looked up by spelling and are always the same
// pointer for the same spelling.
//
// The tables are mutated only by the single evaluator thread; no
// mutex guards the maps. INITIALIZE tears down all interned data
// between evaluator sessions by installing a fresh Table.
package symtab

import "github.com/evl-lang/evl/internal/object"

// Table is one process-wide (or, for tests, session-scoped) pair of
// intern tables plus the *features* list used by read-time
// conditionals.
type Table struct {
	keywords  map[string]*object.Keyword
	variables map[string]*object.Variable
	features  []string
}

// New creates an empty intern table. INITIALIZE (internal/host) calls
// this to start a fresh evaluator session.
func New() *Table {
	return &Table{
		keywords:  make(map[string]*object.Keyword),
		variables: make(map[string]*object.Variable),
	}
}

// Keyword interns and returns the Keyword named name.
func (t *Table) Keyword(name string) *object.Keyword {
	if k, ok := t.keywords[name]; ok {
		return k
	}
	k := &object.Keyword{Name: name}
	t.keywords[name] = k
	return k
}

// Variable interns and returns the Variable named name.
func (t *Table) Variable(name string) *object.Variable {
	if v, ok := t.variables[name]; ok {
		return v
	}
	v := &object.Variable{Name: name}
	t.variables[name] = v
	return v
}

// LookupVariable returns the Variable named name without interning it,
// for callers that must not create bindings that do not already exist.
func (t *Table) LookupVariable(name string) (*object.Variable, bool) {
	v, ok := t.variables[name]
	return v, ok
}

// SetFeatures installs a fresh *features* list, replacing any prior
// one. INITIALIZE calls this with the name of the selected evaluator
// strategy.
func (t *Table) SetFeatures(features []string) {
	t.features = append([]string(nil), features...)
}

// AddFeature appends a feature name if not already present.
func (t *Table) AddFeature(name string) {
	if t.HasFeature(name) {
		return
	}
	t.features = append(t.features, name)
}

// HasFeature reports whether name is present in *features*.
func (t *Table) HasFeature(name string) bool {
	for _, f := range t.features {
		if f == name {
			return true
		}
	}
	return false
}

// Features returns the current *features* list.
func (t *Table) Features() []string {
	return append([]string(nil), t.features...)
}
