package symtab_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/symtab"
)

func TestInterningIsStable(t *testing.T) {
	tab := symtab.New()
	a := tab.Variable("foo")
	b := tab.Variable("foo")
	if a != b {
		t.Error("Variable(\"foo\") called twice should return the same pointer")
	}

	ka := tab.Keyword("bar")
	kb := tab.Keyword("bar")
	if ka != kb {
		t.Error("Keyword(\"bar\") called twice should return the same pointer")
	}

	if tab.Variable("foo") == tab.Variable("baz") {
		t.Error("distinctly-named variables must not share a pointer")
	}
}

func TestLookupVariableDoesNotIntern(t *testing.T) {
	tab := symtab.New()
	if _, ok := tab.LookupVariable("never-seen"); ok {
		t.Fatal("LookupVariable reported a binding for a name never interned")
	}
	tab.Variable("now-seen")
	if _, ok := tab.LookupVariable("now-seen"); !ok {
		t.Error("LookupVariable should find a name previously interned via Variable")
	}
}

func TestFeatures(t *testing.T) {
	tab := symtab.New()
	if tab.HasFeature("trampolinepp") {
		t.Fatal("a fresh table should have no features set")
	}
	tab.SetFeatures([]string{"trampolinepp"})
	if !tab.HasFeature("trampolinepp") {
		t.Error("SetFeatures should install the given feature")
	}
	tab.AddFeature("extra")
	if !tab.HasFeature("extra") || !tab.HasFeature("trampolinepp") {
		t.Error("AddFeature should add without clobbering existing features")
	}
	tab.AddFeature("extra")
	if n := len(tab.Features()); n != 2 {
		t.Errorf("AddFeature with an already-present name should not duplicate it, got %d features", n)
	}
}
