package reader_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/lexer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/reader"
	"github.com/evl-lang/evl/internal/symtab"
)

func readOne(t *testing.T, source string) object.Value {
	t.Helper()
	tab := symtab.New()
	v, err := reader.New(lexer.New(source), tab).Read()
	if err != nil {
		t.Fatalf("Read(%q): %v", source, err)
	}
	return v
}

func TestReadAbbreviations(t *testing.T) {
	cases := map[string]string{
		"'x":  "(quote x)",
		"`x":  "(quasiquote x)",
		",x":  "(unquote x)",
		",@x": "(unquote-splicing x)",
	}
	for src, want := range cases {
		if got := readOne(t, src).String(); got != want {
			t.Errorf("Read(%q) = %s, want %s", src, got, want)
		}
	}
}

func TestReadDottedList(t *testing.T) {
	got := readOne(t, "(1 . 2)").String()
	if got != "(1 . 2)" {
		t.Errorf("got %s, want (1 . 2)", got)
	}
}

func TestReadProperList(t *testing.T) {
	got := readOne(t, "(1 2 3)").String()
	if got != "(1 2 3)" {
		t.Errorf("got %s, want (1 2 3)", got)
	}
}

func TestReadVector(t *testing.T) {
	got := readOne(t, "#(1 2 3)").String()
	if got != "#(1 2 3)" {
		t.Errorf("got %s, want #(1 2 3)", got)
	}
}

func TestReadVectorForbidsDot(t *testing.T) {
	tab := symtab.New()
	_, err := reader.New(lexer.New("#(1 . 2)"), tab).Read()
	if err == nil {
		t.Fatal("expected an error dotting inside a vector")
	}
}

func TestReadTimeConditionalTrue(t *testing.T) {
	tab := symtab.New()
	tab.SetFeatures([]string{"fast"})
	v, err := reader.New(lexer.New("#+fast 1"), tab).Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v.String() != "1" {
		t.Errorf("got %s, want 1", v.String())
	}
}

// TestReadTimeConditionalFalseFallsThrough checks the reader's
// Open Question: a non-matching #+/#- still consumes its guarded
// object, so the next slot read is whatever follows it.
func TestReadTimeConditionalFalseFallsThrough(t *testing.T) {
	tab := symtab.New()
	// no "fast" feature set
	forms, err := reader.New(lexer.New("#+fast 1 2"), tab).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(forms) != 1 || forms[0].String() != "2" {
		t.Fatalf("got %v, want a single form \"2\"", forms)
	}
}

func TestReadTimeConditionalAndOr(t *testing.T) {
	tab := symtab.New()
	tab.SetFeatures([]string{"a", "b"})
	v, err := reader.New(lexer.New("#+(and a b) 1"), tab).Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v.String() != "1" {
		t.Errorf("(and a b) with both features set should produce the guarded object, got %s", v.String())
	}

	v2, err := reader.New(lexer.New("#-(or a c) 1 2"), tab).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(v2) != 1 || v2[0].String() != "2" {
		t.Fatalf("(or a c) is true so #- should discard its object, got %v", v2)
	}
}

func TestXMLElementsSkippedAsComments(t *testing.T) {
	forms, err := reader.New(lexer.New(`<note>1</note> 2`), symtab.New()).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(forms) != 1 || forms[0].String() != "2" {
		t.Fatalf("got %v, want only the EVL form outside the skipped XML element", forms)
	}
}

func TestXMLEmbeddedObjectsDelivered(t *testing.T) {
	var embedded []object.Value
	tab := symtab.New()
	r := reader.New(lexer.New(`<chapter>1 2</chapter> 3`), tab, reader.WithEmbeddedCallback(func(v object.Value) {
		embedded = append(embedded, v)
	}))
	forms, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(forms) != 1 || forms[0].String() != "3" {
		t.Fatalf("got %v, want only \"3\" as a top-level form", forms)
	}
	if len(embedded) != 2 || embedded[0].String() != "1" || embedded[1].String() != "2" {
		t.Fatalf("got embedded %v, want [1 2]", embedded)
	}
}

// TestProseElementBodyIsNotTokenized checks that the body of any
// element other than chapter/section is literal text: multi-word
// prose must neither surface as embedded objects nor disturb the
// forms around the element.
func TestProseElementBodyIsNotTokenized(t *testing.T) {
	var embedded []object.Value
	r := reader.New(lexer.New(`<para>Hello World, this is plain prose.</para> 42`), symtab.New(),
		reader.WithEmbeddedCallback(func(v object.Value) { embedded = append(embedded, v) }))
	forms, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(forms) != 1 || forms[0].String() != "42" {
		t.Fatalf("got %v, want only \"42\" as a top-level form", forms)
	}
	if len(embedded) != 0 {
		t.Fatalf("prose inside a text element must not be delivered as embedded forms, got %v", embedded)
	}
}

// TestProseInsideChapterLeafStaysText covers the nested shape: a
// chapter's own body is still tokenized (its code runs), but a
// text-bearing leaf inside it is not.
func TestProseInsideChapterLeafStaysText(t *testing.T) {
	var embedded []object.Value
	r := reader.New(lexer.New(`<chapter><title>Two Words</title> 1</chapter>`), symtab.New(),
		reader.WithEmbeddedCallback(func(v object.Value) { embedded = append(embedded, v) }))
	forms, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(forms) != 0 {
		t.Fatalf("got %v, want no top-level forms", forms)
	}
	if len(embedded) != 1 || embedded[0].String() != "1" {
		t.Fatalf("got embedded %v, want only the chapter-level form [1]", embedded)
	}
}

func TestReadAllStopsCleanlyAtEOF(t *testing.T) {
	forms, err := reader.New(lexer.New("1 2 3"), symtab.New()).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(forms) != 3 {
		t.Fatalf("got %d forms, want 3", len(forms))
	}
}

func TestReadEmptyInputReportsErrEOF(t *testing.T) {
	_, err := reader.New(lexer.New(""), symtab.New()).Read()
	if err != reader.ErrEOF {
		t.Fatalf("got %v, want reader.ErrEOF", err)
	}
}

func TestReadUnexpectedClosingParen(t *testing.T) {
	_, err := reader.New(lexer.New(")"), symtab.New()).Read()
	if err == nil {
		t.Fatal("expected an error for a lone closing paren")
	}
}

func TestReadUnterminatedList(t *testing.T) {
	_, err := reader.New(lexer.New("( 1 2"), symtab.New()).Read()
	if err == nil {
		t.Fatal("expected an error for an unterminated list")
	}
}

// TestInterningAcrossForms checks the interning law: the same
// spelling read in two different forms of the same session yields the
// same Variable pointer.
func TestInterningAcrossForms(t *testing.T) {
	tab := symtab.New()
	forms, err := reader.New(lexer.New("(f x) (g x)"), tab).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	items0, _ := object.ListToSlice(forms[0])
	items1, _ := object.ListToSlice(forms[1])
	x0 := items0[1].(*object.Variable)
	x1 := items1[1].(*object.Variable)
	if x0 != x1 {
		t.Error("the same spelling \"x\" read twice should intern to the same Variable")
	}
}
