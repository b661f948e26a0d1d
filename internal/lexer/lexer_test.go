package lexer_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/lexer"
)

func tokenTypes(t *testing.T, source string) []lexer.TokenType {
	t.Helper()
	l := lexer.New(source)
	var types []lexer.TokenType
	for {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("NextToken: %v", err)
		}
		types = append(types, tok.Type)
		if tok.Type == lexer.EOF {
			return types
		}
	}
}

func TestTokenCategories(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   []lexer.TokenType
	}{
		{"list", `(+ 1 2)`, []lexer.TokenType{
			lexer.LPAREN, lexer.VARIABLE, lexer.NUMBER, lexer.NUMBER, lexer.RPAREN, lexer.EOF,
		}},
		{"quote", `'x`, []lexer.TokenType{lexer.QUOTE, lexer.VARIABLE, lexer.EOF}},
		{"quasiquote", "`x", []lexer.TokenType{lexer.QUASIQUOTE, lexer.VARIABLE, lexer.EOF}},
		{"unquote", `,x`, []lexer.TokenType{lexer.UNQUOTE, lexer.VARIABLE, lexer.EOF}},
		{"unquote-splicing", `,@x`, []lexer.TokenType{lexer.UNQUOTESPLICING, lexer.VARIABLE, lexer.EOF}},
		{"string", `"hi"`, []lexer.TokenType{lexer.STRING, lexer.EOF}},
		{"vector", `#(1 2)`, []lexer.TokenType{lexer.HASHLPAREN, lexer.NUMBER, lexer.NUMBER, lexer.RPAREN, lexer.EOF}},
		{"void", `#v`, []lexer.TokenType{lexer.VOIDTOK, lexer.EOF}},
		{"true", `#t`, []lexer.TokenType{lexer.BOOLEAN, lexer.EOF}},
		{"false", `#f`, []lexer.TokenType{lexer.BOOLEAN, lexer.EOF}},
		{"character", `#"a"`, []lexer.TokenType{lexer.CHARACTER, lexer.EOF}},
		{"keyword", `:foo`, []lexer.TokenType{lexer.KEYWORD, lexer.EOF}},
		{"conditional-plus", `#+a x`, []lexer.TokenType{lexer.HASHPLUS, lexer.VARIABLE, lexer.VARIABLE, lexer.EOF}},
		{"conditional-minus", `#-a x`, []lexer.TokenType{lexer.HASHMINUS, lexer.VARIABLE, lexer.VARIABLE, lexer.EOF}},
		{"dotted", `(a . b)`, []lexer.TokenType{
			lexer.LPAREN, lexer.VARIABLE, lexer.DOT, lexer.VARIABLE, lexer.RPAREN, lexer.EOF,
		}},
		{"xml-empty", `<br/>`, []lexer.TokenType{lexer.XMLEMPTY, lexer.EOF}},
		{"xml-chapter", `<chapter>`, []lexer.TokenType{lexer.XMLSTART, lexer.EOF}},
		{"xml-text-element", `<title>Hello World</title>`, []lexer.TokenType{lexer.XMLELEMENT, lexer.EOF}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			got := tokenTypes(t, c.source)
			if len(got) != len(c.want) {
				t.Fatalf("token count = %d, want %d (%v)", len(got), len(c.want), got)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Errorf("token %d: got %v, want %v", i, got[i], c.want[i])
				}
			}
		})
	}
}

func TestMultiCodeUnitCharacterQueuesRemainder(t *testing.T) {
	// #"ab" yields the character 'a', then queues 'b' to surface as its
	// own CHARACTER token next.
	l := lexer.New(`#"ab"`)
	first, err := l.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if first.Type != lexer.CHARACTER || len(first.CodeUnits) == 0 || first.CodeUnits[0] != 'a' {
		t.Fatalf("first token = %+v, want CHARACTER 'a'", first)
	}
	second, err := l.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if second.Type != lexer.CHARACTER || second.CodeUnits[0] != 'b' {
		t.Fatalf("second token = %+v, want CHARACTER 'b'", second)
	}
}

func TestTruncatedStringIsDistinguished(t *testing.T) {
	l := lexer.New(`"unterminated`)
	_, err := l.NextToken()
	if err == nil {
		t.Fatal("expected a truncation error")
	}
	if _, ok := err.(*everror.TruncatedToken); !ok {
		t.Fatalf("got %T, want *everror.TruncatedToken", err)
	}
}

func TestLoneSurrogateEscapeRejected(t *testing.T) {
	// A literal lone surrogate cannot appear in a valid Go string, so
	// the rejection is exercised through the escape form instead.
	l := lexer.New(`"\U{D800}"`)
	_, err := l.NextToken()
	if err == nil {
		t.Fatal("expected an error for a lone-surrogate escape")
	}
	if _, ok := err.(*everror.TokenizerError); !ok {
		t.Fatalf("got %T, want *everror.TokenizerError", err)
	}
}

// TestTextElementBodyFoldsVerbatim checks that a non-chapter/section
// element's body is slurped as text: whitespace and punctuation
// survive untouched, and nested same-name elements keep the fold
// balanced.
func TestTextElementBodyFoldsVerbatim(t *testing.T) {
	source := `<para>Hello  World, (not code) <para>nested</para> tail</para>`
	l := lexer.New(source)
	tok, err := l.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if tok.Type != lexer.XMLELEMENT {
		t.Fatalf("got token %v, want XMLELEMENT", tok.Type)
	}
	if tok.Literal != source {
		t.Errorf("folded literal = %q, want the full element verbatim", tok.Literal)
	}
	next, err := l.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if next.Type != lexer.EOF {
		t.Fatalf("got trailing token %v, want EOF", next)
	}
}

func TestSingleCharacterModeDoesNotQueue(t *testing.T) {
	l := lexer.New(`#"ab" x`, lexer.WithSingleCharacter())
	first, err := l.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if first.Type != lexer.CHARACTER || first.CodeUnits[0] != 'a' {
		t.Fatalf("first token = %+v, want CHARACTER 'a'", first)
	}
	second, err := l.NextToken()
	if err != nil {
		t.Fatalf("NextToken: %v", err)
	}
	if second.Type != lexer.VARIABLE {
		t.Fatalf("second token = %+v, want VARIABLE (no queued remainder)", second)
	}
}
