// Package xmlconv implements EVL's EVL→XML converter: it re-scans
// source with internal/lexer and re-emits it, wrapping runs of EVL code found inside an XML element
// in `<toplevelcode><blockcode>…</blockcode></toplevelcode>` and
// embedded XML found inside EVL code in
// `<indentation style="margin-left: N ch"><blockcomment>…</blockcomment></indentation>`.
// The converter uses the tokenizer only; no reader or evaluator state
// is involved.
package xmlconv

import (
	"strconv"
	"strings"

	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/lexer"
)

// Convert re-scans source and produces its XML rendering.
func Convert(source string) (string, error) {
	toks, err := scan(source)
	if err != nil {
		return "", err
	}
	c := &converter{toks: toks}
	return c.run()
}

func scan(source string) ([]lexer.Token, error) {
	l := lexer.New(source, lexer.WithSingleCharacter())
	var toks []lexer.Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == lexer.EOF {
			return toks, nil
		}
	}
}

type converter struct {
	toks []lexer.Token
	pos  int
	out  strings.Builder
}

func (c *converter) run() (string, error) {
	if err := c.walk(0); err != nil {
		return "", err
	}
	return c.out.String(), nil
}

func (c *converter) peek() lexer.Token { return c.toks[c.pos] }

func (c *converter) next() lexer.Token {
	t := c.toks[c.pos]
	c.pos++
	return t
}

// walk emits tokens verbatim (raw XML/plain-text pass-through) while
// tracking xmlDepth (how many XML elements we are nested inside of).
// At xmlDepth > 0, an EVL form-opening token starts a wrapped block
// instead of being copied as plain text.
func (c *converter) walk(xmlDepth int) error {
	for {
		tok := c.peek()
		switch tok.Type {
		case lexer.EOF:
			return nil
		case lexer.XMLSTART:
			c.emitVerbatim(c.next())
			if err := c.walk(xmlDepth + 1); err != nil {
				return err
			}
		case lexer.XMLEND:
			c.emitVerbatim(c.next())
			if xmlDepth == 0 {
				return &everror.EVLToXMLConverterError{Pos: tok.Pos, Message: "unmatched XML end tag"}
			}
			return nil
		case lexer.XMLEMPTY, lexer.XMLCOMMENT, lexer.XMLELEMENT:
			c.emitVerbatim(c.next())
		case lexer.LPAREN, lexer.HASHLPAREN:
			if xmlDepth > 0 {
				if err := c.emitToplevelCode(); err != nil {
					return err
				}
				continue
			}
			c.emitVerbatim(c.next())
		default:
			c.emitVerbatim(c.next())
		}
	}
}

// emitVerbatim writes a token's preceding whitespace and literal text
// unescaped — used for genuine XML/top-level content, which is already
// valid XML (or outside any element) in the source.
func (c *converter) emitVerbatim(tok lexer.Token) {
	c.out.WriteString(tok.Whitespace)
	c.out.WriteString(tok.Literal)
}

// emitToplevelCode consumes one or more adjacent top-level EVL forms
// (an LPAREN/HASHLPAREN through its matching close) and wraps them in
// <toplevelcode><blockcode>…</blockcode></toplevelcode>. A run of two
// or more newlines between forms starts a fresh toplevelcode/blockcode
// pair instead of continuing the current one.
func (c *converter) emitToplevelCode() error {
	c.out.WriteString(c.peek().Whitespace)
	c.out.WriteString("<toplevelcode><blockcode>")
	for {
		if err := c.emitOneForm(); err != nil {
			return err
		}
		next := c.peek()
		if next.Type != lexer.LPAREN && next.Type != lexer.HASHLPAREN {
			break
		}
		if countNewlines(next.Whitespace) >= 2 {
			break
		}
		c.out.WriteString(escapeXML(next.Whitespace))
	}
	c.out.WriteString("</blockcode></toplevelcode>")
	return nil
}

// emitOneForm emits one balanced LPAREN/HASHLPAREN...RPAREN run as
// escaped EVL text, wrapping any XML element nested inside it.
func (c *converter) emitOneForm() error {
	open := c.next() // LPAREN or HASHLPAREN
	c.out.WriteString(escapeXML(open.Literal))
	depth := 1
	for depth > 0 {
		tok := c.peek()
		switch tok.Type {
		case lexer.EOF:
			return &everror.EVLToXMLConverterError{Pos: tok.Pos, Message: "unterminated form inside XML element"}
		case lexer.LPAREN, lexer.HASHLPAREN:
			c.next()
			c.out.WriteString(escapeXML(tok.Whitespace))
			c.out.WriteString(escapeXML(tok.Literal))
			depth++
		case lexer.RPAREN:
			c.next()
			c.out.WriteString(escapeXML(tok.Whitespace))
			c.out.WriteString(escapeXML(tok.Literal))
			depth--
		case lexer.XMLSTART:
			c.out.WriteString(escapeXML(tok.Whitespace))
			if err := c.emitIndentedComment(tok); err != nil {
				return err
			}
		case lexer.XMLELEMENT:
			c.next()
			c.out.WriteString(escapeXML(tok.Whitespace))
			c.emitFoldedComment(tok)
		default:
			c.next()
			c.out.WriteString(escapeXML(tok.Whitespace))
			c.out.WriteString(escapeXML(tok.Literal))
		}
	}
	return nil
}

// emitIndentedComment wraps an XML element found inside EVL code as
// <indentation style="margin-left: N ch"><blockcomment>…</blockcomment></indentation>,
// N being the run of spaces following the first newline in the
// element's preceding whitespace.
func (c *converter) emitIndentedComment(start lexer.Token) error {
	margin := marginAfterFirstNewline(start.Whitespace)
	c.out.WriteString("<indentation style=\"margin-left: ")
	c.out.WriteString(strconv.Itoa(margin))
	c.out.WriteString(" ch\"><blockcomment>")

	depth := 0
	for {
		tok := c.next()
		switch tok.Type {
		case lexer.EOF:
			return &everror.EVLToXMLConverterError{Pos: tok.Pos, Message: "unterminated XML element inside EVL code"}
		case lexer.XMLSTART:
			depth++
			c.out.WriteString(tok.Whitespace)
			c.out.WriteString(tok.Literal)
		case lexer.XMLEND:
			c.out.WriteString(tok.Whitespace)
			c.out.WriteString(tok.Literal)
			depth--
			if depth == 0 {
				c.out.WriteString("</blockcomment></indentation>")
				return nil
			}
		default:
			c.out.WriteString(tok.Whitespace)
			c.out.WriteString(tok.Literal)
		}
	}
}

// emitFoldedComment wraps a folded text element found inside EVL code
// the same way emitIndentedComment wraps a chapter/section element;
// the element is already one token, so its literal passes through
// whole.
func (c *converter) emitFoldedComment(tok lexer.Token) {
	margin := marginAfterFirstNewline(tok.Whitespace)
	c.out.WriteString("<indentation style=\"margin-left: ")
	c.out.WriteString(strconv.Itoa(margin))
	c.out.WriteString(" ch\"><blockcomment>")
	c.out.WriteString(tok.Literal)
	c.out.WriteString("</blockcomment></indentation>")
}

func countNewlines(s string) int {
	return strings.Count(s, "\n")
}

// marginAfterFirstNewline counts the run of spaces immediately
// following the first newline in ws (0 if ws has no newline).
func marginAfterFirstNewline(ws string) int {
	i := strings.IndexByte(ws, '\n')
	if i < 0 {
		return 0
	}
	n := 0
	for _, r := range ws[i+1:] {
		if r != ' ' {
			break
		}
		n++
	}
	return n
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

