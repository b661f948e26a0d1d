package lexer

import (
	"strings"
	"unicode"

	"github.com/evl-lang/evl/internal/everror"
)

// readXML attempts to scan a well-formed XML start/end/empty tag
// beginning at the '<' the caller has already peeked. Only chapter and
// section produce an XMLSTART token whose body keeps being tokenized;
// a <comment> element and every other element are folded whole (see
// readFoldedComment and readFoldedElement). If the run does not parse as a
// well-formed tag, a TokenizerError ("malformed XML markup") is
// returned; an EOF encountered mid-construct yields TruncatedToken
// instead, so EVALUATE_FIRST_FORM can report FOUND_NO_FORM on partial
// input.
func (l *Lexer) readXML(startPos everror.Position) (Token, error) {
	mark := l.snapshot()

	l.advance() // consume '<'
	r, ok := l.peekRune()
	if !ok {
		return Token{}, &everror.TruncatedToken{Pos: startPos, Message: "unterminated XML tag"}
	}

	if r == '/' {
		l.advance()
		name, ok, terr := l.readXMLName()
		if terr != nil {
			return Token{}, terr
		}
		if !ok {
			l.restore(mark)
			return Token{}, &everror.TokenizerError{Pos: startPos, Message: "malformed XML end tag"}
		}
		l.skipXMLSpace()
		if err := l.expectRune('>'); err != nil {
			l.restore(mark)
			return Token{}, err
		}
		return Token{
			Type:       XMLEND,
			Pos:        startPos,
			Literal:    "</" + name + ">",
			XMLKind:    XMLKindEnd,
			XMLTagName: name,
		}, nil
	}

	name, ok, terr := l.readXMLName()
	if terr != nil {
		return Token{}, terr
	}
	if !ok {
		l.restore(mark)
		return Token{}, &everror.TokenizerError{Pos: startPos, Message: "malformed XML start tag"}
	}

	var attrs strings.Builder
	for {
		l.skipXMLSpace()
		n, ok := l.peekRune()
		if !ok {
			return Token{}, &everror.TruncatedToken{Pos: startPos, Message: "unterminated XML tag"}
		}
		if n == '>' || n == '/' {
			break
		}
		if err := l.readXMLAttribute(&attrs); err != nil {
			return Token{}, err
		}
	}

	empty := false
	if n, _ := l.peekRune(); n == '/' {
		l.advance()
		empty = true
	}
	if err := l.expectRune('>'); err != nil {
		l.restore(mark)
		return Token{}, err
	}

	if empty {
		return Token{
			Type:       XMLEMPTY,
			Pos:        startPos,
			Literal:    "<" + name + attrs.String() + "/>",
			XMLKind:    XMLKindEmpty,
			XMLTagName: name,
		}, nil
	}

	if strings.EqualFold(name, "comment") {
		return l.readFoldedComment(startPos, name, attrs.String())
	}

	if !strings.EqualFold(name, "chapter") && !strings.EqualFold(name, "section") {
		return l.readFoldedElement(startPos, name, attrs.String())
	}

	return Token{
		Type:       XMLSTART,
		Pos:        startPos,
		Literal:    "<" + name + attrs.String() + ">",
		XMLKind:    XMLKindStart,
		XMLTagName: name,
	}, nil
}

// readFoldedElement slurps the body of a text-bearing element — any
// element other than chapter/section — up to its matching end tag,
// folding the whole element into a single XMLELEMENT token. Inside
// such an element whitespace is text, so the body is never split into
// EVL lexemes; nested same-name elements are tracked by depth so the
// fold stops at the right close tag.
func (l *Lexer) readFoldedElement(startPos everror.Position, name, openAttrs string) (Token, error) {
	var body strings.Builder
	depth := 1
	for {
		if l.eof() {
			return Token{}, &everror.TruncatedToken{Pos: startPos, Message: "unterminated <" + name + "> element"}
		}
		r, _ := l.peekRune()
		if r == '<' {
			if nxt, ok := l.peekAt(1); ok && (nxt == '/' || isXMLNameStart(nxt)) {
				tagName, closing, selfClosing, raw, err := l.scanRawTag()
				if err != nil {
					return Token{}, err
				}
				if strings.EqualFold(tagName, name) {
					switch {
					case closing:
						depth--
						if depth == 0 {
							return Token{
								Type:       XMLELEMENT,
								Pos:        startPos,
								Literal:    "<" + name + openAttrs + ">" + body.String() + raw,
								XMLKind:    XMLKindElement,
								XMLTagName: name,
							}, nil
						}
					case !selfClosing:
						depth++
					}
				}
				body.WriteString(raw)
				continue
			}
		}
		body.WriteRune(l.advance())
	}
}

// scanRawTag leniently consumes one <...> run inside a folded element,
// reporting its name, whether it is an end tag, whether it
// self-closes, and the raw text consumed. Quoted attribute values may
// contain '>'.
func (l *Lexer) scanRawTag() (name string, closing, selfClosing bool, raw string, err error) {
	var b strings.Builder
	b.WriteRune(l.advance()) // '<'
	if r, ok := l.peekRune(); ok && r == '/' {
		closing = true
		b.WriteRune(l.advance())
	}
	var nb strings.Builder
	for {
		r, ok := l.peekRune()
		if !ok {
			return "", false, false, "", &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated XML tag"}
		}
		if !isXMLNameChar(r) {
			break
		}
		nb.WriteRune(r)
		b.WriteRune(l.advance())
	}
	var last rune
	for {
		r, ok := l.peekRune()
		if !ok {
			return "", false, false, "", &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated XML tag"}
		}
		if r == '"' || r == '\'' {
			b.WriteRune(l.advance())
			for {
				r2, ok := l.peekRune()
				if !ok {
					return "", false, false, "", &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated XML attribute value"}
				}
				b.WriteRune(l.advance())
				if r2 == r {
					break
				}
			}
			last = r
			continue
		}
		b.WriteRune(l.advance())
		if r == '>' {
			return nb.String(), closing, last == '/', b.String(), nil
		}
		if !isWhitespaceRune(r) {
			last = r
		}
	}
}

// readFoldedComment slurps raw text up to the matching </comment> end
// tag without recursively tokenizing it, folding the whole element
// into a single XMLCOMMENT token.
func (l *Lexer) readFoldedComment(startPos everror.Position, name, openAttrs string) (Token, error) {
	closeTag := "</" + name + ">"
	var body strings.Builder
	for {
		if l.eof() {
			return Token{}, &everror.TruncatedToken{Pos: startPos, Message: "unterminated <comment> element"}
		}
		if l.matchesAhead(closeTag) {
			for range []rune(closeTag) {
				l.advance()
			}
			full := "<" + name + openAttrs + ">" + body.String() + closeTag
			return Token{
				Type:          XMLCOMMENT,
				Pos:           startPos,
				Literal:       full,
				XMLKind:       XMLKindComment,
				XMLTagName:    name,
				XMLCommentRaw: body.String(),
			}, nil
		}
		body.WriteRune(l.advance())
	}
}

func (l *Lexer) matchesAhead(s string) bool {
	runes := []rune(s)
	for i, want := range runes {
		got, ok := l.peekAt(i)
		if !ok || !strings.EqualFold(string(got), string(want)) {
			return false
		}
	}
	return true
}

func (l *Lexer) readXMLName() (string, bool, error) {
	r, ok := l.peekRune()
	if !ok {
		return "", false, &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated XML tag name"}
	}
	if !isXMLNameStart(r) {
		return "", false, nil
	}
	var b strings.Builder
	for {
		r, ok := l.peekRune()
		if !ok {
			return "", false, &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated XML tag name"}
		}
		if !isXMLNameChar(r) {
			break
		}
		b.WriteRune(l.advance())
	}
	return b.String(), true, nil
}

func isXMLNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == ':'
}

func isXMLNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == ':'
}

func (l *Lexer) skipXMLSpace() {
	for {
		r, ok := l.peekRune()
		if !ok || !isWhitespaceRune(r) {
			return
		}
		l.advance()
	}
}

func (l *Lexer) readXMLAttribute(out *strings.Builder) error {
	name, ok, err := l.readXMLName()
	if err != nil {
		return err
	}
	if !ok {
		return &everror.TokenizerError{Pos: l.curPos(), Message: "malformed XML attribute"}
	}
	out.WriteByte(' ')
	out.WriteString(name)
	l.skipXMLSpace()
	if err := l.expectRune('='); err != nil {
		return err
	}
	out.WriteByte('=')
	l.skipXMLSpace()
	quote, ok := l.peekRune()
	if !ok {
		return &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated XML attribute value"}
	}
	if quote != '"' && quote != '\'' {
		return &everror.TokenizerError{Pos: l.curPos(), Message: "malformed XML attribute value"}
	}
	l.advance()
	out.WriteRune(quote)
	for {
		r, ok := l.peekRune()
		if !ok {
			return &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated XML attribute value"}
		}
		if r == quote {
			l.advance()
			out.WriteRune(quote)
			return nil
		}
		out.WriteRune(l.advance())
	}
}

func (l *Lexer) expectRune(want rune) error {
	r, ok := l.peekRune()
	if !ok {
		return &everror.TruncatedToken{Pos: l.curPos(), Message: "unexpected end of input"}
	}
	if r != want {
		return &everror.TokenizerError{Pos: l.curPos(), Message: "expected " + string(want)}
	}
	l.advance()
	return nil
}

// snapshot/restore support the speculative parse readXML performs:
// malformed markup rewinds to just after '<' was peeked so the caller
// reports one coherent error at the original start position.
type lexerMark struct {
	pos, line, column, byteOffset int
}

func (l *Lexer) snapshot() lexerMark {
	return lexerMark{pos: l.pos, line: l.line, column: l.column, byteOffset: l.byteOffset}
}

func (l *Lexer) restore(m lexerMark) {
	l.pos, l.line, l.column, l.byteOffset = m.pos, m.line, m.column, m.byteOffset
}
