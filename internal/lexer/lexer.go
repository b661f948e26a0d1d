// Package lexer implements the EVL tokenizer: a position-tracked
// scanner over the mixed S-expression/XML source dialect. Each token
// carries the raw run of whitespace that preceded it, so a consumer
// can reproduce the source text verbatim.
package lexer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/evl-lang/evl/internal/everror"
	"golang.org/x/text/unicode/bidi"
)

// Lexer scans EVL source text into a stream of Tokens.
type Lexer struct {
	input        []rune
	pos          int // index into input of the current rune
	line, column int // 1-based position of input[pos]
	byteOffset   int

	pendingChars []uint16 // queued CHARACTER code units from a #"..." run
	pendingPos   everror.Position

	// singleChar collapses a #"..." run into one CHARACTER token
	// regardless of body length; see WithSingleCharacter.
	singleChar bool
}

// Option configures a Lexer at construction time.
type Option func(*Lexer)

// WithSingleCharacter makes every #"..." construct produce exactly one
// CHARACTER token instead of queueing its remaining code units. The
// EVL→XML converter scans in this mode: it re-emits each token's raw
// source text, so a queued remainder would duplicate the body.
func WithSingleCharacter() Option {
	return func(l *Lexer) { l.singleChar = true }
}

// New creates a Lexer over input.
func New(input string, opts ...Option) *Lexer {
	l := &Lexer{
		input:  []rune(input),
		line:   1,
		column: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lexer) eof() bool { return l.pos >= len(l.input) }

func (l *Lexer) peekRune() (rune, bool) {
	if l.eof() {
		return 0, false
	}
	return l.input[l.pos], true
}

func (l *Lexer) peekAt(offset int) (rune, bool) {
	idx := l.pos + offset
	if idx < 0 || idx >= len(l.input) {
		return 0, false
	}
	return l.input[idx], true
}

func (l *Lexer) curPos() everror.Position {
	return everror.Position{Line: l.line, Column: l.column, Offset: l.byteOffset}
}

func (l *Lexer) advance() rune {
	r := l.input[l.pos]
	l.pos++
	l.byteOffset += utf8.RuneLen(r)
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func isWhitespaceRune(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// isBidiMark reports whether r is one of the Unicode bidirectional
// control/format marks the source lexical surface carves out of the
// general control-character ban.
func isBidiMark(r rune) bool {
	switch r {
	case '‎', '‏', // LRM, RLM
		'؜',                                 // ALM
		'‪', '‫', '‬', '‭', '‮', // LRE,RLE,PDF,LRO,RLO
		'⁦', '⁧', '⁨', '⁩': // LRI,RLI,FSI,PDI
		return true
	}
	p, _ := bidi.LookupRune(r)
	switch p.Class() {
	case bidi.LRO, bidi.RLO, bidi.LRE, bidi.RLE, bidi.PDF, bidi.LRI, bidi.RLI, bidi.FSI, bidi.PDI:
		return true
	}
	return false
}

func isNonCharacter(r rune) bool {
	if r >= 0xFDD0 && r <= 0xFDEF {
		return true
	}
	low := r & 0xFFFF
	return low == 0xFFFE || low == 0xFFFF
}

func isLoneSurrogate(r rune) bool {
	return r >= 0xD800 && r <= 0xDFFF
}

// isValidSourceRune implements the significant-characters policy:
// printable text plus whitespace, minus lone surrogates, Unicode
// non-characters, and control codes other than the whitespace set,
// NEL, and the bidirectional marks.
func isValidSourceRune(r rune) bool {
	if isLoneSurrogate(r) || isNonCharacter(r) {
		return false
	}
	if isWhitespaceRune(r) {
		return true
	}
	if r == 0x85 { // NEL
		return true
	}
	if isBidiMark(r) {
		return true
	}
	if r < 0x20 || (r >= 0x7F && r <= 0x9F) {
		return false // other C0/C1 control codes
	}
	return true
}

// NextToken scans and returns the next token, or an error describing
// why no token could be produced (TruncatedToken when more input
// could still complete the lexeme, TokenizerError otherwise).
func (l *Lexer) NextToken() (Token, error) {
	if len(l.pendingChars) > 0 {
		u := l.pendingChars[0]
		l.pendingChars = l.pendingChars[1:]
		return Token{
			Type:      CHARACTER,
			Pos:       l.pendingPos,
			Literal:   string(rune(u)),
			CodeUnits: []uint16{u},
		}, nil
	}

	ws := l.consumeWhitespace()

	startPos := l.curPos()
	if l.eof() {
		return Token{Type: EOF, Pos: startPos, Whitespace: ws}, nil
	}

	r, _ := l.peekRune()
	if !isValidSourceRune(r) {
		l.advance()
		return Token{}, &everror.TokenizerError{Pos: startPos, Message: "invalid character " + strconv.QuoteRune(r)}
	}

	var tok Token
	var err error
	switch {
	case r == '\'':
		l.advance()
		tok = Token{Type: QUOTE, Pos: startPos, Literal: "'"}
	case r == '`':
		l.advance()
		tok = Token{Type: QUASIQUOTE, Pos: startPos, Literal: "`"}
	case r == ',':
		l.advance()
		if next, ok := l.peekRune(); ok && next == '@' {
			l.advance()
			tok = Token{Type: UNQUOTESPLICING, Pos: startPos, Literal: ",@"}
		} else {
			tok = Token{Type: UNQUOTE, Pos: startPos, Literal: ","}
		}
	case r == '(':
		l.advance()
		tok = Token{Type: LPAREN, Pos: startPos, Literal: "("}
	case r == ')':
		l.advance()
		tok = Token{Type: RPAREN, Pos: startPos, Literal: ")"}
	case r == '"':
		tok, err = l.readString(startPos)
	case r == '#':
		tok, err = l.readHash(startPos)
	case r == '<':
		tok, err = l.readXML(startPos)
	default:
		tok, err = l.readProtoToken(startPos)
	}
	if err != nil {
		return Token{}, err
	}
	tok.Whitespace = ws
	return tok, nil
}

// consumeWhitespace consumes and returns the raw run of whitespace
// preceding the next token, preserved verbatim for the EVL→XML
// converter.
func (l *Lexer) consumeWhitespace() string {
	var b strings.Builder
	for {
		r, ok := l.peekRune()
		if !ok || !isWhitespaceRune(r) {
			break
		}
		b.WriteRune(l.advance())
	}
	return b.String()
}

func (l *Lexer) readString(startPos everror.Position) (Token, error) {
	l.advance() // consume opening quote
	decoded, raw, err := l.readQuotedBody('"', true)
	if err != nil {
		return Token{}, err
	}
	return Token{Type: STRING, Pos: startPos, Literal: raw, StringValue: decoded}, nil
}

// readQuotedBody reads up to and including the closing delimiter,
// decoding \\, \", \t, \n, \v, \f, \r and \U{HEX} when allowStringEscapes
// is true (string literals); returns everror.TruncatedToken if EOF is
// reached first.
func (l *Lexer) readQuotedBody(delim rune, allowStringEscapes bool) (decoded, raw string, err error) {
	var db, rb strings.Builder
	rb.WriteRune(delim)
	for {
		r, ok := l.peekRune()
		if !ok {
			return "", "", &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated string literal"}
		}
		if r == delim {
			l.advance()
			rb.WriteRune(delim)
			return db.String(), rb.String(), nil
		}
		if r == '\\' {
			l.advance()
			rb.WriteRune('\\')
			esc, ok := l.peekRune()
			if !ok {
				return "", "", &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated escape sequence"}
			}
			switch {
			case allowStringEscapes && esc == 't':
				l.advance()
				rb.WriteRune('t')
				db.WriteRune('\t')
			case allowStringEscapes && esc == 'n':
				l.advance()
				rb.WriteRune('n')
				db.WriteRune('\n')
			case allowStringEscapes && esc == 'v':
				l.advance()
				rb.WriteRune('v')
				db.WriteRune('\v')
			case allowStringEscapes && esc == 'f':
				l.advance()
				rb.WriteRune('f')
				db.WriteRune('\f')
			case allowStringEscapes && esc == 'r':
				l.advance()
				rb.WriteRune('r')
				db.WriteRune('\r')
			case esc == '\\':
				l.advance()
				rb.WriteRune('\\')
				db.WriteRune('\\')
			case esc == delim:
				l.advance()
				rb.WriteRune(delim)
				db.WriteRune(delim)
			case esc == '<':
				l.advance()
				rb.WriteRune('<')
				db.WriteRune('<')
			case esc == 'U':
				l.advance()
				rb.WriteRune('U')
				hexRune, hexRaw, herr := l.readUnicodeEscape()
				if herr != nil {
					return "", "", herr
				}
				rb.WriteString(hexRaw)
				db.WriteRune(hexRune)
			default:
				return "", "", &everror.TokenizerError{Pos: l.curPos(), Message: "unknown escape sequence \\" + string(esc)}
			}
			continue
		}
		if !isValidSourceRune(r) {
			return "", "", &everror.TokenizerError{Pos: l.curPos(), Message: "invalid character in literal"}
		}
		l.advance()
		rb.WriteRune(r)
		db.WriteRune(r)
	}
}

// readUnicodeEscape reads the `{HEX}` part following `\U`.
func (l *Lexer) readUnicodeEscape() (rune, string, error) {
	var raw strings.Builder
	open, ok := l.peekRune()
	if !ok || open != '{' {
		return 0, "", &everror.TruncatedToken{Pos: l.curPos(), Message: "expected { after \\U"}
	}
	l.advance()
	raw.WriteRune('{')
	var hex strings.Builder
	for {
		r, ok := l.peekRune()
		if !ok {
			return 0, "", &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated \\U{...} escape"}
		}
		if r == '}' {
			l.advance()
			raw.WriteRune('}')
			break
		}
		l.advance()
		raw.WriteRune(r)
		hex.WriteRune(r)
	}
	val, err := strconv.ParseInt(hex.String(), 16, 32)
	if err != nil {
		return 0, "", &everror.TokenizerError{Pos: l.curPos(), Message: "malformed \\U{HEX} escape"}
	}
	r := rune(val)
	if val > 0x10FFFF || isLoneSurrogate(r) || isNonCharacter(r) {
		return 0, "", &everror.TokenizerError{Pos: l.curPos(), Message: "\\U{HEX} escape is not a valid Unicode scalar"}
	}
	return r, raw.String(), nil
}

// readHash scans one of the #-prefixed constructs.
func (l *Lexer) readHash(startPos everror.Position) (Token, error) {
	l.advance() // consume '#'
	r, ok := l.peekRune()
	if !ok {
		return Token{}, &everror.TruncatedToken{Pos: startPos, Message: "unterminated hash construct"}
	}
	switch r {
	case '(':
		l.advance()
		return Token{Type: HASHLPAREN, Pos: startPos, Literal: "#("}, nil
	case '+':
		l.advance()
		return Token{Type: HASHPLUS, Pos: startPos, Literal: "#+"}, nil
	case '-':
		l.advance()
		return Token{Type: HASHMINUS, Pos: startPos, Literal: "#-"}, nil
	case 'v':
		l.advance()
		return Token{Type: VOIDTOK, Pos: startPos, Literal: "#v"}, nil
	case 't':
		l.advance()
		return Token{Type: BOOLEAN, Pos: startPos, Literal: "#t"}, nil
	case 'f':
		l.advance()
		return Token{Type: BOOLEAN, Pos: startPos, Literal: "#f"}, nil
	case '"':
		return l.readCharacter(startPos, 0)
	default:
		if unicode.IsDigit(r) {
			var digits strings.Builder
			for {
				d, ok := l.peekRune()
				if !ok || !unicode.IsDigit(d) {
					break
				}
				digits.WriteRune(l.advance())
			}
			quote, hasQuote := l.peekRune()
			if !hasQuote || quote != '"' {
				return Token{}, &everror.TokenizerError{Pos: startPos, Message: "malformed #N\"...\" character construct"}
			}
			idx, _ := strconv.Atoi(digits.String())
			return l.readCharacter(startPos, idx)
		}
		return Token{}, &everror.TokenizerError{Pos: startPos, Message: "malformed hash construct #" + string(r)}
	}
}

// readCharacter scans a `#"..."` (or `#N"..."`) construct. The Nth
// (0-based) UTF-16 code unit of the decoded body becomes this token's
// CodeUnit; any remaining code units are queued to emerge as
// consecutive CHARACTER tokens.
func (l *Lexer) readCharacter(startPos everror.Position, index int) (Token, error) {
	l.advance() // consume opening quote
	decoded, raw, err := l.readQuotedBody('"', true)
	if err != nil {
		return Token{}, err
	}
	units := utf16.Encode([]rune(decoded))
	if len(units) == 0 {
		return Token{}, &everror.TokenizerError{Pos: startPos, Message: "empty character literal"}
	}
	if index < 0 || index >= len(units) {
		return Token{}, &everror.TokenizerError{Pos: startPos, Message: "character index out of range"}
	}
	lit := "#" + raw
	if index != 0 {
		lit = "#" + strconv.Itoa(index) + raw
	}
	tok := Token{Type: CHARACTER, Pos: startPos, Literal: lit, CodeUnits: []uint16{units[index]}}
	if !l.singleChar {
		rest := append([]uint16{}, units[index+1:]...)
		if len(rest) > 0 {
			l.pendingChars = rest
			l.pendingPos = startPos
		}
	}
	return tok, nil
}

var protoSyntaxChars = map[rune]bool{
	'(': true, ')': true, '\'': true, '`': true, ',': true, '"': true, '<': true, '#': true,
}

// readProtoToken scans up to whitespace or a syntax character,
// honoring \\ and \< escapes, and classifies the result
// as DOT, NUMBER, KEYWORD, or VARIABLE.
func (l *Lexer) readProtoToken(startPos everror.Position) (Token, error) {
	var raw, decoded strings.Builder
	for {
		r, ok := l.peekRune()
		if !ok || isWhitespaceRune(r) || protoSyntaxChars[r] {
			break
		}
		if r == '\\' {
			l.advance()
			raw.WriteRune('\\')
			esc, ok := l.peekRune()
			if !ok {
				return Token{}, &everror.TruncatedToken{Pos: l.curPos(), Message: "unterminated escape in token"}
			}
			switch esc {
			case '\\':
				l.advance()
				raw.WriteRune('\\')
				decoded.WriteRune('\\')
			case '<':
				l.advance()
				raw.WriteRune('<')
				decoded.WriteRune('<')
			case 'U':
				l.advance()
				raw.WriteRune('U')
				hexRune, hexRaw, herr := l.readUnicodeEscape()
				if herr != nil {
					return Token{}, herr
				}
				raw.WriteString(hexRaw)
				decoded.WriteRune(hexRune)
			default:
				return Token{}, &everror.TokenizerError{Pos: l.curPos(), Message: "unknown escape sequence \\" + string(esc)}
			}
			continue
		}
		if !isValidSourceRune(r) {
			return Token{}, &everror.TokenizerError{Pos: l.curPos(), Message: "invalid character in token"}
		}
		l.advance()
		raw.WriteRune(r)
		decoded.WriteRune(r)
	}

	text := decoded.String()
	rawText := raw.String()
	if text == "" {
		r, _ := l.peekRune()
		l.advance()
		return Token{}, &everror.TokenizerError{Pos: startPos, Message: "unexpected character " + strconv.QuoteRune(r)}
	}

	switch {
	case text == ".":
		return Token{Type: DOT, Pos: startPos, Literal: rawText}, nil
	case strings.HasPrefix(text, ":") && len(text) > 1:
		return Token{Type: KEYWORD, Pos: startPos, Literal: rawText, KeywordName: text[1:]}, nil
	default:
		if n, ok := parseNumber(text); ok {
			return Token{Type: NUMBER, Pos: startPos, Literal: rawText, NumberValue: n}, nil
		}
		return Token{Type: VARIABLE, Pos: startPos, Literal: rawText, VariableName: text}, nil
	}
}

func parseNumber(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	switch text[0] {
	case '+', '-':
		if len(text) == 1 {
			return 0, false
		}
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
