// Package reader assembles the token stream produced by internal/lexer
// into EVL object trees.
package reader

import (
	"errors"

	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/lexer"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// ErrEOF is returned by Read when no more top-level forms remain. It
// is not itself an everror.Error: running out of input is not a
// failure.
var ErrEOF = errors.New("reader: no more forms")

// Reader turns a token stream into EVL objects.
type Reader struct {
	lex    *lexer.Lexer
	tab    *symtab.Table
	cur    lexer.Token
	primed bool

	// onEmbedded, when set, receives every fully-read top-level EVL
	// object found inside a skipped XML element.
	onEmbedded func(object.Value)
}

// Option configures a Reader at construction time.
type Option func(*Reader)

// WithEmbeddedCallback installs the callback invoked for each EVL
// object found inside a skipped XML element.
func WithEmbeddedCallback(fn func(object.Value)) Option {
	return func(r *Reader) { r.onEmbedded = fn }
}

// New creates a Reader over lex, interning symbols through tab.
func New(lex *lexer.Lexer, tab *symtab.Table, opts ...Option) *Reader {
	r := &Reader{lex: lex, tab: tab}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) advance() error {
	tok, err := r.lex.NextToken()
	if err != nil {
		return err
	}
	r.cur = tok
	return nil
}

func (r *Reader) ensurePrimed() error {
	if r.primed {
		return nil
	}
	r.primed = true
	return r.advance()
}

// Read returns the next top-level EVL object, ErrEOF once the input is
// exhausted, or an everror describing why no form could be produced.
func (r *Reader) Read() (object.Value, error) {
	if err := r.ensurePrimed(); err != nil {
		return nil, err
	}
	res, err := r.readSlot()
	if err != nil {
		return nil, err
	}
	switch res.term {
	case lexer.EOF:
		return nil, ErrEOF
	case lexer.RPAREN:
		return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedClosingParen, Message: "unexpected closing parenthesis"}
	case lexer.DOT:
		return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedDot, Message: "unexpected dot"}
	case lexer.XMLEND:
		return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedXMLEndTag, Message: "unexpected XML end tag"}
	default:
		return res.val, nil
	}
}

// ReadAll reads every top-level form until EOF.
func (r *Reader) ReadAll() ([]object.Value, error) {
	var forms []object.Value
	for {
		obj, err := r.Read()
		if err == ErrEOF {
			return forms, nil
		}
		if err != nil {
			return forms, err
		}
		forms = append(forms, obj)
	}
}

// slotResult is the outcome of attempting to read one form at a given
// position: either a value, or a terminator token type (RPAREN/DOT/
// EOF/XMLEND) that the caller — Read, readList, or readVector — must
// interpret in its own context.
type slotResult struct {
	val  object.Value
	term lexer.TokenType // zero (lexer.ILLEGAL never occurs here) when val is set
}

// readSlot reads one logical position: a produced value, or (after
// resolving any run of read-time conditionals and skipped XML
// elements) the terminator token now in view. Read-time conditionals
// always consume both their feature expression and guarded object;
// when one discards its object, readSlot loops to examine whatever
// occupies the position next — which may
// itself be a terminator.
func (r *Reader) readSlot() (slotResult, error) {
	for {
		if err := r.settle(); err != nil {
			return slotResult{}, err
		}
		switch r.cur.Type {
		case lexer.EOF, lexer.RPAREN, lexer.DOT, lexer.XMLEND:
			return slotResult{term: r.cur.Type}, nil
		case lexer.HASHPLUS, lexer.HASHMINUS:
			want := r.cur.Type == lexer.HASHPLUS
			obj, produced, err := r.readConditionalOnce(want)
			if err != nil {
				return slotResult{}, err
			}
			if produced {
				return slotResult{val: obj}, nil
			}
			continue
		default:
			obj, err := r.readAtom()
			if err != nil {
				return slotResult{}, err
			}
			return slotResult{val: obj}, nil
		}
	}
}

// settle skips any run of XML elements sitting at the current
// position, delivering embedded EVL objects along the way.
func (r *Reader) settle() error {
	for {
		switch r.cur.Type {
		case lexer.XMLSTART, lexer.XMLEMPTY, lexer.XMLCOMMENT, lexer.XMLELEMENT:
			if err := r.skipElement(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// skipElement consumes one XML element. Only chapter/section elements
// arrive as an XMLSTART whose body keeps being tokenized; a top-level
// EVL object nested inside one is read normally and delivered to
// onEmbedded rather than discarded. Every other element was already
// folded whole by the lexer, its body text never lexed.
func (r *Reader) skipElement() error {
	switch r.cur.Type {
	case lexer.XMLEMPTY, lexer.XMLCOMMENT, lexer.XMLELEMENT:
		return r.advance()
	}

	depth := 1
	if err := r.advance(); err != nil {
		return err
	}
	for depth > 0 {
		switch r.cur.Type {
		case lexer.EOF:
			return &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedEndOfInputToken, Message: "unterminated XML element"}
		case lexer.XMLSTART:
			depth++
			if err := r.advance(); err != nil {
				return err
			}
		case lexer.XMLEMPTY, lexer.XMLCOMMENT, lexer.XMLELEMENT:
			if err := r.advance(); err != nil {
				return err
			}
		case lexer.XMLEND:
			depth--
			if err := r.advance(); err != nil {
				return err
			}
		default:
			res, err := r.readSlot()
			if err != nil {
				return err
			}
			if res.term != 0 {
				return &everror.ReaderError{Pos: r.cur.Pos, Message: "unexpected token inside XML element"}
			}
			if r.onEmbedded != nil {
				r.onEmbedded(res.val)
			}
		}
	}
	return nil
}

// readAtom reads an abbreviation, list, vector, or literal — anything
// that is not a terminator or a read-time conditional.
func (r *Reader) readAtom() (object.Value, error) {
	switch r.cur.Type {
	case lexer.QUOTE:
		return r.readAbbrev("quote")
	case lexer.QUASIQUOTE:
		return r.readAbbrev("quasiquote")
	case lexer.UNQUOTE:
		return r.readAbbrev("unquote")
	case lexer.UNQUOTESPLICING:
		return r.readAbbrev("unquote-splicing")
	case lexer.LPAREN:
		return r.readList()
	case lexer.HASHLPAREN:
		return r.readVector()
	case lexer.VOIDTOK:
		if err := r.advance(); err != nil {
			return nil, err
		}
		return object.Void, nil
	case lexer.BOOLEAN:
		v := r.cur.Literal == "#t"
		if err := r.advance(); err != nil {
			return nil, err
		}
		return object.Bool(v), nil
	case lexer.CHARACTER:
		u := r.cur.CodeUnits[0]
		if err := r.advance(); err != nil {
			return nil, err
		}
		return object.NewCharacter(u), nil
	case lexer.STRING:
		s := r.cur.StringValue
		if err := r.advance(); err != nil {
			return nil, err
		}
		return object.NewString(s), nil
	case lexer.NUMBER:
		n := r.cur.NumberValue
		if err := r.advance(); err != nil {
			return nil, err
		}
		return object.NewNumber(n), nil
	case lexer.KEYWORD:
		name := r.cur.KeywordName
		if err := r.advance(); err != nil {
			return nil, err
		}
		return r.tab.Keyword(name), nil
	case lexer.VARIABLE:
		name := r.cur.VariableName
		if err := r.advance(); err != nil {
			return nil, err
		}
		return r.tab.Variable(name), nil
	default:
		pos, tok := r.cur.Pos, r.cur
		if err := r.advance(); err != nil {
			return nil, err
		}
		return nil, &everror.ReaderError{Pos: pos, Message: "unexpected token " + tok.String()}
	}
}

// readAbbrev expands 'x, `x, ,x, ,@x into (name x) with the canonical
// variable head.
func (r *Reader) readAbbrev(name string) (object.Value, error) {
	pos := r.cur.Pos
	if err := r.advance(); err != nil {
		return nil, err
	}
	res, err := r.readSlot()
	if err != nil {
		return nil, err
	}
	if res.term != 0 {
		return nil, &everror.ReaderError{Pos: pos, Message: "expected a form after abbreviation"}
	}
	head := r.tab.Variable(name)
	return object.NewCons(head, object.NewCons(res.val, object.EmptyList)), nil
}

func (r *Reader) readList() (object.Value, error) {
	if err := r.advance(); err != nil { // consume '('
		return nil, err
	}
	var items []object.Value
	for {
		res, err := r.readSlot()
		if err != nil {
			return nil, err
		}
		switch res.term {
		case lexer.RPAREN:
			if err := r.advance(); err != nil {
				return nil, err
			}
			return object.SliceToList(items), nil
		case lexer.DOT:
			if len(items) == 0 {
				return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedDot, Message: "dot at head of list"}
			}
			if err := r.advance(); err != nil { // consume '.'
				return nil, err
			}
			tailRes, err := r.readSlot()
			if err != nil {
				return nil, err
			}
			if tailRes.term != 0 {
				return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedDot, Message: "dot must be followed by exactly one element"}
			}
			closeRes, err := r.readSlot()
			if err != nil {
				return nil, err
			}
			if closeRes.term != lexer.RPAREN {
				return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedDot, Message: "dot must be followed by exactly one element then close"}
			}
			if err := r.advance(); err != nil {
				return nil, err
			}
			return object.SliceToImproperList(items, tailRes.val), nil
		case lexer.EOF, lexer.XMLEND:
			return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedEndOfInputToken, Message: "unterminated list"}
		default:
			items = append(items, res.val)
		}
	}
}

func (r *Reader) readVector() (object.Value, error) {
	if err := r.advance(); err != nil { // consume '#('
		return nil, err
	}
	var items []object.Value
	for {
		res, err := r.readSlot()
		if err != nil {
			return nil, err
		}
		switch res.term {
		case lexer.RPAREN:
			if err := r.advance(); err != nil {
				return nil, err
			}
			return object.NewVector(items), nil
		case lexer.DOT:
			return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedDot, Message: "dotting is forbidden in vectors"}
		case lexer.EOF, lexer.XMLEND:
			return nil, &everror.ReaderError{Pos: r.cur.Pos, Sub: everror.UnexpectedEndOfInputToken, Message: "unterminated vector"}
		default:
			items = append(items, res.val)
		}
	}
}
