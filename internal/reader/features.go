package reader

import (
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/symtab"
)

// readConditionalOnce reads one #+/#- form: a feature expression
// followed by a guarded object. Both are always consumed regardless of
// which way the feature expression evaluates. produced is false when the
// feature expression evaluates the "wrong" way for wantTrue, meaning
// this position yielded nothing and the caller should keep looking.
func (r *Reader) readConditionalOnce(wantTrue bool) (obj object.Value, produced bool, err error) {
	pos := r.cur.Pos
	if err := r.advance(); err != nil { // consume '#+' or '#-'
		return nil, false, err
	}

	exprRes, err := r.readSlot()
	if err != nil {
		return nil, false, err
	}
	if exprRes.term != 0 {
		return nil, false, &everror.ReaderError{Pos: pos, Message: "expected a feature expression after #+/#-"}
	}

	objRes, err := r.readSlot()
	if err != nil {
		return nil, false, err
	}
	if objRes.term != 0 {
		return nil, false, &everror.ReaderError{Pos: pos, Message: "expected a guarded object after the feature expression"}
	}

	matched, err := evalFeatureExpr(exprRes.val, r.tab)
	if err != nil {
		return nil, false, err
	}
	if matched == wantTrue {
		return objRes.val, true, nil
	}
	return nil, false, nil
}

// evalFeatureExpr evaluates a read-time feature expression: a bare
// symbol tested against *features*, or (not e), (and e...), (or e...)
// over such expressions.
func evalFeatureExpr(expr object.Value, tab *symtab.Table) (bool, error) {
	if v, ok := expr.(*object.Variable); ok {
		return tab.HasFeature(v.Name), nil
	}

	items, ok := object.ListToSlice(expr)
	if !ok || len(items) == 0 {
		return false, &everror.ReaderError{Message: "malformed feature expression"}
	}
	op, ok := items[0].(*object.Variable)
	if !ok {
		return false, &everror.ReaderError{Message: "malformed feature expression"}
	}

	switch op.Name {
	case "not":
		if len(items) != 2 {
			return false, &everror.ReaderError{Message: "(not e) takes exactly one operand"}
		}
		v, err := evalFeatureExpr(items[1], tab)
		if err != nil {
			return false, err
		}
		return !v, nil
	case "and":
		for _, e := range items[1:] {
			v, err := evalFeatureExpr(e, tab)
			if err != nil {
				return false, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil
	case "or":
		for _, e := range items[1:] {
			v, err := evalFeatureExpr(e, tab)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &everror.ReaderError{Message: "unsupported feature operator " + op.Name}
	}
}
