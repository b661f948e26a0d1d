// Package params implements the four disjoint argument→parameter
// pairing cases: call vs apply, crossed with rest vs no-rest, sharing
// one error taxonomy.
package params

import (
	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
)

func tooFew(op string) error {
	return &everror.EvaluatorError{Sub: everror.TooFewArguments, Message: op + ": too few arguments"}
}

func tooMany(op string) error {
	return &everror.EvaluatorError{Sub: everror.TooManyArguments, Message: op + ": too many arguments"}
}

// PairCall pairs a plain call's evaluated arguments against params/rest.
// The returned slice is exactly len(params) long, plus one more (the
// rest list) when rest is non-nil — ready to hand to object.NewFrame
// alongside params (with rest appended).
func PairCall(params []*object.Variable, rest *object.Variable, args []object.Value) ([]object.Value, error) {
	if rest == nil {
		if len(args) < len(params) {
			return nil, tooFew("call")
		}
		if len(args) > len(params) {
			return nil, tooMany("call")
		}
		return append([]object.Value(nil), args...), nil
	}

	if len(args) < len(params) {
		return nil, tooFew("call")
	}
	slots := append([]object.Value(nil), args[:len(params)]...)
	slots = append(slots, object.SliceToList(append([]object.Value(nil), args[len(params):]...)))
	return slots, nil
}

// PairApply pairs apply's explicit arguments plus its final spread
// operand (which must evaluate to a proper list) against params/rest.
// When rest is set and some or all of the rest list's items come
// straight from the spread list's own tail, that tail's cons cells are
// reused by reference rather than copied.
func PairApply(params []*object.Variable, rest *object.Variable, args []object.Value, spread object.Value) ([]object.Value, error) {
	spreadItems, ok := object.ListToSlice(spread)
	if !ok {
		return nil, &everror.EvaluatorError{
			Sub:     everror.MalformedSpreadableSequenceOfObjects,
			Message: "apply's final operand must be a proper list",
		}
	}
	total := len(args) + len(spreadItems)

	if rest == nil {
		if total < len(params) {
			return nil, tooFew("apply")
		}
		if total > len(params) {
			return nil, tooMany("apply")
		}
		return append(append([]object.Value(nil), args...), spreadItems...), nil
	}

	if total < len(params) {
		return nil, tooFew("apply")
	}
	positional := append(append([]object.Value(nil), args...), spreadItems...)[:len(params)]

	var tail object.Value
	if len(args) >= len(params) {
		tail = object.SliceToImproperList(args[len(params):], spread)
	} else {
		tail = skipCells(spread, len(params)-len(args))
	}

	return append(append([]object.Value(nil), positional...), tail), nil
}

// skipCells walks n cons cells into a proper list and returns the
// remaining tail without copying, sharing structure with list.
func skipCells(list object.Value, n int) object.Value {
	cur := list
	for i := 0; i < n; i++ {
		cur = cur.(*object.Cons).Cdr
	}
	return cur
}
