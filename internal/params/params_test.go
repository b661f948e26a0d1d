package params_test

import (
	"testing"

	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/params"
)

func nums(vs ...float64) []object.Value {
	out := make([]object.Value, len(vs))
	for i, v := range vs {
		out[i] = object.NewNumber(v)
	}
	return out
}

func vars(names ...string) []*object.Variable {
	out := make([]*object.Variable, len(names))
	for i, n := range names {
		out[i] = &object.Variable{Name: n}
	}
	return out
}

func TestPairCallExactNoRest(t *testing.T) {
	slots, err := params.PairCall(vars("x", "y"), nil, nums(1, 2))
	if err != nil {
		t.Fatalf("PairCall: %v", err)
	}
	if len(slots) != 2 || slots[0].String() != "1" || slots[1].String() != "2" {
		t.Errorf("got %v, want [1 2]", slots)
	}
}

func TestPairCallTooFewNoRest(t *testing.T) {
	_, err := params.PairCall(vars("x", "y"), nil, nums(1))
	assertSub(t, err, everror.TooFewArguments)
}

func TestPairCallTooManyNoRest(t *testing.T) {
	_, err := params.PairCall(vars("x"), nil, nums(1, 2))
	assertSub(t, err, everror.TooManyArguments)
}

func TestPairCallWithRest(t *testing.T) {
	rest := &object.Variable{Name: "more"}
	slots, err := params.PairCall(vars("x"), rest, nums(1, 2, 3))
	if err != nil {
		t.Fatalf("PairCall: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2 (one fixed + one rest list)", len(slots))
	}
	if slots[0].String() != "1" {
		t.Errorf("fixed slot = %s, want 1", slots[0].String())
	}
	if slots[1].String() != "(2 3)" {
		t.Errorf("rest slot = %s, want (2 3)", slots[1].String())
	}
}

func TestPairCallWithRestTooFewFixed(t *testing.T) {
	rest := &object.Variable{Name: "more"}
	_, err := params.PairCall(vars("x", "y"), rest, nums(1))
	assertSub(t, err, everror.TooFewArguments)
}

func TestPairApplyExactNoRest(t *testing.T) {
	spread := object.SliceToList(nums(2, 3))
	slots, err := params.PairApply(vars("x", "y", "z"), nil, nums(1), spread)
	if err != nil {
		t.Fatalf("PairApply: %v", err)
	}
	if len(slots) != 3 || slots[0].String() != "1" || slots[1].String() != "2" || slots[2].String() != "3" {
		t.Errorf("got %v, want [1 2 3]", slots)
	}
}

func TestPairApplyMalformedSpread(t *testing.T) {
	_, err := params.PairApply(vars("x"), nil, nil, object.NewNumber(1))
	assertSub(t, err, everror.MalformedSpreadableSequenceOfObjects)
}

func TestPairApplyWithRestAdoptsSpreadTail(t *testing.T) {
	rest := &object.Variable{Name: "more"}
	spread := object.SliceToList(nums(2, 3, 4))
	slots, err := params.PairApply(vars("x"), rest, nums(1), spread)
	if err != nil {
		t.Fatalf("PairApply: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
	if slots[0].String() != "1" {
		t.Errorf("fixed slot = %s, want 1", slots[0].String())
	}
	if slots[1].String() != "(2 3 4)" {
		t.Errorf("rest slot = %s, want (2 3 4)", slots[1].String())
	}
}

func TestPairApplyTooFewWithRest(t *testing.T) {
	rest := &object.Variable{Name: "more"}
	spread := object.SliceToList(nil)
	_, err := params.PairApply(vars("x", "y"), rest, nil, spread)
	assertSub(t, err, everror.TooFewArguments)
}

func assertSub(t *testing.T, err error, want everror.EvaluatorSubKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error with sub-kind %s, got nil", want)
	}
	evErr, ok := err.(*everror.EvaluatorError)
	if !ok {
		t.Fatalf("got error %v (%T), want *everror.EvaluatorError", err, err)
	}
	if evErr.Sub != want {
		t.Errorf("got sub-kind %q, want %q", evErr.Sub, want)
	}
}
