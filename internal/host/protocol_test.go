package host_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/evl-lang/evl/internal/host"
)

func initSession(t *testing.T, strategy string) *host.Session {
	t.Helper()
	s := host.NewSession()
	input, _ := json.Marshal(map[string]any{
		"selectedEvaluator": strategy,
		"evlFiles":          []string{},
	})
	resp := s.Dispatch(host.Request{ID: "0", Action: host.Initialize, Input: input})
	if resp.Status != host.StatusSuccess {
		t.Fatalf("INITIALIZE failed: %+v", resp)
	}
	return s
}

func dispatchSource(s *host.Session, id string, action host.Action, source string) host.Response {
	in, _ := json.Marshal(source)
	return s.Dispatch(host.Request{ID: id, Action: action, Input: in})
}

func TestInitializeUnknownStrategy(t *testing.T) {
	s := host.NewSession()
	input, _ := json.Marshal(map[string]any{"selectedEvaluator": "not-a-real-strategy"})
	resp := s.Dispatch(host.Request{ID: "1", Action: host.Initialize, Input: input})
	if resp.Status != host.StatusError {
		t.Fatalf("got status %v, want ERROR", resp.Status)
	}
}

// TestEvaluateFirstFormSimpleAddition exercises the canonical
// scenario: (+ 1 2) with + aliased to the _+ primitive.
func TestEvaluateFirstFormSimpleAddition(t *testing.T) {
	s := initSession(t, "trampolinepp")
	dispatchSource(s, "a", host.EvaluateAll, `(fset! + (fref _+))`)
	resp := dispatchSource(s, "b", host.EvaluateFirst, `(+ 1 2)`)
	if resp.Status != host.StatusSuccess {
		t.Fatalf("got %+v, want SUCCESS", resp)
	}
	snaps.MatchSnapshot(t, "evaluate_first_simple_addition", string(resp.Output))
}

// TestEvaluateFirstFormNonBooleanTest checks that (if 0 'a 'b) signals
// an error because 0 is not a boolean test value.
func TestEvaluateFirstFormNonBooleanTest(t *testing.T) {
	s := initSession(t, "plainrec")
	resp := dispatchSource(s, "c", host.EvaluateFirst, `(if 0 'a 'b)`)
	if resp.Status != host.StatusError {
		t.Fatalf("got %+v, want ERROR", resp)
	}
}

// TestEvaluateFirstFormTruthyBranch checks (if #t 'a 'b) takes the
// then-branch under the cps strategy.
func TestEvaluateFirstFormTruthyBranch(t *testing.T) {
	s := initSession(t, "cps")
	resp := dispatchSource(s, "d", host.EvaluateFirst, `(if #t 'a 'b)`)
	if resp.Status != host.StatusSuccess {
		t.Fatalf("got %+v, want SUCCESS", resp)
	}
	snaps.MatchSnapshot(t, "evaluate_first_if_truthy", string(resp.Output))
}

// TestEvaluateFirstFormCatchErrors checks that (_catch-errors (_error
// "oops")) yields the caught error rather than propagating it.
func TestEvaluateFirstFormCatchErrors(t *testing.T) {
	s := initSession(t, "oocps")
	resp := dispatchSource(s, "e", host.EvaluateFirst, `(_catch-errors (_error "oops"))`)
	if resp.Status != host.StatusSuccess {
		t.Fatalf("got %+v, want SUCCESS", resp)
	}
}

// TestEvaluateFirstFormUnclosedInputFoundNoForm checks the unclosed
// input scenario: "( 1 2" (no closing paren) reports FOUND_NO_FORM,
// not ERROR.
func TestEvaluateFirstFormUnclosedInputFoundNoForm(t *testing.T) {
	s := initSession(t, "trampolinepp")
	resp := dispatchSource(s, "f", host.EvaluateFirst, `( 1 2`)
	if resp.Status != host.StatusFoundNoForm {
		t.Fatalf("got %+v, want FOUND_NO_FORM", resp)
	}
}

// TestEvaluateAllFormsTrampolinePPDeepLoop checks a self-tail-recursive
// loop of 100000 iterations completes under trampolinepp without
// exhausting the Go stack.
func TestEvaluateAllFormsTrampolinePPDeepLoop(t *testing.T) {
	s := initSession(t, "trampolinepp")
	resp := dispatchSource(s, "g", host.EvaluateAll, `
		(fset! loop (_vlambda (n) (if (_= n 0) 0 (loop (_- n 1)))))
		(loop 100000)
	`)
	if resp.Status != host.StatusSuccess {
		t.Fatalf("got %+v, want SUCCESS", resp)
	}
	snaps.MatchSnapshot(t, "evaluate_all_trampolinepp_deep_loop", string(resp.Output))
}

// TestAbortDivergingEvaluation sets the abort flag while a diverging
// loop runs and expects the request to come back ABORTED rather than
// spinning forever.
func TestAbortDivergingEvaluation(t *testing.T) {
	s := initSession(t, "trampoline")
	done := make(chan host.Response, 1)
	go func() {
		done <- dispatchSource(s, "z", host.EvaluateAll, `
			(fset! spin (_vlambda () (spin)))
			(spin)
		`)
	}()
	time.Sleep(50 * time.Millisecond)
	s.Abort()
	select {
	case resp := <-done:
		if resp.Status != host.StatusAborted {
			t.Fatalf("got %+v, want ABORTED", resp)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("evaluation did not honor the abort flag")
	}
}

func TestConvertEvlToXML(t *testing.T) {
	s := host.NewSession()
	resp := dispatchSource(s, "h", host.ConvertToXML, `<chapter><title>Intro</title></chapter>`)
	if resp.Status != host.StatusSuccess {
		t.Fatalf("got %+v, want SUCCESS", resp)
	}
	snaps.MatchSnapshot(t, "convert_evl_to_xml_chapter", string(resp.Output))
}

func TestDispatchJSONMalformedRequest(t *testing.T) {
	s := host.NewSession()
	out := s.DispatchJSON([]byte(`{not json`))
	var resp host.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("DispatchJSON returned invalid JSON: %v", err)
	}
	if resp.Status != host.StatusError {
		t.Fatalf("got %+v, want ERROR", resp)
	}
}

func TestDispatchBeforeInitialize(t *testing.T) {
	s := host.NewSession()
	resp := dispatchSource(s, "i", host.EvaluateFirst, `(_+ 1 2)`)
	if resp.Status != host.StatusError {
		t.Fatalf("got %+v, want ERROR", resp)
	}
}
