// Package host implements the host↔core message protocol: a
// single-channel, one-request-at-a-time JSON request/response loop
// wrapping pkg/evl, one handler function per action, suited to an
// embedding IDE rather than a terminal.
//
// The fixed envelope fields (id, action, status) are handled with the
// standard library's encoding/json; the polymorphic input/output
// payload — a bare string for three of the four actions, an object for
// INITIALIZE — is read and written with github.com/tidwall/gjson and
// github.com/tidwall/sjson, the same schema-light field access the
// rest of the retrieved pack (Tangerg-lynx) relies on for provider/tool
// JSON payloads rather than a discriminated json.RawMessage switch per
// action.
package host

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/evl-lang/evl/internal/everror"
	"github.com/evl-lang/evl/internal/object"
	"github.com/evl-lang/evl/internal/reader"
	"github.com/evl-lang/evl/pkg/evl"
)

// Action names one of the four host-protocol verbs.
type Action string

const (
	Initialize    Action = "INITIALIZE"
	EvaluateFirst Action = "EVALUATE_FIRST_FORM"
	EvaluateAll   Action = "EVALUATE_ALL_FORMS"
	ConvertToXML  Action = "CONVERT_EVL_TO_XML"
)

// Status names one of the four response statuses.
type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusFoundNoForm Status = "FOUND_NO_FORM"
	StatusError       Status = "ERROR"
	StatusAborted     Status = "ABORTED"
)

// Request is one host-protocol request. Input is the raw
// JSON value of the "input" field: a JSON string for
// EVALUATE_FIRST_FORM/EVALUATE_ALL_FORMS/CONVERT_EVL_TO_XML, a JSON
// object for INITIALIZE.
type Request struct {
	ID     string          `json:"id"`
	Action Action          `json:"action"`
	Input  json.RawMessage `json:"input"`
}

// Response is one host-protocol response. Output is a raw
// JSON value: a JSON array of stringified values on EVALUATE_FIRST_FORM
// / EVALUATE_ALL_FORMS / INITIALIZE success, a JSON string on
// CONVERT_EVL_TO_XML success, absent otherwise.
type Response struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Session is a long-lived host-protocol server: one Engine (and its
// evaluator strategy) persists across requests until INITIALIZE
// replaces it. All requests are served from one goroutine; only the
// abort flag may be touched from another.
type Session struct {
	engine *evl.Engine
}

// NewSession creates a Session with no engine installed; the first
// request must be INITIALIZE.
func NewSession() *Session {
	return &Session{}
}

// Abort requests cancellation of whatever evaluation is currently
// running on this session's engine. It is a no-op
// before the first INITIALIZE and safe to call from any goroutine
// while a Dispatch call is in flight on another.
func (s *Session) Abort() {
	if s.engine != nil {
		s.engine.Abort.Store(true)
	}
}

// Dispatch handles one request and returns its response. It never
// panics on malformed JSON or an unknown action: both are reported as
// an ERROR response so the single request/response channel stays synchronized.
func (s *Session) Dispatch(req Request) Response {
	switch req.Action {
	case Initialize:
		return s.handleInitialize(req)
	case EvaluateFirst:
		return s.handleEvaluateFirst(req)
	case EvaluateAll:
		return s.handleEvaluateAll(req)
	case ConvertToXML:
		return s.handleConvert(req)
	default:
		return errorResponse(req.ID, fmt.Sprintf("unknown action %q", req.Action))
	}
}

// DispatchJSON is the wire-level entry point: it unmarshals req,
// dispatches it, and marshals the response, for a host that speaks raw
// JSON bytes over its one channel rather than Go structs.
func (s *Session) DispatchJSON(reqJSON []byte) []byte {
	var req Request
	if err := json.Unmarshal(reqJSON, &req); err != nil {
		out, _ := json.Marshal(errorResponse("", "malformed request: "+err.Error()))
		return out
	}
	resp := s.Dispatch(req)
	out, _ := json.Marshal(resp)
	return out
}

func errorResponse(id, msg string) Response {
	return Response{ID: id, Status: StatusError, Error: msg}
}

func abortedResponse(id string) Response {
	return Response{ID: id, Status: StatusAborted}
}

// handleInitialize tears down any previous evaluator state and
// installs a fresh Engine. Its input is
// {abortBuffer, selectedEvaluator, evlFiles[]}; abortBuffer is not
// itself transmitted over JSON (it is shared host memory, not a
// value) — callers reach the flag through Session.Abort instead.
// evlFiles are loaded and evaluated in order, the response carrying
// the stringified result of the last one.
func (s *Session) handleInitialize(req Request) Response {
	selected := gjson.GetBytes(req.Input, "selectedEvaluator").String()
	strategy, err := evl.ParseStrategy(selected)
	if err != nil {
		return errorResponse(req.ID, err.Error())
	}

	engine := evl.New(evl.WithStrategy(strategy))
	s.engine = engine

	var lastResult object.Value = object.Void
	for _, f := range gjson.GetBytes(req.Input, "evlFiles").Array() {
		result, evalErr := engine.EvalSource(f.String())
		if evalErr != nil {
			return errFromEval(req.ID, evalErr)
		}
		lastResult = result
	}

	return successResponse(req.ID, evl.Stringify(lastResult))
}

// handleEvaluateFirst reads the first top-level form from the request's
// source text and evaluates it.
// Exhausted or truncated input reports FOUND_NO_FORM, never ERROR.
func (s *Session) handleEvaluateFirst(req Request) Response {
	if s.engine == nil {
		return errorResponse(req.ID, "INITIALIZE has not been called")
	}
	// A set flag cancels one evaluation, not the whole session.
	s.engine.Abort.Store(false)
	source := gjson.ParseBytes(req.Input).String()

	form, err := s.engine.ParseFirst(source)
	if err != nil {
		if isNoForm(err) {
			return Response{ID: req.ID, Status: StatusFoundNoForm}
		}
		return errFromEval(req.ID, err)
	}

	result, err := s.engine.Eval(form)
	if err != nil {
		return errFromEval(req.ID, err)
	}
	return successResponse(req.ID, evl.Stringify(result))
}

// handleEvaluateAll reads and evaluates every top-level form in the
// request's source text in order, reporting the last form's result.
func (s *Session) handleEvaluateAll(req Request) Response {
	if s.engine == nil {
		return errorResponse(req.ID, "INITIALIZE has not been called")
	}
	s.engine.Abort.Store(false)
	source := gjson.ParseBytes(req.Input).String()

	result, err := s.engine.EvalSource(source)
	if err != nil {
		// EVALUATE_ALL_FORMS has no FOUND_NO_FORM status;
		// a parse failure other than a clean EOF is always ERROR/ABORTED.
		return errFromEval(req.ID, err)
	}
	return successResponse(req.ID, evl.Stringify(result))
}

// handleConvert re-renders the request's source text as mixed
// EVL/XML. This action needs no engine: the converter only uses the
// tokenizer.
func (s *Session) handleConvert(req Request) Response {
	source := gjson.ParseBytes(req.Input).String()
	xmlOut, err := evl.ConvertToXML(source)
	if err != nil {
		return errFromEval(req.ID, err)
	}
	out, err := json.Marshal(xmlOut)
	if err != nil {
		return errorResponse(req.ID, err.Error())
	}
	return Response{ID: req.ID, Status: StatusSuccess, Output: out}
}

func isNoForm(err error) bool {
	if err == reader.ErrEOF {
		return true
	}
	if re, ok := err.(*everror.ReaderError); ok && re.Sub == everror.UnexpectedEndOfInputToken {
		return true
	}
	e, ok := err.(everror.Error)
	return ok && e.Kind() == everror.KindTruncatedToken
}

func errFromEval(id string, err error) Response {
	if e, ok := err.(everror.Error); ok {
		if e.Kind() == everror.KindAborted {
			return abortedResponse(id)
		}
		return Response{ID: id, Status: StatusError, Error: string(e.Kind()) + ": " + e.Error()}
	}
	return errorResponse(id, err.Error())
}

// successResponse builds the "list of stringified values" output
// by appending each string with sjson rather than
// marshaling the whole slice at once, so a request handler that wants
// to stream partial output (a REPL showing forms as they complete)
// can reuse the same append step.
func successResponse(id string, strs []string) Response {
	out := []byte("[]")
	var err error
	for _, s := range strs {
		out, err = sjson.SetBytes(out, "-1", s)
		if err != nil {
			return errorResponse(id, err.Error())
		}
	}
	return Response{ID: id, Status: StatusSuccess, Output: out}
}
