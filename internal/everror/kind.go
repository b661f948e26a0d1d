// Package everror defines EVL's closed error-kind taxonomy and the
// source-context formatting the CLI uses to present failures.
package everror

// Kind names one of EVL's error kinds. Kinds are carried by
// name through the host-protocol response envelope, never by Go type
// identity, so that _catch-errors can report them as plain strings.
type Kind string

const (
	KindTokenizerError         Kind = "TokenizerError"
	KindTruncatedToken         Kind = "TruncatedToken"
	KindReaderError            Kind = "ReaderError"
	KindEVLToXMLConverterError Kind = "EVLToXMLConverterError"
	KindFormAnalyzerError      Kind = "FormAnalyzerError"
	KindEvaluatorError         Kind = "EvaluatorError"
	KindCannotHappen           Kind = "CannotHappen"
	KindAborted                Kind = "Aborted"
)

// ReaderSubKind enumerates the ReaderError sub-labels.
type ReaderSubKind string

const (
	UnexpectedDot             ReaderSubKind = "UnexpectedDot"
	UnexpectedClosingParen    ReaderSubKind = "UnexpectedClosingParenthesis"
	UnexpectedXMLEndTag       ReaderSubKind = "UnexpectedXMLEndTag"
	UnexpectedEndOfInputToken ReaderSubKind = "UnexpectedEndOfInput"
)

// EvaluatorSubKind enumerates the EvaluatorError sub-labels.
type EvaluatorSubKind string

const (
	UnboundVariable                      EvaluatorSubKind = "UnboundVariable"
	TooFewArguments                      EvaluatorSubKind = "TooFewArguments"
	TooManyArguments                     EvaluatorSubKind = "TooManyArguments"
	MalformedSpreadableSequenceOfObjects EvaluatorSubKind = "MalformedSpreadableSequenceOfObjects"
)
