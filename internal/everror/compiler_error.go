package everror

import (
	"fmt"
	"strings"
)

// CompilerError decorates an underlying Error with the source text and
// file name needed to print a caret-pointing diagnostic.
type CompilerError struct {
	Err    Error
	Source string
	File   string
	Pos    Position
}

// NewCompilerError wraps err with the source context needed to render
// it for a human (the CLI path; the host-protocol path never calls
// Format and reports Err.Kind() directly instead).
func NewCompilerError(err Error, pos Position, source, file string) *CompilerError {
	return &CompilerError{Err: err, Source: source, File: file, Pos: pos}
}

func (e *CompilerError) Error() string { return e.Format(false) }
func (e *CompilerError) Kind() Kind    { return e.Err.Kind() }
func (e *CompilerError) Unwrap() error { return e.Err }

// Format renders the error with a source-line excerpt and a caret
// pointing at Pos.Column, optionally with ANSI color.
func (e *CompilerError) Format(color bool) string {
	var sb strings.Builder

	if e.File != "" {
		fmt.Fprintf(&sb, "Error in %s:%d:%d\n", e.File, e.Pos.Line, e.Pos.Column)
	} else {
		fmt.Fprintf(&sb, "Error at line %d:%d\n", e.Pos.Line, e.Pos.Column)
	}

	if line := e.sourceLine(e.Pos.Line); line != "" {
		prefix := fmt.Sprintf("%4d | ", e.Pos.Line)
		sb.WriteString(prefix)
		sb.WriteString(line)
		sb.WriteString("\n")

		sb.WriteString(strings.Repeat(" ", len(prefix)+e.Pos.Column-1))
		if color {
			sb.WriteString("\033[1;31m")
		}
		sb.WriteString("^")
		if color {
			sb.WriteString("\033[0m")
		}
		sb.WriteString("\n")
	}

	if color {
		sb.WriteString("\033[1m")
	}
	sb.WriteString(e.Err.Error())
	if color {
		sb.WriteString("\033[0m")
	}

	return sb.String()
}

func (e *CompilerError) sourceLine(lineNum int) string {
	if e.Source == "" {
		return ""
	}
	lines := strings.Split(e.Source, "\n")
	if lineNum < 1 || lineNum > len(lines) {
		return ""
	}
	return lines[lineNum-1]
}
