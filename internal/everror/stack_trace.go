package everror

import (
	"fmt"
	"strings"
)

// StackFrame is a single frame of an evaluator call stack, reported
// when CannotHappen fires or when a host wants a diagnostic trace.
type StackFrame struct {
	Pos          *Position
	FunctionName string
}

func (sf StackFrame) String() string {
	if sf.Pos == nil {
		return sf.FunctionName
	}
	return fmt.Sprintf("%s [line: %d, column: %d]", sf.FunctionName, sf.Pos.Line, sf.Pos.Column)
}

// StackTrace is a call stack, oldest frame first.
type StackTrace []StackFrame

func (st StackTrace) String() string {
	if len(st) == 0 {
		return ""
	}
	lines := make([]string, len(st))
	for i, f := range st {
		lines[i] = f.String()
	}
	return strings.Join(lines, "\n")
}
