package everror

import "fmt"

// Position locates a point in source text. Line and Column are
// 1-based; Column counts Unicode code points (runes), not bytes or
// UTF-16 code units.
type Position struct {
	Line   int
	Column int
	Offset int // byte offset into the source, for slicing
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
