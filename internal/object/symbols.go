package object

// Keyword is an interned symbol used for self-evaluating tags (e.g.
// `:name`). Two Keywords with the same spelling are the same pointer;
// see internal/symtab for the intern table.
type Keyword struct {
	Name string
}

func (k *Keyword) Kind() Kind     { return KindKeyword }
func (k *Keyword) String() string { return ":" + k.Name }

// Variable is an interned symbol that additionally owns two mutable
// binding cells: one in the value namespace, one in the function
// namespace. A nil cell means "unbound".
type Variable struct {
	Name         string
	ValueCell    *Value
	FunctionCell *Value
}

func (v *Variable) Kind() Kind     { return KindVariable }
func (v *Variable) String() string { return v.Name }

// HasValue reports whether the variable's global value-namespace cell
// is bound.
func (v *Variable) HasValue() bool { return v.ValueCell != nil }

// GetValue returns the global value binding. Callers must check
// HasValue first.
func (v *Variable) GetValue() Value { return *v.ValueCell }

// SetValue installs a global value-namespace binding.
func (v *Variable) SetValue(val Value) {
	if v.ValueCell == nil {
		v.ValueCell = new(Value)
	}
	*v.ValueCell = val
}

// HasFunction reports whether the variable's global function-namespace
// cell is bound.
func (v *Variable) HasFunction() bool { return v.FunctionCell != nil }

// GetFunction returns the global function binding. Callers must check
// HasFunction first.
func (v *Variable) GetFunction() Value { return *v.FunctionCell }

// SetFunction installs a global function-namespace binding.
func (v *Variable) SetFunction(val Value) {
	if v.FunctionCell == nil {
		v.FunctionCell = new(Value)
	}
	*v.FunctionCell = val
}
