package tool

// Local is a tool backed by an in-process function.
type Local struct {
	core
}

// NewLocal wraps fn as a tool.
func NewLocal(name, description string, fn CoreFunc) *Local {
	return &Local{core{name: name, description: description, run: fn}}
}
