package runtime

import "sort"

// Op names a dispatchable operation. The set is closed.
type Op string

const (
	OpLoadFull       Op = "schema.loadFull"
	OpLoadVars       Op = "schema.loadVars"
	OpFunctionCall   Op = "function.call"
	OpVariableGet    Op = "variable.get"
	OpVariableSet    Op = "variable.set"
	OpVariableAction Op = "variable.action"
	OpVariableCall   Op = "variable.call"
	OpVariablePatch  Op = "variable.patch"
)

// aliases maps the short names used by older clients.
var aliases = map[string]Op{
	"func.call":  OpFunctionCall,
	"var.get":    OpVariableGet,
	"var.set":    OpVariableSet,
	"var.action": OpVariableAction,
	"var.call":   OpVariableCall,
	"var.patch":  OpVariablePatch,
}

var ops = map[Op]struct{}{
	OpLoadFull:       {},
	OpLoadVars:       {},
	OpFunctionCall:   {},
	OpVariableGet:    {},
	OpVariableSet:    {},
	OpVariableAction: {},
	OpVariableCall:   {},
	OpVariablePatch:  {},
}

// ParseOp resolves a wire name, including legacy aliases.
func ParseOp(name string) (Op, bool) {
	if op, ok := aliases[name]; ok {
		return op, true
	}
	op := Op(name)
	_, ok := ops[op]
	return op, ok
}

// Ops returns every canonical operation name, sorted.
func Ops() []Op {
	out := make([]Op, 0, len(ops))
	for op := range ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Mutates reports whether successful calls of op publish a change event.
func (op Op) Mutates() bool {
	switch op {
	case OpVariableSet, OpVariableAction, OpVariableCall, OpVariablePatch, OpFunctionCall:
		return true
	default:
		return false
	}
}
