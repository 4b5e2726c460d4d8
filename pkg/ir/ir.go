// Package ir holds the flat instruction sequence produced by lowering.
//
// Expressions are stored as runs of Term and Eval nodes. A run lists the
// right operand before the left one (and call arguments last to first), so a
// backend replaying it front to back with an operand stack pops the left
// operand, or the first argument, first.
package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

// Node is one IR instruction. The set of implementations is closed.
type Node interface {
	irNode()
	String() string
}

type GlobalSection struct{}
type EndGlobalSection struct{}

// Assign declares Symbol and stores the value left by the preceding run.
type Assign struct {
	Type   types.Type
	Symbol types.Symbol
}

// Reassign stores the value left by the preceding run into an existing binding.
type Reassign struct {
	Type   types.Type
	Symbol types.Symbol
}

type If struct{}

// IfCase opens the first branch; its condition is the preceding run.
type IfCase struct{}

// ElseIfCase closes the previous branch and opens a conditional one.
type ElseIfCase struct{}

type ElseCase struct{}
type EndIf struct{}

type Param struct {
	Name types.Symbol
	Type types.Type
}

type FuncDef struct {
	Symbol types.Symbol
	Params []Param
	Return types.Type // types.Nil for functions without a result
}

type EndFuncDef struct{ Symbol types.Symbol }

// Return leaves the current function or the program. With HasValue set the
// preceding run computes the returned value.
type Return struct {
	Type     types.Type
	HasValue bool
}

// Discard drops the value of the preceding run, as for a call statement.
type Discard struct{}

// Term pushes an operand.
type Term struct {
	Type  types.Type
	Value Value
}

// Eval pops Func.Arity() operands and pushes the result.
type Eval struct{ Func Func }

func (GlobalSection) irNode()    {}
func (EndGlobalSection) irNode() {}
func (Assign) irNode()           {}
func (Reassign) irNode()         {}
func (If) irNode()               {}
func (IfCase) irNode()           {}
func (ElseIfCase) irNode()       {}
func (ElseCase) irNode()         {}
func (EndIf) irNode()            {}
func (FuncDef) irNode()          {}
func (EndFuncDef) irNode()       {}
func (Return) irNode()           {}
func (Discard) irNode()          {}
func (Term) irNode()             {}
func (Eval) irNode()             {}

func (GlobalSection) String() string    { return "GlobalSection" }
func (EndGlobalSection) String() string { return "EndGlobalSection" }
func (n Assign) String() string         { return fmt.Sprintf("Assign %s %s", n.Type, n.Symbol) }
func (n Reassign) String() string       { return fmt.Sprintf("Reassign %s %s", n.Type, n.Symbol) }
func (If) String() string               { return "If" }
func (IfCase) String() string           { return "IfCase" }
func (ElseIfCase) String() string       { return "ElseIfCase" }
func (ElseCase) String() string         { return "ElseCase" }
func (EndIf) String() string            { return "EndIf" }
func (n EndFuncDef) String() string     { return "EndFuncDef " + n.Symbol.Ident }
func (Discard) String() string          { return "Discard" }
func (n Term) String() string           { return fmt.Sprintf("Term %s %s", n.Type, n.Value) }
func (n Eval) String() string           { return "Eval " + n.Func.String() }

func (n FuncDef) String() string {
	params := make([]string, len(n.Params))
	for i, p := range n.Params {
		params[i] = fmt.Sprintf("%s %s", p.Name, p.Type)
	}
	s := fmt.Sprintf("FuncDef %s(%s)", n.Symbol, strings.Join(params, ", "))
	if n.Return.Kind != types.KindNil {
		s += " -> " + n.Return.String()
	}
	return s
}

func (n Return) String() string {
	if !n.HasValue {
		return "Return"
	}
	return "Return " + n.Type.String()
}

// Value is the payload of a Term.
type Value interface {
	isValue()
	String() string
}

type (
	Int32   int32
	Int64   int64
	UInt32  uint32
	UInt64  uint64
	Float32 float32
	Float64 float64
	Bool    bool
	String  string
	Ident   struct{ Symbol types.Symbol }
)

func (Int32) isValue()   {}
func (Int64) isValue()   {}
func (UInt32) isValue()  {}
func (UInt64) isValue()  {}
func (Float32) isValue() {}
func (Float64) isValue() {}
func (Bool) isValue()    {}
func (String) isValue()  {}
func (Ident) isValue()   {}

func (v Int32) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Int64) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v UInt32) String() string  { return strconv.FormatUint(uint64(v), 10) }
func (v UInt64) String() string  { return strconv.FormatUint(uint64(v), 10) }
func (v Float32) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
func (v Float64) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Bool) String() string    { return strconv.FormatBool(bool(v)) }
func (v String) String() string  { return strconv.Quote(string(v)) }
func (v Ident) String() string   { return v.Symbol.Ident }

// Func is the operation an Eval applies.
type Func interface {
	isFunc()
	Arity() int
	Result() types.Type
	String() string
}

// BinaryOp applies Op to two operands of Type.
type BinaryOp struct {
	Op   token.Type
	Type types.Type
}

type Call struct {
	Symbol types.Symbol
	Params []types.Type
	Return types.Type
}

func (BinaryOp) isFunc() {}
func (Call) isFunc()     {}

func (BinaryOp) Arity() int { return 2 }
func (c Call) Arity() int   { return len(c.Params) }

func (b BinaryOp) Result() types.Type {
	if IsComparison(b.Op) {
		return types.Bool
	}
	return b.Type
}

func (c Call) Result() types.Type { return c.Return }

func (b BinaryOp) String() string { return fmt.Sprintf("%s %s", b.Op, b.Type) }

func (c Call) String() string {
	params := make([]string, len(c.Params))
	for i, p := range c.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("call %s(%s) %s", c.Symbol, strings.Join(params, ", "), c.Return)
}

func IsComparison(op token.Type) bool {
	switch op {
	case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte:
		return true
	}
	return false
}

// IsOperand reports whether n belongs to an expression run.
func IsOperand(n Node) bool {
	switch n.(type) {
	case Term, Eval:
		return true
	}
	return false
}

type Program struct {
	Nodes []Node
}

func (p *Program) Emit(nodes ...Node) { p.Nodes = append(p.Nodes, nodes...) }

// String renders one node per line, indented by nesting.
func (p *Program) String() string {
	var sb strings.Builder
	depth := 0
	for _, n := range p.Nodes {
		switch n.(type) {
		case EndGlobalSection, EndFuncDef, EndIf:
			depth--
		}
		indent := depth
		switch n.(type) {
		case IfCase, ElseIfCase, ElseCase:
			indent--
		}
		if indent < 0 {
			indent = 0
		}
		sb.WriteString(strings.Repeat("  ", indent))
		sb.WriteString(n.String())
		sb.WriteByte('\n')
		switch n.(type) {
		case GlobalSection, FuncDef, If:
			depth++
		}
	}
	return sb.String()
}
