package typeChecker

import (
	"fmt"

	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/types"
)

// Frame tracks the resolution of one node. Progress counts the sub-parts
// whose types are known; the frame is Checked once all Total parts are
// resolved and Type holds the final, concrete type.
type Frame struct {
	Progress int
	Total    int
	Checked  bool
	Node     *ast.Node
	Type     types.Type

	scope   *Scope
	parts   []part
	results []types.Type
}

// part is a node a frame depends on, with the scope it resolves in.
type part struct {
	node  *ast.Node
	scope *Scope
}

func newFrame(node *ast.Node, scope *Scope, parts []part) *Frame {
	return &Frame{Node: node, Total: len(parts), scope: scope, parts: parts}
}

// checkedFrame is a frame whose type is known up front, such as a
// parameter or a function signature.
func checkedFrame(node *ast.Node, t types.Type) *Frame {
	f := &Frame{Node: node}
	f.finish(t)
	return f
}

func (f *Frame) next() part { return f.parts[f.Progress] }

func (f *Frame) done() bool { return f.Progress == f.Total }

func (f *Frame) advance(t types.Type) {
	if f.Progress >= f.Total {
		panic(fmt.Sprintf("typeChecker: frame for node %d advanced past %d parts", f.Node.Type, f.Total))
	}
	f.results = append(f.results, t)
	f.Progress++
}

func (f *Frame) finish(t types.Type) {
	if f.Checked {
		panic("typeChecker: type of a checked frame cannot change")
	}
	if !f.done() {
		panic(fmt.Sprintf("typeChecker: frame finished with %d of %d parts", f.Progress, f.Total))
	}
	f.Type = t
	f.Checked = true
}
