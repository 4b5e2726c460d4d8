package typeChecker

import (
	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/types"
)

// Var is a resolved binding: its type and the node that defines it.
type Var struct {
	Type types.Type
	Node *ast.Node
}

// IdentMapping associates a symbol with the variable it denotes.
type IdentMapping struct {
	Symbol types.Symbol
	Var    Var
}

// Binding is a scope entry. Decl is the node whose frame yields the type:
// the let, parameter or function itself, or for a `with` capture the
// captured top-level let.
type Binding struct {
	IdentMapping
	Mutable  bool
	Decl     *ast.Node
	Scope    *Scope // scope the declaration resolves in
	Captured bool
	used     bool
	Next     *Binding
}

// Scope is a linked list of bindings. A barrier scope hides enclosing
// value bindings; functions are still visible through it.
type Scope struct {
	Bindings *Binding
	Parent   *Scope
	Barrier  bool
}

func newScope(parent *Scope, barrier bool) *Scope { return &Scope{Parent: parent, Barrier: barrier} }

func (s *Scope) add(b *Binding) {
	b.Next = s.Bindings
	s.Bindings = b
}

func (s *Scope) local(sym types.Symbol) *Binding {
	for b := s.Bindings; b != nil; b = b.Next {
		if b.Symbol == sym {
			return b
		}
	}
	return nil
}

// lookup finds the nearest binding for sym and reports whether the search
// had to leave a barrier scope to find it.
func (s *Scope) lookup(sym types.Symbol) (b *Binding, crossed bool) {
	for sc := s; sc != nil; sc = sc.Parent {
		if b := sc.local(sym); b != nil {
			return b, crossed
		}
		if sc.Barrier {
			crossed = true
		}
	}
	return nil, crossed
}

// ordered returns the bindings of s in declaration order.
func (s *Scope) ordered() []*Binding {
	var out []*Binding
	for b := s.Bindings; b != nil; b = b.Next {
		out = append(out, b)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func isCallableDecl(n *ast.Node) bool { return n != nil && n.Type == ast.FuncDecl }

func isValueDecl(n *ast.Node) bool {
	return n != nil && (n.Type == ast.Let || n.Type == ast.Param)
}
