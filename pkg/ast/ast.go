// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	FloatNumber
	Bool
	String
	Ident
	BinaryOp
	FuncCall

	// Statements
	Let
	Reassign
	ExprStmt
	If
	Return
	Block

	// Declarations
	FuncDecl
	Param
	WithVar
	Program
	Root
)

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
	Typ    types.Type // Set by the type checker
}

// --- Node Data Structs ---

// NumberNode holds an integer literal. Type is the suffix type, or Unknown
// when the literal carries no suffix.
type NumberNode struct {
	Value    uint64
	Negative bool
	Type     types.Type
}
type FloatNumberNode struct {
	Value float64
	Type  types.Type
}
type BoolNode struct{ Value bool }
type StringNode struct{ Value string }
type IdentNode struct{ Name types.Symbol }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type FuncCallNode struct{ Callee types.Symbol; Args []*Node }

// LetNode declares a binding. Annot is Unknown when no annotation was written.
type LetNode struct {
	Name  types.Symbol
	Annot types.Type
	Init  *Node
}

// ReassignNode covers `=` and the compound forms; Op is the assignment token.
type ReassignNode struct {
	Name types.Symbol
	Op   token.Type
	Rhs  *Node
}
type ExprStmtNode struct{ Expr *Node }

// IfBranch is one arm of an if chain. Cond is nil for the trailing else.
type IfBranch struct {
	Cond *Node
	Body *Node
}
type IfNode struct{ Branches []IfBranch }
type ReturnNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }

type FuncDeclNode struct {
	Name       types.Symbol
	Params     []*Node
	ReturnType types.Type // Nil when no `->` was written
	With       []*Node
	Body       *Node
}
type ParamNode struct {
	Name types.Symbol
	Type types.Type
}
type WithVarNode struct {
	Name    types.Symbol
	Mutable bool
}
type ProgramNode struct {
	Name types.Symbol
	With []*Node
	Body *Node
}

// RootNode is the whole compilation unit. InitOrder is filled by the type
// checker with the top-level lets in the order their types were resolved.
type RootNode struct {
	PreBlock  []*Node
	Program   *Node
	PostBlock []*Node
	InitOrder []*Node
}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value uint64, negative bool, typ types.Type) *Node {
	return newNode(tok, Number, NumberNode{Value: value, Negative: negative, Type: typ})
}
func NewFloatNumber(tok token.Token, value float64, typ types.Type) *Node {
	return newNode(tok, FloatNumber, FloatNumberNode{Value: value, Type: typ})
}
func NewBool(tok token.Token, value bool) *Node {
	return newNode(tok, Bool, BoolNode{Value: value})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: types.NewSymbol(name)})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewFuncCall(tok token.Token, callee string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Callee: types.NewSymbol(callee), Args: args}, args...)
}
func NewLet(tok token.Token, name string, annot types.Type, init *Node) *Node {
	return newNode(tok, Let, LetNode{Name: types.NewSymbol(name), Annot: annot, Init: init}, init)
}
func NewReassign(tok token.Token, name string, op token.Type, rhs *Node) *Node {
	return newNode(tok, Reassign, ReassignNode{Name: types.NewSymbol(name), Op: op, Rhs: rhs}, rhs)
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr}, expr)
}
func NewIf(tok token.Token, branches []IfBranch) *Node {
	var children []*Node
	for _, b := range branches {
		children = append(children, b.Cond, b.Body)
	}
	return newNode(tok, If, IfNode{Branches: branches}, children...)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts}, stmts...)
}
func NewFuncDecl(tok token.Token, name string, params []*Node, returnType types.Type, with []*Node, body *Node) *Node {
	children := append(append([]*Node{}, params...), with...)
	children = append(children, body)
	return newNode(tok, FuncDecl, FuncDeclNode{
		Name: types.NewSymbol(name), Params: params, ReturnType: returnType, With: with, Body: body,
	}, children...)
}
func NewParam(tok token.Token, name string, typ types.Type) *Node {
	return newNode(tok, Param, ParamNode{Name: types.NewSymbol(name), Type: typ})
}
func NewWithVar(tok token.Token, name string, mutable bool) *Node {
	return newNode(tok, WithVar, WithVarNode{Name: types.NewSymbol(name), Mutable: mutable})
}
func NewProgram(tok token.Token, name string, with []*Node, body *Node) *Node {
	children := append(append([]*Node{}, with...), body)
	return newNode(tok, Program, ProgramNode{Name: types.NewSymbol(name), With: with, Body: body}, children...)
}
func NewRoot(tok token.Token, pre []*Node, program *Node, post []*Node) *Node {
	children := append(append(append([]*Node{}, pre...), program), post...)
	return newNode(tok, Root, RootNode{PreBlock: pre, Program: program, PostBlock: post}, children...)
}

// TopLevel returns the declarations of a root node in source order,
// the program included.
func TopLevel(root *Node) []*Node {
	d := root.Data.(RootNode)
	out := append([]*Node{}, d.PreBlock...)
	if d.Program != nil {
		out = append(out, d.Program)
	}
	return append(out, d.PostBlock...)
}

// Children lists the direct children of a node in source order.
func Children(node *Node) []*Node {
	switch d := node.Data.(type) {
	case BinaryOpNode:
		return []*Node{d.Left, d.Right}
	case FuncCallNode:
		return d.Args
	case LetNode:
		return []*Node{d.Init}
	case ReassignNode:
		return []*Node{d.Rhs}
	case ExprStmtNode:
		return []*Node{d.Expr}
	case IfNode:
		var out []*Node
		for _, b := range d.Branches {
			if b.Cond != nil {
				out = append(out, b.Cond)
			}
			out = append(out, b.Body)
		}
		return out
	case ReturnNode:
		if d.Expr != nil {
			return []*Node{d.Expr}
		}
	case BlockNode:
		return d.Stmts
	case FuncDeclNode:
		out := append(append([]*Node{}, d.Params...), d.With...)
		return append(out, d.Body)
	case ProgramNode:
		return append(append([]*Node{}, d.With...), d.Body)
	case RootNode:
		return TopLevel(node)
	}
	return nil
}

// Walk visits node and its descendants depth first; fn returning false
// prunes the subtree.
func Walk(node *Node, fn func(*Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for _, child := range Children(node) {
		Walk(child, fn)
	}
}

// IsExpr reports whether the node kind produces a value.
func IsExpr(node *Node) bool {
	return node != nil && node.Type <= FuncCall
}
