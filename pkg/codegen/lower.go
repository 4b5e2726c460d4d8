package codegen

import (
	"fmt"

	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/ir"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

// Context lowers a checked tree into a flat ir.Program.
type Context struct {
	prog *ir.Program
	cfg  *config.Config
}

func NewContext(cfg *config.Config) *Context {
	return &Context{prog: &ir.Program{}, cfg: cfg}
}

// internal aborts lowering. The tree was accepted by the type checker, so
// anything that does not fit here is a compiler bug.
func internal(node *ast.Node, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if node != nil {
		msg = fmt.Sprintf("%d:%d: %s", node.Tok.Line, node.Tok.Column, msg)
	}
	panic("internal: " + msg)
}

func (ctx *Context) emit(nodes ...ir.Node) { ctx.prog.Emit(nodes...) }

func (ctx *Context) typeOf(node *ast.Node) types.Type {
	if !node.Typ.IsConcrete() {
		internal(node, "unresolved type %s reached lowering", node.Typ)
	}
	return node.Typ
}

// GenerateIR lowers root. Globals come first, in initialization order, then
// every function, then the program body.
func (ctx *Context) GenerateIR(root *ast.Node) *ir.Program {
	d, ok := root.Data.(ast.RootNode)
	if !ok {
		internal(root, "lowering expects a root node")
	}

	ctx.emit(ir.GlobalSection{})
	for _, let := range d.InitOrder {
		ctx.codegenLet(let)
	}
	ctx.emit(ir.EndGlobalSection{})

	for _, node := range ast.TopLevel(root) {
		switch node.Type {
		case ast.FuncDecl:
			ctx.codegenFuncDecl(node)
		case ast.Let, ast.Program:
		default:
			internal(node, "unexpected top-level node kind %d", node.Type)
		}
	}

	prog := d.Program.Data.(ast.ProgramNode)
	ctx.codegenBlock(prog.Body)
	return ctx.prog
}

func (ctx *Context) codegenFuncDecl(node *ast.Node) {
	d := node.Data.(ast.FuncDeclNode)
	params := make([]ir.Param, len(d.Params))
	for i, p := range d.Params {
		pd := p.Data.(ast.ParamNode)
		params[i] = ir.Param{Name: pd.Name, Type: pd.Type}
	}
	ctx.emit(ir.FuncDef{Symbol: d.Name, Params: params, Return: d.ReturnType})
	ctx.codegenBlock(d.Body)
	ctx.emit(ir.EndFuncDef{Symbol: d.Name})
}

func (ctx *Context) codegenBlock(block *ast.Node) {
	for _, stmt := range block.Data.(ast.BlockNode).Stmts {
		ctx.codegenStmt(stmt)
	}
}

func (ctx *Context) codegenLet(node *ast.Node) {
	d := node.Data.(ast.LetNode)
	ctx.codegenExpr(d.Init)
	ctx.emit(ir.Assign{Type: ctx.typeOf(node), Symbol: d.Name})
}

func (ctx *Context) codegenStmt(node *ast.Node) {
	switch d := node.Data.(type) {
	case ast.LetNode:
		ctx.codegenLet(node)

	case ast.ReassignNode:
		typ := ctx.typeOf(node)
		ctx.codegenExpr(d.Rhs)
		if d.Op != token.Eq {
			ctx.emit(
				ir.Term{Type: typ, Value: ir.Ident{Symbol: d.Name}},
				ir.Eval{Func: ir.BinaryOp{Op: compoundOp(node, d.Op), Type: typ}},
			)
		}
		ctx.emit(ir.Reassign{Type: typ, Symbol: d.Name})

	case ast.ExprStmtNode:
		ctx.codegenExpr(d.Expr)
		ctx.emit(ir.Discard{})

	case ast.IfNode:
		ctx.emit(ir.If{})
		for i, br := range d.Branches {
			switch {
			case br.Cond == nil:
				ctx.emit(ir.ElseCase{})
			case i == 0:
				ctx.codegenExpr(br.Cond)
				ctx.emit(ir.IfCase{})
			default:
				ctx.codegenExpr(br.Cond)
				ctx.emit(ir.ElseIfCase{})
			}
			ctx.codegenBlock(br.Body)
		}
		ctx.emit(ir.EndIf{})

	case ast.ReturnNode:
		if d.Expr == nil {
			ctx.emit(ir.Return{Type: types.Nil})
			return
		}
		ctx.codegenExpr(d.Expr)
		ctx.emit(ir.Return{Type: ctx.typeOf(d.Expr), HasValue: true})

	default:
		internal(node, "no lowering for statement kind %d", node.Type)
	}
}

func compoundOp(node *ast.Node, op token.Type) token.Type {
	switch op {
	case token.PlusEq:
		return token.Plus
	case token.MinusEq:
		return token.Minus
	case token.StarEq:
		return token.Star
	case token.SlashEq:
		return token.Slash
	}
	internal(node, "unknown assignment operator %s", op)
	return op
}

// codegenExpr emits the operand run for node: right before left, arguments
// last to first, each operator after its operands.
func (ctx *Context) codegenExpr(node *ast.Node) {
	typ := ctx.typeOf(node)
	switch d := node.Data.(type) {
	case ast.NumberNode:
		ctx.emit(ir.Term{Type: typ, Value: intValue(node, d, typ)})
	case ast.FloatNumberNode:
		var v ir.Value = ir.Float64(d.Value)
		if typ.Kind == types.KindFloat32 {
			v = ir.Float32(d.Value)
		}
		ctx.emit(ir.Term{Type: typ, Value: v})
	case ast.BoolNode:
		ctx.emit(ir.Term{Type: typ, Value: ir.Bool(d.Value)})
	case ast.StringNode:
		ctx.emit(ir.Term{Type: typ, Value: ir.String(d.Value)})
	case ast.IdentNode:
		ctx.emit(ir.Term{Type: typ, Value: ir.Ident{Symbol: d.Name}})

	case ast.BinaryOpNode:
		ctx.codegenExpr(d.Right)
		ctx.codegenExpr(d.Left)
		ctx.emit(ir.Eval{Func: ir.BinaryOp{Op: d.Op, Type: ctx.typeOf(d.Left)}})

	case ast.FuncCallNode:
		params := make([]types.Type, len(d.Args))
		for i := len(d.Args) - 1; i >= 0; i-- {
			params[i] = ctx.typeOf(d.Args[i])
			ctx.codegenExpr(d.Args[i])
		}
		ctx.emit(ir.Eval{Func: ir.Call{Symbol: d.Callee, Params: params, Return: typ}})

	default:
		internal(node, "no lowering for expression kind %d", node.Type)
	}
}

func intValue(node *ast.Node, d ast.NumberNode, typ types.Type) ir.Value {
	n := int64(d.Value)
	if d.Negative {
		n = -n
	}
	switch typ.Kind {
	case types.KindInt32:
		return ir.Int32(n)
	case types.KindInt64:
		return ir.Int64(n)
	case types.KindUInt32:
		return ir.UInt32(d.Value)
	case types.KindUInt64:
		return ir.UInt64(d.Value)
	}
	internal(node, "integer literal typed %s", typ)
	return nil
}
