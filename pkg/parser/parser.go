package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

// Error is a syntax error at a specific token.
type Error struct {
	Tok token.Token
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%d:%d: %s", e.Tok.Line, e.Tok.Column, e.Msg) }

func (e *Error) Pos() token.Token { return e.Tok }

func (e *Error) Summary() string { return e.Msg }

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	cfg      *config.Config
}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token, cfg *config.Config) *Parser {
	p := &Parser{tokens: tokens, pos: 0, cfg: cfg}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// bailout unwinds the recursive descent on the first syntax error.
type bailout struct{ err *Error }

func (p *Parser) fail(tok token.Token, format string, args ...interface{}) {
	panic(bailout{&Error{Tok: tok, Msg: fmt.Sprintf(format, args...)}})
}

// Parse builds the root node: leading declarations, the program block and
// trailing declarations.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			root, err = nil, b.err
		}
	}()

	if len(p.tokens) == 0 {
		return nil, &Error{Msg: "empty token stream"}
	}

	rootTok := p.current
	var pre, post []*ast.Node
	var program *ast.Node

	for !p.check(token.EOF) {
		if p.check(token.Program) {
			if program != nil {
				p.fail(p.current, "only one program block is allowed")
			}
			program = p.parseProgram()
			continue
		}
		decl := p.parseTopLevel()
		if program == nil {
			pre = append(pre, decl)
		} else {
			post = append(post, decl)
		}
	}
	if program == nil {
		p.fail(p.current, "missing program block")
	}
	return ast.NewRoot(rootTok, pre, program, post), nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.fail(p.current, "%s", message)
	return token.Token{}
}

func (p *Parser) expectIdent(what string) token.Token {
	return p.expect(token.Ident, fmt.Sprintf("expected %s name", what))
}

// Declarations

func (p *Parser) parseTopLevel() *ast.Node {
	switch p.current.Type {
	case token.Let:
		return p.parseLet()
	case token.Function:
		return p.parseFuncDecl()
	}
	p.fail(p.current, "expected 'let', 'function' or 'program' at top level, got '%s'", p.current.Type)
	return nil
}

func (p *Parser) parseProgram() *ast.Node {
	tok := p.expect(token.Program, "expected 'program'")
	name := p.expectIdent("program")
	with := p.parseWith()
	body := p.parseBlock(token.End)
	p.expect(token.End, "expected 'end' to close program")
	return ast.NewProgram(tok, name.Value, with, body)
}

func (p *Parser) parseFuncDecl() *ast.Node {
	tok := p.expect(token.Function, "expected 'function'")
	name := p.expectIdent("function")
	p.expect(token.LParen, "expected '(' after function name")

	var params []*ast.Node
	if !p.check(token.RParen) {
		for {
			// `x, y, z: int32` shares one annotation across the group.
			var group []token.Token
			group = append(group, p.expectIdent("parameter"))
			for p.match(token.Comma) {
				group = append(group, p.expectIdent("parameter"))
			}
			p.expect(token.Colon, "expected ':' and a type after parameter name")
			typ := p.parseType()
			for _, g := range group {
				params = append(params, ast.NewParam(g, g.Value, typ))
			}
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")

	retType := types.Nil
	if p.match(token.Arrow) {
		retType = p.parseType()
	}
	with := p.parseWith()
	body := p.parseBlock(token.End)
	p.expect(token.End, "expected 'end' to close function")
	return ast.NewFuncDecl(tok, name.Value, params, retType, with, body)
}

func (p *Parser) parseWith() []*ast.Node {
	if !p.check(token.With) {
		return nil
	}
	if !p.cfg.IsFeatureEnabled(config.FeatWith) {
		p.fail(p.current, "'with' clauses are not enabled (use -Fwith)")
	}
	p.advance()
	var items []*ast.Node
	for {
		mutable := p.match(token.Mut)
		name := p.expectIdent("captured variable")
		items = append(items, ast.NewWithVar(name, name.Value, mutable))
		if !p.match(token.Comma) {
			return items
		}
	}
}

func (p *Parser) parseType() types.Type {
	if p.current.Type.IsTypeKeyword() {
		typ, _ := types.FromName(token.TypeStrings[p.current.Type])
		p.advance()
		return typ
	}
	p.fail(p.current, "expected a type name")
	return types.Unknown
}

// Statements

// parseBlock reads statements until one of the terminators is current.
func (p *Parser) parseBlock(terminators ...token.Type) *ast.Node {
	tok := p.current
	var stmts []*ast.Node
	for {
		for _, t := range terminators {
			if p.check(t) {
				return ast.NewBlock(tok, stmts)
			}
		}
		if p.check(token.EOF) {
			p.fail(p.current, "unexpected end of file, expected 'end'")
		}
		stmts = append(stmts, p.parseStmt())
	}
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Let:
		return p.parseLet()
	case token.If:
		return p.parseIf()
	case token.Return:
		p.advance()
		var expr *ast.Node
		if !p.check(token.Semi) {
			expr = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after return")
		return ast.NewReturn(tok, expr)
	case token.Ident:
		next := p.peek().Type
		if next == token.LParen {
			call := p.parsePrimaryExpr()
			p.expect(token.Semi, "expected ';' after call")
			return ast.NewExprStmt(tok, call)
		}
		if isAssignmentOp(next) {
			p.advance()
			op := p.current.Type
			p.advance()
			rhs := p.parseExpr()
			p.expect(token.Semi, "expected ';' after assignment")
			return ast.NewReassign(tok, tok.Value, op, rhs)
		}
		p.fail(p.peek(), "expected assignment or call after '%s'", tok.Value)
	case token.Function:
		p.fail(tok, "functions may only be declared at top level")
	}
	p.fail(tok, "expected statement, got '%s'", tok.Type)
	return nil
}

func isAssignmentOp(op token.Type) bool { return op >= token.Eq && op <= token.SlashEq }

func (p *Parser) parseLet() *ast.Node {
	tok := p.expect(token.Let, "expected 'let'")
	name := p.expectIdent("variable")
	annot := types.Unknown
	if p.match(token.Colon) {
		annot = p.parseType()
	}
	p.expect(token.Eq, "expected '=' in let binding")
	init := p.parseExpr()
	p.expect(token.Semi, "expected ';' after let binding")
	return ast.NewLet(tok, name.Value, annot, init)
}

func (p *Parser) parseIf() *ast.Node {
	tok := p.expect(token.If, "expected 'if'")
	var branches []ast.IfBranch

	cond := p.parseExpr()
	p.expect(token.Then, "expected 'then' after if condition")
	branches = append(branches, ast.IfBranch{Cond: cond, Body: p.parseBlock(token.Else, token.End)})

	for p.match(token.Else) {
		if p.match(token.If) {
			cond := p.parseExpr()
			p.expect(token.Then, "expected 'then' after else-if condition")
			branches = append(branches, ast.IfBranch{Cond: cond, Body: p.parseBlock(token.Else, token.End)})
			continue
		}
		p.match(token.Then)
		branches = append(branches, ast.IfBranch{Body: p.parseBlock(token.End)})
		break
	}
	p.expect(token.End, "expected 'end' to close if")
	return ast.NewIf(tok, branches)
}

// Expression Parsing

func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash:
		return 3
	case token.Plus, token.Minus:
		return 2
	case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte:
		return 1
	default:
		return -1
	}
}

func (p *Parser) parseExpr() *ast.Node { return p.parseBinaryExpr(1) }

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current
		prec := getBinaryOpPrecedence(op.Type)
		if prec < minPrec {
			return left
		}
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinaryOp(op, op.Type, left, right)
	}
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	if !p.check(token.Minus) {
		return p.parsePrimaryExpr()
	}
	minus := p.current
	p.advance()
	switch p.current.Type {
	case token.Number, token.FloatNumber:
		lit := p.parsePrimaryExpr()
		lit.Tok.Column, lit.Tok.Len = minus.Column, lit.Tok.Len+lit.Tok.Column-minus.Column
		switch d := lit.Data.(type) {
		case ast.NumberNode:
			d.Negative = d.Value != 0
			lit.Data = d
		case ast.FloatNumberNode:
			d.Value = -d.Value
			lit.Data = d
		}
		return lit
	}
	p.fail(minus, "unary '-' only applies to numeric literals")
	return nil
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		return p.numberLiteral(tok)
	case p.match(token.FloatNumber):
		return p.floatLiteral(tok)
	case p.match(token.String):
		return ast.NewString(tok, tok.Value)
	case p.match(token.True):
		return ast.NewBool(tok, true)
	case p.match(token.False):
		return ast.NewBool(tok, false)
	case p.match(token.Ident):
		if !p.match(token.LParen) {
			return ast.NewIdent(tok, tok.Value)
		}
		var args []*ast.Node
		if !p.check(token.RParen) {
			for {
				args = append(args, p.parseExpr())
				if !p.match(token.Comma) {
					break
				}
			}
		}
		p.expect(token.RParen, "expected ')' after call arguments")
		return ast.NewFuncCall(tok, tok.Value, args)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')' after expression")
		return expr
	}
	p.fail(tok, "expected expression, got '%s'", tok.Type)
	return nil
}

var suffixTypes = map[string]types.Type{
	"i32": types.Int32, "i64": types.Int64, "u32": types.UInt32, "u64": types.UInt64,
	"f32": types.Float32, "f64": types.Float64,
}

// splitSuffix separates `7i64` into "7" and the int64 type.
func splitSuffix(text string) (string, types.Type) {
	if i := strings.IndexAny(text, "iuf"); i > 0 {
		return text[:i], suffixTypes[text[i:]]
	}
	return text, types.Unknown
}

func (p *Parser) numberLiteral(tok token.Token) *ast.Node {
	digits, typ := splitSuffix(tok.Value)
	if typ.IsFloat() {
		return p.floatLiteral(tok)
	}
	val, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		p.fail(tok, "integer literal %s is out of range", digits)
	}
	return ast.NewNumber(tok, val, false, typ)
}

func (p *Parser) floatLiteral(tok token.Token) *ast.Node {
	digits, typ := splitSuffix(tok.Value)
	val, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		p.fail(tok, "invalid floating-point literal %s", tok.Value)
	}
	return ast.NewFloatNumber(tok, val, typ)
}
