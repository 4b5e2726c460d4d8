package typeChecker

import (
	"fmt"
	"math"

	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

// Diagnostic is a non-fatal finding; the driver decides how to print it.
type Diagnostic struct {
	Warning config.Warning
	Tok     token.Token
	Message string
}

type TypeChecker struct {
	cfg          *config.Config
	globalScope  *Scope
	currentScope *Scope
	currentFunc  *ast.Node // nil while checking the program body
	frames       map[*ast.Node]*Frame
	decls        map[*ast.Node]*Binding
	initOrder    []*ast.Node
	captures     map[*ast.Node][]*ast.Node
	nextVar      uint32
	Warnings     []Diagnostic
}

func NewTypeChecker(cfg *config.Config) *TypeChecker {
	globalScope := newScope(nil, false)
	return &TypeChecker{
		cfg:          cfg,
		globalScope:  globalScope,
		currentScope: globalScope,
		frames:       make(map[*ast.Node]*Frame),
		decls:        make(map[*ast.Node]*Binding),
		captures:     make(map[*ast.Node][]*ast.Node),
	}
}

func (tc *TypeChecker) enterScope() { tc.currentScope = newScope(tc.currentScope, false) }
func (tc *TypeChecker) exitScope() {
	if tc.currentScope.Parent != nil {
		tc.currentScope = tc.currentScope.Parent
	}
}

func (tc *TypeChecker) warn(w config.Warning, tok token.Token, format string, args ...interface{}) {
	if !tc.cfg.IsWarningEnabled(w) {
		return
	}
	tc.Warnings = append(tc.Warnings, Diagnostic{Warning: w, Tok: tok, Message: fmt.Sprintf(format, args...)})
}

func (tc *TypeChecker) freshVar() types.Type {
	t := types.TypeVar(tc.nextVar)
	tc.nextVar++
	return t
}

// Check resolves and annotates every declaration and expression reachable
// from root. On success every node's Typ is concrete and RootNode.InitOrder
// lists the top-level lets in initialization order.
func (tc *TypeChecker) Check(root *ast.Node) error {
	if root == nil || root.Type != ast.Root {
		return fmt.Errorf("typeChecker: expected a root node")
	}
	top := ast.TopLevel(root)

	for _, node := range top {
		if err := tc.register(node); err != nil {
			return err
		}
	}

	for _, node := range top {
		var err error
		switch node.Type {
		case ast.Let:
			_, err = tc.resolve(node, tc.globalScope)
		case ast.FuncDecl:
			err = tc.checkFunc(node)
		case ast.Program:
			err = tc.checkProgram(node)
		}
		if err != nil {
			return err
		}
	}

	if err := tc.verify(root); err != nil {
		return err
	}

	d := root.Data.(ast.RootNode)
	d.InitOrder = append([]*ast.Node(nil), tc.initOrder...)
	root.Data = d
	return nil
}

// Lookup returns the top-level mapping for name.
func (tc *TypeChecker) Lookup(name string) (IdentMapping, bool) {
	b := tc.globalScope.local(types.NewSymbol(name))
	if b == nil {
		return IdentMapping{}, false
	}
	return tc.mapping(b), true
}

// Globals lists every top-level mapping in declaration order.
func (tc *TypeChecker) Globals() []IdentMapping {
	var out []IdentMapping
	for _, b := range tc.globalScope.ordered() {
		out = append(out, tc.mapping(b))
	}
	return out
}

func (tc *TypeChecker) mapping(b *Binding) IdentMapping {
	m := b.IdentMapping
	if f, ok := tc.frames[b.Decl]; ok && f.Checked {
		m.Var.Type = f.Type
	}
	return m
}

// --- Registration ---

func (tc *TypeChecker) declare(scope *Scope, tok token.Token, b *Binding) error {
	if prev := scope.local(b.Symbol); prev != nil {
		e := newError(ErrRedeclared, tok, "'%s' redeclared in this scope", b.Symbol)
		e.Symbol = b.Symbol
		return e
	}
	if scope != tc.globalScope {
		if outer, _ := scope.Parent.lookup(b.Symbol); outer != nil {
			tc.warn(config.WarnShadow, tok, "declaration of '%s' shadows an outer binding", b.Symbol)
		}
	}
	scope.add(b)
	return nil
}

func (tc *TypeChecker) register(node *ast.Node) error {
	switch d := node.Data.(type) {
	case ast.LetNode:
		b := &Binding{
			IdentMapping: IdentMapping{Symbol: d.Name, Var: Var{Type: tc.freshVar(), Node: node}},
			Mutable:      true, Decl: node, Scope: tc.globalScope,
		}
		tc.decls[node] = b
		return tc.declare(tc.globalScope, node.Tok, b)
	case ast.FuncDeclNode:
		params := make([]types.Type, len(d.Params))
		for i, p := range d.Params {
			params[i] = p.Data.(ast.ParamNode).Type
		}
		with := make([]types.WithMode, len(d.With))
		for i, w := range d.With {
			if w.Data.(ast.WithVarNode).Mutable {
				with[i] = types.WithMut
			}
		}
		sig := types.Function(params, d.ReturnType, with)
		node.Typ = sig
		tc.frames[node] = checkedFrame(node, sig)
		return tc.declare(tc.globalScope, node.Tok, &Binding{
			IdentMapping: IdentMapping{Symbol: d.Name, Var: Var{Type: sig, Node: node}},
			Decl:         node, Scope: tc.globalScope,
		})
	case ast.ProgramNode:
		with := make([]types.WithMode, len(d.With))
		for i, w := range d.With {
			if w.Data.(ast.WithVarNode).Mutable {
				with[i] = types.WithMut
			}
		}
		t := types.Program(with)
		node.Typ = t
		tc.frames[node] = checkedFrame(node, t)
		return tc.declare(tc.globalScope, node.Tok, &Binding{
			IdentMapping: IdentMapping{Symbol: d.Name, Var: Var{Type: t, Node: node}},
			Decl:         node, Scope: tc.globalScope,
		})
	}
	return newError(ErrInvalidStatement, node.Tok, "only 'let', 'function' and 'program' may appear at top level")
}

// capture binds the `with` items of a function or the program in scope.
func (tc *TypeChecker) capture(scope *Scope, items []*ast.Node) error {
	for _, item := range items {
		w := item.Data.(ast.WithVarNode)
		target := tc.globalScope.local(w.Name)
		if target == nil {
			e := newError(ErrUndefinedSymbol, item.Tok, "captured variable '%s' is not declared at top level", w.Name)
			e.Symbol = w.Name
			return e
		}
		if target.Decl.Type != ast.Let {
			return newError(ErrInvalidStatement, item.Tok, "'%s' is not a variable and cannot be captured", w.Name)
		}
		if scope.local(w.Name) != nil {
			e := newError(ErrRedeclared, item.Tok, "'%s' captured more than once", w.Name)
			e.Symbol = w.Name
			return e
		}
		scope.add(&Binding{
			IdentMapping: IdentMapping{Symbol: w.Name, Var: Var{Type: target.Var.Type, Node: item}},
			Mutable:      w.Mutable, Decl: target.Decl, Scope: target.Scope, Captured: true,
		})
	}
	return nil
}

// lookupValue resolves sym from scope, hiding top-level variables from
// function bodies that did not capture them.
func (tc *TypeChecker) lookupValue(sym types.Symbol, scope *Scope, tok token.Token) (*Binding, error) {
	b, crossed := scope.lookup(sym)
	if b == nil {
		e := newError(ErrUndefinedSymbol, tok, "undefined: '%s'", sym)
		e.Symbol = sym
		return nil, e
	}
	if crossed && !isCallableDecl(b.Decl) {
		e := newError(ErrUndefinedSymbol, tok, "'%s' is not visible here; add it to the function's 'with' clause", sym)
		e.Symbol = sym
		return nil, e
	}
	b.used = true
	return b, nil
}

// --- Frame engine ---

// resolve returns the type of node, creating and driving frames on an
// explicit stack. A frame met again while still in progress is a cycle.
func (tc *TypeChecker) resolve(node *ast.Node, scope *Scope) (types.Type, error) {
	if f, ok := tc.frames[node]; ok {
		if !f.Checked {
			return types.Unknown, tc.cycleError([]*Frame{f}, f)
		}
		return f.Type, nil
	}

	root, err := tc.open(node, scope)
	if err != nil {
		return types.Unknown, err
	}
	stack := []*Frame{root}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.done() {
			if err := tc.close(top); err != nil {
				return types.Unknown, err
			}
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				stack[len(stack)-1].advance(top.Type)
			}
			continue
		}

		p := top.next()
		if f, ok := tc.frames[p.node]; ok {
			if !f.Checked {
				return types.Unknown, tc.cycleError(stack, f)
			}
			top.advance(f.Type)
			continue
		}
		child, err := tc.open(p.node, p.scope)
		if err != nil {
			return types.Unknown, err
		}
		stack = append(stack, child)
	}
	return root.Type, nil
}

// open creates and registers the frame for node, listing its sub-parts.
func (tc *TypeChecker) open(node *ast.Node, scope *Scope) (*Frame, error) {
	var parts []part
	switch d := node.Data.(type) {
	case ast.NumberNode, ast.FloatNumberNode, ast.BoolNode, ast.StringNode:
	case ast.IdentNode:
		b, err := tc.lookupValue(d.Name, scope, node.Tok)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{b.Decl, b.Scope})
	case ast.BinaryOpNode:
		parts = append(parts, part{d.Left, scope}, part{d.Right, scope})
	case ast.FuncCallNode:
		b, err := tc.lookupValue(d.Callee, scope, node.Tok)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{b.Decl, b.Scope})
		for _, arg := range d.Args {
			parts = append(parts, part{arg, scope})
		}
		// A global initializer runs before the program, so any global the
		// callee reads must be initialized first.
		if scope == tc.globalScope && isCallableDecl(b.Decl) {
			for _, dep := range tc.capturedGlobals(b.Decl) {
				parts = append(parts, part{dep, tc.globalScope})
			}
		}
	case ast.LetNode:
		parts = append(parts, part{d.Init, scope})
	default:
		return nil, fmt.Errorf("typeChecker: no frame rule for node kind %d", node.Type)
	}
	f := newFrame(node, scope, parts)
	tc.frames[node] = f
	return f, nil
}

// close computes the type of a frame whose parts are all resolved.
func (tc *TypeChecker) close(f *Frame) error {
	node := f.Node
	var t types.Type

	switch d := node.Data.(type) {
	case ast.NumberNode:
		t = d.Type
		if t.IsPlaceholder() {
			t = types.Int32
		}
		if err := checkIntRange(node.Tok, d, t); err != nil {
			return err
		}
	case ast.FloatNumberNode:
		t = d.Type
		if t.IsPlaceholder() {
			t = types.Float64
		}
		if t.Kind == types.KindFloat32 && math.Abs(d.Value) > math.MaxFloat32 {
			return newError(ErrConstantOverflow, node.Tok, "constant %g overflows float32", d.Value)
		}
	case ast.BoolNode:
		t = types.Bool
	case ast.StringNode:
		t = types.String
	case ast.IdentNode:
		t = f.results[0]
		switch t.Kind {
		case types.KindFunction:
			return newError(ErrInvalidStatement, node.Tok, "function '%s' can only be called, not used as a value", d.Name)
		case types.KindProgram:
			return newError(ErrInvalidStatement, node.Tok, "program '%s' cannot be used as a value", d.Name)
		}
	case ast.BinaryOpNode:
		l, r := f.results[0], f.results[1]
		if !l.IsNumeric() || !l.Equal(r) {
			return mismatch(node.Tok, l, r, "invalid operation: %s %s %s (operands must be the same numeric type)", l, d.Op, r)
		}
		t = l
		if isComparison(d.Op) {
			t = types.Bool
		}
	case ast.FuncCallNode:
		var err error
		if t, err = checkCall(node, d, f.results[0], f.results[1:1+len(d.Args)]); err != nil {
			return err
		}
	case ast.LetNode:
		init := f.results[0]
		if init.Kind == types.KindNil {
			return mismatch(node.Tok, d.Annot, init, "'%s' is bound to a call that returns no value", d.Name)
		}
		if !d.Annot.IsPlaceholder() && !d.Annot.Equal(init) {
			return mismatch(node.Tok, d.Annot, init, "cannot use %s value as %s in binding of '%s'", init, d.Annot, d.Name)
		}
		t = init
		if b := tc.decls[node]; b != nil {
			b.Var.Type = t
		}
		if f.scope == tc.globalScope {
			tc.initOrder = append(tc.initOrder, node)
		}
	default:
		return fmt.Errorf("typeChecker: no frame rule for node kind %d", node.Type)
	}

	f.finish(t)
	node.Typ = t
	return nil
}

// capturedGlobals lists the top-level lets fn can read when called: its own
// captures and those of every function reachable from its body.
func (tc *TypeChecker) capturedGlobals(fn *ast.Node) []*ast.Node {
	if deps, ok := tc.captures[fn]; ok {
		return deps
	}

	visited := make(map[*ast.Node]bool)
	seen := make(map[*ast.Node]bool)
	var deps []*ast.Node
	var visit func(*ast.Node)
	visit = func(fn *ast.Node) {
		if visited[fn] {
			return
		}
		visited[fn] = true
		d := fn.Data.(ast.FuncDeclNode)
		for _, w := range d.With {
			b := tc.globalScope.local(w.Data.(ast.WithVarNode).Name)
			if b != nil && b.Decl.Type == ast.Let && !seen[b.Decl] {
				seen[b.Decl] = true
				deps = append(deps, b.Decl)
			}
		}
		ast.Walk(d.Body, func(n *ast.Node) bool {
			if call, ok := n.Data.(ast.FuncCallNode); ok {
				if b := tc.globalScope.local(call.Callee); b != nil && isCallableDecl(b.Decl) {
					visit(b.Decl)
				}
			}
			return true
		})
	}
	visit(fn)

	tc.captures[fn] = deps
	return deps
}

func checkCall(node *ast.Node, d ast.FuncCallNode, callee types.Type, args []types.Type) (types.Type, error) {
	if callee.Kind != types.KindFunction {
		e := newError(ErrNotCallable, node.Tok, "'%s' (%s) is not a function", d.Callee, callee)
		e.Symbol, e.Actual = d.Callee, callee
		return types.Unknown, e
	}
	if len(args) != len(callee.Params) {
		e := newError(ErrArityMismatch, node.Tok, "'%s' expects %d argument(s), got %d", d.Callee, len(callee.Params), len(args))
		e.Symbol = d.Callee
		return types.Unknown, e
	}
	for i, param := range callee.Params {
		if !param.Equal(args[i]) {
			e := mismatch(d.Args[i].Tok, param, args[i], "argument %d of '%s': expected %s, got %s", i+1, d.Callee, param, args[i])
			e.Symbol = d.Callee
			return types.Unknown, e
		}
	}
	return callee.ReturnType(), nil
}

func isComparison(op token.Type) bool {
	switch op {
	case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte:
		return true
	}
	return false
}

func checkIntRange(tok token.Token, d ast.NumberNode, t types.Type) error {
	var maxPos, maxNeg uint64
	switch t.Kind {
	case types.KindInt32:
		maxPos, maxNeg = math.MaxInt32, 1<<31
	case types.KindInt64:
		maxPos, maxNeg = math.MaxInt64, 1<<63
	case types.KindUInt32:
		maxPos = math.MaxUint32
	case types.KindUInt64:
		maxPos = math.MaxUint64
	}
	if (d.Negative && d.Value > maxNeg) || (!d.Negative && d.Value > maxPos) {
		sign := ""
		if d.Negative {
			sign = "-"
		}
		return newError(ErrConstantOverflow, tok, "constant %s%d overflows %s", sign, d.Value, t)
	}
	return nil
}

func (tc *TypeChecker) cycleError(stack []*Frame, revisited *Frame) error {
	start := 0
	for i, f := range stack {
		if f == revisited {
			start = i
			break
		}
	}
	var path []types.Symbol
	for _, f := range stack[start:] {
		if d, ok := f.Node.Data.(ast.LetNode); ok {
			path = append(path, d.Name)
		}
	}
	if d, ok := revisited.Node.Data.(ast.LetNode); ok {
		path = append(path, d.Name)
	}
	return cyclic(revisited.Node.Tok, path)
}

// --- Statements ---

func (tc *TypeChecker) checkFunc(node *ast.Node) error {
	d := node.Data.(ast.FuncDeclNode)
	scope := newScope(tc.globalScope, true)
	prevScope, prevFunc := tc.currentScope, tc.currentFunc
	tc.currentScope, tc.currentFunc = scope, node
	defer func() { tc.currentScope, tc.currentFunc = prevScope, prevFunc }()

	for _, p := range d.Params {
		pd := p.Data.(ast.ParamNode)
		p.Typ = pd.Type
		tc.frames[p] = checkedFrame(p, pd.Type)
		b := &Binding{
			IdentMapping: IdentMapping{Symbol: pd.Name, Var: Var{Type: pd.Type, Node: p}},
			Mutable:      true, Decl: p, Scope: scope,
		}
		if err := tc.declare(scope, p.Tok, b); err != nil {
			return err
		}
	}
	if err := tc.capture(scope, d.With); err != nil {
		return err
	}

	stmts := d.Body.Data.(ast.BlockNode).Stmts
	if err := tc.checkBlock(stmts); err != nil {
		return err
	}

	if d.ReturnType.Kind != types.KindNil && !terminates(stmts) {
		tc.warn(config.WarnMissingReturn, node.Tok, "function '%s' may reach its end without returning a %s", d.Name, d.ReturnType)
	}
	tc.warnUnusedCaptures(scope)
	return nil
}

func (tc *TypeChecker) warnUnusedCaptures(scope *Scope) {
	for _, b := range scope.ordered() {
		if b.Captured && !b.used {
			tc.warn(config.WarnUnusedCapture, b.Var.Node.Tok, "captured variable '%s' is never used", b.Symbol)
		}
	}
}

func (tc *TypeChecker) checkProgram(node *ast.Node) error {
	d := node.Data.(ast.ProgramNode)
	scope := newScope(tc.globalScope, false)
	prevScope := tc.currentScope
	tc.currentScope = scope
	defer func() { tc.currentScope = prevScope }()

	if err := tc.capture(scope, d.With); err != nil {
		return err
	}
	if err := tc.checkBlock(d.Body.Data.(ast.BlockNode).Stmts); err != nil {
		return err
	}
	tc.warnUnusedCaptures(scope)
	return nil
}

func (tc *TypeChecker) checkBlock(stmts []*ast.Node) error {
	returned := false
	for _, stmt := range stmts {
		if returned {
			tc.warn(config.WarnUnreachableCode, stmt.Tok, "unreachable code")
			returned = false
		}
		if err := tc.checkStmt(stmt); err != nil {
			return err
		}
		if stmt.Type == ast.Return {
			returned = true
		}
	}
	return nil
}

func (tc *TypeChecker) checkStmt(node *ast.Node) error {
	switch d := node.Data.(type) {
	case ast.LetNode:
		b := &Binding{
			IdentMapping: IdentMapping{Symbol: d.Name, Var: Var{Type: tc.freshVar(), Node: node}},
			Mutable:      true, Decl: node, Scope: tc.currentScope,
		}
		tc.decls[node] = b
		if err := tc.declare(tc.currentScope, node.Tok, b); err != nil {
			return err
		}
		_, err := tc.resolve(node, tc.currentScope)
		return err

	case ast.ReassignNode:
		return tc.checkReassign(node, d)

	case ast.ExprStmtNode:
		_, err := tc.resolve(d.Expr, tc.currentScope)
		return err

	case ast.IfNode:
		for _, br := range d.Branches {
			if br.Cond != nil {
				t, err := tc.resolve(br.Cond, tc.currentScope)
				if err != nil {
					return err
				}
				if t.Kind != types.KindBool {
					e := newError(ErrNonBoolCondition, br.Cond.Tok, "non-boolean condition (%s) in if statement", t)
					e.Expected, e.Actual = types.Bool, t
					return e
				}
			}
			tc.enterScope()
			err := tc.checkBlock(br.Body.Data.(ast.BlockNode).Stmts)
			tc.exitScope()
			if err != nil {
				return err
			}
		}
		return nil

	case ast.ReturnNode:
		return tc.checkReturn(node, d)

	case ast.FuncDeclNode, ast.ProgramNode:
		return newError(ErrInvalidStatement, node.Tok, "declarations of functions and programs must be at top level")
	}
	return newError(ErrInvalidStatement, node.Tok, "invalid statement")
}

func (tc *TypeChecker) checkReassign(node *ast.Node, d ast.ReassignNode) error {
	b, err := tc.lookupValue(d.Name, tc.currentScope, node.Tok)
	if err != nil {
		return err
	}
	if !b.Mutable {
		what := "immutable"
		if b.Captured {
			what = "captured without 'mut'"
		} else if !isValueDecl(b.Decl) {
			what = "not a variable"
		}
		e := newError(ErrImmutableAssign, node.Tok, "cannot assign to '%s' (%s)", d.Name, what)
		e.Symbol = d.Name
		return e
	}
	target, err := tc.resolve(b.Decl, b.Scope)
	if err != nil {
		return err
	}
	rhs, err := tc.resolve(d.Rhs, tc.currentScope)
	if err != nil {
		return err
	}
	if d.Op != token.Eq && !target.IsNumeric() {
		return mismatch(node.Tok, target, rhs, "operator %s not defined on '%s' (%s)", d.Op, d.Name, target)
	}
	if !target.Equal(rhs) {
		return mismatch(node.Tok, target, rhs, "cannot assign %s value to '%s' (%s)", rhs, d.Name, target)
	}
	node.Typ = target
	return nil
}

func (tc *TypeChecker) checkReturn(node *ast.Node, d ast.ReturnNode) error {
	want := types.Int32 // the program's value becomes the exit status
	where := "program"
	if tc.currentFunc != nil {
		fd := tc.currentFunc.Data.(ast.FuncDeclNode)
		want, where = fd.ReturnType, fmt.Sprintf("function '%s'", fd.Name)
	}

	if d.Expr == nil {
		if tc.currentFunc != nil && want.Kind != types.KindNil {
			return mismatch(node.Tok, want, types.Nil, "missing return value in %s (expected %s)", where, want)
		}
		node.Typ = types.Nil
		return nil
	}

	got, err := tc.resolve(d.Expr, tc.currentScope)
	if err != nil {
		return err
	}
	if want.Kind == types.KindNil {
		return mismatch(node.Tok, want, got, "%s does not return a value", where)
	}
	if !want.Equal(got) {
		return mismatch(node.Tok, want, got, "cannot return %s from %s (expected %s)", got, where, want)
	}
	node.Typ = got
	return nil
}

// terminates reports whether a statement list always ends in a return.
func terminates(stmts []*ast.Node) bool {
	if len(stmts) == 0 {
		return false
	}
	last := stmts[len(stmts)-1]
	switch d := last.Data.(type) {
	case ast.ReturnNode:
		return true
	case ast.IfNode:
		if d.Branches[len(d.Branches)-1].Cond != nil {
			return false
		}
		for _, br := range d.Branches {
			if !terminates(br.Body.Data.(ast.BlockNode).Stmts) {
				return false
			}
		}
		return true
	}
	return false
}

// verify rejects any node left with a placeholder type.
func (tc *TypeChecker) verify(root *ast.Node) error {
	var err error
	ast.Walk(root, func(n *ast.Node) bool {
		if err != nil {
			return false
		}
		needsType := ast.IsExpr(n) || n.Type == ast.Let || n.Type == ast.Param || n.Type == ast.FuncDecl
		if needsType && !n.Typ.IsConcrete() {
			err = newError(ErrUnresolvedType, n.Tok, "type of node left unresolved (%s)", n.Typ)
		}
		return true
	})
	return err
}
