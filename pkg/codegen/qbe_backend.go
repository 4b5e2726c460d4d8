package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/ir"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

type qbeOperand struct {
	val string
	typ types.Type
}

type qbeFunc struct {
	header     string
	allocs     strings.Builder
	prologue   strings.Builder
	body       strings.Builder
	terminated bool
	ret        types.Type
	isMain     bool
	scopes     []map[types.Symbol]string
}

type qbeIf struct {
	id, branch int
	hasElse    bool
}

type qbeBackend struct {
	toolchain Toolchain

	prog      *ir.Program
	data      strings.Builder
	funcs     strings.Builder
	main      *qbeFunc
	cur       *qbeFunc
	globals   map[types.Symbol]types.Type
	strs      map[string]string
	ifs       []qbeIf
	tempCount int
	slotCount int
	ifCount   int
	deadCount int
	inGlobals bool
}

func NewQBEBackend(tc Toolchain) Backend { return &qbeBackend{toolchain: tc} }

func (b *qbeBackend) Name() string { return "qbe" }

func (b *qbeBackend) Generate(prog *ir.Program, cfg *config.Config, output string) error {
	il, err := b.Render(prog)
	if err != nil {
		return err
	}
	asm, err := b.assemble(il, cfg)
	if err != nil {
		return err
	}
	staged := cfg.StagingPath
	if staged == "" {
		staged = "out.s"
	}
	if err := stage(staged, asm); err != nil {
		return err
	}
	return toolchainFor(b.toolchain, cfg).Build(staged, output)
}

func newQBEFunc(header string, ret types.Type) *qbeFunc {
	return &qbeFunc{header: header, ret: ret, scopes: []map[types.Symbol]string{{}}}
}

func (b *qbeBackend) reset(prog *ir.Program) {
	*b = qbeBackend{
		toolchain: b.toolchain,
		prog:      prog,
		globals:   make(map[types.Symbol]types.Type),
		strs:      make(map[string]string),
	}
	b.main = newQBEFunc("export function w $main()", types.Int32)
	b.main.isMain = true
	b.cur = b.main
}

// Render produces QBE IL for prog.
func (b *qbeBackend) Render(prog *ir.Program) (string, error) {
	b.reset(prog)
	nodes := prog.Nodes

	for i := 0; i < len(nodes); {
		next, err := b.genNode(i)
		if err != nil {
			return "", fmt.Errorf("qbe backend: node %d (%s): %w", i, nodes[i], err)
		}
		i = next
	}
	if b.cur != b.main || len(b.ifs) != 0 || b.inGlobals {
		return "", fmt.Errorf("qbe backend: %w: unterminated section, function or if at end of program", ErrMalformedRun)
	}

	var sb strings.Builder
	sb.WriteString(b.data.String())
	sb.WriteString(b.funcs.String())
	b.finishFunc(&sb, b.main)
	return sb.String(), nil
}

func (b *qbeBackend) finishFunc(sb *strings.Builder, fn *qbeFunc) {
	if !fn.terminated {
		b.cur = fn
		if fn.ret.Kind == types.KindNil {
			b.instr("ret")
		} else {
			b.instr("ret %s", qbeZero(fn.ret))
		}
	}
	fmt.Fprintf(sb, "\n%s {\n@start\n", fn.header)
	sb.WriteString(fn.allocs.String())
	sb.WriteString(fn.prologue.String())
	sb.WriteString(fn.body.String())
	sb.WriteString("}\n")
}

func (b *qbeBackend) instr(format string, args ...interface{}) {
	if b.cur.terminated {
		b.deadCount++
		b.label(fmt.Sprintf("dead.%d", b.deadCount))
	}
	b.cur.body.WriteString("\t")
	fmt.Fprintf(&b.cur.body, format, args...)
	b.cur.body.WriteString("\n")
}

func (b *qbeBackend) label(name string) {
	fmt.Fprintf(&b.cur.body, "@%s\n", name)
	b.cur.terminated = false
}

func (b *qbeBackend) jump(format string, args ...interface{}) {
	b.instr(format, args...)
	b.cur.terminated = true
}

func (b *qbeBackend) newTemp() string {
	b.tempCount++
	return fmt.Sprintf("%%.%d", b.tempCount)
}

func (b *qbeBackend) pushScope() { b.cur.scopes = append(b.cur.scopes, map[types.Symbol]string{}) }
func (b *qbeBackend) popScope() {
	if len(b.cur.scopes) > 1 {
		b.cur.scopes = b.cur.scopes[:len(b.cur.scopes)-1]
	}
}

// declare allocates a stack slot for sym in the innermost scope.
func (b *qbeBackend) declare(sym types.Symbol, t types.Type) string {
	b.slotCount++
	slot := fmt.Sprintf("%%%s.%d", sym.Ident, b.slotCount)
	size := qbeSize(t)
	fmt.Fprintf(&b.cur.allocs, "\t%s =l alloc%d %d\n", slot, size, size)
	b.cur.scopes[len(b.cur.scopes)-1][sym] = slot
	return slot
}

// addr returns the address holding sym: a stack slot, or a global.
func (b *qbeBackend) addr(sym types.Symbol) (string, error) {
	for i := len(b.cur.scopes) - 1; i >= 0; i-- {
		if slot, ok := b.cur.scopes[i][sym]; ok {
			return slot, nil
		}
	}
	if _, ok := b.globals[sym]; ok {
		return "$" + qbeIdent(sym.Ident), nil
	}
	return "", fmt.Errorf("no storage for '%s'", sym)
}

func (b *qbeBackend) genNode(i int) (int, error) {
	nodes := b.prog.Nodes
	switch n := nodes[i].(type) {
	case ir.Term, ir.Eval:
		return skipRun(nodes, i)

	case ir.GlobalSection:
		if b.inGlobals {
			return 0, fmt.Errorf("nested GlobalSection")
		}
		b.inGlobals = true
		return i + 1, nil
	case ir.EndGlobalSection:
		if !b.inGlobals {
			return 0, fmt.Errorf("EndGlobalSection without GlobalSection")
		}
		b.inGlobals = false
		return i + 1, nil

	case ir.FuncDef:
		return b.genFuncDef(i, n)
	case ir.EndFuncDef:
		if b.cur == b.main {
			return 0, fmt.Errorf("EndFuncDef %s outside a function", n.Symbol)
		}
		b.finishFunc(&b.funcs, b.cur)
		b.cur = b.main
		return i + 1, nil

	case ir.Assign:
		v, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		var dst string
		if b.inGlobals {
			size := qbeSize(n.Type)
			dst = "$" + qbeIdent(n.Symbol.Ident)
			fmt.Fprintf(&b.data, "data %s = align %d { z %d }\n", dst, size, size)
			b.globals[n.Symbol] = n.Type
		} else {
			dst = b.declare(n.Symbol, n.Type)
		}
		b.instr("store%s %s, %s", qbeClass(n.Type), v.val, dst)
		return i + 1, nil

	case ir.Reassign:
		v, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		dst, err := b.addr(n.Symbol)
		if err != nil {
			return 0, err
		}
		b.instr("store%s %s, %s", qbeClass(n.Type), v.val, dst)
		return i + 1, nil

	case ir.Discard:
		_, err := b.genExpr(i)
		return i + 1, err

	case ir.If:
		b.ifCount++
		b.ifs = append(b.ifs, qbeIf{id: b.ifCount})
		return i + 1, nil
	case ir.IfCase, ir.ElseIfCase:
		if len(b.ifs) == 0 {
			return 0, fmt.Errorf("%s outside an if", n)
		}
		top := &b.ifs[len(b.ifs)-1]
		if _, ok := n.(ir.ElseIfCase); ok {
			b.popScope()
			b.endBranch(top)
			top.branch++
		}
		cond, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		b.jump("jnz %s, @if.%d.then.%d, @if.%d.else.%d", cond.val, top.id, top.branch, top.id, top.branch)
		b.label(fmt.Sprintf("if.%d.then.%d", top.id, top.branch))
		b.pushScope()
		return i + 1, nil
	case ir.ElseCase:
		if len(b.ifs) == 0 {
			return 0, fmt.Errorf("ElseCase outside an if")
		}
		top := &b.ifs[len(b.ifs)-1]
		b.popScope()
		b.endBranch(top)
		top.hasElse = true
		b.pushScope()
		return i + 1, nil
	case ir.EndIf:
		if len(b.ifs) == 0 {
			return 0, fmt.Errorf("EndIf without If")
		}
		top := b.ifs[len(b.ifs)-1]
		b.ifs = b.ifs[:len(b.ifs)-1]
		b.popScope()
		if !top.hasElse {
			b.endBranch(&top)
		} else if !b.cur.terminated {
			b.jump("jmp @if.%d.end", top.id)
		}
		b.label(fmt.Sprintf("if.%d.end", top.id))
		return i + 1, nil

	case ir.Return:
		if !n.HasValue {
			if b.cur.isMain {
				b.jump("ret 0")
			} else {
				b.jump("ret")
			}
			return i + 1, nil
		}
		v, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		b.jump("ret %s", v.val)
		return i + 1, nil
	}
	return 0, fmt.Errorf("no QBE rendering for %T", nodes[i])
}

// endBranch closes the current branch and opens the label the previous
// condition jumps to when false.
func (b *qbeBackend) endBranch(top *qbeIf) {
	if !b.cur.terminated {
		b.jump("jmp @if.%d.end", top.id)
	}
	b.label(fmt.Sprintf("if.%d.else.%d", top.id, top.branch))
}

func (b *qbeBackend) genFuncDef(i int, n ir.FuncDef) (int, error) {
	if b.cur != b.main {
		return 0, fmt.Errorf("FuncDef %s inside another function", n.Symbol)
	}
	params := make([]string, len(n.Params))
	for j, p := range n.Params {
		params[j] = fmt.Sprintf("%s %%%s", qbeClass(p.Type), qbeIdent(p.Name.Ident))
	}
	ret := ""
	if n.Return.Kind != types.KindNil {
		ret = " " + qbeClass(n.Return)
	}
	fn := newQBEFunc(fmt.Sprintf("function%s $%s(%s)", ret, qbeIdent(n.Symbol.Ident), strings.Join(params, ", ")), n.Return)
	b.cur = fn
	for _, p := range n.Params {
		slot := b.declare(p.Name, p.Type)
		fmt.Fprintf(&fn.prologue, "\tstore%s %%%s, %s\n", qbeClass(p.Type), qbeIdent(p.Name.Ident), slot)
	}
	return i + 1, nil
}

// genExpr replays the operand run before the consumer at i, emitting one
// instruction per load and Eval, and returns the operand holding the result.
func (b *qbeBackend) genExpr(i int) (qbeOperand, error) {
	nodes := b.prog.Nodes
	run := nodes[runStart(nodes, i):i]
	if len(run) == 0 {
		return qbeOperand{}, fmt.Errorf("%w: %s has no operands", ErrMalformedRun, nodes[i])
	}
	return replay(run, b.genTerm, b.genEval)
}

func (b *qbeBackend) genTerm(t ir.Term) (qbeOperand, error) {
	switch v := t.Value.(type) {
	case ir.Int32: return qbeOperand{strconv.FormatInt(int64(v), 10), t.Type}, nil
	case ir.Int64: return qbeOperand{strconv.FormatInt(int64(v), 10), t.Type}, nil
	case ir.UInt32: return qbeOperand{strconv.FormatUint(uint64(v), 10), t.Type}, nil
	case ir.UInt64: return qbeOperand{strconv.FormatInt(int64(v), 10), t.Type}, nil
	case ir.Float32: return qbeOperand{"s_" + strconv.FormatFloat(float64(v), 'g', -1, 32), t.Type}, nil
	case ir.Float64: return qbeOperand{"d_" + strconv.FormatFloat(float64(v), 'g', -1, 64), t.Type}, nil
	case ir.Bool:
		if v {
			return qbeOperand{"1", t.Type}, nil
		}
		return qbeOperand{"0", t.Type}, nil
	case ir.String:
		return qbeOperand{b.addString(string(v)), t.Type}, nil
	case ir.Ident:
		src, err := b.addr(v.Symbol)
		if err != nil {
			return qbeOperand{}, err
		}
		tmp := b.newTemp()
		b.instr("%s =%s load%s %s", tmp, qbeClass(t.Type), qbeClass(t.Type), src)
		return qbeOperand{tmp, t.Type}, nil
	}
	return qbeOperand{}, fmt.Errorf("no QBE rendering for value %T", t.Value)
}

func (b *qbeBackend) genEval(f ir.Func, args []qbeOperand) (qbeOperand, error) {
	switch f := f.(type) {
	case ir.BinaryOp:
		op, err := qbeOp(f)
		if err != nil {
			return qbeOperand{}, err
		}
		res := f.Result()
		tmp := b.newTemp()
		b.instr("%s =%s %s %s, %s", tmp, qbeClass(res), op, args[0].val, args[1].val)
		return qbeOperand{tmp, res}, nil
	case ir.Call:
		list := make([]string, len(args))
		for j, a := range args {
			list[j] = qbeClass(f.Params[j]) + " " + a.val
		}
		call := fmt.Sprintf("call $%s(%s)", qbeIdent(f.Symbol.Ident), strings.Join(list, ", "))
		if f.Return.Kind == types.KindNil {
			b.instr("%s", call)
			return qbeOperand{typ: types.Nil}, nil
		}
		tmp := b.newTemp()
		b.instr("%s =%s %s", tmp, qbeClass(f.Return), call)
		return qbeOperand{tmp, f.Return}, nil
	}
	return qbeOperand{}, fmt.Errorf("no QBE rendering for %T", f)
}

func (b *qbeBackend) addString(s string) string {
	if label, ok := b.strs[s]; ok {
		return label
	}
	label := fmt.Sprintf("$str.%d", len(b.strs)+1)
	b.strs[s] = label
	fmt.Fprintf(&b.data, "data %s = { b %s, b 0 }\n", label, qbeQuote(s))
	return label
}

func qbeClass(t types.Type) string {
	switch t.Kind {
	case types.KindInt32, types.KindUInt32, types.KindBool: return "w"
	case types.KindInt64, types.KindUInt64, types.KindString: return "l"
	case types.KindFloat32: return "s"
	case types.KindFloat64: return "d"
	}
	panic(fmt.Sprintf("internal: no QBE class for %s", t))
}

func qbeSize(t types.Type) int {
	switch qbeClass(t) {
	case "w", "s": return 4
	}
	return 8
}

func qbeZero(t types.Type) string {
	switch qbeClass(t) {
	case "s": return "s_0"
	case "d": return "d_0"
	}
	return "0"
}

func qbeOp(f ir.BinaryOp) (string, error) {
	class := qbeClass(f.Type)
	float, unsigned := f.Type.IsFloat(), f.Type.IsUnsigned()

	switch f.Op {
	case token.Plus: return "add", nil
	case token.Minus: return "sub", nil
	case token.Star: return "mul", nil
	case token.Slash:
		if unsigned {
			return "udiv", nil
		}
		return "div", nil
	case token.EqEq: return "ceq" + class, nil
	case token.Neq: return "cne" + class, nil
	}

	var base string
	switch f.Op {
	case token.Lt: base = "lt"
	case token.Lte: base = "le"
	case token.Gt: base = "gt"
	case token.Gte: base = "ge"
	default:
		return "", fmt.Errorf("no QBE instruction for operator %s", f.Op)
	}
	switch {
	case float:
		return "c" + base + class, nil
	case unsigned:
		return "cu" + base + class, nil
	}
	return "cs" + base + class, nil
}

// qbeQuote escapes s for a QBE string literal; the assembler interprets the
// escapes.
func qbeQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&sb, `\%03o`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func qbeIdent(name string) string {
	if name == "main" {
		return "main_"
	}
	return name
}
