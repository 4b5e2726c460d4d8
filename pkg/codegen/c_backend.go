package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/ir"
	"github.com/xplshn/rascal/pkg/types"
)

type cBackend struct {
	toolchain Toolchain

	prog      *ir.Program
	globals   strings.Builder
	protos    strings.Builder
	funcs     strings.Builder
	main      strings.Builder
	out       *strings.Builder
	indent    int
	fn        *ir.FuncDef // nil while rendering the program body
	ifDepth   int
	inGlobals bool
	returned  bool // last top-level statement of the open function was a return
}

func NewCBackend(tc Toolchain) Backend { return &cBackend{toolchain: tc} }

func (b *cBackend) Name() string { return "c" }

func (b *cBackend) Generate(prog *ir.Program, cfg *config.Config, output string) error {
	src, err := b.Render(prog)
	if err != nil {
		return err
	}
	staged := cfg.StagingPath
	if staged == "" {
		staged = "out.c"
	}
	if err := stage(staged, src); err != nil {
		return err
	}
	return toolchainFor(b.toolchain, cfg).Build(staged, output)
}

func (b *cBackend) reset(prog *ir.Program) {
	*b = cBackend{toolchain: b.toolchain, prog: prog}
	b.out = &b.main
	b.indent = 1
}

func (b *cBackend) Render(prog *ir.Program) (string, error) {
	b.reset(prog)
	nodes := prog.Nodes

	for i := 0; i < len(nodes); {
		next, err := b.genNode(i)
		if err != nil {
			return "", fmt.Errorf("c backend: node %d (%s): %w", i, nodes[i], err)
		}
		i = next
	}
	if b.fn != nil || b.ifDepth != 0 {
		return "", fmt.Errorf("c backend: %w: unterminated function or if at end of program", ErrMalformedRun)
	}

	var sb strings.Builder
	sb.WriteString("#include <stdbool.h>\n#include <stdint.h>\n")
	for _, part := range []*strings.Builder{&b.globals, &b.protos} {
		if part.Len() > 0 {
			sb.WriteString("\n")
			sb.WriteString(part.String())
		}
	}
	if b.funcs.Len() > 0 {
		sb.WriteString(b.funcs.String())
	}
	sb.WriteString("\nint main(void) {\n")
	sb.WriteString(b.main.String())
	sb.WriteString("    return 0;\n}\n")
	return sb.String(), nil
}

func (b *cBackend) line(format string, args ...interface{}) {
	b.out.WriteString(strings.Repeat("    ", b.indent))
	fmt.Fprintf(b.out, format, args...)
	b.returned = false
	b.out.WriteString("\n")
}

// genNode renders the node at i and returns the next cursor position.
func (b *cBackend) genNode(i int) (int, error) {
	nodes := b.prog.Nodes
	switch n := nodes[i].(type) {
	case ir.Term, ir.Eval:
		return skipRun(nodes, i)

	case ir.GlobalSection:
		return b.genGlobalSection(i)
	case ir.EndGlobalSection:
		return 0, fmt.Errorf("EndGlobalSection without GlobalSection")

	case ir.FuncDef:
		return b.genFuncDef(i, n)
	case ir.EndFuncDef:
		if b.fn == nil || b.fn.Symbol != n.Symbol {
			return 0, fmt.Errorf("EndFuncDef %s does not close the open function", n.Symbol)
		}
		if b.fn.Return.Kind != types.KindNil && !b.returned {
			b.line("return 0;")
		}
		b.out.WriteString("}\n")
		b.fn, b.out, b.indent = nil, &b.main, 1
		return i + 1, nil

	case ir.Assign:
		expr, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		if b.inGlobals {
			fmt.Fprintf(&b.globals, "%s;\n", cDecl(n.Type, cIdent(n.Symbol.Ident)))
			b.line("%s = %s;", cIdent(n.Symbol.Ident), expr)
		} else {
			b.line("%s = %s;", cDecl(n.Type, cIdent(n.Symbol.Ident)), expr)
		}
		return i + 1, nil

	case ir.Reassign:
		expr, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		b.line("%s = %s;", cIdent(n.Symbol.Ident), expr)
		return i + 1, nil

	case ir.Discard:
		expr, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		b.line("%s;", expr)
		return i + 1, nil

	case ir.If:
		b.ifDepth++
		return i + 1, nil
	case ir.IfCase:
		cond, err := b.genCond(i)
		if err != nil {
			return 0, err
		}
		b.line("if %s {", cond)
		b.indent++
		return i + 1, nil
	case ir.ElseIfCase:
		cond, err := b.genCond(i)
		if err != nil {
			return 0, err
		}
		b.indent--
		b.line("} else if %s {", cond)
		b.indent++
		return i + 1, nil
	case ir.ElseCase:
		b.indent--
		b.line("} else {")
		b.indent++
		return i + 1, nil
	case ir.EndIf:
		if b.ifDepth == 0 {
			return 0, fmt.Errorf("EndIf without If")
		}
		b.ifDepth--
		b.indent--
		b.line("}")
		return i + 1, nil

	case ir.Return:
		if !n.HasValue {
			if b.fn == nil {
				b.line("return 0;")
			} else {
				b.line("return;")
			}
			b.returned = b.indent == 1
			return i + 1, nil
		}
		expr, err := b.genExpr(i)
		if err != nil {
			return 0, err
		}
		b.line("return %s;", expr)
		b.returned = b.indent == 1
		return i + 1, nil
	}
	return 0, fmt.Errorf("no C rendering for %T", nodes[i])
}

// genGlobalSection declares every global at file scope and initializes them
// at the top of main, in section order.
func (b *cBackend) genGlobalSection(start int) (int, error) {
	nodes := b.prog.Nodes
	end := start + 1
	for end < len(nodes) {
		if _, ok := nodes[end].(ir.EndGlobalSection); ok {
			break
		}
		end++
	}
	if end == len(nodes) {
		return 0, fmt.Errorf("GlobalSection without EndGlobalSection")
	}

	b.inGlobals = true
	defer func() { b.inGlobals = false }()
	for i := start + 1; i < end; {
		switch nodes[i].(type) {
		case ir.Term, ir.Eval, ir.Assign:
		default:
			return 0, fmt.Errorf("%s inside the global section", nodes[i])
		}
		next, err := b.genNode(i)
		if err != nil {
			return 0, err
		}
		i = next
	}
	return end + 1, nil
}

func (b *cBackend) genFuncDef(i int, n ir.FuncDef) (int, error) {
	if b.fn != nil {
		return 0, fmt.Errorf("FuncDef %s inside function %s", n.Symbol, b.fn.Symbol)
	}
	sig := cSignature(n)
	fmt.Fprintf(&b.protos, "%s;\n", sig)
	fmt.Fprintf(&b.funcs, "\n%s {\n", sig)
	b.fn, b.out, b.indent, b.returned = &n, &b.funcs, 1, false
	return i + 1, nil
}

// genExpr renders the operand run ending just before the consumer at i.
func (b *cBackend) genExpr(i int) (string, error) {
	nodes := b.prog.Nodes
	run := nodes[runStart(nodes, i):i]
	if len(run) == 0 {
		return "", fmt.Errorf("%w: %s has no operands", ErrMalformedRun, nodes[i])
	}
	return replay(run, func(t ir.Term) (string, error) {
		return cValue(t.Value)
	}, func(f ir.Func, args []string) (string, error) {
		switch f := f.(type) {
		case ir.BinaryOp:
			return fmt.Sprintf("(%s %s %s)", args[0], f.Op, args[1]), nil
		case ir.Call:
			return fmt.Sprintf("%s(%s)", cIdent(f.Symbol.Ident), strings.Join(args, ", ")), nil
		}
		return "", fmt.Errorf("no C rendering for %T", f)
	})
}

// genCond renders a condition with exactly one pair of enclosing parentheses.
func (b *cBackend) genCond(i int) (string, error) {
	cond, err := b.genExpr(i)
	if err != nil {
		return "", err
	}
	if e, ok := b.prog.Nodes[i-1].(ir.Eval); ok {
		if _, ok := e.Func.(ir.BinaryOp); ok {
			return cond, nil
		}
	}
	return "(" + cond + ")", nil
}

func cType(t types.Type) string {
	switch t.Kind {
	case types.KindInt32:
		return "int32_t"
	case types.KindInt64:
		return "int64_t"
	case types.KindUInt32:
		return "uint32_t"
	case types.KindUInt64:
		return "uint64_t"
	case types.KindFloat32:
		return "float"
	case types.KindFloat64:
		return "double"
	case types.KindBool:
		return "bool"
	case types.KindString:
		return "const char *"
	case types.KindNil:
		return "void"
	}
	panic(fmt.Sprintf("internal: no C type for %s", t))
}

func cDecl(t types.Type, name string) string {
	ct := cType(t)
	if strings.HasSuffix(ct, "*") {
		return ct + name
	}
	return ct + " " + name
}

func cSignature(n ir.FuncDef) string {
	params := make([]string, len(n.Params))
	for i, p := range n.Params {
		params[i] = cDecl(p.Type, cIdent(p.Name.Ident))
	}
	list := "void"
	if len(params) > 0 {
		list = strings.Join(params, ", ")
	}
	return fmt.Sprintf("%s(%s)", cDecl(n.Return, cIdent(n.Symbol.Ident)), list)
}

func cValue(v ir.Value) (string, error) {
	switch v := v.(type) {
	case ir.Int32:
		if v == math.MinInt32 {
			return "INT32_MIN", nil
		}
		return fmt.Sprintf("INT32_C(%d)", v), nil
	case ir.Int64:
		if v == math.MinInt64 {
			return "INT64_MIN", nil
		}
		return fmt.Sprintf("INT64_C(%d)", v), nil
	case ir.UInt32:
		return fmt.Sprintf("UINT32_C(%d)", v), nil
	case ir.UInt64:
		return fmt.Sprintf("UINT64_C(%d)", v), nil
	case ir.Float32:
		return cFloat(float64(v), 32) + "F", nil
	case ir.Float64:
		return cFloat(float64(v), 64), nil
	case ir.Bool:
		return strconv.FormatBool(bool(v)), nil
	case ir.String:
		return cQuote(string(v)), nil
	case ir.Ident:
		return cIdent(v.Symbol.Ident), nil
	}
	return "", fmt.Errorf("no C rendering for value %T", v)
}

// cFloat formats f so that C reads it as a floating constant.
func cFloat(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func cQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '?':
			sb.WriteString(`\?`)
		default:
			if c < 0x20 || c > 0x7e {
				fmt.Fprintf(&sb, `\%03o`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

var cReserved = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true, "continue": true,
	"default": true, "do": true, "double": true, "enum": true, "extern": true, "float": true,
	"for": true, "goto": true, "inline": true, "int": true, "long": true, "register": true,
	"restrict": true, "short": true, "signed": true, "sizeof": true, "static": true,
	"struct": true, "switch": true, "typedef": true, "union": true, "unsigned": true,
	"void": true, "volatile": true, "while": true, "main": true, "NULL": true,
	"int32_t": true, "int64_t": true, "uint32_t": true, "uint64_t": true,
	"_Bool": true, "_Complex": true, "_Imaginary": true,
	"bool": true, "true": true, "false": true,
	"PTRDIFF_MIN": true, "PTRDIFF_MAX": true, "SIG_ATOMIC_MIN": true, "SIG_ATOMIC_MAX": true,
	"SIZE_MAX": true, "WCHAR_MIN": true, "WCHAR_MAX": true, "WINT_MIN": true, "WINT_MAX": true,
}

// cReservedName reports whether name is a C keyword, the generated main, or
// an identifier <stdint.h> and <stdbool.h> may define. Names ending in _t and
// INT*/UINT* macros ending in _MIN, _MAX or _C are reserved as whole families.
func cReservedName(name string) bool {
	if cReserved[name] || strings.HasSuffix(name, "_t") {
		return true
	}
	if strings.HasPrefix(name, "INT") || strings.HasPrefix(name, "UINT") {
		for _, suffix := range []string{"_MIN", "_MAX", "_C"} {
			if strings.HasSuffix(name, suffix) {
				return true
			}
		}
	}
	return false
}

// cIdent maps a source identifier to a C identifier that cannot collide
// with anything the generated file declares or includes. Names that already
// end in an underscore are suffixed too, so the mapping stays one to one.
func cIdent(name string) string {
	if cReservedName(name) || strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return name + "_"
	}
	return name
}
