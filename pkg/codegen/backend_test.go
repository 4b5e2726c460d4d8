package codegen

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/ir"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

const cScenario = `
let limit = base * 2;
let base = 21;

function foo(a: float32, b: float32) -> float32
  let c = a;
  c *= b;
  return c;
end

function baz(x, y, z: int32) -> int32
  return x + y + z;
end

program main with mut limit
  let x: int32 = 431;
  if x != 5 then
    let y = baz(x, x, x);
    limit = y;
  else if x == 6 then
    let y = foo(1.5f32, 2.0f32);
  else then
    let y = "done\n";
  end
  return limit - 1;
end
`

const qbeScenario = `
let g = 40i64;

function add(a: int64, b: int64) -> int64
  return a + b;
end

program main with mut g
  if g > 10i64 then
    g = add(g, 2i64);
  end
  return 0;
end
`

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
}

func TestCBackend_Golden(t *testing.T) {
	out, err := NewCBackend(nil).Render(lower(t, cScenario))
	require.NoError(t, err)
	golden(t).Assert(t, "c_scenario", []byte(out))
}

func TestQBEBackend_Golden(t *testing.T) {
	out, err := NewQBEBackend(nil).Render(lower(t, qbeScenario))
	require.NoError(t, err)
	golden(t).Assert(t, "qbe_scenario", []byte(out))
}

func TestCBackend_ExpressionParenthesization(t *testing.T) {
	out, err := NewCBackend(nil).Render(lower(t, "program main\n  let x = 2 + (3 * 4);\n  let y = (2 + 3) * 4;\nend\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "int32_t x = (INT32_C(2) + (INT32_C(3) * INT32_C(4)));")
	assert.Contains(t, out, "int32_t y = ((INT32_C(2) + INT32_C(3)) * INT32_C(4));")
}

func TestCBackend_Literals(t *testing.T) {
	out, err := NewCBackend(nil).Render(lower(t, `
program main
  let a = -2147483648;
  let b = 9223372036854775807i64;
  let c = 4000000000u32;
  let d = 18446744073709551615u64;
  let e = 3f32;
  let f = 0.1;
  let g = false;
  let h = "tab\there \"q\" \x01";
end
`))
	require.NoError(t, err)
	for _, want := range []string{
		"int32_t a = INT32_MIN;",
		"int64_t b = INT64_C(9223372036854775807);",
		"uint32_t c = UINT32_C(4000000000);",
		"uint64_t d = UINT64_C(18446744073709551615);",
		"float e = 3.0F;",
		"double f = 0.1;",
		"bool g = false;",
		`const char *h = "tab\there \"q\" \001";`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestCBackend_ReservedNames(t *testing.T) {
	out, err := NewCBackend(nil).Render(lower(t, `
function int(char: int32) -> int32
  return char;
end
program main
  let while = int(1);
end
`))
	require.NoError(t, err)
	assert.Contains(t, out, "int32_t int_(int32_t char_);")
	assert.Contains(t, out, "int32_t while_ = int_(INT32_C(1));")
}

func TestCBackend_StdintNames(t *testing.T) {
	out, err := NewCBackend(nil).Render(lower(t, `
let int8_t = 2;
function uint8_t(intptr_t: int32) -> int32
  return intptr_t;
end
program main with int8_t
  let INT32_MAX = 1;
  let UINTMAX_C = uint8_t(int8_t);
  let SIZE_MAX = 3;
  let keep_ = 4;
  return INT32_MAX;
end
`))
	require.NoError(t, err)
	assert.Contains(t, out, "int32_t int8_t_;")
	assert.Contains(t, out, "int32_t uint8_t_(int32_t intptr_t_);")
	assert.Contains(t, out, "int32_t INT32_MAX_ = INT32_C(1);")
	assert.Contains(t, out, "int32_t UINTMAX_C_ = uint8_t_(int8_t_);")
	assert.Contains(t, out, "int32_t SIZE_MAX_ = INT32_C(3);")
	assert.Contains(t, out, "int32_t keep__ = INT32_C(4);")
	assert.Contains(t, out, "return INT32_MAX_;")

	for name, reserved := range map[string]bool{
		"int_least16_t": true, "INT_FAST8_MAX": true, "UINT16_C": true,
		"INTERVAL": false, "counter": false, "UINT": false,
	} {
		assert.Equal(t, reserved, cReservedName(name), name)
	}
}

func TestCBackend_FallbackReturn(t *testing.T) {
	out, err := NewCBackend(nil).Render(lower(t, `
function pick(x: int32) -> int32
  if x > 0 then
    return 1;
  end
end
function done() -> int32
  return 2;
end
program main
  let r = pick(done());
end
`))
	require.NoError(t, err)
	assert.Contains(t, out, "        return INT32_C(1);\n    }\n    return 0;\n}")
	assert.Contains(t, out, "int32_t done(void) {\n    return INT32_C(2);\n}")
}

func TestCBackend_VoidReturns(t *testing.T) {
	out, err := NewCBackend(nil).Render(lower(t, `
function noop()
  return;
end
program main
  noop();
  return;
end
`))
	require.NoError(t, err)
	assert.Contains(t, out, "void noop(void) {\n    return;\n}")
	assert.Contains(t, out, "    noop();\n    return 0;\n")
}

func TestRender_MalformedRuns(t *testing.T) {
	two := &ir.Program{Nodes: []ir.Node{
		ir.Term{Type: types.Int32, Value: ir.Int32(1)},
		ir.Term{Type: types.Int32, Value: ir.Int32(2)},
		ir.Assign{Type: types.Int32, Symbol: types.NewSymbol("x")},
	}}
	short := &ir.Program{Nodes: []ir.Node{
		ir.Term{Type: types.Int32, Value: ir.Int32(1)},
		ir.Eval{Func: ir.BinaryOp{Op: token.Plus, Type: types.Int32}},
		ir.Assign{Type: types.Int32, Symbol: types.NewSymbol("x")},
	}}
	dangling := &ir.Program{Nodes: []ir.Node{
		ir.Term{Type: types.Int32, Value: ir.Int32(1)},
	}}
	empty := &ir.Program{Nodes: []ir.Node{ir.Discard{}}}

	for _, backend := range []Backend{NewCBackend(nil), NewQBEBackend(nil)} {
		for name, prog := range map[string]*ir.Program{"two": two, "short": short, "dangling": dangling, "empty": empty} {
			_, err := backend.Render(prog)
			assert.ErrorIs(t, err, ErrMalformedRun, "%s backend, %s run", backend.Name(), name)
		}
	}
}

func TestRender_UnbalancedStructure(t *testing.T) {
	for _, nodes := range [][]ir.Node{
		{ir.EndIf{}},
		{ir.If{}},
		{ir.FuncDef{Symbol: types.NewSymbol("f"), Return: types.Nil}},
		{ir.EndFuncDef{Symbol: types.NewSymbol("f")}},
		{ir.GlobalSection{}},
	} {
		for _, backend := range []Backend{NewCBackend(nil), NewQBEBackend(nil)} {
			_, err := backend.Render(&ir.Program{Nodes: nodes})
			assert.Error(t, err, "%s backend on %v", backend.Name(), nodes)
		}
	}
}

func TestQBEBackend_Instructions(t *testing.T) {
	out, err := NewQBEBackend(nil).Render(lower(t, `
function cmp(a: uint32, b: uint32, x: float64, y: float64) -> bool
  return a / b < b;
end
function fdiv(x: float32) -> float32
  return x / 2f32;
end
program main
  let s = "hi\n";
  let s2 = "hi\n";
  let t = cmp(1u32, 2u32, 1.0, 2.0);
  let u = 1 >= 2;
end
`))
	require.NoError(t, err)
	for _, want := range []string{
		"data $str.1 = { b \"hi\\012\", b 0 }",
		"=w udiv",
		"=w cultw",
		"=s div %",
		"s_2",
		"=w csgew 1, 2",
		"function w $cmp(w %a, w %b, d %x, d %y) {",
	} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 1, strings.Count(out, "data $str."), "identical strings share one data item")
}

func TestQBEBackend_DeadCodeAfterReturn(t *testing.T) {
	out, err := NewQBEBackend(nil).Render(lower(t, `
program main
  return 1;
  let x = 2;
end
`))
	require.NoError(t, err)
	assert.Contains(t, out, "\tret 1\n@dead.1\n")
}

type fakeToolchain struct {
	staged, output string
	src            string
	err            error
}

func (f *fakeToolchain) Build(staged, output string) error {
	f.staged, f.output = staged, output
	data, err := os.ReadFile(staged)
	if err != nil {
		return err
	}
	f.src = string(data)
	return f.err
}

func TestGenerate_StagesAndInvokesToolchain(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.StagingPath = filepath.Join(dir, "out.c")
	fake := &fakeToolchain{}

	prog := lower(t, cScenario)
	backend := NewCBackend(fake)
	require.NoError(t, backend.Generate(prog, cfg, filepath.Join(dir, "a.out")))

	want, err := NewCBackend(nil).Render(prog)
	require.NoError(t, err)
	assert.Equal(t, cfg.StagingPath, fake.staged)
	assert.Equal(t, filepath.Join(dir, "a.out"), fake.output)
	assert.Equal(t, want, fake.src)
}

func TestGenerate_StagingWriteFailure(t *testing.T) {
	cfg := config.NewConfig()
	cfg.StagingPath = filepath.Join(t.TempDir(), "missing", "out.c")
	fake := &fakeToolchain{}

	err := NewCBackend(fake).Generate(lower(t, cScenario), cfg, "a.out")
	var genErr *GenError
	require.True(t, errors.As(err, &genErr), "got %v", err)
	assert.Equal(t, StagingWrite, genErr.Kind)
	assert.Empty(t, fake.staged, "toolchain must not run after a staging failure")
}

func TestGenerate_ToolchainFailure(t *testing.T) {
	cfg := config.NewConfig()
	cfg.StagingPath = filepath.Join(t.TempDir(), "out.c")
	fake := &fakeToolchain{err: &GenError{Kind: ToolchainFailed, Stderr: "out.c:1: error: boom", Err: errors.New("exit status 1")}}

	err := NewCBackend(fake).Generate(lower(t, cScenario), cfg, "a.out")
	var genErr *GenError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, ToolchainFailed, genErr.Kind)
	assert.Contains(t, err.Error(), "boom")
}

func TestCCToolchain_Command(t *testing.T) {
	tc := CCToolchain{CC: "cc", Args: []string{"-lm", "-static"}}
	assert.Equal(t, []string{"cc", "out.c", "-o", "prog", "-lm", "-static"}, tc.Command("out.c", "prog"))
}

func TestCCToolchain_CapturesStderr(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no sh in PATH")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fakecc")
	require.NoError(t, os.WriteFile(script, []byte("#!"+sh+"\necho \"$1: it broke\" >&2\nexit 3\n"), 0755))

	err = CCToolchain{CC: script}.Build("staged.c", "prog")
	var genErr *GenError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, ToolchainFailed, genErr.Kind)
	assert.Equal(t, "staged.c: it broke\n", genErr.Stderr)
}

func TestGenerate_EndToEndWithCC(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exit status check assumes a POSIX host")
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler in PATH")
	}
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.CC = cc
	cfg.StagingPath = filepath.Join(dir, "out.c")
	bin := filepath.Join(dir, "prog")

	prog := lower(t, `
function fib(n: int32) -> int32
  if n < 2 then
    return n;
  end
  return fib(n - 1) + fib(n - 2);
end
program main
  return fib(10) - 50;
end
`)
	require.NoError(t, NewCBackend(nil).Generate(prog, cfg, bin))

	err = exec.Command(bin).Run()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected non-zero exit, got %v", err)
	assert.Equal(t, 5, exitErr.ExitCode())
}

func TestSelectBackend(t *testing.T) {
	b, err := SelectBackend("c", nil)
	require.NoError(t, err)
	assert.Equal(t, "c", b.Name())

	b, err = SelectBackend("qbe", nil)
	require.NoError(t, err)
	assert.Equal(t, "qbe", b.Name())

	_, err = SelectBackend("llvm", nil)
	assert.Error(t, err)
}
