package typeChecker

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/rascal/internal/testcase"
	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/lexer"
	"github.com/xplshn/rascal/pkg/parser"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

func parseSource(t *testing.T, cfg *config.Config, src string) *ast.Node {
	t.Helper()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	require.NoError(t, err)
	root, err := parser.NewParser(toks, cfg).Parse()
	require.NoError(t, err)
	return root
}

func check(t *testing.T, src string) (*TypeChecker, *ast.Node, error) {
	t.Helper()
	cfg := config.NewConfig()
	root := parseSource(t, cfg, src)
	tc := NewTypeChecker(cfg)
	return tc, root, tc.Check(root)
}

func TestCheckerSuite(t *testing.T) {
	cases, err := testcase.Load("testdata/checker.md")
	require.NoError(t, err)
	require.NotEmpty(t, cases)

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			tc, _, err := check(t, c.Source)

			if want, ok := c.Expect[testcase.FenceError]; ok {
				code, fragment, _ := strings.Cut(want, "\n")
				require.Error(t, err)
				e, ok := asError(err)
				require.True(t, ok, "not a semantic error: %v", err)
				assert.Equal(t, ErrorCode(strings.TrimSpace(code)), e.Code, e.Message)
				if fragment != "" {
					assert.Contains(t, e.Message, strings.TrimSpace(fragment))
				}
				return
			}
			require.NoError(t, err)

			if body, ok := c.Expect[testcase.FenceTypes]; ok {
				pairs, err := testcase.Pairs(body)
				require.NoError(t, err)
				for _, p := range pairs {
					m, ok := tc.Lookup(p[0])
					require.True(t, ok, "no binding for %s", p[0])
					assert.Equal(t, p[1], m.Var.Type.String(), p[0])
				}
			}
		})
	}
}

func collectTypes(root *ast.Node) []string {
	var out []string
	ast.Walk(root, func(n *ast.Node) bool {
		if ast.IsExpr(n) || n.Type == ast.Let {
			out = append(out, n.Typ.String())
		}
		return true
	})
	return out
}

const mixed = `
let total = scale(base) + offset;
let offset = 3i64;
let base = 2i64;

function scale(v: int64) -> int64 with factor
  return v * factor;
end

let factor = 10i64;

program main with mut total
  if total > 20i64 then
    total -= 1i64;
  else then
    total = scale(total);
  end
end
`

func TestCheck_Deterministic(t *testing.T) {
	_, first, err := check(t, mixed)
	require.NoError(t, err)
	_, second, err := check(t, mixed)
	require.NoError(t, err)

	if diff := cmp.Diff(collectTypes(first), collectTypes(second)); diff != "" {
		t.Errorf("types differ between runs (-first +second):\n%s", diff)
	}
}

func TestCheck_NoPlaceholders(t *testing.T) {
	_, root, err := check(t, mixed)
	require.NoError(t, err)

	ast.Walk(root, func(n *ast.Node) bool {
		if ast.IsExpr(n) || n.Type == ast.Let {
			assert.True(t, n.Typ.IsConcrete(), "node %d at %d:%d has %s", n.Type, n.Tok.Line, n.Tok.Column, n.Typ)
		}
		return true
	})
}

func TestCheck_InitOrderFollowsDependencies(t *testing.T) {
	tc, root, err := check(t, mixed)
	require.NoError(t, err)

	var names []string
	for _, n := range root.Data.(ast.RootNode).InitOrder {
		names = append(names, n.Data.(ast.LetNode).Name.Ident)
	}
	assert.Equal(t, []string{"base", "factor", "offset", "total"}, names)

	for _, m := range tc.Globals() {
		assert.True(t, m.Var.Type.IsConcrete(), m.Symbol.Ident)
	}
}

func TestCheck_MemoizedFrames(t *testing.T) {
	tc, root, err := check(t, `
function sq(n: int32) -> int32
  return n * n;
end
program main
  let a = sq(1) + sq(2) + sq(3);
end
`)
	require.NoError(t, err)
	require.Equal(t, ast.FuncDecl, root.Data.(ast.RootNode).PreBlock[0].Type)

	calls := 0
	ast.Walk(root, func(n *ast.Node) bool {
		if n.Type == ast.FuncCall {
			calls++
			assert.Same(t, tc.frames[n].Node, n)
		}
		return true
	})
	assert.Equal(t, 3, calls)

	for node, f := range tc.frames {
		assert.True(t, f.Checked, "frame for node kind %d left unchecked", node.Type)
		assert.Equal(t, f.Total, f.Progress)
	}
}

func TestCheck_CycleErrorDetails(t *testing.T) {
	_, _, err := check(t, "let a = b;\nlet b = c;\nlet c = a;\nprogram main end\n")
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
	assert.False(t, IsTypeError(err))

	e, _ := asError(err)
	assert.Equal(t, []types.Symbol{{Ident: "a"}, {Ident: "b"}, {Ident: "c"}, {Ident: "a"}}, e.Path)
	assert.Equal(t, 1, e.Pos().Line)
}

func TestCheck_ErrorCategories(t *testing.T) {
	_, _, err := check(t, "program main let x = y; end")
	assert.True(t, IsNameError(err))
	assert.True(t, HasCode(err, ErrUndefinedSymbol))

	_, _, err = check(t, "program main let x = 1 + 1.0; end")
	assert.True(t, IsTypeError(err))
	e, _ := asError(err)
	assert.True(t, e.Expected.Equal(types.Int32))
	assert.True(t, e.Actual.Equal(types.Float64))
}

func TestCheck_Warnings(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnShadow, true)
	root := parseSource(t, cfg, `
let g = 1;
function f(n: int32) -> int32 with g, mut h
  if n > 0 then
    let n = 2;
  end
end
let h = 2;
program main
  return 0;
  let dead = 1;
end
`)
	tc := NewTypeChecker(cfg)
	require.NoError(t, tc.Check(root))

	var got []config.Warning
	for _, w := range tc.Warnings {
		got = append(got, w.Warning)
	}
	assert.ElementsMatch(t, []config.Warning{
		config.WarnShadow,
		config.WarnMissingReturn,
		config.WarnUnusedCapture,
		config.WarnUnusedCapture,
		config.WarnUnreachableCode,
	}, got)
}

func TestCheck_UnusedProgramCapture(t *testing.T) {
	cfg := config.NewConfig()
	root := parseSource(t, cfg, `
let used = 1;
let idle = 2;
program main with used, mut idle
  return used;
end
`)
	tc := NewTypeChecker(cfg)
	require.NoError(t, tc.Check(root))
	require.Len(t, tc.Warnings, 1)
	assert.Equal(t, config.WarnUnusedCapture, tc.Warnings[0].Warning)
	assert.Contains(t, tc.Warnings[0].Message, "'idle'")
}

func TestCheck_WarningsRespectConfig(t *testing.T) {
	cfg := config.NewConfig()
	require.NoError(t, cfg.ApplyFlag("-Wno-all"))
	root := parseSource(t, cfg, "program main return 0; let x = 1; end")
	tc := NewTypeChecker(cfg)
	require.NoError(t, tc.Check(root))
	assert.Empty(t, tc.Warnings)
}

func TestCheck_RejectsNonRoot(t *testing.T) {
	tc := NewTypeChecker(config.NewConfig())
	assert.Error(t, tc.Check(nil))
}

func TestCheck_TopLevelStatementFromBuiltTree(t *testing.T) {
	call := ast.NewFuncCall(token.Token{}, "f", nil)
	stmt := ast.NewExprStmt(token.Token{}, call)
	prog := ast.NewProgram(token.Token{}, "main", nil, ast.NewBlock(token.Token{}, nil))
	root := ast.NewRoot(token.Token{}, []*ast.Node{stmt}, prog, nil)

	err := NewTypeChecker(config.NewConfig()).Check(root)
	assert.True(t, HasCode(err, ErrInvalidStatement))
}
