package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/token"
)

func lex(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := Tokenize([]rune(src), 0, config.NewConfig())
	require.NoError(t, err)
	return toks
}

func kinds(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestTokenize_FunctionHeader(t *testing.T) {
	toks := lex(t, "function foo(a: float32) -> float32 with mut x")
	assert.Equal(t, []token.Type{
		token.Function, token.Ident, token.LParen, token.Ident, token.Colon, token.Float32,
		token.RParen, token.Arrow, token.Float32, token.With, token.Mut, token.Ident, token.EOF,
	}, kinds(toks))
	assert.Equal(t, "foo", toks[1].Value)
}

func TestTokenize_Operators(t *testing.T) {
	toks := lex(t, "= == != < <= > >= + += - -= * *= / /=")
	assert.Equal(t, []token.Type{
		token.Eq, token.EqEq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte,
		token.Plus, token.PlusEq, token.Minus, token.MinusEq, token.Star, token.StarEq,
		token.Slash, token.SlashEq, token.EOF,
	}, kinds(toks))
}

func TestTokenize_CompoundOpsDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatCompoundOps, false)
	toks, err := Tokenize([]rune("x += 1"), 0, cfg)
	require.NoError(t, err)
	assert.Equal(t, []token.Type{token.Ident, token.Plus, token.Eq, token.Number, token.EOF}, kinds(toks))
}

func TestTokenize_Numbers(t *testing.T) {
	toks := lex(t, "42 3.25 1e3 7i64 2u32 1.5f32 3f64")
	assert.Equal(t, []token.Type{
		token.Number, token.FloatNumber, token.FloatNumber, token.Number, token.Number,
		token.FloatNumber, token.FloatNumber, token.EOF,
	}, kinds(toks))
	assert.Equal(t, "7i64", toks[3].Value)
	assert.Equal(t, "1.5f32", toks[5].Value)
}

func TestTokenize_BadSuffix(t *testing.T) {
	_, err := Tokenize([]rune("1.5i32"), 0, config.NewConfig())
	require.Error(t, err)

	_, err = Tokenize([]rune("3i8"), 0, config.NewConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i8")
}

func TestTokenize_CommentsAndPositions(t *testing.T) {
	toks := lex(t, "// header\nlet /* inline */ x")
	require.Len(t, toks, 3)
	assert.Equal(t, token.Let, toks[0].Type)
	assert.Equal(t, 2, toks[0].Line)
	assert.Equal(t, 1, toks[0].Column)
	assert.Equal(t, 18, toks[1].Column)
}

func TestTokenize_String(t *testing.T) {
	toks := lex(t, `"a\tb\n\x41"`)
	assert.Equal(t, "a\tb\nA", toks[0].Value)

	_, err := Tokenize([]rune(`"open`), 0, config.NewConfig())
	var lexErr *Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 1, lexErr.Pos().Column)
}

func TestTokenize_UnexpectedCharacter(t *testing.T) {
	_, err := Tokenize([]rune("let x = 1 @"), 0, config.NewConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'@'")
}
