package testcase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suite = "# Suite\n\nSome prose.\n\n" +
	"## Test: first\n\n```rascal\nprogram p end\n```\n\n```error\nUNDEFINED_SYMBOL\n```\n\n" +
	"## Test: second\n\n```rascal\nlet x = 1;\nprogram p end\n```\n\n```types\nx: int32\n```\n"

func TestExtract(t *testing.T) {
	cases, err := Extract([]byte(suite))
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "first", cases[0].Name)
	assert.Equal(t, "program p end\n", cases[0].Source)
	assert.Equal(t, "UNDEFINED_SYMBOL", cases[0].Expect[FenceError])
	assert.False(t, cases[0].Has(FenceTypes))

	assert.Equal(t, "second", cases[1].Name)
	assert.True(t, cases[1].Has(FenceTypes))
	assert.Greater(t, cases[1].Line, cases[0].Line)
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract([]byte("```rascal\nprogram p end\n```\n"))
	assert.Error(t, err, "fence outside of a test")

	_, err = Extract([]byte("## Test: x\n\n```error\nX\n```\n"))
	assert.Error(t, err, "missing source")

	_, err = Extract([]byte("## Test: x\n\n```rascal\nprogram p end\n```\n\n```wat\n```\n"))
	assert.Error(t, err, "unknown fence")
}

func TestPairs(t *testing.T) {
	pairs, err := Pairs("x: int32\n\n f : function(int32) -> bool\n")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"x", "int32"}, {"f", "function(int32) -> bool"}}, pairs)

	_, err = Pairs("nonsense")
	assert.Error(t, err)
}
