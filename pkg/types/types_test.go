package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromName(t *testing.T) {
	for _, name := range []string{"int32", "int64", "uint32", "uint64", "float32", "float64", "bool", "string"} {
		typ, ok := FromName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, typ.String())
	}

	_, ok := FromName("int")
	assert.False(t, ok)
}

func TestEqual_Structural(t *testing.T) {
	f1 := Function([]Type{Float32, Float32}, Float32, nil)
	f2 := Function([]Type{Float32, Float32}, Float32, nil)
	f3 := Function([]Type{Float32, Int32}, Float32, nil)
	f4 := Function([]Type{Float32, Float32}, Float32, []WithMode{WithMut})

	assert.True(t, f1.Equal(f2))
	assert.False(t, f1.Equal(f3))
	assert.False(t, f1.Equal(f4))
	assert.False(t, Int32.Equal(Int64))
	assert.True(t, TypeVar(3).Equal(TypeVar(3)))
	assert.False(t, TypeVar(3).Equal(TypeVar(4)))
}

func TestString_Function(t *testing.T) {
	assert.Equal(t, "function(float32, float32) -> float32", Function([]Type{Float32, Float32}, Float32, nil).String())
	assert.Equal(t, "function()", Function(nil, Nil, nil).String())
}

func TestConcreteness(t *testing.T) {
	assert.False(t, Unknown.IsConcrete())
	assert.False(t, TypeVar(0).IsConcrete())
	assert.True(t, Int32.IsConcrete())
	assert.False(t, Function([]Type{TypeVar(1)}, Int32, nil).IsConcrete())
	assert.True(t, Function([]Type{Int32}, Nil, nil).IsConcrete())

	var zero Type
	assert.True(t, zero.IsPlaceholder())
}

func TestNumericClasses(t *testing.T) {
	assert.True(t, UInt64.IsInteger())
	assert.True(t, UInt64.IsUnsigned())
	assert.False(t, Int64.IsUnsigned())
	assert.True(t, Float32.IsFloat())
	assert.False(t, Bool.IsNumeric())
	assert.False(t, String.IsNumeric())
}
