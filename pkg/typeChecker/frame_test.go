package typeChecker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

func TestFrame_Lifecycle(t *testing.T) {
	left := ast.NewNumber(token.Token{}, 1, false, types.Unknown)
	right := ast.NewNumber(token.Token{}, 2, false, types.Unknown)
	sum := ast.NewBinaryOp(token.Token{}, token.Plus, left, right)

	f := newFrame(sum, nil, []part{{left, nil}, {right, nil}})
	assert.False(t, f.done())
	assert.Same(t, left, f.next().node)

	f.advance(types.Int32)
	assert.Same(t, right, f.next().node)
	assert.Panics(t, func() { f.finish(types.Int32) }, "finish before all parts")

	f.advance(types.Int32)
	assert.True(t, f.done())
	assert.Panics(t, func() { f.advance(types.Int32) }, "advance past total")

	f.finish(types.Int32)
	assert.True(t, f.Checked)
	assert.Panics(t, func() { f.finish(types.Int64) }, "type of a checked frame changed")
	assert.True(t, f.Type.Equal(types.Int32))
}

func TestCheckedFrame(t *testing.T) {
	f := checkedFrame(ast.NewParam(token.Token{}, "n", types.UInt32), types.UInt32)
	assert.True(t, f.Checked)
	assert.Equal(t, 0, f.Total)
	assert.True(t, f.Type.Equal(types.UInt32))
}

func TestScope_BarrierHidesValues(t *testing.T) {
	global := newScope(nil, false)
	g := &Binding{IdentMapping: IdentMapping{Symbol: types.NewSymbol("g")}}
	global.add(g)

	fn := newScope(global, true)
	inner := newScope(fn, false)

	b, crossed := inner.lookup(types.NewSymbol("g"))
	assert.Same(t, g, b)
	assert.True(t, crossed)

	local := &Binding{IdentMapping: IdentMapping{Symbol: types.NewSymbol("g")}}
	fn.add(local)
	b, crossed = inner.lookup(types.NewSymbol("g"))
	assert.Same(t, local, b)
	assert.False(t, crossed)

	b, _ = inner.lookup(types.NewSymbol("missing"))
	assert.Nil(t, b)
}

func TestScope_Ordered(t *testing.T) {
	s := newScope(nil, false)
	for _, name := range []string{"a", "b", "c"} {
		s.add(&Binding{IdentMapping: IdentMapping{Symbol: types.NewSymbol(name)}})
	}
	var names []string
	for _, b := range s.ordered() {
		names = append(names, b.Symbol.Ident)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
