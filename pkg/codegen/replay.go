package codegen

import (
	"errors"
	"fmt"

	"github.com/xplshn/rascal/pkg/ir"
)

// ErrMalformedRun reports an operand run that does not reduce to exactly
// one value, or one with no consumer.
var ErrMalformedRun = errors.New("malformed operand run")

// consumesRun reports whether n takes the value of the run before it.
func consumesRun(n ir.Node) bool {
	switch n := n.(type) {
	case ir.Assign, ir.Reassign, ir.IfCase, ir.ElseIfCase, ir.Discard:
		return true
	case ir.Return:
		return n.HasValue
	}
	return false
}

// runStart returns the index of the first node of the maximal Term/Eval run
// ending just before end.
func runStart(nodes []ir.Node, end int) int {
	start := end
	for start > 0 && ir.IsOperand(nodes[start-1]) {
		start--
	}
	return start
}

// skipRun moves the cursor past an operand run and checks that the node
// after it consumes the run.
func skipRun(nodes []ir.Node, i int) (int, error) {
	for i < len(nodes) && ir.IsOperand(nodes[i]) {
		i++
	}
	if i == len(nodes) || !consumesRun(nodes[i]) {
		return i, fmt.Errorf("%w: run ending at %d has no consumer", ErrMalformedRun, i)
	}
	return i, nil
}

// replay folds an operand run front to back on an explicit stack. Eval pops
// Arity operands; the first one popped is the left operand or first argument
// and is passed as args[0].
func replay[T any](run []ir.Node, term func(ir.Term) (T, error), eval func(ir.Func, []T) (T, error)) (T, error) {
	var zero T
	stack := make([]T, 0, len(run))

	for _, n := range run {
		switch n := n.(type) {
		case ir.Term:
			v, err := term(n)
			if err != nil {
				return zero, err
			}
			stack = append(stack, v)
		case ir.Eval:
			arity := n.Func.Arity()
			if len(stack) < arity {
				return zero, fmt.Errorf("%w: %s needs %d operand(s), have %d", ErrMalformedRun, n.Func, arity, len(stack))
			}
			args := make([]T, arity)
			for i := range args {
				args[i] = stack[len(stack)-1-i]
			}
			stack = stack[:len(stack)-arity]
			v, err := eval(n.Func, args)
			if err != nil {
				return zero, err
			}
			stack = append(stack, v)
		default:
			return zero, fmt.Errorf("%w: unexpected %s", ErrMalformedRun, n)
		}
	}

	if len(stack) != 1 {
		return zero, fmt.Errorf("%w: %d values left", ErrMalformedRun, len(stack))
	}
	return stack[0], nil
}
