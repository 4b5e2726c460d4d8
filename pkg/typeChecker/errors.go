package typeChecker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/types"
)

// ErrorCode identifies a class of semantic error.
type ErrorCode string

const (
	ErrUndefinedSymbol  ErrorCode = "UNDEFINED_SYMBOL"
	ErrTypeMismatch     ErrorCode = "TYPE_MISMATCH"
	ErrArityMismatch    ErrorCode = "ARITY_MISMATCH"
	ErrNonBoolCondition ErrorCode = "NON_BOOL_CONDITION"
	ErrImmutableAssign  ErrorCode = "IMMUTABLE_ASSIGN"
	ErrNotCallable      ErrorCode = "NOT_CALLABLE"
	ErrRedeclared       ErrorCode = "REDECLARED"
	ErrInvalidStatement ErrorCode = "INVALID_STATEMENT"
	ErrConstantOverflow ErrorCode = "CONSTANT_OVERFLOW"
	ErrCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"
	ErrUnresolvedType   ErrorCode = "UNRESOLVED_TYPE"
)

// Category groups codes the way callers usually branch on them.
type Category int

const (
	NameError Category = iota
	TypeError
	ResolutionError
)

func (c ErrorCode) Category() Category {
	switch c {
	case ErrUndefinedSymbol:
		return NameError
	case ErrCyclicDependency, ErrUnresolvedType:
		return ResolutionError
	}
	return TypeError
}

// Error is a semantic error anchored at a source token.
type Error struct {
	Code     ErrorCode
	Tok      token.Token
	Message  string
	Symbol   types.Symbol
	Expected types.Type
	Actual   types.Type
	Path     []types.Symbol // dependency chain for cyclic errors
}

func (e *Error) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

func (e *Error) Pos() token.Token { return e.Tok }

// Summary is the message followed by the error code, for diagnostics that
// already carry the position.
func (e *Error) Summary() string { return fmt.Sprintf("%s [%s]", e.Message, e.Code) }

func newError(code ErrorCode, tok token.Token, format string, args ...interface{}) *Error {
	return &Error{Code: code, Tok: tok, Message: fmt.Sprintf(format, args...)}
}

func mismatch(tok token.Token, expected, actual types.Type, format string, args ...interface{}) *Error {
	e := newError(ErrTypeMismatch, tok, format, args...)
	e.Expected, e.Actual = expected, actual
	return e
}

func cyclic(tok token.Token, path []types.Symbol) *Error {
	names := make([]string, len(path))
	for i, s := range path {
		names[i] = s.Ident
	}
	e := newError(ErrCyclicDependency, tok, "initialization cycle: %s", strings.Join(names, " -> "))
	e.Path = path
	if len(path) > 0 {
		e.Symbol = path[0]
	}
	return e
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HasCode reports whether err is a semantic error with the given code.
func HasCode(err error, code ErrorCode) bool {
	e, ok := asError(err)
	return ok && e.Code == code
}

func IsNameError(err error) bool {
	e, ok := asError(err)
	return ok && e.Code.Category() == NameError
}

func IsTypeError(err error) bool {
	e, ok := asError(err)
	return ok && e.Code.Category() == TypeError
}

func IsCycleError(err error) bool { return HasCode(err, ErrCyclicDependency) }
