package types

import (
	"fmt"
	"strings"
)

// Symbol is an identifier as it appears in source. Symbols are compared by
// value and are usable as map keys.
type Symbol struct {
	Ident string
}

func NewSymbol(ident string) Symbol { return Symbol{Ident: ident} }

func (s Symbol) String() string { return s.Ident }

type Kind int

const (
	KindUnknown Kind = iota
	KindInt32
	KindInt64
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindFunction
	KindProgram
	KindTypeVar
	KindNil
)

// WithMode is how a `with` clause captures an outer binding.
type WithMode int

const (
	WithImm WithMode = iota
	WithMut
)

func (m WithMode) String() string {
	if m == WithMut {
		return "mut"
	}
	return "imm"
}

// Type is the structural type of a value or declaration. The zero value is
// the Unknown placeholder.
type Type struct {
	Kind   Kind
	Params []Type     // KindFunction
	Return *Type      // KindFunction
	With   []WithMode // KindFunction, KindProgram
	Var    uint32     // KindTypeVar
}

var (
	Unknown = Type{Kind: KindUnknown}
	Int32   = Type{Kind: KindInt32}
	Int64   = Type{Kind: KindInt64}
	UInt32  = Type{Kind: KindUInt32}
	UInt64  = Type{Kind: KindUInt64}
	Float32 = Type{Kind: KindFloat32}
	Float64 = Type{Kind: KindFloat64}
	Bool    = Type{Kind: KindBool}
	String  = Type{Kind: KindString}
	Nil     = Type{Kind: KindNil}
)

var scalarNames = map[Kind]string{
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUInt32:  "uint32",
	KindUInt64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindBool:    "bool",
	KindString:  "string",
	KindNil:     "nil",
}

var namedTypes = map[string]Type{
	"int32":   Int32,
	"int64":   Int64,
	"uint32":  UInt32,
	"uint64":  UInt64,
	"float32": Float32,
	"float64": Float64,
	"bool":    Bool,
	"string":  String,
}

// FromName returns the scalar type spelled name in source.
func FromName(name string) (Type, bool) {
	t, ok := namedTypes[name]
	return t, ok
}

func Function(params []Type, ret Type, with []WithMode) Type {
	r := ret
	return Type{Kind: KindFunction, Params: params, Return: &r, With: with}
}

func Program(with []WithMode) Type { return Type{Kind: KindProgram, With: with} }

func TypeVar(id uint32) Type { return Type{Kind: KindTypeVar, Var: id} }

// ReturnType is the declared result of a function type, Nil for anything else.
func (t Type) ReturnType() Type {
	if t.Kind != KindFunction || t.Return == nil {
		return Nil
	}
	return *t.Return
}

func (t Type) IsInteger() bool {
	switch t.Kind {
	case KindInt32, KindInt64, KindUInt32, KindUInt64:
		return true
	}
	return false
}

func (t Type) IsUnsigned() bool { return t.Kind == KindUInt32 || t.Kind == KindUInt64 }

func (t Type) IsFloat() bool { return t.Kind == KindFloat32 || t.Kind == KindFloat64 }

func (t Type) IsNumeric() bool { return t.IsInteger() || t.IsFloat() }

// IsPlaceholder reports whether t still stands for a type inference has not
// produced yet.
func (t Type) IsPlaceholder() bool { return t.Kind == KindUnknown || t.Kind == KindTypeVar }

// IsConcrete reports whether t and every type nested in it are resolved.
func (t Type) IsConcrete() bool {
	if t.IsPlaceholder() {
		return false
	}
	if t.Kind == KindFunction {
		for _, p := range t.Params {
			if !p.IsConcrete() {
				return false
			}
		}
		return t.ReturnType().IsConcrete()
	}
	return true
}

// Equal is structural type equality.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindTypeVar:
		return t.Var == o.Var
	case KindFunction:
		if len(t.Params) != len(o.Params) || !t.ReturnType().Equal(o.ReturnType()) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return withEqual(t.With, o.With)
	case KindProgram:
		return withEqual(t.With, o.With)
	}
	return true
}

func withEqual(a, b []WithMode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	if name, ok := scalarNames[t.Kind]; ok {
		return name
	}
	switch t.Kind {
	case KindUnknown:
		return "<unknown>"
	case KindTypeVar:
		return fmt.Sprintf("'t%d", t.Var)
	case KindProgram:
		return "program"
	case KindFunction:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		s := "function(" + strings.Join(params, ", ") + ")"
		if ret := t.ReturnType(); ret.Kind != KindNil {
			s += " -> " + ret.String()
		}
		return s
	}
	return fmt.Sprintf("<kind %d>", int(t.Kind))
}
