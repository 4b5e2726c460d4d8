package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	FloatNumber
	String
	// Keywords
	Program
	Function
	End
	Let
	Mut
	With
	If
	Then
	Else
	Return
	True
	False
	// Type keywords
	Int32
	Int64
	Uint32
	Uint64
	Float32
	Float64
	Bool
	StringKeyword
	// Punctuation
	LParen
	RParen
	Semi
	Comma
	Colon
	Arrow
	// Assignment
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	// Operators
	Plus
	Minus
	Star
	Slash
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
)

var KeywordMap = map[string]Type{
	"program":  Program,
	"function": Function,
	"end":      End,
	"let":      Let,
	"mut":      Mut,
	"with":     With,
	"if":       If,
	"then":     Then,
	"else":     Else,
	"return":   Return,
	"true":     True,
	"false":    False,
	"int32":    Int32,
	"int64":    Int64,
	"uint32":   Uint32,
	"uint64":   Uint64,
	"float32":  Float32,
	"float64":  Float64,
	"bool":     Bool,
	"string":   StringKeyword,
}

var punctuation = map[Type]string{
	EOF: "end of file", Ident: "identifier", Number: "number", FloatNumber: "float", String: "string",
	LParen: "(", RParen: ")", Semi: ";", Comma: ",", Colon: ":", Arrow: "->",
	Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/",
	EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
}

// Reverse mapping from Type to its spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctuation {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "<token>"
}

// IsTypeKeyword reports whether t names a scalar type.
func (t Type) IsTypeKeyword() bool { return t >= Int32 && t <= StringKeyword }

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
