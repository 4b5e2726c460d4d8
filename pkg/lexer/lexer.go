package lexer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/token"
)

// Error is a malformed-input diagnostic raised while scanning.
type Error struct {
	Tok token.Token
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%d:%d: %s", e.Tok.Line, e.Tok.Column, e.Msg) }

func (e *Error) Pos() token.Token { return e.Tok }

func (e *Error) Summary() string { return e.Msg }

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg,
	}
}

// Tokenize scans a whole source file, the returned slice always ends in EOF.
func Tokenize(source []rune, fileIndex int, cfg *config.Config) ([]token.Token, error) {
	l := NewLexer(source, fileIndex, cfg)
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) Next() (token.Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine), nil
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine), nil
	}
	if unicode.IsDigit(ch) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine), nil
	case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine), nil
	case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine), nil
	case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine), nil
	case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine), nil
	case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine), nil
	case '<': return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine), nil
	case '>': return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine), nil
	case '+': return l.compound(token.PlusEq, token.Plus, startPos, startCol, startLine), nil
	case '*': return l.compound(token.StarEq, token.Star, startPos, startCol, startLine), nil
	case '/': return l.compound(token.SlashEq, token.Slash, startPos, startCol, startLine), nil
	case '-':
		if l.match('>') {
			return l.makeToken(token.Arrow, "", startPos, startCol, startLine), nil
		}
		return l.compound(token.MinusEq, token.Minus, startPos, startCol, startLine), nil
	case '!':
		if l.match('=') {
			return l.makeToken(token.Neq, "", startPos, startCol, startLine), nil
		}
	case '"':
		return l.stringLiteral(startPos, startCol, startLine)
	}

	tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
	return tok, &Error{Tok: tok, Msg: fmt.Sprintf("unexpected character: '%c'", ch)}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			if !l.cfg.IsFeatureEnabled(config.FeatCComments) {
				return nil
			}
			switch l.peekNext() {
			case '*':
				if err := l.blockComment(); err != nil {
					return err
				}
			case '/':
				l.lineComment()
			default:
				return nil
			}
		default:
			return nil
		}
	}
}

func (l *Lexer) blockComment() error {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	startTok.Len = 2
	return &Error{Tok: startTok, Msg: "unterminated block comment"}
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		return l.makeToken(tokType, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, value, startPos, startCol, startLine)
}

// numberLiteral scans digits, an optional fraction and exponent, and an
// optional type suffix. The token value keeps the literal as written; the
// parser splits off the suffix.
func (l *Lexer) numberLiteral(startPos, startCol, startLine int) (token.Token, error) {
	isFloat := false
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}

	if l.peek() == '.' && unicode.IsDigit(l.peekNext()) {
		isFloat = true
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if !unicode.IsDigit(l.peek()) {
			tok := l.makeToken(token.FloatNumber, "", startPos, startCol, startLine)
			return tok, &Error{Tok: tok, Msg: "malformed floating-point literal: exponent has no digits"}
		}
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	if c := l.peek(); c == 'i' || c == 'u' || c == 'f' {
		suffixStart := l.pos
		for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) {
			l.advance()
		}
		suffix := string(l.source[suffixStart:l.pos])
		tok := l.makeToken(token.Number, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
		if !l.cfg.IsFeatureEnabled(config.FeatLiteralSuffix) {
			return tok, &Error{Tok: tok, Msg: "typed literal suffixes are not enabled (use -Fliteral-suffix)"}
		}
		switch suffix {
		case "f32", "f64":
			tok.Type = token.FloatNumber
		case "i32", "i64", "u32", "u64":
			if isFloat {
				return tok, &Error{Tok: tok, Msg: fmt.Sprintf("integer suffix '%s' on floating-point literal", suffix)}
			}
		default:
			return tok, &Error{Tok: tok, Msg: fmt.Sprintf("unknown literal suffix '%s'", suffix)}
		}
		return tok, nil
	}

	valueStr := string(l.source[startPos:l.pos])
	if isFloat {
		return l.makeToken(token.FloatNumber, valueStr, startPos, startCol, startLine), nil
	}
	return l.makeToken(token.Number, valueStr, startPos, startCol, startLine), nil
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) (token.Token, error) {
	var sb strings.Builder
	for !l.isAtEnd() {
		c := l.peek()
		if c == '\n' {
			break
		}
		if c == '"' {
			l.advance()
			return l.makeToken(token.String, sb.String(), startPos, startCol, startLine), nil
		}
		l.advance()
		if c != '\\' {
			sb.WriteRune(c)
			continue
		}
		val, err := l.decodeEscape(startPos, startCol, startLine)
		if err != nil {
			return token.Token{}, err
		}
		sb.WriteRune(val)
	}
	tok := l.makeToken(token.String, "", startPos, startCol, startLine)
	return tok, &Error{Tok: tok, Msg: "unterminated string literal"}
}

var escapes = map[rune]rune{
	'n': '\n', 't': '\t', 'r': '\r', '0': 0, '\\': '\\', '"': '"', '\'': '\'',
}

func (l *Lexer) decodeEscape(startPos, startCol, startLine int) (rune, error) {
	c := l.advance()
	if val, ok := escapes[c]; ok {
		return val, nil
	}
	if c == 'x' {
		var val rune
		for i := 0; i < 2; i++ {
			d := l.peek()
			switch {
			case d >= '0' && d <= '9': val = val*16 + (d - '0')
			case d >= 'a' && d <= 'f': val = val*16 + (d - 'a' + 10)
			case d >= 'A' && d <= 'F': val = val*16 + (d - 'A' + 10)
			default:
				tok := l.makeToken(token.String, "", startPos, startCol, startLine)
				return 0, &Error{Tok: tok, Msg: fmt.Sprintf("invalid hex digit '%c' in escape sequence", d)}
			}
			l.advance()
		}
		return val, nil
	}
	tok := l.makeToken(token.String, "", startPos, startCol, startLine)
	return 0, &Error{Tok: tok, Msg: fmt.Sprintf("unrecognized escape sequence '\\%c'", c)}
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

func (l *Lexer) compound(assignType, opType token.Type, sPos, sCol, sLine int) token.Token {
	if l.cfg.IsFeatureEnabled(config.FeatCompoundOps) && l.match('=') {
		return l.makeToken(assignType, "", sPos, sCol, sLine)
	}
	return l.makeToken(opType, "", sPos, sCol, sLine)
}
