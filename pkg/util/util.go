package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/typeChecker"
	"golang.org/x/term"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

// Positioned is implemented by the lexer, parser and checker errors.
type Positioned interface {
	error
	Pos() token.Token
	Summary() string
}

// Reporter prints diagnostics against a set of source files.
type Reporter struct {
	Out   io.Writer
	Color bool
	Files []SourceFileRecord
	cfg   *config.Config
}

// NewReporter writes to stderr, colored when stderr is a terminal.
func NewReporter(cfg *config.Config, files []SourceFileRecord) *Reporter {
	return &Reporter{
		Out:   os.Stderr,
		Color: term.IsTerminal(int(os.Stderr.Fd())),
		Files: files,
		cfg:   cfg,
	}
}

func (r *Reporter) paint(code, s string) string {
	if !r.Color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// findFileAndLine converts a token to a file-specific location
func (r *Reporter) findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.Files) {
		return "unknown", tok.Line, tok.Column
	}
	return r.Files[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret under the token
func (r *Reporter) printErrorLine(tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.Files) || tok.Line == 0 {
		return
	}

	content := r.Files[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, c := range content {
		if lineNum <= 1 {
			break
		}
		if c == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	if lineNum > 1 {
		return
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(r.Out, "  %s\n", string(content[lineStart:lineEnd]))

	col := tok.Column
	if col < 1 {
		col = 1
	}
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(r.Out, "  %s%s\n", strings.Repeat(" ", col-1), r.paint("32", caret))
}

// Report prints err. Positioned errors get a location and the offending
// source line; anything else is printed as is.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	var pe Positioned
	if !errors.As(err, &pe) {
		fmt.Fprintf(r.Out, "%s %v\n", r.paint("31", "error:"), err)
		return
	}
	tok := pe.Pos()
	filename, line, col := r.findFileAndLine(tok)
	fmt.Fprintf(r.Out, "%s:%d:%d: %s %s\n", filename, line, col, r.paint("31", "error:"), pe.Summary())
	r.printErrorLine(tok)
}

// Warn prints every checker diagnostic whose warning is still enabled.
func (r *Reporter) Warn(diags []typeChecker.Diagnostic) {
	for _, d := range diags {
		if r.cfg != nil && !r.cfg.IsWarningEnabled(d.Warning) {
			continue
		}
		name := "extra"
		if r.cfg != nil {
			name = r.cfg.Warnings[d.Warning].Name
		}
		filename, line, col := r.findFileAndLine(d.Tok)
		fmt.Fprintf(r.Out, "%s:%d:%d: %s %s [-W%s]\n", filename, line, col, r.paint("33", "warning:"), d.Message, name)
		r.printErrorLine(d.Tok)
	}
}
