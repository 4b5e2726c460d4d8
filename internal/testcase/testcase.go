// Package testcase reads Markdown test suites. Each case starts at a
// heading "Test: <name>" and holds one ```rascal source fence plus any
// number of expectation fences.
package testcase

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Expectation kinds understood by the suites.
const (
	FenceSource = "rascal"
	FenceError  = "error" // first line: error code, optional second line: message substring
	FenceTypes  = "types" // lines of `name: type`
	FenceIR     = "ir"    // exact IR dump
	FenceC      = "c"     // lines that must appear in the rendered C
)

type Case struct {
	Name   string
	Line   int
	Source string
	Expect map[string]string
}

// Has reports whether the case carries an expectation of the given kind.
func (c Case) Has(kind string) bool {
	_, ok := c.Expect[kind]
	return ok
}

func Load(path string) ([]Case, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cases, err := Extract(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

func Extract(source []byte) ([]Case, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []Case
	var current *Case

	flush := func() error {
		if current == nil {
			return nil
		}
		if current.Source == "" {
			return fmt.Errorf("line %d: test '%s' has no %s fence", current.Line, current.Name, FenceSource)
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, source)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{
				Name:   strings.TrimPrefix(heading, "Test: "),
				Line:   lineOf(n, source),
				Expect: make(map[string]string),
			}
		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			line := lineOf(n, source)
			if current == nil {
				if lang != "" {
					return ast.WalkStop, fmt.Errorf("line %d: %s fence outside of a test", line, lang)
				}
				return ast.WalkContinue, nil
			}
			body := blockText(n, source)
			switch lang {
			case FenceSource:
				if current.Source != "" {
					return ast.WalkStop, fmt.Errorf("line %d: test '%s' has two %s fences", line, current.Name, FenceSource)
				}
				current.Source = body
			case FenceError, FenceTypes, FenceIR, FenceC:
				current.Expect[lang] = strings.TrimRight(body, "\n")
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence '%s' in test '%s'", line, lang, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func blockText(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 0
	}
	start := node.Lines().At(0).Start
	return bytes.Count(source[:start], []byte("\n")) + 1
}

// Pairs splits a `name: value` fence into ordered pairs.
func Pairs(body string) ([][2]string, error) {
	var out [][2]string
	for i, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d of fence: expected `name: value`, got %q", i+1, line)
		}
		out = append(out, [2]string{strings.TrimSpace(name), strings.TrimSpace(value)})
	}
	return out, nil
}
