package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xplshn/rascal/pkg/ast"
	"github.com/xplshn/rascal/pkg/codegen"
	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/ir"
	"github.com/xplshn/rascal/pkg/lexer"
	"github.com/xplshn/rascal/pkg/parser"
	"github.com/xplshn/rascal/pkg/token"
	"github.com/xplshn/rascal/pkg/typeChecker"
	"github.com/xplshn/rascal/pkg/util"
)

// ErrReported means the failure was already printed with its source context.
var ErrReported = errors.New("compilation failed")

// Session carries one compiler invocation through the pipeline.
type Session struct {
	Config   *config.Config
	Reporter *util.Reporter
	Files    []util.SourceFileRecord
	Root     *ast.Node
	Checker  *typeChecker.TypeChecker
	Program  *ir.Program
	Verbose  bool
	progress io.Writer
}

func NewSession(cfg *config.Config, verbose bool, stderr io.Writer) *Session {
	s := &Session{Config: cfg, Verbose: verbose, progress: stderr}
	s.Reporter = util.NewReporter(cfg, nil)
	s.Reporter.Out = stderr
	return s
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.Verbose {
		fmt.Fprintf(s.progress, format+"\n", args...)
	}
}

func (s *Session) fail(err error) error {
	s.Reporter.Report(err)
	return ErrReported
}

// Load reads and tokenizes every input file. Tokens of all files form one
// stream with a single trailing EOF.
func (s *Session) Load(paths []string) ([]token.Token, error) {
	if len(paths) == 0 {
		return nil, s.fail(errors.New("no input files specified"))
	}
	s.logf("Tokenizing %d source file(s)...", len(paths))

	var all []token.Token
	for i, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, s.fail(fmt.Errorf("could not read file '%s': %w", path, err))
		}
		runes := []rune(string(content))
		s.Files = append(s.Files, util.SourceFileRecord{Name: path, Content: runes})
		s.Reporter.Files = s.Files

		toks, err := lexer.Tokenize(runes, i, s.Config)
		if err != nil {
			return nil, s.fail(err)
		}
		if n := len(toks); n > 0 && toks[n-1].Type == token.EOF {
			toks = toks[:n-1]
		}
		all = append(all, toks...)
	}
	return append(all, token.Token{Type: token.EOF, FileIndex: len(paths) - 1}), nil
}

// Check parses and type checks the inputs, printing any warnings.
func (s *Session) Check(paths []string) error {
	toks, err := s.Load(paths)
	if err != nil {
		return err
	}

	s.logf("Parsing tokens into AST...")
	root, err := parser.NewParser(toks, s.Config).Parse()
	if err != nil {
		return s.fail(err)
	}

	s.logf("Type checking...")
	tc := typeChecker.NewTypeChecker(s.Config)
	err = tc.Check(root)
	s.Reporter.Warn(tc.Warnings)
	if err != nil {
		return s.fail(err)
	}
	s.Root, s.Checker = root, tc
	return nil
}

// Lower runs Check and produces the IR.
func (s *Session) Lower(paths []string) error {
	if err := s.Check(paths); err != nil {
		return err
	}
	s.logf("Creating intermediate representation...")
	s.Program = codegen.NewContext(s.Config).GenerateIR(s.Root)
	return nil
}

// Backend selects the configured backend; tc may be nil.
func (s *Session) Backend(tc codegen.Toolchain) (codegen.Backend, error) {
	b, err := codegen.SelectBackend(s.Config.BackendName, tc)
	if err != nil {
		return nil, s.fail(err)
	}
	return b, nil
}

// Build lowers the inputs and hands them to the backend and toolchain.
func (s *Session) Build(paths []string, output string, tc codegen.Toolchain) error {
	if err := s.Lower(paths); err != nil {
		return err
	}
	backend, err := s.Backend(tc)
	if err != nil {
		return err
	}
	s.Config.StagingPath = s.Config.DefaultStagingPath()

	s.logf("Generating code with '%s' backend...", backend.Name())
	s.logf("Linking to create '%s'...", output)
	if err := backend.Generate(s.Program, s.Config, output); err != nil {
		return s.fail(err)
	}
	s.logf("Done!")
	return nil
}
