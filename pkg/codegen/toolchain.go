package codegen

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

type GenErrorKind int

const (
	StagingWrite GenErrorKind = iota
	ToolchainFailed
	Assemble
)

func (k GenErrorKind) String() string {
	switch k {
	case StagingWrite:
		return "staging write"
	case ToolchainFailed:
		return "toolchain"
	case Assemble:
		return "assemble"
	}
	return "unknown"
}

// GenError is a failure after the IR was rendered: writing the staging file,
// assembling, or running the external toolchain.
type GenError struct {
	Kind   GenErrorKind
	Path   string
	Stderr string // diagnostic text captured from the failing tool
	Err    error
}

func (e *GenError) Error() string {
	var sb strings.Builder
	switch e.Kind {
	case StagingWrite:
		fmt.Fprintf(&sb, "failed to write staging file '%s': %v", e.Path, e.Err)
	case ToolchainFailed:
		fmt.Fprintf(&sb, "toolchain failed: %v", e.Err)
	default:
		fmt.Fprintf(&sb, "%s failed: %v", e.Kind, e.Err)
	}
	if e.Stderr != "" {
		sb.WriteString("\n")
		sb.WriteString(strings.TrimRight(e.Stderr, "\n"))
	}
	return sb.String()
}

func (e *GenError) Unwrap() error { return e.Err }

// Toolchain turns a staged source file into a binary.
type Toolchain interface {
	Build(staged, output string) error
}

// CCToolchain runs a C compiler driver: `CC staged -o output Args...`.
type CCToolchain struct {
	CC   string
	Args []string
}

func (t CCToolchain) Command(staged, output string) []string {
	return append([]string{t.CC, staged, "-o", output}, t.Args...)
}

func (t CCToolchain) Build(staged, output string) error {
	argv := t.Command(staged, output)
	cmd := exec.Command(argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &GenError{Kind: ToolchainFailed, Path: staged, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// stage writes text to path, replacing any previous contents.
func stage(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return &GenError{Kind: StagingWrite, Path: path, Err: err}
	}
	return nil
}
