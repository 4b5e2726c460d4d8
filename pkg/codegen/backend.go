package codegen

import (
	"fmt"

	"github.com/xplshn/rascal/pkg/config"
	"github.com/xplshn/rascal/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	Name() string
	// Render produces the target source text for prog.
	Render(prog *ir.Program) (string, error)
	// Generate renders prog, writes it to the staging path and runs the
	// toolchain to produce output.
	Generate(prog *ir.Program, cfg *config.Config, output string) error
}

// SelectBackend returns the backend registered under name. A nil toolchain
// means the C compiler named by the configuration.
func SelectBackend(name string, tc Toolchain) (Backend, error) {
	switch name {
	case "c", "":
		return NewCBackend(tc), nil
	case "qbe":
		return NewQBEBackend(tc), nil
	}
	return nil, fmt.Errorf("unsupported backend '%s' (available: c, qbe)", name)
}

func toolchainFor(tc Toolchain, cfg *config.Config) Toolchain {
	if tc != nil {
		return tc
	}
	return CCToolchain{CC: cfg.CC, Args: cfg.LinkerArgs}
}
