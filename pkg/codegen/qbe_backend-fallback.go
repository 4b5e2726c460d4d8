//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"github.com/xplshn/rascal/pkg/config"
)

// assemble runs the system's qbe, since libqbe is not available on Windows.
func (b *qbeBackend) assemble(il string, cfg *config.Config) (string, error) {
	if _, err := exec.LookPath("qbe"); err != nil {
		return "", &GenError{Kind: Assemble, Err: fmt.Errorf("qbe not found in PATH: %w", err)}
	}

	inputFile, err := os.CreateTemp("", "rascal-qbe-*.ssa")
	if err != nil {
		return "", &GenError{Kind: StagingWrite, Err: err}
	}
	defer os.Remove(inputFile.Name())
	_, err = inputFile.WriteString(il)
	inputFile.Close()
	if err != nil {
		return "", &GenError{Kind: StagingWrite, Path: inputFile.Name(), Err: err}
	}

	outputName := inputFile.Name() + ".s"
	defer os.Remove(outputName)

	args := []string{"-o", outputName}
	if cfg.QbeTarget != "" {
		args = append(args, "-t", cfg.QbeTarget)
	}
	cmd := exec.Command("qbe", append(args, inputFile.Name())...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &GenError{Kind: Assemble, Path: inputFile.Name(), Stderr: stderr.String(), Err: err}
	}

	asm, err := os.ReadFile(outputName)
	if err != nil {
		return "", &GenError{Kind: Assemble, Path: outputName, Err: err}
	}
	return string(asm), nil
}
