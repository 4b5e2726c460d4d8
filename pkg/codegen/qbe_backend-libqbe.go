//go:build !windows

package codegen

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"

	"github.com/xplshn/rascal/pkg/config"
	"modernc.org/libqbe"
)

// assemble compiles QBE IL to target assembly in process.
func (b *qbeBackend) assemble(il string, cfg *config.Config) (string, error) {
	target := cfg.QbeTarget
	if target == "" {
		target = libqbe.DefaultTarget(runtime.GOOS, runtime.GOARCH)
	}

	var asmBuf bytes.Buffer
	if err := libqbe.Main(target, "input.ssa", strings.NewReader(il), &asmBuf, nil); err != nil {
		return "", &GenError{Kind: Assemble, Path: "input.ssa", Err: fmt.Errorf("libqbe: %w", err)}
	}
	return asmBuf.String(), nil
}
