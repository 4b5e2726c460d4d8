package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `let base: int32 = 2;

function twice(x: int32) -> int32
  return x * 2;
end

program main with base
  let r = twice(base);
end
`

type recordingToolchain struct {
	staged, output string
	src            string
}

func (r *recordingToolchain) Build(staged, output string) error {
	r.staged, r.output = staged, output
	data, err := os.ReadFile(staged)
	r.src = string(data)
	return err
}

func writeSource(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func run(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCheckCommand_ListsGlobals(t *testing.T) {
	path := writeSource(t, "main.ras", sample)

	out, _, err := run(t, &RootOptions{}, "check", path)
	require.NoError(t, err)
	assert.Equal(t, "base: int32\ntwice: function(int32) -> int32\nmain: program\n", out)
}

func TestCheckCommand_ReportsWithSource(t *testing.T) {
	path := writeSource(t, "bad.ras", "program main\n  let x: float32 = 431;\nend\n")

	_, errOut, err := run(t, &RootOptions{}, "check", path)
	require.ErrorIs(t, err, ErrReported)
	assert.Contains(t, errOut, "bad.ras:2:")
	assert.Contains(t, errOut, "[TYPE_MISMATCH]")
	assert.Contains(t, errOut, "  let x: float32 = 431;\n")
}

func TestCheckCommand_WarningFlags(t *testing.T) {
	src := "let g = 1;\nfunction f() with g\nend\nprogram main\nend\n"
	path := writeSource(t, "warn.ras", src)

	_, errOut, err := run(t, &RootOptions{}, "check", path)
	require.NoError(t, err)
	assert.Contains(t, errOut, "[-Wunused-capture]")

	_, errOut, err = run(t, &RootOptions{}, "-Wno-all", "check", path)
	require.NoError(t, err)
	assert.Empty(t, errOut)
}

func TestCheckCommand_UnknownWarning(t *testing.T) {
	path := writeSource(t, "main.ras", sample)
	_, _, err := run(t, &RootOptions{}, "-Wbogus", "check", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestIRCommand(t *testing.T) {
	path := writeSource(t, "main.ras", sample)

	out, _, err := run(t, &RootOptions{}, "ir", path)
	require.NoError(t, err)
	assert.Contains(t, out, "GlobalSection\n")
	assert.Contains(t, out, "FuncDef twice(x int32) -> int32")
	assert.Contains(t, out, "Eval call twice(int32) int32")
}

func TestEmitCommand_Backends(t *testing.T) {
	path := writeSource(t, "main.ras", sample)

	out, _, err := run(t, &RootOptions{}, "emit", path)
	require.NoError(t, err)
	assert.Contains(t, out, "int32_t twice(int32_t x) {")
	assert.Contains(t, out, "int main(void) {")

	out, _, err = run(t, &RootOptions{}, "--backend", "qbe", "emit", path)
	require.NoError(t, err)
	assert.Contains(t, out, "export function w $main()")

	_, errOut, err := run(t, &RootOptions{}, "--backend", "llvm", "emit", path)
	require.ErrorIs(t, err, ErrReported)
	assert.Contains(t, errOut, "unsupported backend 'llvm'")
}

func TestBuildCommand_UsesToolchain(t *testing.T) {
	path := writeSource(t, "main.ras", sample)
	dir := t.TempDir()
	staged := filepath.Join(dir, "prog.c")
	tc := &recordingToolchain{}

	_, _, err := run(t, &RootOptions{Toolchain: tc}, "build", "-o", filepath.Join(dir, "prog"), "--staging", staged, path)
	require.NoError(t, err)
	assert.Equal(t, staged, tc.staged)
	assert.Equal(t, filepath.Join(dir, "prog"), tc.output)
	assert.Contains(t, tc.src, "int32_t base;")
}

func TestBuildCommand_VerboseProgress(t *testing.T) {
	path := writeSource(t, "main.ras", sample)
	dir := t.TempDir()

	_, errOut, err := run(t, &RootOptions{Toolchain: &recordingToolchain{}}, "-v", "build",
		"-o", filepath.Join(dir, "prog"), "--staging", filepath.Join(dir, "prog.c"), path)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Tokenizing 1 source file(s)...")
	assert.Contains(t, errOut, "Generating code with 'c' backend...")
}

func TestConfigFile(t *testing.T) {
	path := writeSource(t, "main.ras", sample)
	conf := writeSource(t, "rascal.yaml", "backend: qbe\nwarnings:\n  shadow: true\n")

	out, _, err := run(t, &RootOptions{}, "--config", conf, "emit", path)
	require.NoError(t, err)
	assert.Contains(t, out, "export function w $main()")

	out, _, err = run(t, &RootOptions{}, "--config", conf, "flags")
	require.NoError(t, err)
	assert.Contains(t, out, "Warnings:")
	assert.Regexp(t, `-Wshadow\s+true`, out)
}

func TestSession_MultipleFiles(t *testing.T) {
	lib := writeSource(t, "lib.ras", "function twice(x: int32) -> int32\n  return x * 2;\nend\n")
	main := writeSource(t, "main.ras", "program main\n  let r = twice(4);\nend\n")

	out, _, err := run(t, &RootOptions{}, "check", lib, main)
	require.NoError(t, err)
	assert.Contains(t, out, "twice: function(int32) -> int32\n")
}

func TestSession_MissingFile(t *testing.T) {
	_, errOut, err := run(t, &RootOptions{}, "check", filepath.Join(t.TempDir(), "nope.ras"))
	require.ErrorIs(t, err, ErrReported)
	assert.Contains(t, errOut, "could not read file")
}
