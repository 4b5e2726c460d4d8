package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "c", cfg.BackendName)
	assert.Equal(t, "cc", cfg.CC)
	assert.Equal(t, "out.c", cfg.DefaultStagingPath())
	assert.True(t, cfg.IsFeatureEnabled(FeatWith))
	assert.False(t, cfg.IsWarningEnabled(WarnShadow))
	assert.True(t, cfg.IsWarningEnabled(WarnUnreachableCode))
}

func TestApplyFlag(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.ApplyFlag("-Wshadow"))
	assert.True(t, cfg.IsWarningEnabled(WarnShadow))

	require.NoError(t, cfg.ApplyFlag("-Wno-shadow"))
	assert.False(t, cfg.IsWarningEnabled(WarnShadow))

	require.NoError(t, cfg.ApplyFlag("-Fno-compound-ops"))
	assert.False(t, cfg.IsFeatureEnabled(FeatCompoundOps))

	assert.Error(t, cfg.ApplyFlag("-Wbogus"))
	assert.Error(t, cfg.ApplyFlag("-Fbogus"))
}

func TestProcessFlags_AllFirst(t *testing.T) {
	cfg := NewConfig()

	// -Wextra comes before -Wno-all on the command line but must survive it.
	require.NoError(t, cfg.ProcessFlags([]string{"extra", "no-all"}, nil))
	assert.True(t, cfg.IsWarningEnabled(WarnExtra))
	assert.False(t, cfg.IsWarningEnabled(WarnUnreachableCode))
}

func TestApply_YAML(t *testing.T) {
	cfg := NewConfig()
	src := []byte(`
backend: qbe
cc: clang
staging: build/prog.s
linker-args: ["-static"]
warnings:
  shadow: true
  missing-return: false
features:
  with: false
`)
	require.NoError(t, cfg.Apply(src))

	assert.Equal(t, "qbe", cfg.BackendName)
	assert.Equal(t, "clang", cfg.CC)
	assert.Equal(t, "build/prog.s", cfg.DefaultStagingPath())
	assert.Equal(t, []string{"-static"}, cfg.LinkerArgs)
	assert.True(t, cfg.IsWarningEnabled(WarnShadow))
	assert.False(t, cfg.IsWarningEnabled(WarnMissingReturn))
	assert.False(t, cfg.IsFeatureEnabled(FeatWith))
}

func TestApply_UnknownWarning(t *testing.T) {
	cfg := NewConfig()
	err := cfg.Apply([]byte("warnings:\n  nope: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rascal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: qbe\n"), 0644))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, "qbe", cfg.BackendName)
	assert.Equal(t, "out.s", cfg.DefaultStagingPath())

	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestSetTarget_Explicit(t *testing.T) {
	cfg := NewConfig()
	var info bytes.Buffer
	cfg.Log = &info

	cfg.SetTarget("linux", "amd64", "amd64_sysv")
	assert.Equal(t, "amd64_sysv", cfg.QbeTarget)
	assert.Equal(t, 8, cfg.WordSize)
	assert.Contains(t, info.String(), "amd64_sysv")
}
