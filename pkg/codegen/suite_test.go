package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/rascal/internal/testcase"
)

func TestLoweringSuite(t *testing.T) {
	cases, err := testcase.Load("testdata/codegen.md")
	require.NoError(t, err)
	require.NotEmpty(t, cases)

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			prog := lower(t, c.Source)

			if want, ok := c.Expect[testcase.FenceIR]; ok {
				assert.Equal(t, want, strings.TrimRight(prog.String(), "\n"), "testdata/codegen.md:%d", c.Line)
			}

			if want, ok := c.Expect[testcase.FenceC]; ok {
				src, err := NewCBackend(nil).Render(prog)
				require.NoError(t, err)
				lines := make(map[string]bool)
				for _, l := range strings.Split(src, "\n") {
					lines[strings.TrimSpace(l)] = true
				}
				for _, l := range strings.Split(want, "\n") {
					if l = strings.TrimSpace(l); l != "" {
						assert.True(t, lines[l], "missing line %q in:\n%s", l, src)
					}
				}
			}
		})
	}
}
