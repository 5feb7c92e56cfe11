package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	prevOut, prevErr, prevNoColor := Stdout, Stderr, color.NoColor
	Stdout, Stderr, color.NoColor = out, errOut, true
	t.Cleanup(func() { Stdout, Stderr, color.NoColor = prevOut, prevErr, prevNoColor })
	return out, errOut
}

func TestError(t *testing.T) {
	_, errOut := capture(t)
	err := Error("release failed", "hold H000001 belongs to sorter-2", "pass --holder sorter-2")
	require.Error(t, err)
	require.Equal(t, "release failed", err.Error())
	require.Contains(t, errOut.String(), "belongs to sorter-2")
	require.Contains(t, errOut.String(), "  pass --holder sorter-2")
}

func TestTableAligns(t *testing.T) {
	out, _ := capture(t)
	Table([]string{"id", "state"}, [][]string{{"A1", "IDLE"}, {"agent-long", "ACTIVE"}})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "ID"))
	require.Equal(t, strings.Index(lines[0], "STATE"), strings.Index(lines[1], "IDLE"))
	require.Equal(t, strings.Index(lines[1], "IDLE"), strings.Index(lines[2], "ACTIVE"))
}

func TestSuccess(t *testing.T) {
	out, _ := capture(t)
	Success("blocked %d cells", 2)
	require.Equal(t, "✓ blocked 2 cells\n", out.String())
}
