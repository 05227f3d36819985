package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsWidth(t *testing.T) {
	r, err := New(0, "notty")
	require.NoError(t, err)
	require.Equal(t, DefaultWidth, r.Width())
}

func TestRender_KeepsText(t *testing.T) {
	r, err := New(40, "notty")
	require.NoError(t, err)

	out, err := r.Render("# Title\n\nSome **bold** words.\n")
	require.NoError(t, err)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "bold")
}

func TestRender_Wraps(t *testing.T) {
	r, err := New(20, "notty")
	require.NoError(t, err)

	out, err := r.Render("one two three four five six seven eight nine ten eleven twelve\n")
	require.NoError(t, err)
	require.Greater(t, len(splitLines(out)), 1)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := range len(s) {
		if s[i] == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
