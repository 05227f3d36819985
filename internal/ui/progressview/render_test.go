package progressview

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sift/internal/progress"
	"github.com/zjrosen/sift/internal/stream"
)

func papers(n int) *int { return &n }

func stateAfter(t *testing.T, events ...stream.Event) progress.State {
	t.Helper()
	agg := progress.New()
	for _, ev := range events {
		agg.Apply(ev)
	}
	return agg.State()
}

func TestRenderPlain_Standard(t *testing.T) {
	state := stateAfter(t,
		stream.Progress{Stage: "retriever", Status: "completed"},
		stream.Progress{Stage: "extractor", Status: "running"},
	)

	lines := strings.Split(RenderPlain(state), "\n")
	require.Len(t, lines, 6)
	require.Equal(t, "○ plan       pending", lines[0])
	require.Equal(t, "✓ retrieve   completed", lines[1])
	require.Equal(t, "● extract    running", lines[2])
}

func TestRenderPlain_ExpandedNestsSubtasks(t *testing.T) {
	state := stateAfter(t,
		stream.PlanExpanded{Subtasks: []string{"Trials?", "Cohorts?"}},
		stream.SubtaskProgress{Index: 0, Status: "completed", ResultCount: papers(4)},
		stream.SubtaskProgress{Index: 1, Status: "running"},
	)

	lines := strings.Split(RenderPlain(state), "\n")
	require.Len(t, lines, 8)
	require.Equal(t, "○ retrieve   pending", lines[1])
	require.Equal(t, "    ✓ 1. Trials? (4 papers)", lines[2])
	require.Equal(t, "    ● 2. Cohorts?", lines[3])
	require.Equal(t, "○ extract    pending", lines[4])
}

func TestRenderPlain_FailureMessage(t *testing.T) {
	state := stateAfter(t, stream.Progress{Stage: "critic", Status: "failed", Message: "timeout"})
	require.Contains(t, RenderPlain(state), "✗ critique   failed timeout")
}

func TestTransitions_Stages(t *testing.T) {
	prev := stateAfter(t, stream.Progress{Stage: "retriever", Status: "running"})
	next := stateAfter(t,
		stream.Progress{Stage: "retriever", Status: "completed"},
		stream.Progress{Stage: "extractor", Status: "running"},
	)

	require.Equal(t, []string{"retrieve: completed", "extract: running"}, Transitions(prev, next))
	require.Empty(t, Transitions(next, next))
}

func TestTransitions_PlanExpansion(t *testing.T) {
	prev := progress.NewState()
	next := stateAfter(t, stream.PlanExpanded{Subtasks: []string{"A?", "B?"}})

	require.Equal(t, []string{
		"plan expanded into 2 sub-questions",
		"  1. A?",
		"  2. B?",
	}, Transitions(prev, next))
}

func TestTransitions_Subtasks(t *testing.T) {
	prev := stateAfter(t,
		stream.PlanExpanded{Subtasks: []string{"A?", "B?"}},
		stream.SubtaskProgress{Index: 0, Status: "running"},
	)
	next := stateAfter(t,
		stream.PlanExpanded{Subtasks: []string{"A?", "B?"}},
		stream.SubtaskProgress{Index: 0, Status: "completed", ResultCount: papers(1)},
	)

	require.Equal(t, []string{"sub-question 1/2: completed (1 paper)"}, Transitions(prev, next))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 0))
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab…", truncate("abcdef", 3))
	require.Equal(t, "日…", truncate("日本語", 4), "wide runes count two cells")
}

func TestRenderStages_TruncatesLabels(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(termenv.Ascii) })

	state := stateAfter(t, stream.PlanExpanded{Subtasks: []string{strings.Repeat("x", 200)}})
	out := renderStages(state, "", 40)
	for _, line := range strings.Split(out, "\n") {
		require.LessOrEqual(t, ansi.StringWidth(line), 40, "styling does not count toward width")
	}
	require.Contains(t, out, "…")
}
