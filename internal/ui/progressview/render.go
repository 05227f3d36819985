package progressview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/sift/internal/progress"
	"github.com/zjrosen/sift/internal/ui/styles"
)

const stageNameWidth = 10

func statusIcon(s progress.Status) string {
	switch s {
	case progress.StatusRunning:
		return "●"
	case progress.StatusCompleted:
		return "✓"
	case progress.StatusFailed:
		return "✗"
	default:
		return "○"
	}
}

func statusStyle(s progress.Status) lipgloss.Style {
	switch s {
	case progress.StatusRunning:
		return styles.RunningStyle
	case progress.StatusCompleted:
		return styles.SuccessStyle
	case progress.StatusFailed:
		return styles.FailedStyle
	default:
		return styles.PendingStyle
	}
}

func papersSuffix(n *int) string {
	if n == nil {
		return ""
	}
	if *n == 1 {
		return " (1 paper)"
	}
	return fmt.Sprintf(" (%d papers)", *n)
}

// truncate cuts s to width display cells. A width <= 0 disables truncation.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// renderStages draws one line per stage with the sub-questions nested under
// retrieve. spin replaces the icon of running rows.
func renderStages(state progress.State, spin string, width int) string {
	var b strings.Builder
	subtasks, expanded := state.Subtasks()
	for _, st := range state.Stages {
		icon := statusStyle(st.Status).Render(statusIcon(st.Status))
		if st.Status == progress.StatusRunning && spin != "" {
			icon = spin
		}
		name := statusStyle(st.Status).Render(fmt.Sprintf("%-*s", stageNameWidth, st.Stage))
		line := fmt.Sprintf("%s %s %s", icon, name, styles.MutedStyle.Render(st.Status.String()))
		if st.Message != "" {
			line += " " + styles.FailedStyle.Render(truncate(st.Message, width-stageNameWidth-16))
		}
		b.WriteString(line + "\n")

		if st.Stage != progress.StageRetrieve || !expanded {
			continue
		}
		for _, sub := range subtasks {
			prefix := fmt.Sprintf("    %s %d. ", statusStyle(sub.Status).Render(statusIcon(sub.Status)), sub.Index+1)
			suffix := papersSuffix(sub.ResultCount)
			label := truncate(sub.Label, width-ansi.StringWidth(prefix)-runewidth.StringWidth(suffix))
			b.WriteString(prefix + styles.SecondaryStyle.Render(label) + styles.MutedStyle.Render(suffix) + "\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RenderPlain renders state without styling, one stage per line with
// sub-questions indented under retrieve.
func RenderPlain(state progress.State) string {
	var b strings.Builder
	subtasks, expanded := state.Subtasks()
	for _, st := range state.Stages {
		fmt.Fprintf(&b, "%s %-*s %s", statusIcon(st.Status), stageNameWidth, st.Stage, st.Status)
		if st.Message != "" {
			fmt.Fprintf(&b, " %s", st.Message)
		}
		b.WriteString("\n")
		if st.Stage == progress.StageRetrieve && expanded {
			for _, sub := range subtasks {
				fmt.Fprintf(&b, "    %s %d. %s%s\n", statusIcon(sub.Status), sub.Index+1, sub.Label, papersSuffix(sub.ResultCount))
			}
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Transitions lists what changed from prev to next, one line per change, in
// pipeline order. It is the output of the non-interactive view.
func Transitions(prev, next progress.State) []string {
	var lines []string
	for _, st := range next.Stages {
		if prev.Status(st.Stage) == st.Status {
			continue
		}
		line := fmt.Sprintf("%s: %s", st.Stage, st.Status)
		if st.Message != "" {
			line += " (" + st.Message + ")"
		}
		lines = append(lines, line)
	}

	subtasks, expanded := next.Subtasks()
	if !expanded {
		return lines
	}
	before, wasExpanded := prev.Subtasks()
	if !wasExpanded {
		lines = append(lines, fmt.Sprintf("plan expanded into %d sub-questions", len(subtasks)))
		for _, sub := range subtasks {
			lines = append(lines, fmt.Sprintf("  %d. %s", sub.Index+1, sub.Label))
		}
	}
	for i, sub := range subtasks {
		if i < len(before) && before[i].Status == sub.Status && sameCount(before[i].ResultCount, sub.ResultCount) {
			continue
		}
		if !wasExpanded && sub.Status == progress.StatusPending {
			continue
		}
		lines = append(lines, fmt.Sprintf("sub-question %d/%d: %s%s", sub.Index+1, len(subtasks), sub.Status, papersSuffix(sub.ResultCount)))
	}
	return lines
}

func sameCount(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
