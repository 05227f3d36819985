package testutil

import "github.com/zjrosen/sift/internal/progress"

// ExpandedState returns a snapshot where retrieval expanded into the given
// sub-questions, each completed with n papers.
func ExpandedState(n int, labels ...string) progress.State {
	state := progress.NewState()
	state.Stages[progress.StagePlan].Status = progress.StatusCompleted
	state.Stages[progress.StageRetrieve].Status = progress.StatusCompleted
	subtasks := make([]progress.Subtask, len(labels))
	for i, label := range labels {
		count := n
		subtasks[i] = progress.Subtask{
			Index:       i,
			Label:       label,
			Status:      progress.StatusCompleted,
			ResultCount: &count,
		}
	}
	state.Mode = progress.Expanded{Subtasks: subtasks}
	return state
}

// FailedAt returns a snapshot where stage failed.
func FailedAt(stage progress.Stage) progress.State {
	state := progress.NewState()
	state.Stages[stage].Status = progress.StatusFailed
	return state
}
