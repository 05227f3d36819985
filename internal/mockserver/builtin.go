package mockserver

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Names of the built-in scenarios.
const (
	ScenarioStandard  = "standard"
	ScenarioDeep      = "deep"
	ScenarioError     = "error"
	ScenarioTruncated = "truncated"
)

var pipelineAgents = []string{"retriever", "extractor", "critic", "synthesizer", "referee"}

func progressStep(agent, status string) Step {
	return Step{Type: "progress", Agent: agent, Status: status}
}

func papers(n int) *int { return &n }

// Builtin returns the scenarios every mock server knows, with delay between
// steps.
func Builtin(delay time.Duration) []Scenario {
	standard := Scenario{Name: ScenarioStandard, Delay: delay}
	for _, agent := range pipelineAgents {
		standard.Steps = append(standard.Steps, progressStep(agent, "running"), progressStep(agent, "completed"))
	}
	standard.Steps = append(standard.Steps, Step{Type: "result"})

	subQuestions := []string{
		"What do randomized trials report?",
		"What do observational cohorts report?",
		"Which populations were studied?",
	}
	deep := Scenario{Name: ScenarioDeep, Delay: delay}
	deep.Steps = append(deep.Steps,
		progressStep("planner", "running"),
		Step{Type: "plan_expanded", SubQuestions: subQuestions},
		progressStep("planner", "completed"),
		progressStep("retriever", "running"),
	)
	for i := range subQuestions {
		deep.Steps = append(deep.Steps,
			Step{Type: "subtask_progress", Index: i, Status: "running"},
			Step{Type: "subtask_progress", Index: i, Status: "completed", PapersFound: papers(3 + i)},
		)
	}
	deep.Steps = append(deep.Steps, progressStep("retriever", "completed"))
	for _, agent := range pipelineAgents[1:] {
		deep.Steps = append(deep.Steps, progressStep(agent, "running"), progressStep(agent, "completed"))
	}
	deep.Steps = append(deep.Steps, Step{Type: "result"})

	failing := Scenario{Name: ScenarioError, Delay: delay, Steps: []Step{
		progressStep("retriever", "running"),
		{Type: "progress", Agent: "retriever", Status: "failed", Message: "search backend unavailable"},
		{Type: "error", Message: "Retriever failed: search backend unavailable"},
	}}

	truncated := Scenario{Name: ScenarioTruncated, Delay: delay, Steps: []Step{
		progressStep("retriever", "running"),
		progressStep("retriever", "completed"),
		progressStep("extractor", "running"),
	}}

	return []Scenario{standard, deep, failing, truncated}
}

// SampleRun is a canned answer shaped like the research service's run
// response.
func SampleRun(question string) map[string]any {
	citation := "Doe, J., & Roe, R. (2021). A randomized trial. Journal of Evidence, 12(3), 45-67."
	synthesis := map[string]any{
		"final_answer": []string{
			"Moderate evidence suggests a small positive effect.",
			"Effects were larger in randomized trials than in observational studies.",
		},
		"evidence_consensus":      "mixed",
		"top_limitations_overall": []string{"Small samples", "Short follow-up"},
		"confidence_score":        62,
		"confidence_rationale":    []string{"Two RCTs agree", "Observational data is heterogeneous"},
		"citations_used":          []string{"p1"},
	}
	return map[string]any{
		"run_id":   uuid.NewString(),
		"question": question,
		"papers": []map[string]any{{
			"paper_id": "p1",
			"title":    "A randomized trial",
			"authors":  []string{"J. Doe", "R. Roe"},
			"year":     2021,
		}},
		"extractions": []map[string]any{{
			"paper_id":      "p1",
			"claim_summary": fmt.Sprintf("Evidence relevant to %q", question),
			"study_type":    "RCT",
			"key_snippet":   "The intervention group improved.",
			"limitations":   []string{"Abstract only"},
			"apa_citation":  citation,
		}},
		"critiques": []map[string]any{{
			"paper_id":     "p1",
			"risk_of_bias": "low",
			"rationale":    []string{"Randomized design"},
			"red_flags":    []string{},
		}},
		"synthesis": synthesis,
		"verification": map[string]any{
			"passed": true,
			"issues": []string{},
		},
	}
}
