package progress

import "fmt"

// Stage is one of the fixed, ordered steps of the research pipeline.
type Stage int

const (
	StagePlan Stage = iota
	StageRetrieve
	StageExtract
	StageCritique
	StageSynthesize
	StageVerify

	stageCount = iota
)

var stageNames = [stageCount]string{"plan", "retrieve", "extract", "critique", "synthesize", "verify"}

// The service names stages after the agent that runs them.
var stageAgents = [stageCount]string{"planner", "retriever", "extractor", "critic", "synthesizer", "referee"}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	stages := make([]Stage, stageCount)
	for i := range stages {
		stages[i] = Stage(i)
	}
	return stages
}

func (s Stage) valid() bool {
	return s >= 0 && int(s) < stageCount
}

// String returns the stage name.
func (s Stage) String() string {
	if !s.valid() {
		return "unknown"
	}
	return stageNames[s]
}

// Agent returns the name the service uses for this stage on the wire.
func (s Stage) Agent() string {
	if !s.valid() {
		return "unknown"
	}
	return stageAgents[s]
}

// ParseStage accepts either the agent name ("retriever") or the stage
// name ("retrieve").
func ParseStage(v string) (Stage, bool) {
	for i := 0; i < stageCount; i++ {
		if v == stageAgents[i] || v == stageNames[i] {
			return Stage(i), true
		}
	}
	return 0, false
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	parsed, ok := ParseStage(string(text))
	if !ok {
		return fmt.Errorf("unknown stage %q", text)
	}
	*s = parsed
	return nil
}
