// Package answer turns a research result payload into readable terminal
// output: a markdown report rendered with glamour, or plain markdown when
// styling is off.
package answer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/sift/internal/ui/markdown"
)

// Paper is a retrieved source.
type Paper struct {
	PaperID string   `json:"paper_id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    *int     `json:"year"`
	Venue   string   `json:"venue"`
	URL     string   `json:"url"`
}

// Extraction is what was pulled out of one paper.
type Extraction struct {
	PaperID     string `json:"paper_id"`
	StudyType   string `json:"study_type"`
	APACitation string `json:"apa_citation"`
}

// Synthesis is the combined answer.
type Synthesis struct {
	FinalAnswer         []string `json:"final_answer"`
	EvidenceConsensus   string   `json:"evidence_consensus"`
	TopLimitations      []string `json:"top_limitations_overall"`
	ConfidenceScore     *int     `json:"confidence_score"`
	ConfidenceRationale []string `json:"confidence_rationale"`
	CitationsUsed       []string `json:"citations_used"`
}

// Verification is the referee's check of the synthesis.
type Verification struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// Plan is present when the question was split into sub-questions.
type Plan struct {
	SubQuestions []string `json:"sub_questions"`
	Strategy     string   `json:"strategy"`
}

// Report is the subset of the result payload that gets displayed.
type Report struct {
	RunID        string        `json:"run_id"`
	Question     string        `json:"question"`
	Papers       []Paper       `json:"papers"`
	Extractions  []Extraction  `json:"extractions"`
	Synthesis    *Synthesis    `json:"synthesis"`
	Verification *Verification `json:"verification"`
	Plan         *Plan         `json:"plan"`
}

// ErrNoSynthesis means the payload is JSON but not a research report.
var ErrNoSynthesis = errors.New("payload has no synthesis")

// Parse decodes a result payload.
func Parse(payload json.RawMessage) (*Report, error) {
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if r.Synthesis == nil {
		return nil, ErrNoSynthesis
	}
	return &r, nil
}

// citation returns the APA citation for a paper ID, falling back to the
// paper title and finally the ID itself.
func (r *Report) citation(id string) string {
	for _, e := range r.Extractions {
		if e.PaperID == id && e.APACitation != "" {
			return e.APACitation
		}
	}
	for _, p := range r.Papers {
		if p.PaperID == id && p.Title != "" {
			if p.Year != nil {
				return fmt.Sprintf("%s (%d)", p.Title, *p.Year)
			}
			return p.Title
		}
	}
	return id
}

func writeList(b *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// Markdown renders r as a markdown document.
func Markdown(r *Report) string {
	var b strings.Builder
	if r.Question != "" {
		fmt.Fprintf(&b, "# %s\n\n", r.Question)
	}

	if r.Plan != nil && len(r.Plan.SubQuestions) > 0 {
		b.WriteString("## Sub-questions\n\n")
		for i, q := range r.Plan.SubQuestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		b.WriteString("\n")
	}

	s := r.Synthesis
	b.WriteString("## Answer\n\n")
	writeList(&b, s.FinalAnswer)

	if s.EvidenceConsensus != "" {
		fmt.Fprintf(&b, "**Evidence consensus:** %s\n\n", s.EvidenceConsensus)
	}
	if s.ConfidenceScore != nil {
		fmt.Fprintf(&b, "**Confidence:** %d/100\n\n", *s.ConfidenceScore)
		writeList(&b, s.ConfidenceRationale)
	}

	if len(s.TopLimitations) > 0 {
		b.WriteString("## Limitations\n\n")
		writeList(&b, s.TopLimitations)
	}

	if len(s.CitationsUsed) > 0 {
		b.WriteString("## Sources\n\n")
		for i, id := range s.CitationsUsed {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r.citation(id))
		}
		b.WriteString("\n")
	}

	if v := r.Verification; v != nil {
		if v.Passed {
			b.WriteString("_Verification passed._\n")
		} else {
			b.WriteString("## Verification issues\n\n")
			writeList(&b, v.Issues)
		}
	}

	if len(r.Papers) > 0 {
		fmt.Fprintf(&b, "\n_%d papers reviewed · run %s_\n", len(r.Papers), r.RunID)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Options control Render.
type Options struct {
	// Width is the word wrap width. Default: 80
	Width int
	// Style is a glamour standard style name ("dark", "light", "notty",
	// "auto"). Default: "auto"
	Style string
	// Plain skips glamour and returns markdown source.
	Plain bool
}

// Render formats payload for the terminal. Payloads that are not reports are
// shown as indented JSON.
func Render(payload json.RawMessage, opts Options) (string, error) {
	report, err := Parse(payload)
	if err != nil {
		return indentJSON(payload), nil
	}

	md := Markdown(report)
	if opts.Plain {
		return md, nil
	}

	r, err := markdown.New(opts.Width, opts.Style)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("rendering answer: %w", err)
	}
	return out, nil
}

func indentJSON(payload json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return string(payload) + "\n"
	}
	buf.WriteString("\n")
	return buf.String()
}
