package research

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/thomsch1/deepresearch/llm"
)

const finalizerToolName = "submit_final_answer"

var finalizerToolParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"answer": {"type": "string"}
	},
	"required": ["answer"]
}`)

// citationMarkerPattern matches the [k] citation markers a Finalizer answer
// may contain, where k is one of the Orchestrator-assigned stable labels.
var citationMarkerPattern = regexp.MustCompile(`\[([A-Za-z0-9_.-]+)\]`)

// FinalAnswer is the Finalizer's output: answer_text plus the bookkeeping
// needed to enforce the citation round-trip invariant (P3).
type FinalAnswer struct {
	Text              string
	CitationLabelsUsed []string
	Confidence        float64
}

type finalAnswerResult struct {
	Answer string `json:"answer"`
}

// Finalizer synthesizes the research answer from the retained, labeled
// sources. On LM failure it falls back to a deterministic template listing
// the top sources by overall score so the session never returns
// empty-handed.
type Finalizer struct {
	provider llm.Provider
}

func NewFinalizer(provider llm.Provider) *Finalizer {
	return &Finalizer{provider: provider}
}

// Finalize synthesizes an answer from retained, sources already labeled by
// the Orchestrator in first-citation order (src.Label must be set).
func (f *Finalizer) Finalize(ctx context.Context, question string, retained []*Source, params Params) FinalAnswer {
	if len(retained) == 0 {
		return FinalAnswer{
			Text:       "No sufficiently reliable sources were found to answer this question.",
			Confidence: 0,
		}
	}

	text, ok := f.callLM(ctx, question, retained, params)
	if !ok {
		text = templateAnswer(retained)
	}
	return postProcessCitations(text, retained)
}

func (f *Finalizer) callLM(ctx context.Context, question string, retained []*Source, params Params) (string, bool) {
	if f.provider == nil {
		return "", false
	}

	fixed := "Research question: " + question +
		"\n\nSources (cite with [label] inline, only using labels below):\n" +
		"\nWrite a thorough answer to the question, citing sources inline with their " +
		"[label] exactly as given. Call submit_final_answer with the result."
	budgeted := fitSourcesToBudget(params.ReasoningModel, fixed, retained, renderFinalizerSource)

	var sb strings.Builder
	sb.WriteString("Research question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nSources (cite with [label] inline, only using labels below):\n")
	for _, src := range budgeted {
		sb.WriteString(renderFinalizerSource(src))
	}
	sb.WriteString("\nWrite a thorough answer to the question, citing sources inline with their " +
		"[label] exactly as given. Call submit_final_answer with the result.")

	req := &llm.ChatRequest{
		Model: params.ReasoningModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You synthesize a cited research answer from a fixed source list."},
			{Role: llm.RoleUser, Content: sb.String()},
		},
		Tools: []llm.ToolSchema{
			{Name: finalizerToolName, Description: "Submit the final cited answer.", Parameters: finalizerToolParameters},
		},
		ToolChoice: finalizerToolName,
		MaxTokens:  2048,
	}

	var result finalAnswerResult
	if err := ToolJSONCall(ctx, f.provider, req, finalizerToolName, &result); err != nil {
		return "", false
	}
	if strings.TrimSpace(result.Answer) == "" {
		return "", false
	}
	return result.Answer, true
}

func renderFinalizerSource(src *Source) string {
	return fmt.Sprintf("[%s] %s — %s\n", src.Label, src.Title, src.Snippet)
}

// templateAnswer builds a deterministic answer when the LM is unavailable,
// listing up to the top five retained sources by overall score.
func templateAnswer(retained []*Source) string {
	sorted := make([]*Source, len(retained))
	copy(sorted, retained)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Overall > sorted[j].Overall })
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}

	var sb strings.Builder
	sb.WriteString("Automated synthesis was unavailable, so this answer lists the most relevant " +
		"sources found instead of a prose summary:\n")
	for _, src := range sorted {
		fmt.Fprintf(&sb, "- [%s] %s\n", src.Label, src.Title)
	}
	return sb.String()
}

// postProcessCitations enforces the citation round-trip invariant: every
// [k] marker left in text must name a label that exists among retained, and
// every used label is recorded in CitationLabelsUsed. Unknown markers are
// stripped from the text; labels never referenced are simply absent from
// CitationLabelsUsed.
func postProcessCitations(text string, retained []*Source) FinalAnswer {
	validLabels := make(map[string]bool, len(retained))
	for _, src := range retained {
		validLabels[src.Label] = true
	}

	usedSet := make(map[string]bool)
	cleaned := citationMarkerPattern.ReplaceAllStringFunc(text, func(m string) string {
		label := citationMarkerPattern.FindStringSubmatch(m)[1]
		if !validLabels[label] {
			return ""
		}
		usedSet[label] = true
		return m
	})

	used := make([]string, 0, len(usedSet))
	for _, src := range retained {
		if usedSet[src.Label] {
			used = append(used, src.Label)
		}
	}

	var confSum float64
	for _, src := range retained {
		if usedSet[src.Label] {
			confSum += src.Overall
		}
	}
	confidence := 0.0
	if len(used) > 0 {
		confidence = confSum / float64(len(used))
	}

	return FinalAnswer{
		Text:               cleaned,
		CitationLabelsUsed: used,
		Confidence:         confidence,
	}
}
