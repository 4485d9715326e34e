package research

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/thomsch1/deepresearch/llm"
)

const reflectorToolName = "report_research_gaps"

var reflectorToolParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"is_complete": {"type": "boolean"},
		"missing_aspects": {
			"type": "array",
			"items": {"type": "string"}
		},
		"completeness_score": {"type": "number"}
	},
	"required": ["is_complete", "missing_aspects", "completeness_score"]
}`)

// Reflection is the Reflector's verdict on one loop's retained sources.
type Reflection struct {
	IsComplete        bool
	MissingAspects    []string
	CompletenessScore float64
}

type reflectionResult struct {
	IsComplete        bool     `json:"is_complete"`
	MissingAspects    []string `json:"missing_aspects"`
	CompletenessScore float64  `json:"completeness_score"`
}

func renderReflectorSource(src *Source) string {
	return "- [" + src.Title + "] " + src.Snippet + "\n"
}

// Reflector judges whether the retained sources so far answer the question.
// On any LM error it fails safe: is_complete=true with no missing aspects,
// so the Orchestrator proceeds straight to Finalizing with whatever sources
// are already in hand instead of looping indefinitely against a broken LM.
type Reflector struct {
	provider llm.Provider
}

func NewReflector(provider llm.Provider) *Reflector {
	return &Reflector{provider: provider}
}

func (r *Reflector) Reflect(ctx context.Context, question string, retained []*Source, params Params) Reflection {
	if r.provider == nil || len(retained) == 0 {
		return Reflection{IsComplete: true}
	}

	capped := retained
	if len(capped) > 50 {
		capped = capped[:50]
	}
	fixed := "Research question: " + question + "\n\nRetained sources so far:\n" +
		"\nDecide whether these sources are sufficient to fully answer the question. " +
		"Call report_research_gaps with is_complete, any missing_aspects, and a completeness_score in [0,1]."
	budgeted := fitSourcesToBudget(params.ReasoningModel, fixed, capped, renderReflectorSource)

	var sb strings.Builder
	sb.WriteString("Research question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nRetained sources so far:\n")
	for _, src := range budgeted {
		sb.WriteString(renderReflectorSource(src))
	}
	if len(budgeted) < len(retained) {
		sb.WriteString("- (additional sources omitted)\n")
	}
	sb.WriteString("\nDecide whether these sources are sufficient to fully answer the question. " +
		"Call report_research_gaps with is_complete, any missing_aspects, and a completeness_score in [0,1].")

	req := &llm.ChatRequest{
		Model: params.ReasoningModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You judge whether gathered research sources are sufficient to answer a question."},
			{Role: llm.RoleUser, Content: sb.String()},
		},
		Tools: []llm.ToolSchema{
			{Name: reflectorToolName, Description: "Report research completeness.", Parameters: reflectorToolParameters},
		},
		ToolChoice: reflectorToolName,
		MaxTokens:  512,
	}

	var result reflectionResult
	if err := ToolJSONCall(ctx, r.provider, req, reflectorToolName, &result); err != nil {
		return Reflection{IsComplete: true}
	}

	score := result.CompletenessScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Reflection{
		IsComplete:        result.IsComplete,
		MissingAspects:    result.MissingAspects,
		CompletenessScore: score,
	}
}
