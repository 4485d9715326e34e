package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomsch1/deepresearch/llm"
)

const plannerToolName = "propose_search_queries"

var plannerToolParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"queries": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"required": ["queries"]
}`)

// Planner turns a research question (and, on follow-up calls, what's still
// missing) into concrete search queries. It is LM-backed; any failure to
// reach the model or parse its answer falls back to a single query built
// from the question itself rather than aborting the session.
type Planner struct {
	provider llm.Provider
}

func NewPlanner(provider llm.Provider) *Planner {
	return &Planner{provider: provider}
}

// PlannerContext carries the Reflector's findings into a follow-up Plan
// call; a nil PlannerContext means this is the initial call.
type PlannerContext struct {
	MissingAspects      []string
	AlreadyTriedQueries []string
}

type plannerQueriesResult struct {
	Queries []string `json:"queries"`
}

// PlanInitial returns 1..Params.InitialQueryCount queries for a fresh
// session. It never returns an empty slice: on any LM failure it falls back
// to a single query equal to the question itself.
func (p *Planner) PlanInitial(ctx context.Context, question string, params Params) []Query {
	raw := p.callLM(ctx, question, nil, params, params.InitialQueryCount)
	queries := validateQueries(raw, params.InitialQueryCount, 0, OriginInitial)
	if len(queries) == 0 {
		queries = validateQueries([]string{question}, params.InitialQueryCount, 0, OriginInitial)
	}
	return queries
}

// PlanFollowUp returns 0..Params.FollowupQueryCount new queries given the
// Reflector's gap analysis. Zero is a valid, meaningful result: it tells the
// Orchestrator there are no new angles left to try, even if the Reflector
// itself said the research was incomplete. loopIndex is the loop this
// follow-up belongs to, stamped onto each returned Query.
func (p *Planner) PlanFollowUp(ctx context.Context, question string, pc PlannerContext, params Params, loopIndex int) []Query {
	raw := p.callLM(ctx, question, &pc, params, params.FollowupQueryCount)
	return validateQueries(raw, params.FollowupQueryCount, loopIndex, OriginFollowUp)
}

func (p *Planner) callLM(ctx context.Context, question string, pc *PlannerContext, params Params, maxCount int) []string {
	if p.provider == nil || maxCount <= 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Research question: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	if pc == nil {
		fmt.Fprintf(&sb, "Propose up to %d distinct, specific search-engine queries that together cover "+
			"the question's important angles. Avoid near-duplicate queries.", maxCount)
	} else {
		sb.WriteString("Research so far has not fully answered the question. ")
		missing := fitLinesToBudget(params.ReasoningModel, sb.String(), pc.MissingAspects)
		if len(missing) > 0 {
			sb.WriteString("Missing aspects:\n")
			for _, a := range missing {
				sb.WriteString("- ")
				sb.WriteString(a)
				sb.WriteString("\n")
			}
		}
		tried := fitLinesToBudget(params.ReasoningModel, sb.String(), pc.AlreadyTriedQueries)
		if len(tried) > 0 {
			sb.WriteString("Queries already tried (do not repeat these):\n")
			for _, q := range tried {
				sb.WriteString("- ")
				sb.WriteString(q)
				sb.WriteString("\n")
			}
		}
		fmt.Fprintf(&sb, "\nPropose up to %d new queries that target the missing aspects. "+
			"If no new angle remains, return an empty list.", maxCount)
	}

	req := &llm.ChatRequest{
		Model: params.ReasoningModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You plan web-research search queries. Call propose_search_queries with your result."},
			{Role: llm.RoleUser, Content: sb.String()},
		},
		Tools: []llm.ToolSchema{
			{Name: plannerToolName, Description: "Propose search queries.", Parameters: plannerToolParameters},
		},
		ToolChoice: plannerToolName,
		MaxTokens:  512,
	}

	var result plannerQueriesResult
	if err := ToolJSONCall(ctx, p.provider, req, plannerToolName, &result); err != nil {
		return nil
	}
	return result.Queries
}

// validateQueries trims, dedups (by NormalizeQuery), drops queries shorter
// than two tokens after normalization, and truncates to maxCount.
func validateQueries(raw []string, maxCount, loopIndex int, origin QueryOrigin) []Query {
	if maxCount <= 0 {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	out := make([]Query, 0, maxCount)
	for _, q := range raw {
		text := strings.TrimSpace(q)
		if text == "" {
			continue
		}
		norm := NormalizeQuery(text)
		if len(strings.Fields(norm)) < 2 {
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, Query{Text: text, Origin: origin, LoopIndex: loopIndex})
		if len(out) >= maxCount {
			break
		}
	}
	return out
}
