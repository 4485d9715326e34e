package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomsch1/deepresearch/llm"
	"github.com/thomsch1/deepresearch/research"
)

const lmGroundedToolName = "report_search_results"

var lmGroundedToolParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"hits": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title":   {"type": "string"},
					"url":     {"type": "string"},
					"snippet": {"type": "string"}
				},
				"required": ["url"]
			}
		}
	},
	"required": ["hits"]
}`)

// LMGrounded asks the reasoning model itself to ground a query against its
// own search/browsing facility and report back structured hits. It is first
// in the dispatcher's fallback chain because, when available, it needs no
// separate API credentials beyond the one already configured for the
// Planner/Reflector/Finalizer.
type LMGrounded struct {
	provider llm.Provider
	model    string
}

func NewLMGrounded(provider llm.Provider, model string) *LMGrounded {
	return &LMGrounded{provider: provider, model: model}
}

func (l *LMGrounded) Name() string { return "LMGrounded" }

func (l *LMGrounded) IsConfigured() bool {
	return l.provider != nil && strings.TrimSpace(l.model) != ""
}

type lmGroundedHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type lmGroundedResult struct {
	Hits []lmGroundedHit `json:"hits"`
}

func (l *LMGrounded) Search(ctx context.Context, query string, limit int) ([]research.Hit, research.ProviderStatus) {
	if !l.IsConfigured() {
		return nil, research.StatusAuthMissing
	}
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	req := &llm.ChatRequest{
		Model: l.model,
		Messages: []llm.Message{
			{
				Role: llm.RoleSystem,
				Content: "You are a web-search grounding tool. Use your own knowledge and " +
					"browsing ability to find real, currently-accessible web pages relevant " +
					"to the user's query, then call report_search_results with up to " +
					fmt.Sprintf("%d", limit) + " hits. Never invent URLs you are not confident exist.",
			},
			{Role: llm.RoleUser, Content: query},
		},
		Tools: []llm.ToolSchema{
			{
				Name:        lmGroundedToolName,
				Description: "Report search hits found for the query.",
				Parameters:  lmGroundedToolParameters,
			},
		},
		ToolChoice: lmGroundedToolName,
		MaxTokens:  1024,
	}

	var parsed lmGroundedResult
	if err := research.ToolJSONCall(ctx, l.provider, req, lmGroundedToolName, &parsed); err != nil {
		if ctx.Err() != nil {
			return nil, research.StatusTimeout
		}
		if llmErr, ok := err.(*llm.Error); ok {
			switch {
			case llmErr.Code == llm.ErrAuthentication || llmErr.Code == llm.ErrUnauthorized:
				return nil, research.StatusAuthMissing
			case llmErr.Code == llm.ErrRateLimit || llmErr.Code == llm.ErrRateLimited:
				return nil, research.StatusRateLimited
			}
		}
		return nil, research.StatusMalformed
	}
	if len(parsed.Hits) == 0 {
		return nil, research.StatusEmpty
	}

	hits := make([]research.Hit, 0, len(parsed.Hits))
	for _, h := range parsed.Hits {
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		hits = append(hits, research.Hit{
			Title:        h.Title,
			URL:          h.URL,
			Snippet:      h.Snippet,
			ProviderName: l.Name(),
		})
		if len(hits) >= limit {
			break
		}
	}
	if len(hits) == 0 {
		return nil, research.StatusEmpty
	}
	return hits, research.StatusOK
}
