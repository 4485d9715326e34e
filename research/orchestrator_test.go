package research

import (
	"context"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thomsch1/deepresearch/config"
	"github.com/thomsch1/deepresearch/llm"
)

func newTestOrchestrator(t *testing.T, provider llm.Provider, search *fakeSearchProvider) *Orchestrator {
	t.Helper()
	dispatcher := NewDispatcher([]SearchProvider{search}, 0, 4, zap.NewNop())
	return NewOrchestrator(dispatcher, NewPlanner(provider), NewReflector(provider), NewFinalizer(provider), zap.NewNop())
}

// TestOrchestrator_LoopBoundedByMaxLoops exercises P: the research loop never
// iterates more than Params.MaxLoops times, even when the Reflector reports
// the research incomplete on every pass.
func TestOrchestrator_LoopBoundedByMaxLoops(t *testing.T) {
	loopCount := 0
	provider := &fakeProvider{completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		for _, tool := range req.Tools {
			switch tool.Name {
			case plannerToolName:
				loopCount++
				return toolReply(plannerToolName, plannerQueriesResult{Queries: []string{"another distinct angle"}})
			case reflectorToolName:
				return toolReply(reflectorToolName, reflectionResult{IsComplete: false, MissingAspects: []string{"more"}, CompletenessScore: 0.2})
			case finalizerToolName:
				return toolReply(finalizerToolName, finalAnswerResult{Answer: "done"})
			}
		}
		return textReply("{}")
	}}
	search := &fakeSearchProvider{name: "S", configured: true, searchFunc: func(ctx context.Context, query string, limit int) ([]Hit, ProviderStatus) {
		return []Hit{{Title: "t", URL: "https://example.com/" + url.QueryEscape(query), Snippet: "snippet text long enough to score decently well here"}}, StatusOK
	}}

	o := newTestOrchestrator(t, provider, search)

	params := NewParams(config.ResearchConfig{
		InitialQueryCountDefault: 1,
		FollowupQueryCount:       1,
		MaxLoopsDefault:          3,
		SessionDeadline:          time.Minute,
		ParallelSearches:         2,
		MaxSourcesTotal:          100,
		LMDefaultModel:           "m",
	}, 0, 3, "", TierLow, 0, false)
	session := NewSession("s1", "what is the cause", params)

	answer, err := o.Run(context.Background(), session)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if session.LoopIndex+1 > params.MaxLoops {
		t.Fatalf("LoopIndex+1 = %d exceeds MaxLoops = %d", session.LoopIndex+1, params.MaxLoops)
	}
	if answer.Text == "" {
		t.Fatalf("expected a non-empty final answer")
	}
}

// TestOrchestrator_DeadlineExceededCutsLoopShort verifies that once the
// session's wall-clock deadline has passed, Run moves straight to
// Finalizing instead of continuing to loop.
func TestOrchestrator_DeadlineExceededCutsLoopShort(t *testing.T) {
	provider := &fakeProvider{completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		for _, tool := range req.Tools {
			if tool.Name == plannerToolName {
				return toolReply(plannerToolName, plannerQueriesResult{Queries: []string{"some search query here"}})
			}
			if tool.Name == finalizerToolName {
				return toolReply(finalizerToolName, finalAnswerResult{Answer: "final"})
			}
		}
		return textReply("{}")
	}}
	search := &fakeSearchProvider{name: "S", configured: true, searchFunc: func(ctx context.Context, query string, limit int) ([]Hit, ProviderStatus) {
		return []Hit{{Title: "t", URL: "https://example.com/x", Snippet: "a reasonably long snippet of text for scoring purposes here"}}, StatusOK
	}}

	o := newTestOrchestrator(t, provider, search)

	params := NewParams(config.ResearchConfig{
		InitialQueryCountDefault: 1,
		FollowupQueryCount:       1,
		MaxLoopsDefault:          5,
		SessionDeadline:          -time.Second, // already expired
		ParallelSearches:         2,
		MaxSourcesTotal:          100,
		LMDefaultModel:           "m",
	}, 0, 5, "", TierLow, 0, false)
	session := NewSession("s1", "what is the cause", params)

	_, err := o.Run(context.Background(), session)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if session.Phase != PhaseDone {
		t.Fatalf("Phase = %v, want Done", session.Phase)
	}
	if session.LoopIndex != 0 {
		t.Fatalf("expected the deadline to cut the loop short at LoopIndex 0, got %d", session.LoopIndex)
	}
}
