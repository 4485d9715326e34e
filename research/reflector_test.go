package research

import (
	"context"
	"testing"

	"github.com/thomsch1/deepresearch/llm"
)

func TestReflector_NoRetainedSourcesIsComplete(t *testing.T) {
	r := NewReflector(nil)
	got := r.Reflect(context.Background(), "q", nil, testParams())
	if !got.IsComplete {
		t.Fatalf("expected IsComplete=true when there are no retained sources")
	}
}

func TestReflector_NilProviderFailsSafeToComplete(t *testing.T) {
	r := NewReflector(nil)
	got := r.Reflect(context.Background(), "q", []*Source{{Label: "1", Overall: 0.5}}, testParams())
	if !got.IsComplete {
		t.Fatalf("expected IsComplete=true fallback with nil provider")
	}
}

func TestReflector_LMFailureFailsSafeToComplete(t *testing.T) {
	provider := &fakeProvider{completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, context.DeadlineExceeded
	}}
	r := NewReflector(provider)
	got := r.Reflect(context.Background(), "q", []*Source{{Label: "1", Overall: 0.5}}, testParams())
	if !got.IsComplete || len(got.MissingAspects) != 0 {
		t.Fatalf("expected safe fallback on LM error, got %+v", got)
	}
}

func TestReflector_ClampsCompletenessScore(t *testing.T) {
	provider := &fakeProvider{completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return toolReply(reflectorToolName, reflectionResult{IsComplete: false, MissingAspects: []string{"timeline"}, CompletenessScore: 5.0})
	}}
	r := NewReflector(provider)
	got := r.Reflect(context.Background(), "q", []*Source{{Label: "1", Overall: 0.5}}, testParams())
	if got.IsComplete {
		t.Fatalf("expected IsComplete=false")
	}
	if got.CompletenessScore != 1.0 {
		t.Fatalf("CompletenessScore = %v, want clamped to 1.0", got.CompletenessScore)
	}
}
