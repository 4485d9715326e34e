package research

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/thomsch1/deepresearch/llm"
)

// fakeProvider is a minimal llm.Provider test double, in the same shape as
// the teacher's providers/*_test.go mockProvider.
type fakeProvider struct {
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (f *fakeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.completionFunc != nil {
		return f.completionFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (f *fakeProvider) Name() string                          { return "fake" }
func (f *fakeProvider) SupportsNativeFunctionCalling() bool    { return true }
func (f *fakeProvider) ListModels(ctx context.Context) ([]llm.Model, error) { return nil, nil }

// toolReply builds a completion response whose first choice calls toolName
// with args marshaled as the tool-call arguments, matching ToolJSONCall's
// preferred decoding path.
func toolReply(toolName string, args any) (*llm.ChatResponse, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Choices: []llm.ChatChoice{{
			Message: llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: toolName, Arguments: json.RawMessage(raw)},
				},
			},
		}},
	}, nil
}

// textReply builds a completion response with plain text content, exercising
// ToolJSONCall's ExtractJSON fallback path.
func textReply(content string) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
	}, nil
}

// fakeSearchProvider is a scriptable SearchProvider test double.
type fakeSearchProvider struct {
	name        string
	configured  bool
	searchFunc  func(ctx context.Context, query string, limit int) ([]Hit, ProviderStatus)
	calls       int
}

func (f *fakeSearchProvider) Search(ctx context.Context, query string, limit int) ([]Hit, ProviderStatus) {
	f.calls++
	if f.searchFunc != nil {
		return f.searchFunc(ctx, query, limit)
	}
	return nil, StatusEmpty
}

func (f *fakeSearchProvider) Name() string        { return f.name }
func (f *fakeSearchProvider) IsConfigured() bool  { return f.configured }
