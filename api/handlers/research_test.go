package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thomsch1/deepresearch/api"
	"github.com/thomsch1/deepresearch/config"
	"github.com/thomsch1/deepresearch/internal/metrics"
	"github.com/thomsch1/deepresearch/llm"
	"github.com/thomsch1/deepresearch/research"
)

// gatheredMetricFamily finds family among everything promauto registered on
// the default registerer, for asserting a handler-level metrics call
// actually reached Prometheus rather than just not panicking.
func gatheredMetricFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// =============================================================================
// 🧪 研究编排测试替身
// =============================================================================

type fakeLMProvider struct {
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (f *fakeLMProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.completionFunc != nil {
		return f.completionFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}
func (f *fakeLMProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeLMProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}
func (f *fakeLMProvider) Name() string                       { return "fake" }
func (f *fakeLMProvider) SupportsNativeFunctionCalling() bool { return true }
func (f *fakeLMProvider) ListModels(ctx context.Context) ([]llm.Model, error) {
	return nil, nil
}

type fakeSearchProvider struct {
	name       string
	configured bool
	searchFunc func(ctx context.Context, query string, limit int) ([]research.Hit, research.ProviderStatus)
}

func (f *fakeSearchProvider) Search(ctx context.Context, query string, limit int) ([]research.Hit, research.ProviderStatus) {
	if f.searchFunc != nil {
		return f.searchFunc(ctx, query, limit)
	}
	return nil, research.StatusEmpty
}
func (f *fakeSearchProvider) Name() string       { return f.name }
func (f *fakeSearchProvider) IsConfigured() bool { return f.configured }

func toolReply(toolName string, args any) (*llm.ChatResponse, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Choices: []llm.ChatChoice{{
			Message: llm.Message{
				Role:      llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{ID: "call_1", Name: toolName, Arguments: raw}},
			},
		}},
	}, nil
}

func testResearchConfig() config.ResearchConfig {
	return config.ResearchConfig{
		LMDefaultModel:           "claude-test",
		InitialQueryCountDefault: 1,
		FollowupQueryCount:       1,
		MaxLoopsDefault:          1,
		MaxSourcesTotal:          20,
		ParallelSearches:         2,
		QualityThresholdDefault:  0.5,
	}
}

func newTestResearchHandler(t *testing.T, provider llm.Provider, search *fakeSearchProvider) *ResearchHandler {
	t.Helper()
	dispatcher := research.NewDispatcher([]research.SearchProvider{search}, 0, 2, zap.NewNop())
	orchestrator := research.NewOrchestrator(
		dispatcher,
		research.NewPlanner(provider),
		research.NewReflector(provider),
		research.NewFinalizer(provider),
		zap.NewNop(),
	)
	return NewResearchHandler(orchestrator, testResearchConfig(), zap.NewNop(), nil)
}

func okSearch() *fakeSearchProvider {
	return &fakeSearchProvider{name: "S", configured: true, searchFunc: func(ctx context.Context, query string, limit int) ([]research.Hit, research.ProviderStatus) {
		return []research.Hit{{Title: "t", URL: "https://example.com/a", Snippet: "a reasonably long snippet of text for scoring purposes here"}}, research.StatusOK
	}}
}

func stubLMProvider() *fakeLMProvider {
	const (
		plannerToolName   = "propose_search_queries"
		reflectorToolName = "report_research_gaps"
		finalizerToolName = "submit_final_answer"
	)
	return &fakeLMProvider{completionFunc: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		for _, tool := range req.Tools {
			switch tool.Name {
			case plannerToolName:
				return toolReply(plannerToolName, map[string]any{"queries": []string{}})
			case reflectorToolName:
				return toolReply(reflectorToolName, map[string]any{"is_complete": true, "completeness_score": 1.0})
			case finalizerToolName:
				return toolReply(finalizerToolName, map[string]any{"answer": "Per [1], the answer is clear."})
			}
		}
		return &llm.ChatResponse{Choices: []llm.ChatChoice{{}}}, nil
	}}
}

// =============================================================================
// 🧪 HandleResearch 测试
// =============================================================================

func TestResearchHandler_HandleResearch_NilOrchestrator(t *testing.T) {
	handler := NewResearchHandler(nil, testResearchConfig(), zap.NewNop(), nil)

	body, err := json.Marshal(api.ResearchRequest{Question: "why is the sky blue"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	handler.HandleResearch(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestResearchHandler_HandleResearch_InvalidRequest(t *testing.T) {
	handler := newTestResearchHandler(t, stubLMProvider(), okSearch())

	body, err := json.Marshal(api.ResearchRequest{Question: ""})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	handler.HandleResearch(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResearchHandler_HandleResearch_Success(t *testing.T) {
	handler := newTestResearchHandler(t, stubLMProvider(), okSearch())

	body, err := json.Marshal(api.ResearchRequest{Question: "what caused the financial crisis"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	handler.HandleResearch(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	assert.True(t, envelope.Success)

	dataBytes, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var resp api.ResearchResponse
	require.NoError(t, json.Unmarshal(dataBytes, &resp))

	assert.NotEmpty(t, resp.FinalAnswer)
	assert.Equal(t, 1, resp.ResearchLoopsExecuted)
	assert.False(t, resp.FilteringApplied)
	assert.Nil(t, resp.QualitySummary)
}

func TestResearchHandler_HandleResearch_EnhancedFilteringPopulatesSummary(t *testing.T) {
	handler := newTestResearchHandler(t, stubLMProvider(), okSearch())

	body, err := json.Marshal(api.ResearchRequest{
		Question:          "what caused the financial crisis",
		EnhancedFiltering: true,
		QualityThreshold:  ptrFloat64(0.9),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	handler.HandleResearch(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	dataBytes, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var resp api.ResearchResponse
	require.NoError(t, json.Unmarshal(dataBytes, &resp))

	assert.True(t, resp.FilteringApplied)
	require.NotNil(t, resp.QualitySummary)
	assert.Equal(t, 0.9, resp.QualitySummary.Threshold)
}

func TestResearchHandler_HandleResearch_RecordsSessionMetrics(t *testing.T) {
	dispatcher := research.NewDispatcher([]research.SearchProvider{okSearch()}, 0, 2, zap.NewNop())
	provider := stubLMProvider()
	orchestrator := research.NewOrchestrator(
		dispatcher,
		research.NewPlanner(provider),
		research.NewReflector(provider),
		research.NewFinalizer(provider),
		zap.NewNop(),
	)
	collector := metrics.NewCollector("research_handler_test", zap.NewNop())
	handler := NewResearchHandler(orchestrator, testResearchConfig(), zap.NewNop(), collector)

	body, err := json.Marshal(api.ResearchRequest{Question: "what caused the financial crisis"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/research", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	handler.HandleResearch(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	family := gatheredMetricFamily(t, "research_handler_test_research_sessions_total")
	require.NotNil(t, family, "expected RecordResearchSession to register a research_sessions_total series")
	var total float64
	for _, m := range family.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	assert.Equal(t, float64(1), total)
}

// =============================================================================
// 🧪 校验 / 过滤解析测试
// =============================================================================

func TestValidateResearchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     api.ResearchRequest
		wantErr bool
	}{
		{"valid minimal", api.ResearchRequest{Question: "why"}, false},
		{"empty question", api.ResearchRequest{Question: "   "}, true},
		{"loop count too high", api.ResearchRequest{Question: "why", MaxResearchLoops: 11}, true},
		{"query count too low", api.ResearchRequest{Question: "why", InitialSearchQueryCount: -1}, true},
		{"bad quality filter", api.ResearchRequest{Question: "why", SourceQualityFilter: "extreme"}, true},
		{"threshold out of range", api.ResearchRequest{Question: "why", QualityThreshold: ptrFloat64(1.5)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResearchRequest(&tt.req)
			if tt.wantErr {
				assert.NotNil(t, err)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestResolveFilters(t *testing.T) {
	base := testResearchConfig()

	minTier, threshold, applied := resolveFilters(&api.ResearchRequest{}, base)
	assert.Equal(t, research.TierLow, minTier)
	assert.Equal(t, base.QualityThresholdDefault, threshold)
	assert.False(t, applied)

	minTier, _, applied = resolveFilters(&api.ResearchRequest{SourceQualityFilter: "high"}, base)
	assert.Equal(t, research.TierHigh, minTier)
	assert.True(t, applied)

	_, threshold, applied = resolveFilters(&api.ResearchRequest{EnhancedFiltering: true, QualityThreshold: ptrFloat64(0.75)}, base)
	assert.Equal(t, 0.75, threshold)
	assert.True(t, applied)

	_, threshold, _ = resolveFilters(&api.ResearchRequest{EnhancedFiltering: true}, base)
	assert.Equal(t, base.QualityThresholdDefault, threshold)

	_, threshold, applied = resolveFilters(&api.ResearchRequest{EnhancedFiltering: true, QualityThreshold: ptrFloat64(0)}, base)
	assert.Equal(t, 0.0, threshold)
	assert.True(t, applied)
}

func ptrFloat64(f float64) *float64 { return &f }
