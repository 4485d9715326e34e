package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thomsch1/deepresearch/api"
	"github.com/thomsch1/deepresearch/config"
	"github.com/thomsch1/deepresearch/internal/metrics"
	"github.com/thomsch1/deepresearch/llm/tokenizer"
	"github.com/thomsch1/deepresearch/research"
	"github.com/thomsch1/deepresearch/types"
)

// =============================================================================
// 🔬 深度研究 Handler
// =============================================================================

// maxQuestionBytes bounds ResearchRequest.Question per spec.
const maxQuestionBytes = 4 * 1024

// maxQuestionTokens bounds the question's estimated token count, catching
// multi-byte-heavy text that clears maxQuestionBytes but would still eat an
// outsized share of the reasoning model's context window on its own.
const maxQuestionTokens = 1024

var validQualityFilters = []string{"any", "medium", "high"}

// ResearchHandler serves the deep-research orchestration endpoint. A nil
// orchestrator means no reasoning model was configured at startup; the
// handler then answers every request with 503 rather than panicking.
type ResearchHandler struct {
	orchestrator *research.Orchestrator
	baseConfig   config.ResearchConfig
	logger       *zap.Logger
	metrics      *metrics.Collector
}

// NewResearchHandler creates the handler. baseConfig supplies defaults
// (initial query count, max loops, quality threshold, etc.) that a request
// can individually override. collector may be nil, in which case completed
// sessions simply aren't recorded to Prometheus.
func NewResearchHandler(orchestrator *research.Orchestrator, baseConfig config.ResearchConfig, logger *zap.Logger, collector *metrics.Collector) *ResearchHandler {
	return &ResearchHandler{
		orchestrator: orchestrator,
		baseConfig:   baseConfig,
		logger:       logger,
		metrics:      collector,
	}
}

// HandleResearch runs one end-to-end research session and returns the
// synthesized, cited answer.
// @Summary Deep research
// @Description Plan, search, reflect, and synthesize a cited answer to a research question
// @Tags Research
// @Accept json
// @Produce json
// @Param request body api.ResearchRequest true "Research request"
// @Success 200 {object} api.ResearchResponse "Research response"
// @Failure 400 {object} Response "Invalid request"
// @Failure 503 {object} Response "Orchestrator not ready"
// @Failure 500 {object} Response "Internal error"
// @Security ApiKeyAuth
// @Router /v1/research [post]
func (h *ResearchHandler) HandleResearch(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"research orchestrator is not configured (no reasoning model at startup)", h.logger)
		return
	}

	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ResearchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := validateResearchRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	minTier, qualityThreshold, filteringApplied := resolveFilters(&req, h.baseConfig)

	params := research.NewParams(
		h.baseConfig,
		req.InitialSearchQueryCount,
		req.MaxResearchLoops,
		req.ReasoningModel,
		minTier,
		qualityThreshold,
		req.EnhancedFiltering,
	)

	session := research.NewSession(research.NewSessionID(), req.Question, params)

	start := time.Now()
	answer, err := h.orchestrator.Run(r.Context(), session)
	duration := time.Since(start)
	if err != nil {
		apiErr := types.NewError(types.ErrInternalError, "research session failed").WithCause(err)
		WriteError(w, apiErr, h.logger)
		return
	}

	resp := buildResponse(session, answer, filteringApplied)

	if h.metrics != nil {
		h.metrics.RecordResearchSession(string(session.Phase), duration, resp.ResearchLoopsExecuted)
		if resp.QualitySummary != nil {
			h.metrics.RecordQualitySummary(resp.QualitySummary.Included, resp.QualitySummary.Filtered, resp.QualitySummary.AverageOverall)
		}
	}

	h.logger.Info("research session complete",
		zap.String("session_id", session.ID),
		zap.Int("loops", resp.ResearchLoopsExecuted),
		zap.Int("sources_retained", len(resp.Sources)),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, resp)
}

func validateResearchRequest(req *api.ResearchRequest) *types.Error {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return types.NewError(types.ErrInvalidRequest, "question is required")
	}
	if len(req.Question) > maxQuestionBytes {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("question exceeds %d bytes", maxQuestionBytes))
	}
	tok := tokenizer.GetTokenizerOrEstimator(req.ReasoningModel)
	if n, err := tok.CountTokens(question); err == nil && n > maxQuestionTokens {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("question exceeds %d estimated tokens", maxQuestionTokens))
	}
	if req.InitialSearchQueryCount != 0 && (req.InitialSearchQueryCount < 1 || req.InitialSearchQueryCount > 10) {
		return types.NewError(types.ErrInvalidRequest, "initial_search_query_count must be in [1,10]")
	}
	if req.MaxResearchLoops != 0 && (req.MaxResearchLoops < 1 || req.MaxResearchLoops > 10) {
		return types.NewError(types.ErrInvalidRequest, "max_research_loops must be in [1,10]")
	}
	if req.SourceQualityFilter != "" && !ValidateEnum(req.SourceQualityFilter, validQualityFilters) {
		return types.NewError(types.ErrInvalidRequest, "source_quality_filter must be one of any, medium, high")
	}
	if req.QualityThreshold != nil && (*req.QualityThreshold < 0 || *req.QualityThreshold > 1) {
		return types.NewError(types.ErrInvalidRequest, "quality_threshold must be in [0,1]")
	}
	return nil
}

// resolveFilters maps the wire request's filter fields to their internal
// equivalents and reports whether any filter deviates from its default,
// per the filtering_applied response field.
func resolveFilters(req *api.ResearchRequest, baseConfig config.ResearchConfig) (research.CredibilityTier, float64, bool) {
	minTier := research.TierLow
	filteringApplied := false

	switch req.SourceQualityFilter {
	case "medium":
		minTier = research.TierMedium
		filteringApplied = true
	case "high":
		minTier = research.TierHigh
		filteringApplied = true
	}

	threshold := baseConfig.QualityThresholdDefault
	if req.EnhancedFiltering {
		filteringApplied = true
		if req.QualityThreshold != nil {
			threshold = *req.QualityThreshold
		}
	}

	return minTier, threshold, filteringApplied
}

func buildResponse(session *research.Session, answer research.FinalAnswer, filteringApplied bool) api.ResearchResponse {
	retained := session.Retained()

	resp := api.ResearchResponse{
		FinalAnswer:           answer.Text,
		Sources:               toSourceWires(retained, true),
		FilteringApplied:      filteringApplied,
		ResearchLoopsExecuted: session.LoopIndex + 1,
		TotalQueries:          len(session.QueriesExecuted()),
	}

	if session.Params.EnhancedFiltering {
		filtered := session.Filtered()
		resp.FilteredSources = toSourceWires(filtered, true)

		var sum float64
		for _, src := range retained {
			sum += src.Overall
		}
		avg := 0.0
		if len(retained) > 0 {
			avg = sum / float64(len(retained))
		}
		resp.QualitySummary = &api.QualitySummary{
			Total:          session.SourceCount(),
			Included:       len(retained),
			Filtered:       len(filtered),
			AverageOverall: avg,
			Threshold:      session.Params.QualityThreshold,
		}
	}

	return resp
}

func toSourceWires(sources []*research.Source, withBreakdown bool) []api.SourceWire {
	out := make([]api.SourceWire, 0, len(sources))
	for _, src := range sources {
		wire := api.SourceWire{
			Title:           src.Title,
			URL:             src.URL,
			Label:           src.Label,
			DomainType:      string(src.DomainType),
			CredibilityTier: string(src.CredibilityTier),
			QualityScore:    src.Overall,
		}
		if withBreakdown {
			wire.QualityBreakdown = &api.QualityBreakdown{
				Credibility:  src.Quality.Credibility,
				Relevance:    src.Quality.Relevance,
				Completeness: src.Quality.Completeness,
				Recency:      src.Quality.Recency,
				Authority:    src.Quality.Authority,
			}
		}
		out = append(out, wire)
	}
	return out
}
