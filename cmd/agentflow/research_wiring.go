package main

import (
	"strings"

	"go.uber.org/zap"

	"github.com/thomsch1/deepresearch/config"
	"github.com/thomsch1/deepresearch/internal/metrics"
	"github.com/thomsch1/deepresearch/llm"
	"github.com/thomsch1/deepresearch/providers"
	"github.com/thomsch1/deepresearch/providers/anthropic"
	"github.com/thomsch1/deepresearch/research"
	researchproviders "github.com/thomsch1/deepresearch/research/providers"
)

// buildLMProvider constructs the shared reasoning-model client used by both
// the server's chat/research handlers and the "ask" CLI command, or nil
// when no credentials are configured. When a fallback key/model pair is
// also configured, both providers are registered in a ProviderRegistry and
// the default one is returned; this keeps the registry as the one place
// that decides which configured reasoning-model credential backs the
// research session, rather than scattering that choice across callers.
func buildLMProvider(cfg *config.Config, logger *zap.Logger) llm.Provider {
	if strings.TrimSpace(cfg.Research.LMAPIKey) == "" {
		return nil
	}

	registry := llm.NewProviderRegistry()
	registry.Register(cfg.Research.LMDefaultModel, anthropic.NewClaudeProvider(providers.ClaudeConfig{
		APIKey:  cfg.Research.LMAPIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.Research.LMDefaultModel,
		Timeout: cfg.LLM.Timeout,
	}, logger))

	if strings.TrimSpace(cfg.Research.LMFallbackAPIKey) != "" && strings.TrimSpace(cfg.Research.LMFallbackModel) != "" {
		registry.Register(cfg.Research.LMFallbackModel, anthropic.NewClaudeProvider(providers.ClaudeConfig{
			APIKey:  cfg.Research.LMFallbackAPIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.Research.LMFallbackModel,
			Timeout: cfg.LLM.Timeout,
		}, logger))
	}

	if err := registry.SetDefault(cfg.Research.LMDefaultModel); err != nil {
		logger.Error("failed to set default reasoning-model provider", zap.Error(err))
		return nil
	}
	logger.Info("reasoning-model providers configured", zap.Strings("models", registry.List()))

	provider, err := registry.Default()
	if err != nil {
		logger.Error("no default reasoning-model provider available", zap.Error(err))
		return nil
	}
	return provider
}

// buildResearchOrchestrator wires the fixed search-provider fallback chain
// (LMGrounded, GoogleCustomSearch, SearchAPI, DuckDuckGo, KnowledgeFallback)
// into a Dispatcher, and the Dispatcher plus the LM-backed Planner,
// Reflector and Finalizer into an Orchestrator. It returns nil when
// lmProvider is nil, since Planner/Reflector/Finalizer all require one.
// collector may be nil (the "ask" CLI command has no metrics server), in
// which case the dispatcher's per-provider telemetry is simply not recorded.
func buildResearchOrchestrator(cfg *config.Config, lmProvider llm.Provider, logger *zap.Logger, collector *metrics.Collector) *research.Orchestrator {
	if lmProvider == nil {
		return nil
	}

	httpClient := researchproviders.NewSharedHTTPClient(
		cfg.Research.PerProviderTimeout,
		cfg.Research.HTTPMaxConnections,
	)

	chain := []research.SearchProvider{
		researchproviders.NewLMGrounded(lmProvider, cfg.Research.LMDefaultModel),
		researchproviders.NewGoogleCustomSearch(cfg.Research.Providers.GoogleAPIKey, cfg.Research.Providers.GoogleCSEID, httpClient),
		researchproviders.NewSearchAPI(cfg.Research.Providers.SearchAPIKey, httpClient),
		researchproviders.NewDuckDuckGo(httpClient),
		researchproviders.NewKnowledgeFallback(),
	}

	dispatcher := research.NewDispatcher(chain, cfg.Research.PerProviderRetries, cfg.Research.ProviderConcurrency, logger)
	logger.Info("research dispatcher configured", zap.Int("configured_providers", dispatcher.Configured()))
	if collector != nil {
		dispatcher.SetMetrics(collector)
	}

	planner := research.NewPlanner(lmProvider)
	reflector := research.NewReflector(lmProvider)
	finalizer := research.NewFinalizer(lmProvider)

	return research.NewOrchestrator(dispatcher, planner, reflector, finalizer, logger)
}
