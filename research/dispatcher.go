package research

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/thomsch1/deepresearch/internal/metrics"
	"github.com/thomsch1/deepresearch/llm/retry"
)

// DispatchStatus summarizes the outcome of one Dispatcher.Search call across
// the whole provider chain.
type DispatchStatus string

const (
	DispatchOK           DispatchStatus = "OK"
	DispatchAllExhausted DispatchStatus = "AllExhausted"
)

// Dispatcher walks a fixed, ordered chain of SearchProviders for each query,
// stopping at the first provider that returns StatusOK with non-empty hits.
// It never retries a provider itself — retry lives inside each provider
// (see newRetryingProvider) — it only falls over to the next provider in the
// chain. Per-provider concurrency is bounded by a semaphore so a slow
// provider cannot starve the others when many queries dispatch in parallel.
type Dispatcher struct {
	chain   []SearchProvider
	sems    map[string]*semaphore.Weighted
	logger  *zap.Logger
	metrics *metrics.Collector
}

// SetMetrics attaches a Prometheus collector that Search reports
// per-provider outcomes and fallback depth to. A nil collector (the zero
// value) leaves Search's metrics calls as no-ops, which is what every
// Dispatcher not built through cmd/agentflow's wiring gets.
func (d *Dispatcher) SetMetrics(m *metrics.Collector) {
	d.metrics = m
}

// NewDispatcher builds the fixed fallback chain from providers (already
// constructed in LMGrounded, GoogleCustomSearch, SearchAPI, DuckDuckGo,
// KnowledgeFallback order), filtering to IsConfigured() ones and wrapping
// each with provider-internal retry per maxRetries. concurrency bounds how
// many in-flight Search calls a single provider serves at once.
func NewDispatcher(providers []SearchProvider, maxRetries, concurrency int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	chain := make([]SearchProvider, 0, len(providers))
	sems := make(map[string]*semaphore.Weighted, len(providers))
	for _, p := range providers {
		if p == nil || !p.IsConfigured() {
			continue
		}
		chain = append(chain, newRetryingProvider(p, maxRetries, logger))
		sems[p.Name()] = semaphore.NewWeighted(int64(concurrency))
	}

	return &Dispatcher{chain: chain, sems: sems, logger: logger}
}

// Configured reports how many providers survived the IsConfigured() filter.
func (d *Dispatcher) Configured() int { return len(d.chain) }

// Search runs query against the chain in order, asking each provider for at
// most limit hits, and returns the first provider's hits that come back
// StatusOK with at least one hit. Every earlier failure is appended to
// failures for diagnostics. If the whole chain is exhausted without a usable
// result, it returns an empty slice and DispatchAllExhausted — a non-fatal,
// expected outcome when every provider legitimately has nothing for this
// query.
func (d *Dispatcher) Search(ctx context.Context, query Query, limit int) ([]Hit, DispatchStatus, []ProviderFailure) {
	var failures []ProviderFailure

	for _, p := range d.chain {
		sem := d.sems[rootProviderName(p)]
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				failures = append(failures, ProviderFailure{
					Provider: p.Name(),
					Query:    query.Text,
					Status:   StatusTimeout,
					At:       timeNow(),
				})
				continue
			}
		}

		hits, status := p.Search(ctx, query.Text, limit)

		if sem != nil {
			sem.Release(1)
		}

		if d.metrics != nil {
			d.metrics.RecordProviderStatus(p.Name(), string(status))
		}

		if status == StatusOK && len(hits) > 0 {
			if d.metrics != nil {
				d.metrics.RecordProviderFallback(len(failures))
			}
			return hits, DispatchOK, failures
		}

		failures = append(failures, ProviderFailure{
			Provider: p.Name(),
			Query:    query.Text,
			Status:   status,
			At:       timeNow(),
		})

		if ctx.Err() != nil {
			break
		}
	}

	return nil, DispatchAllExhausted, failures
}

// rootProviderName unwraps a retryingProvider to the underlying provider's
// Name(), which is identical regardless of wrapping, but spelled out so the
// semaphore map lookup is obviously independent of the retry decoration.
func rootProviderName(p SearchProvider) string { return p.Name() }

// retryingProvider decorates a SearchProvider with provider-internal retry
// on transient statuses (Timeout, Upstream5xx, RateLimited), using the
// teacher's exponential-backoff retryer (llm/retry) with the spec's mandated
// base/cap instead of its general-purpose LLM-call defaults.
type retryingProvider struct {
	SearchProvider
	retryer retry.Retryer
}

func newRetryingProvider(p SearchProvider, maxRetries int, logger *zap.Logger) SearchProvider {
	if maxRetries <= 0 {
		return p
	}
	policy := &retry.RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	return &retryingProvider{SearchProvider: p, retryer: retry.NewBackoffRetryer(policy, logger)}
}

type retryableStatusError struct{ status ProviderStatus }

func (e *retryableStatusError) Error() string { return string(e.status) }

func isRetryableStatus(status ProviderStatus) bool {
	switch status {
	case StatusTimeout, StatusUpstream5xx, StatusRateLimited:
		return true
	default:
		return false
	}
}

func (r *retryingProvider) Search(ctx context.Context, query string, limit int) ([]Hit, ProviderStatus) {
	var hits []Hit
	var status ProviderStatus
	_ = r.retryer.Do(ctx, func() error {
		hits, status = r.SearchProvider.Search(ctx, query, limit)
		if isRetryableStatus(status) {
			return &retryableStatusError{status: status}
		}
		return nil
	})
	return hits, status
}
