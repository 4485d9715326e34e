package research

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/thomsch1/deepresearch/internal/pool"
)

// tracer names every span a research session produces; one root span per
// session (research.session) plus one child span per phase, mirroring
// cmd/agentflow/middleware.go's OTelTracing but scoped to the Orchestrator's
// own state machine instead of the HTTP request/response cycle.
var tracer = otel.Tracer("agentflow/research")

// perQueryHitLimit bounds how many hits the Dispatcher asks each provider
// for per query; spec.md requires providers accept limit<=20.
const perQueryHitLimit = 10

// deadlineGrace is how far past Session.Deadline a Finalize call may still
// run before the Orchestrator gives up outright (P8).
const deadlineGrace = 5 * time.Second

// hitScratchPool holds the per-call scratch slice search() uses to flatten
// every worker's hits before merging, so a busy Orchestrator doesn't churn
// one fresh []Hit allocation per query fan-out.
var hitScratchPool = pool.NewSlicePool[Hit](32)

// NewSessionID mints a fresh session identifier.
func NewSessionID() string { return uuid.NewString() }

// Orchestrator drives a single Session through Planning -> Searching ->
// Reflecting -> (loop or Finalizing) -> Done. It is the Session's sole
// owner: search workers only return values, the Orchestrator merges them
// back serially on its own goroutine, so Session needs no locking.
type Orchestrator struct {
	dispatcher *Dispatcher
	planner    *Planner
	reflector  *Reflector
	finalizer  *Finalizer
	logger     *zap.Logger
}

func NewOrchestrator(dispatcher *Dispatcher, planner *Planner, reflector *Reflector, finalizer *Finalizer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		planner:    planner,
		reflector:  reflector,
		finalizer:  finalizer,
		logger:     logger,
	}
}

// Run executes the full state machine for session and returns the
// finalized answer. session.Phase ends at PhaseDone on any normal
// completion, including the zero-retained-sources and deadline-exceeded
// paths; Run only returns an error for a genuinely fatal (Go-level) failure,
// never for upstream provider/LM trouble.
func (o *Orchestrator) Run(ctx context.Context, session *Session) (FinalAnswer, error) {
	runCtx, cancel := context.WithDeadline(ctx, session.Deadline.Add(deadlineGrace))
	defer cancel()

	runCtx, sessionSpan := tracer.Start(runCtx, "research.session", trace.WithAttributes(
		attribute.String("research.session_id", session.ID),
	))
	defer sessionSpan.End()

	session.Phase = PhasePlanning
	queries := o.planInitialTraced(runCtx, session)
	session.Emit(newEvent(EventQueriesGenerated, PhasePlanning, session.LoopIndex, len(queries)))

	for {
		fresh := o.recordNewQueries(session, queries)

		session.Phase = PhaseSearching
		o.searchTraced(runCtx, session, fresh)
		session.EnforceSourceCap(session.Params.MaxSourcesTotal)
		session.Emit(newEvent(EventSourcesMerged, PhaseSearching, session.LoopIndex, session.SourceCount()))

		if o.deadlineExceeded(session) {
			break
		}

		session.Phase = PhaseReflecting
		retained := session.Retained()
		reflection := o.reflectTraced(runCtx, session, retained)
		session.Emit(newEvent(EventLoopComplete, PhaseReflecting, session.LoopIndex, len(retained)))

		if o.deadlineExceeded(session) {
			break
		}
		if reflection.IsComplete {
			break
		}
		if session.LoopIndex+1 >= session.Params.MaxLoops {
			break
		}

		nextLoop := session.LoopIndex + 1
		session.Phase = PhasePlanning
		followUp := o.planFollowUpTraced(runCtx, session, reflection, nextLoop)
		session.Emit(newEvent(EventQueriesGenerated, PhasePlanning, nextLoop, len(followUp)))

		if len(followUp) == 0 {
			break
		}
		session.LoopIndex = nextLoop
		queries = followUp
	}

	session.Phase = PhaseFinalizing
	session.Emit(newEvent(EventFinalizing, PhaseFinalizing, session.LoopIndex, session.SourceCount()))

	finalizeCtx, finalizeSpan := tracer.Start(runCtx, "research.finalizing", trace.WithAttributes(
		attribute.Int("research.loop_index", session.LoopIndex),
	))
	retained := session.Retained()
	assignCitationLabels(retained)
	answer := o.finalizer.Finalize(finalizeCtx, session.Question, retained, session.Params)
	finalizeSpan.End()

	session.Phase = PhaseDone
	return answer, nil
}

func (o *Orchestrator) planInitialTraced(ctx context.Context, session *Session) []Query {
	ctx, span := tracer.Start(ctx, "research.planning", trace.WithAttributes(
		attribute.Int("research.loop_index", session.LoopIndex),
	))
	defer span.End()
	return o.planner.PlanInitial(ctx, session.Question, session.Params)
}

func (o *Orchestrator) planFollowUpTraced(ctx context.Context, session *Session, reflection Reflection, nextLoop int) []Query {
	ctx, span := tracer.Start(ctx, "research.planning", trace.WithAttributes(
		attribute.Int("research.loop_index", nextLoop),
	))
	defer span.End()
	return o.planner.PlanFollowUp(ctx, session.Question, PlannerContext{
		MissingAspects:      reflection.MissingAspects,
		AlreadyTriedQueries: session.QueriesExecuted(),
	}, session.Params, nextLoop)
}

func (o *Orchestrator) searchTraced(ctx context.Context, session *Session, queries []Query) {
	ctx, span := tracer.Start(ctx, "research.searching", trace.WithAttributes(
		attribute.Int("research.loop_index", session.LoopIndex),
		attribute.Int("research.query_count", len(queries)),
	))
	defer span.End()
	o.search(ctx, session, queries)
}

func (o *Orchestrator) reflectTraced(ctx context.Context, session *Session, retained []*Source) Reflection {
	ctx, span := tracer.Start(ctx, "research.reflecting", trace.WithAttributes(
		attribute.Int("research.loop_index", session.LoopIndex),
		attribute.Int("research.retained_count", len(retained)),
	))
	defer span.End()
	return o.reflector.Reflect(ctx, session.Question, retained, session.Params)
}

// deadlineExceeded reports whether session's wall-clock budget (not the
// grace period) has passed, for deciding whether to cut the loop short and
// move straight to Finalizing.
func (o *Orchestrator) deadlineExceeded(session *Session) bool {
	return timeNow().After(session.Deadline)
}

// recordNewQueries submits queries through Session.RecordQuery, returning
// only the subset that were not already executed this session (P7:
// queries_executed never contains a normalized duplicate).
func (o *Orchestrator) recordNewQueries(session *Session, queries []Query) []Query {
	fresh := make([]Query, 0, len(queries))
	for _, q := range queries {
		if session.RecordQuery(q.Text) {
			fresh = append(fresh, q)
		}
	}
	return fresh
}

// searchResult is one query's dispatcher outcome, collected by a worker
// goroutine and handed back to the Orchestrator's single merging loop.
type searchResult struct {
	hits     []Hit
	failures []ProviderFailure
}

// search fans queries out across the Dispatcher in parallel, bounded by
// Params.ParallelSearches, then merges every returned hit back into session
// serially on the calling goroutine. Cancellation (deadline or caller abort)
// simply causes in-flight dispatcher calls to fail locally; a hit that
// never comes back is just absent, never corrupting session state.
func (o *Orchestrator) search(ctx context.Context, session *Session, queries []Query) {
	if len(queries) == 0 {
		return
	}

	limit := session.Params.ParallelSearches
	if limit <= 0 {
		limit = 4
	}
	sem := semaphore.NewWeighted(int64(limit))

	results := make([]searchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			hits, _, failures := o.dispatcher.Search(gctx, q, perQueryHitLimit)
			results[i] = searchResult{hits: hits, failures: failures}
			return nil
		})
	}
	_ = g.Wait()

	flat := hitScratchPool.Get()
	defer func() { hitScratchPool.Put(flat) }()

	for _, res := range results {
		for _, f := range res.failures {
			session.RecordFailure(f.Provider, f.Query, f.Status)
		}
		flat = append(flat, res.hits...)
	}
	for _, hit := range flat {
		o.mergeHit(session, hit)
	}
}

// mergeHit canonicalizes, classifies, and scores hit, then merges the
// resulting Source into session (first-write-wins on a canonical-URL
// collision). Unparseable URLs are silently dropped, matching
// Canonicalize's documented contract.
func (o *Orchestrator) mergeHit(session *Session, hit Hit) {
	canonical, ok := Canonicalize(hit.URL)
	if !ok {
		return
	}

	domainType, tier := Classify(canonical)
	scores := Score(hit.Title, hit.Snippet, domainType, tier, hit.PublishedAt, session.Question, timeNow())

	src := &Source{
		Title:           hit.Title,
		Snippet:         hit.Snippet,
		PublishedAt:     hit.PublishedAt,
		DomainType:      domainType,
		CredibilityTier: tier,
		Quality:         scores,
		Overall:         scores.Overall(),
		FirstProvider:   hit.ProviderName,
	}
	session.MergeSource(canonical, src)
}

// assignCitationLabels stamps each retained source with a stable "1", "2",
// ... label in first-citation (insertion) order, which the Finalizer's
// prompt and the round-trip post-processor both key off of.
func assignCitationLabels(retained []*Source) {
	for i, src := range retained {
		src.Label = fmt.Sprintf("%d", i+1)
	}
}
