package research

import (
	"sort"
	"strings"
	"time"

	"github.com/thomsch1/deepresearch/config"
)

// Phase is one state of the Session state machine.
type Phase string

const (
	PhasePlanning    Phase = "Planning"
	PhaseSearching   Phase = "Searching"
	PhaseReflecting  Phase = "Reflecting"
	PhaseFinalizing  Phase = "Finalizing"
	PhaseDone        Phase = "Done"
	PhaseFailed      Phase = "Failed"
)

// QueryOrigin distinguishes a Planner's initial queries from its follow-ups.
type QueryOrigin string

const (
	OriginInitial  QueryOrigin = "Initial"
	OriginFollowUp QueryOrigin = "FollowUp"
)

// DomainType classifies the site a Source was found on.
type DomainType string

const (
	DomainAcademic   DomainType = "Academic"
	DomainNews       DomainType = "News"
	DomainOfficial   DomainType = "Official"
	DomainCommercial DomainType = "Commercial"
	DomainReference  DomainType = "Reference"
	DomainOther      DomainType = "Other"
)

// CredibilityTier is an ordered trust tier. Order matters: High > Medium > Low,
// used by the minimum-tier filter gate.
type CredibilityTier string

const (
	TierHigh   CredibilityTier = "High"
	TierMedium CredibilityTier = "Medium"
	TierLow    CredibilityTier = "Low"
)

// rank returns a tier's ordinal for comparison; higher is more trusted.
func (t CredibilityTier) rank() int {
	switch t {
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	case TierLow:
		return 0
	default:
		return -1
	}
}

// AtLeast reports whether t is at least as trusted as min.
func (t CredibilityTier) AtLeast(min CredibilityTier) bool {
	return t.rank() >= min.rank()
}

// Query is an immutable normalized search query.
type Query struct {
	Text      string
	Origin    QueryOrigin
	LoopIndex int
}

// NormalizeQuery trims, collapses whitespace, and case-folds q for dedup
// purposes. The returned string is used both as the stored query text and
// as the dedup key in Session.queriesExecuted.
func NormalizeQuery(q string) string {
	fields := strings.Fields(strings.TrimSpace(q))
	return strings.ToLower(strings.Join(fields, " "))
}

// Hit is an immutable, unscored candidate result from one provider call.
type Hit struct {
	Title        string
	URL          string
	Snippet      string
	ProviderName string
	PublishedAt  *time.Time
}

// QualityScores holds the five sub-scores that compose a Source's overall
// quality score. Each value lies in [0,1].
type QualityScores struct {
	Credibility  float64
	Relevance    float64
	Completeness float64
	Recency      float64
	Authority    float64
}

// Weights used to combine QualityScores into Overall. Named so tests can
// recompute the exact expected value.
const (
	WeightCredibility  = 0.30
	WeightRelevance    = 0.30
	WeightCompleteness = 0.15
	WeightRecency      = 0.15
	WeightAuthority    = 0.10
)

// Overall computes the weighted mean quality score from its sub-scores.
func (q QualityScores) Overall() float64 {
	return q.Credibility*WeightCredibility +
		q.Relevance*WeightRelevance +
		q.Completeness*WeightCompleteness +
		q.Recency*WeightRecency +
		q.Authority*WeightAuthority
}

// Source is a deduplicated, classified, and scored Hit merged into a
// session. It is mutable only until Quality/Overall are assigned by score();
// after that it is treated as immutable.
type Source struct {
	URL             string // canonical form
	Title           string
	Snippet         string
	PublishedAt     *time.Time
	DomainType      DomainType
	CredibilityTier CredibilityTier
	Quality         QualityScores
	Overall         float64
	Label           string // citation marker, e.g. "3"; assigned at finalization
	FirstProvider   string // provider that first supplied this source
}

// Retained reports whether the source passes the given filter: an
// AND of the numeric overall threshold and the minimum credibility tier.
func (s *Source) Retained(threshold float64, minTier CredibilityTier) bool {
	return s.Overall >= threshold && s.CredibilityTier.AtLeast(minTier)
}

// ProviderFailure records one non-fatal dispatcher/provider error for the
// session's diagnostics channel.
type ProviderFailure struct {
	Provider string
	Query    string
	Status   ProviderStatus
	At       time.Time
}

// Session is the mutable, per-request state the Orchestrator exclusively
// owns. No field is ever mutated by a provider or LM call
// directly; workers return values and the Orchestrator merges them
// serially, so Session needs no internal locking.
type Session struct {
	ID       string
	Question string
	Params   Params
	Deadline time.Time

	LoopIndex int
	Phase     Phase

	queriesExecuted []string          // normalized, insertion order
	queriesSeen     map[string]bool   // dedup set, same key space
	sources         map[string]*Source // canonical URL -> Source
	sourceOrder     []string          // canonical URLs, first-merge order

	Diagnostics []ProviderFailure
	Events      chan Event // optional side channel, buffered, non-blocking send
}

// NewSession creates a Session in the Planning phase with the given
// deadline already computed from Params.SessionDeadline.
func NewSession(id, question string, p Params) *Session {
	now := timeNow()
	return &Session{
		ID:              id,
		Question:        question,
		Params:          p,
		Deadline:        now.Add(p.SessionDeadline),
		Phase:           PhasePlanning,
		queriesSeen:     make(map[string]bool),
		sources:         make(map[string]*Source),
		Events:          make(chan Event, 64),
	}
}

// timeNow is indirected so deadline computation stays deterministic to test.
var timeNow = time.Now

// RecordQuery adds text to queriesExecuted if its normalized form hasn't
// been seen before in this session. Returns true if it was newly added
// (invariant 3 / property P7).
func (s *Session) RecordQuery(text string) bool {
	key := NormalizeQuery(text)
	if key == "" || s.queriesSeen[key] {
		return false
	}
	s.queriesSeen[key] = true
	s.queriesExecuted = append(s.queriesExecuted, text)
	return true
}

// QueriesExecuted returns the ordered, deduplicated list of query texts
// submitted to the Dispatcher so far.
func (s *Session) QueriesExecuted() []string {
	out := make([]string, len(s.queriesExecuted))
	copy(out, s.queriesExecuted)
	return out
}

// MergeSource inserts candidate under canonicalURL if no Source is already
// registered there (first-write-wins, step 2). Returns the
// Source now stored under that key and whether it was newly inserted.
func (s *Session) MergeSource(canonicalURL string, candidate *Source) (*Source, bool) {
	if existing, ok := s.sources[canonicalURL]; ok {
		return existing, false
	}
	candidate.URL = canonicalURL
	s.sources[canonicalURL] = candidate
	s.sourceOrder = append(s.sourceOrder, canonicalURL)
	return candidate, true
}

// Sources returns all merged sources in insertion (first-merge) order.
func (s *Session) Sources() []*Source {
	out := make([]*Source, 0, len(s.sourceOrder))
	for _, u := range s.sourceOrder {
		out = append(out, s.sources[u])
	}
	return out
}

// SourceCount returns the number of distinct sources merged so far.
func (s *Session) SourceCount() int {
	return len(s.sources)
}

// EnforceSourceCap drops the lowest-overall sources, in excess of max, from
// the session. Dropped sources are removed from
// both the map and the order slice; ties are broken by keeping the
// earlier-merged source, matching the "excess are dropped after scoring,
// lowest overall first" rule.
func (s *Session) EnforceSourceCap(max int) {
	if max <= 0 || len(s.sourceOrder) <= max {
		return
	}
	kept := make([]string, len(s.sourceOrder))
	copy(kept, s.sourceOrder)
	sort.SliceStable(kept, func(i, j int) bool {
		return s.sources[kept[i]].Overall > s.sources[kept[j]].Overall
	})
	drop := kept[max:]
	keepSet := make(map[string]bool, max)
	for _, u := range kept[:max] {
		keepSet[u] = true
	}
	for _, u := range drop {
		delete(s.sources, u)
	}
	newOrder := make([]string, 0, max)
	for _, u := range s.sourceOrder {
		if keepSet[u] {
			newOrder = append(newOrder, u)
		}
	}
	s.sourceOrder = newOrder
}

// Retained returns the subset of Sources(), in insertion order, that pass
// the session's quality filter.
func (s *Session) Retained() []*Source {
	var out []*Source
	for _, src := range s.Sources() {
		if src.Retained(s.Params.QualityThreshold, s.Params.MinTier) {
			out = append(out, src)
		}
	}
	return out
}

// Filtered returns the subset of Sources(), in insertion order, that fail
// the session's quality filter.
func (s *Session) Filtered() []*Source {
	var out []*Source
	for _, src := range s.Sources() {
		if !src.Retained(s.Params.QualityThreshold, s.Params.MinTier) {
			out = append(out, src)
		}
	}
	return out
}

// RecordFailure appends a non-fatal provider/dispatcher failure to the
// session's diagnostics channel. It never aborts the session.
func (s *Session) RecordFailure(provider, query string, status ProviderStatus) {
	s.Diagnostics = append(s.Diagnostics, ProviderFailure{
		Provider: provider,
		Query:    query,
		Status:   status,
		At:       timeNow(),
	})
}

// Emit sends an event on the optional side channel with a non-blocking
// send: a slow or absent subscriber never blocks the Orchestrator.
func (s *Session) Emit(ev Event) {
	if s.Events == nil {
		return
	}
	select {
	case s.Events <- ev:
	default:
	}
}

// Params is the effective, immutable configuration snapshot for one
// session: config.ResearchConfig defaults overridden by the per-request
// fields.
type Params struct {
	config.ResearchConfig

	InitialQueryCount int
	MaxLoops          int
	ReasoningModel    string
	MinTier           CredibilityTier
	QualityThreshold  float64
	EnhancedFiltering bool
}

// NewParams builds a Params snapshot from a base config and per-request
// overrides, applying defaults and bounds. Zero-value ints
// for initialQueryCount/maxLoops mean "use the config default".
func NewParams(base config.ResearchConfig, initialQueryCount, maxLoops int, reasoningModel string, minTier CredibilityTier, qualityThreshold float64, enhancedFiltering bool) Params {
	p := Params{
		ResearchConfig:    base,
		InitialQueryCount: initialQueryCount,
		MaxLoops:          maxLoops,
		ReasoningModel:    reasoningModel,
		MinTier:           minTier,
		QualityThreshold:  qualityThreshold,
		EnhancedFiltering: enhancedFiltering,
	}
	if p.InitialQueryCount <= 0 {
		p.InitialQueryCount = base.InitialQueryCountDefault
	}
	if p.InitialQueryCount > 10 {
		p.InitialQueryCount = 10
	}
	if p.MaxLoops <= 0 {
		p.MaxLoops = base.MaxLoopsDefault
	}
	if p.MaxLoops > 10 {
		p.MaxLoops = 10
	}
	if p.ReasoningModel == "" {
		p.ReasoningModel = base.LMDefaultModel
	}
	if p.MinTier == "" {
		p.MinTier = TierLow
	}
	return p
}
