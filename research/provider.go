package research

import "context"

// ProviderStatus is the explicit result status a SearchProvider returns in
// place of an error, so "no hits" is never confused with "failed" by the
// Dispatcher.
type ProviderStatus string

const (
	StatusOK          ProviderStatus = "OK"
	StatusEmpty       ProviderStatus = "Empty"
	StatusAuthMissing ProviderStatus = "AuthMissing"
	StatusRateLimited ProviderStatus = "RateLimited"
	StatusUpstream5xx ProviderStatus = "Upstream5xx"
	StatusTimeout     ProviderStatus = "Timeout"
	StatusMalformed   ProviderStatus = "Malformed"
)

// SearchProvider executes one query against one search backend. Grounded
// on the WebSearchProvider interface (llm/tools/web_search.go),
// generalized to an explicit status enum instead of a bare error so the
// Dispatcher can distinguish "empty" from "failed" without inspecting
// error strings.
type SearchProvider interface {
	// Search runs query against the backend, returning at most limit hits
	// in ranked order, plus a status describing how the call went. Search
	// must not panic on a malformed upstream response; it returns
	// StatusMalformed with a nil/empty hit slice instead.
	Search(ctx context.Context, query string, limit int) ([]Hit, ProviderStatus)

	// Name is the provider's stable identifier, used for dedup bookkeeping
	// and diagnostics (e.g. "GoogleCustomSearch").
	Name() string

	// IsConfigured reports whether the provider has the credentials/config
	// it needs. Unconfigured providers are excluded from the dispatch chain
	// at session-start, not probed at call time.
	IsConfigured() bool
}
