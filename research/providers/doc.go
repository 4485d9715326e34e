// Package providers implements research.SearchProvider against concrete
// search backends: Google Custom Search, SearchAPI.io, DuckDuckGo's
// Instant Answer API, the reasoning model's own search-grounding
// facility, and a network-free last-resort fallback.
package providers
