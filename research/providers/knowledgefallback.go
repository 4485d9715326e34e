package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/thomsch1/deepresearch/research"
)

// KnowledgeFallback is the chain's last resort: it makes no network call and
// never fails, guaranteeing the Dispatcher always has somewhere to land when
// every real provider is unconfigured or exhausted. It manufactures at most
// one synthetic reference per query, carrying a placeholder urn: URL so it is
// never confused with a real citable source by the classifier's credibility
// tables (see research/classify.go, where an unparseable host is Commercial
// tier, the lowest bucket).
type KnowledgeFallback struct{}

func NewKnowledgeFallback() *KnowledgeFallback { return &KnowledgeFallback{} }

func (k *KnowledgeFallback) Name() string { return "KnowledgeFallback" }

func (k *KnowledgeFallback) IsConfigured() bool { return true }

func (k *KnowledgeFallback) Search(_ context.Context, query string, _ int) ([]research.Hit, research.ProviderStatus) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, research.StatusEmpty
	}

	hit := research.Hit{
		Title:        "No live search result for: " + query,
		URL:          "urn:deepresearch:fallback:" + url.QueryEscape(query),
		Snippet:      "All configured search providers were unavailable or exhausted for this query; this is a placeholder reference, not a retrieved source.",
		ProviderName: k.Name(),
	}
	return []research.Hit{hit}, research.StatusOK
}
