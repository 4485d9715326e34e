package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/thomsch1/deepresearch/research"
)

// DuckDuckGo queries the Instant Answer API (https://duckduckgo.com/api).
// It needs no API key, so IsConfigured always reports true; it is the chain's
// penultimate, network-based fallback ahead of KnowledgeFallback.
type DuckDuckGo struct {
	client *http.Client
}

func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	return &DuckDuckGo{client: client}
}

func (d *DuckDuckGo) Name() string { return "DuckDuckGo" }

func (d *DuckDuckGo) IsConfigured() bool { return true }

type duckDuckGoResponse struct {
	AbstractText string                `json:"AbstractText"`
	AbstractURL  string                `json:"AbstractURL"`
	Heading      string                `json:"Heading"`
	RelatedTopics []duckDuckGoRelated  `json:"RelatedTopics"`
}

type duckDuckGoRelated struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]research.Hit, research.ProviderStatus) {
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	endpoint := "https://api.duckduckgo.com/?" + url.Values{
		"q":           {query},
		"format":      {"json"},
		"no_html":     {"1"},
		"skip_disambig": {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, research.StatusMalformed
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, research.StatusTimeout
		}
		return nil, research.StatusUpstream5xx
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, research.StatusRateLimited
	case resp.StatusCode >= 500:
		return nil, research.StatusUpstream5xx
	case resp.StatusCode >= 400:
		return nil, research.StatusMalformed
	}

	var parsed duckDuckGoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, research.StatusMalformed
	}

	hits := make([]research.Hit, 0, len(parsed.RelatedTopics)+1)
	if parsed.AbstractURL != "" {
		hits = append(hits, research.Hit{
			Title:        parsed.Heading,
			URL:          parsed.AbstractURL,
			Snippet:      parsed.AbstractText,
			ProviderName: d.Name(),
		})
	}
	for _, t := range parsed.RelatedTopics {
		if t.FirstURL == "" || len(hits) >= limit {
			break
		}
		hits = append(hits, research.Hit{
			Title:        t.Text,
			URL:          t.FirstURL,
			Snippet:      t.Text,
			ProviderName: d.Name(),
		})
	}
	if len(hits) == 0 {
		return nil, research.StatusEmpty
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, research.StatusOK
}
