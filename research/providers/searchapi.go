package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/thomsch1/deepresearch/research"
)

// SearchAPI queries searchapi.io's Google-search-compatible REST endpoint.
// Same hand-rolled shape as GoogleCustomSearch; kept a separate type because
// the two providers parse different response envelopes.
type SearchAPI struct {
	apiKey string
	client *http.Client
}

func NewSearchAPI(apiKey string, client *http.Client) *SearchAPI {
	return &SearchAPI{apiKey: apiKey, client: client}
}

func (s *SearchAPI) Name() string { return "SearchAPI" }

func (s *SearchAPI) IsConfigured() bool {
	return strings.TrimSpace(s.apiKey) != ""
}

type searchAPIResponse struct {
	OrganicResults []searchAPIResult `json:"organic_results"`
}

type searchAPIResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

func (s *SearchAPI) Search(ctx context.Context, query string, limit int) ([]research.Hit, research.ProviderStatus) {
	if !s.IsConfigured() {
		return nil, research.StatusAuthMissing
	}
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	endpoint := "https://www.searchapi.io/api/v1/search?" + url.Values{
		"engine":   {"google"},
		"q":        {query},
		"num":      {fmt.Sprintf("%d", limit)},
		"api_key":  {s.apiKey},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, research.StatusMalformed
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, research.StatusTimeout
		}
		return nil, research.StatusUpstream5xx
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, research.StatusAuthMissing
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, research.StatusRateLimited
	case resp.StatusCode >= 500:
		return nil, research.StatusUpstream5xx
	case resp.StatusCode >= 400:
		return nil, research.StatusMalformed
	}

	var parsed searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, research.StatusMalformed
	}
	if len(parsed.OrganicResults) == 0 {
		return nil, research.StatusEmpty
	}

	hits := make([]research.Hit, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		if r.Link == "" {
			continue
		}
		hits = append(hits, research.Hit{
			Title:        r.Title,
			URL:          r.Link,
			Snippet:      r.Snippet,
			ProviderName: s.Name(),
		})
	}
	if len(hits) == 0 {
		return nil, research.StatusEmpty
	}
	return hits, research.StatusOK
}
