package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thomsch1/deepresearch/research"
)

// GoogleCustomSearch queries the Google Custom Search JSON API. There is no
// official Go SDK in the example pack; like the teacher's own provider
// clients (providers/anthropic/provider.go), it hand-rolls a net/http call.
type GoogleCustomSearch struct {
	apiKey string
	cseID  string
	client *http.Client
}

// NewGoogleCustomSearch creates a provider using the shared client. apiKey
// and cseID are empty when the research.Providers config has no Google
// credentials configured; IsConfigured reports false in that case.
func NewGoogleCustomSearch(apiKey, cseID string, client *http.Client) *GoogleCustomSearch {
	return &GoogleCustomSearch{apiKey: apiKey, cseID: cseID, client: client}
}

func (g *GoogleCustomSearch) Name() string { return "GoogleCustomSearch" }

func (g *GoogleCustomSearch) IsConfigured() bool {
	return strings.TrimSpace(g.apiKey) != "" && strings.TrimSpace(g.cseID) != ""
}

type googleSearchResponse struct {
	Items []googleSearchItem `json:"items"`
}

type googleSearchItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

func (g *GoogleCustomSearch) Search(ctx context.Context, query string, limit int) ([]research.Hit, research.ProviderStatus) {
	if !g.IsConfigured() {
		return nil, research.StatusAuthMissing
	}
	if limit <= 0 || limit > 20 {
		limit = 10
	}

	endpoint := "https://www.googleapis.com/customsearch/v1?" + url.Values{
		"key": {g.apiKey},
		"cx":  {g.cseID},
		"q":   {query},
		"num": {fmt.Sprintf("%d", limit)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, research.StatusMalformed
	}

	resp, err := g.client.Do(req)
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

	var parsed googleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, research.StatusMalformed
	}
	if len(parsed.Items) == 0 {
		return nil, research.StatusEmpty
	}

	hits := make([]research.Hit, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		hits = append(hits, research.Hit{
			Title:        item.Title,
			URL:          item.Link,
			Snippet:      item.Snippet,
			ProviderName: g.Name(),
		})
	}
	if len(hits) == 0 {
		return nil, research.StatusEmpty
	}
	return hits, research.StatusOK
}

// sharedHTTPClient builds the one bounded client shared by every
// HTTP-based provider, per SPEC_FULL.md §5's MaxConnsPerHost policy.
func sharedHTTPClient(perProviderTimeout time.Duration, maxConnsPerHost int) *http.Client {
	if perProviderTimeout <= 0 {
		perProviderTimeout = 10 * time.Second
	}
	transport := &http.Transport{
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Timeout: perProviderTimeout, Transport: transport}
}

// NewSharedHTTPClient is the exported constructor other providers and the
// Dispatcher use to build the single shared *http.Client per
// config.http_max_connections.
func NewSharedHTTPClient(perProviderTimeout time.Duration, maxConnsPerHost int) *http.Client {
	return sharedHTTPClient(perProviderTimeout, maxConnsPerHost)
}
