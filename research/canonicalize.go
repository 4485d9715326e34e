package research

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// trackingParams are stripped during canonicalization.
var trackingParamPrefixes = []string{"utm_"}

var trackingParamExact = map[string]bool{
	"gclid":  true,
	"fbclid": true,
	"ref":    true,
	"source": true,
}

// fallbackURLScheme is the opaque placeholder scheme KnowledgeFallback uses
// for its synthetic hit. Canonicalize treats
// any URL using it as already-canonical rather than parsing it as HTTP(S).
const fallbackURLScheme = "urn"

// Canonicalize normalizes a URL: lowercase scheme/host,
// strip default ports, drop a trailing slash (except root), strip the
// fragment, drop tracking query params, and sort remaining params
// lexicographically. It returns ("", false) for URLs that cannot be parsed
// (their hits are dropped by the caller).
func Canonicalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, fallbackURLScheme+":") {
		return raw, true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if asciiHost, err := idna.Lookup.ToASCII(host); err == nil {
		host = asciiHost
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	if scheme == "http" || scheme == "https" {
		// http and https name the same resource for dedup purposes; a
		// provider that happens to return the unencrypted variant of a
		// URL another provider already found must still collide.
		scheme = "https"
	}

	path := u.EscapedPath()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	query := filterQuery(u.Query())

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}
	return b.String(), true
}

func filterQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if isTrackingParam(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if trackingParamExact[lower] {
		return true
	}
	for _, prefix := range trackingParamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
