package research

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// academicAllowlist are exact hosts treated as Academic/High regardless of
// TLD.
var academicAllowlist = map[string]bool{
	"arxiv.org":                  true,
	"pubmed.ncbi.nlm.nih.gov":    true,
	"scholar.google.com":        true,
	"ncbi.nlm.nih.gov":          true,
	"www.ncbi.nlm.nih.gov":      true,
	"ssrn.com":                  true,
}

// officialIGOAllowlist are intergovernmental-organization hosts treated as
// Official/High alongside .gov/.mil.
var officialIGOAllowlist = map[string]bool{
	"europa.eu": true,
	"who.int":   true,
	"un.org":    true,
	"imf.org":   true,
	"worldbank.org": true,
}

// newsHighAllowlist are well-known wire services/broadcasters, News/High.
var newsHighAllowlist = map[string]bool{
	"reuters.com":    true,
	"apnews.com":     true,
	"bbc.com":        true,
	"bbc.co.uk":      true,
	"npr.org":        true,
	"afp.com":        true,
}

// newsMediumDomains are other recognized publishers, News/Medium.
var newsMediumDomains = map[string]bool{
	"nytimes.com":     true,
	"washingtonpost.com": true,
	"theguardian.com": true,
	"cnn.com":         true,
	"bloomberg.com":   true,
	"wsj.com":         true,
	"economist.com":   true,
	"aljazeera.com":   true,
}

// referenceDomains are encyclopedic sources, Reference/Medium.
var referenceDomains = map[string]bool{
	"wikipedia.org":  true,
	"britannica.com": true,
}

// reputableCommercialDomains upgrades Commercial/Low to Commercial/Medium.
// Extendable allowlist.
var reputableCommercialDomains = map[string]bool{
	"github.com":      true,
	"stackoverflow.com": true,
	"techcrunch.com":  true,
	"forbes.com":      true,
}

// registrableDomain returns the eTLD+1 of host (e.g. "news.bbc.co.uk" ->
// "bbc.co.uk"), falling back to host itself if the public suffix list can't
// resolve it (e.g. a bare IP or single-label host).
func registrableDomain(host string) string {
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// Classify assigns a DomainType and CredibilityTier to a canonical URL per
// the suffix/allowlist tables above.
func Classify(canonicalURL string) (DomainType, CredibilityTier) {
	if strings.HasPrefix(canonicalURL, fallbackURLScheme+":") {
		return DomainReference, TierLow
	}

	u, err := url.Parse(canonicalURL)
	if err != nil || u.Host == "" {
		return DomainOther, TierLow
	}
	host := strings.ToLower(u.Hostname())
	domain := registrableDomain(host)

	if academicAllowlist[host] || academicAllowlist[domain] || hasAcademicSuffix(host) {
		return DomainAcademic, TierHigh
	}
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") || officialIGOAllowlist[domain] {
		return DomainOfficial, TierHigh
	}
	if newsHighAllowlist[domain] {
		return DomainNews, TierHigh
	}
	if newsMediumDomains[domain] {
		return DomainNews, TierMedium
	}
	if strings.Contains(domain, "wikipedia.org") || referenceDomains[domain] {
		return DomainReference, TierMedium
	}
	if reputableCommercialDomains[domain] {
		return DomainCommercial, TierMedium
	}
	return DomainCommercial, TierLow
}

// hasAcademicSuffix matches ".edu" and the international ".ac.<cc>" pattern
// (e.g. "ac.uk", "ac.jp").
func hasAcademicSuffix(host string) bool {
	if strings.HasSuffix(host, ".edu") {
		return true
	}
	labels := strings.Split(host, ".")
	for i := 0; i+1 < len(labels); i++ {
		if labels[i] == "ac" {
			return true
		}
	}
	return false
}
