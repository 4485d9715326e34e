package research

import (
	"regexp"
	"strings"
	"time"
)

// credibilityByTier maps a tier to its base credibility score.
var credibilityByTier = map[CredibilityTier]float64{
	TierHigh:   1.0,
	TierMedium: 0.7,
	TierLow:    0.4,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are excluded from the relevance token-overlap computation.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "how": true, "do": true,
	"does": true, "did": true, "can": true, "could": true, "should": true,
}

// tokenize lowercases s and splits it into alphanumeric tokens with stop
// words removed. Used only by relevance scoring — this is deliberately a
// plain word-overlap tokenizer, not the BPE tokenizer in llm/tokenizer
// (which serves prompt-budget accounting, a different concern; see
// DESIGN.md).
func tokenize(s string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

// relevance computes the token-overlap score between text and question,
// normalized by the question's token count and clipped to [0,1].
func relevance(text, question string) float64 {
	qTokens := tokenize(question)
	if len(qTokens) == 0 {
		return 0
	}
	textSet := make(map[string]bool)
	for _, t := range tokenize(text) {
		textSet[t] = true
	}
	matches := 0
	for _, t := range qTokens {
		if textSet[t] {
			matches++
		}
	}
	score := float64(matches) / float64(len(qTokens))
	if score > 1 {
		score = 1
	}
	return score
}

// completeness is a monotone function of snippet length: 0 below 40 chars,
// a linear rise to 1.0 at 400 chars, flat thereafter.
func completeness(snippet string) float64 {
	n := len(snippet)
	switch {
	case n < 40:
		return 0
	case n >= 400:
		return 1.0
	default:
		return float64(n-40) / float64(400-40)
	}
}

// recency buckets the age of publishedAt relative to now.
// A nil publishedAt (unknown) scores 0.5.
func recency(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil {
		return 0.5
	}
	age := now.Sub(*publishedAt)
	switch {
	case age <= 30*24*time.Hour:
		return 1.0
	case age <= 90*24*time.Hour:
		return 0.9
	case age <= 365*24*time.Hour:
		return 0.75
	case age <= 3*365*24*time.Hour:
		return 0.5
	default:
		return 0.25
	}
}

// authority is credibility with a +0.1 bonus for Academic/Official domain
// types, clipped to 1.
func authority(credibility float64, domainType DomainType) float64 {
	a := credibility
	if domainType == DomainAcademic || domainType == DomainOfficial {
		a += 0.1
	}
	if a > 1 {
		a = 1
	}
	return a
}

// Score computes a Source's five sub-scores against question, using now as
// the recency reference point. The caller is responsible for
// setting the returned scores and their Overall() on the Source.
func Score(title, snippet string, domainType DomainType, tier CredibilityTier, publishedAt *time.Time, question string, now time.Time) QualityScores {
	cred := credibilityByTier[tier]
	return QualityScores{
		Credibility:  cred,
		Relevance:    relevance(title+" "+snippet, question),
		Completeness: completeness(snippet),
		Recency:      recency(publishedAt, now),
		Authority:    authority(cred, domainType),
	}
}
