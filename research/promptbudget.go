package research

import (
	"github.com/thomsch1/deepresearch/llm/tokenizer"
)

// promptReserveTokens is headroom reserved for the completion plus tool-call
// scaffolding when deciding how much of a model's context window is left
// for retained-source text.
const promptReserveTokens = 1024

// fitSourcesToBudget returns the longest prefix of sources (in the order
// given, which callers pass in first-citation priority) whose rendered text
// plus fixedText fits within the reasoning model's context window. It keeps
// at least one source when sources is non-empty, since a prompt budget that
// can't fit even one source would make the caller's fallback template the
// only reasonable answer anyway — better to exceed budget by one source
// than to drop all retained evidence.
func fitSourcesToBudget(model, fixedText string, sources []*Source, render func(*Source) string) []*Source {
	tok := tokenizer.GetTokenizerOrEstimator(model)
	budget := tok.MaxTokens() - promptReserveTokens
	if budget <= 0 || len(sources) == 0 {
		return sources
	}

	total, _ := tok.CountTokens(fixedText)
	kept := make([]*Source, 0, len(sources))
	for _, src := range sources {
		t, _ := tok.CountTokens(render(src))
		if len(kept) > 0 && total+t > budget {
			break
		}
		total += t
		kept = append(kept, src)
	}
	if len(kept) == 0 {
		kept = sources[:1]
	}
	return kept
}

// fitLinesToBudget is fitSourcesToBudget's counterpart for plain text lines
// (e.g. the Planner's already-tried-queries list), which carry no inherent
// priority order worth preserving beyond "most recent first."
func fitLinesToBudget(model, fixedText string, lines []string) []string {
	tok := tokenizer.GetTokenizerOrEstimator(model)
	budget := tok.MaxTokens() - promptReserveTokens
	if budget <= 0 || len(lines) == 0 {
		return lines
	}

	total, _ := tok.CountTokens(fixedText)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		t, _ := tok.CountTokens(line)
		if total+t > budget {
			break
		}
		total += t
		kept = append(kept, line)
	}
	return kept
}
