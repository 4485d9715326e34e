package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/thomsch1/deepresearch/llm"
	"github.com/thomsch1/deepresearch/llm/circuitbreaker"
)

// lmBreakers holds one circuit breaker per provider instance, keyed by the
// provider value itself (not its Name(), which several distinct providers
// may share) so Planner, Reflector and Finalizer calling the same long-lived
// provider within a session trip a single shared breaker instead of each
// caller independently retrying into a dead upstream.
var lmBreakers sync.Map // map[llm.Provider]circuitbreaker.CircuitBreaker

func breakerFor(provider llm.Provider) circuitbreaker.CircuitBreaker {
	if cb, ok := lmBreakers.Load(provider); ok {
		return cb.(circuitbreaker.CircuitBreaker)
	}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), zap.NewNop())
	actual, _ := lmBreakers.LoadOrStore(provider, cb)
	return actual.(circuitbreaker.CircuitBreaker)
}

// ToolJSONCall sends req through provider and decodes the model's answer into
// out. It prefers a native tool-call argument payload named toolName
// (req.Tools must declare a matching schema); if the provider returns plain
// text instead, it falls back to extracting the first JSON value embedded in
// that text. Planner, Reflector and Finalizer all go through this single
// entry point so their LM-failure handling stays uniform. Each provider's
// calls are guarded by a per-provider circuit breaker so a provider already
// failing repeatedly fails fast instead of piling up timeouts.
func ToolJSONCall(ctx context.Context, provider llm.Provider, req *llm.ChatRequest, toolName string, out any) error {
	if provider == nil {
		return fmt.Errorf("research: nil llm provider")
	}
	result, err := breakerFor(provider).CallWithResult(ctx, func() (any, error) {
		return provider.Completion(ctx, req)
	})
	if err != nil {
		return err
	}
	resp := result.(*llm.ChatResponse)
	if len(resp.Choices) == 0 {
		return fmt.Errorf("research: empty completion choices")
	}
	msg := resp.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Name == toolName {
			return json.Unmarshal(tc.Arguments, out)
		}
	}
	return ExtractJSON(msg.Content, out)
}

// ExtractJSON locates the first balanced JSON object or array in raw
// (tolerating markdown code fences around it) and decodes it into out.
func ExtractJSON(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return fmt.Errorf("research: no JSON value found in completion")
	}
	open := raw[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	depth := 0
	end := -1
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return fmt.Errorf("research: unbalanced JSON in completion")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out)
}
