package routing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/pkg/api"
)

// BypassToken is a sentinel: when it appears as a token key in the manifest,
// every presented key is treated as fully authorized. The same word inside a
// token's model list grants that token every model.
const BypassToken = "all"

// Resolve determines which provider entries may serve requestedModel for the
// presented token. The returned model is the one actually routed, which
// differs from requestedModel only when the default-model fallback fires.
func (s *Snapshot) Resolve(token, requestedModel string) ([]config.ProviderEntry, string, error) {
	globalBypass := s.TokenKnown(BypassToken)
	if !globalBypass && !s.TokenKnown(token) {
		return nil, "", api.UnauthorizedError("invalid api key")
	}

	allowed := s.tokens[token]
	if globalBypass {
		allowed = []string{BypassToken}
	}
	allowAll := contains(allowed, BypassToken)

	if !allowAll && !patternMatch(allowed, requestedModel) {
		return nil, "", api.ForbiddenError(fmt.Sprintf("token is not allowed to use model %q", requestedModel))
	}

	model := requestedModel
	entries := s.routes[model]
	if len(entries) == 0 {
		// Fall back to the configured default model. The fallback list is
		// returned as-is: the allow-list check above applied to the model
		// the client asked for, not to the default.
		if s.defaultModel == "" {
			return nil, "", api.NoChannelError(requestedModel)
		}
		model = s.defaultModel
		entries = s.routes[model]
		if len(entries) == 0 {
			return nil, "", api.NoChannelError(model)
		}
		return entries, model, nil
	}

	if allowAll {
		return entries, model, nil
	}

	// Filter by verbatim allow-list membership of the entry's alias.
	// Wildcard patterns only gate the check above, they do not widen
	// the filter here.
	filtered := make([]config.ProviderEntry, 0, len(entries))
	for _, e := range entries {
		if contains(allowed, e.OriginalModel) {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil, "", api.NoChannelError(model)
	}
	return filtered, model, nil
}

// ListModels expands the token's allow patterns against every routable model
// alias. Unknown tokens see nothing; the bypass sentinel sees everything.
func (s *Snapshot) ListModels(token string) []string {
	if s.TokenKnown(BypassToken) {
		return s.ModelNames()
	}
	allowed, ok := s.tokens[token]
	if !ok {
		return nil
	}

	seen := map[string]bool{}
	for _, pattern := range allowed {
		switch {
		case pattern == BypassToken:
			for _, name := range s.ModelNames() {
				seen[name] = true
			}
		case strings.HasSuffix(pattern, "*"):
			prefix := strings.TrimSuffix(pattern, "*")
			for name := range s.routes {
				if strings.HasPrefix(name, prefix) {
					seen[name] = true
				}
			}
		default:
			if _, ok := s.routes[pattern]; ok {
				seen[pattern] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func patternMatch(patterns []string, model string) bool {
	for _, p := range patterns {
		if p == model {
			return true
		}
		if strings.HasSuffix(p, "*") && strings.HasPrefix(model, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
