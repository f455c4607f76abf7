package trust

import "strings"

// NormalizeScopes lower-cases, trims and deduplicates a scope list while
// preserving first-seen order.
func NormalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	var out []string
	for _, s := range scopes {
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ScopeSubset reports whether every requested scope is covered by the
// granted set, honoring `resource:*` wildcards in the granted set.
func ScopeSubset(requested, granted []string) bool {
	for _, want := range NormalizeScopes(requested) {
		if !scopeCovered(want, granted) {
			return false
		}
	}
	return true
}

// ScopeSatisfies reports whether the actor's scope set satisfies at least
// one of an endpoint's required scopes, exactly or via wildcard.
func ScopeSatisfies(actorScopes, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range NormalizeScopes(required) {
		if scopeCovered(want, actorScopes) {
			return true
		}
	}
	return false
}

func scopeCovered(want string, granted []string) bool {
	for _, have := range NormalizeScopes(granted) {
		if have == "*" || have == want {
			return true
		}
		if resource, ok := strings.CutSuffix(have, ":*"); ok {
			if strings.HasPrefix(want, resource+":") {
				return true
			}
		}
	}
	return false
}
