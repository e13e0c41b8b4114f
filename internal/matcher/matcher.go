// Package matcher maps (host, path) pairs onto the rule table. Matching is
// first-match-wins in table order; there is no specificity scoring.
package matcher

import (
	"strings"

	"github.com/l0p7/authgate/internal/rules"
)

// Match returns the first rule whose host and path patterns both match, or
// nil when the request falls outside every rule. Callers pass a table
// snapshot so a concurrent reload cannot tear an iteration in progress.
func Match(routes []rules.Rule, host, path string) *rules.Rule {
	for i := range routes {
		if hostMatches(routes[i].Host, host) && pathMatches(routes[i].Path, path) {
			return &routes[i]
		}
	}
	return nil
}

// hostMatches supports literal case-sensitive equality and the single
// leading-wildcard form "*.suffix". The wildcard consumes one or more
// labels: a.suffix and a.b.suffix match, suffix alone does not.
func hostMatches(pattern, host string) bool {
	if host == pattern {
		return true
	}
	suffix, ok := strings.CutPrefix(pattern, "*.")
	if !ok || suffix == "" {
		return false
	}
	if !strings.HasSuffix(host, suffix) || len(host) <= len(suffix) {
		return false
	}
	return host[len(host)-len(suffix)-1] == '.'
}

// pathMatches supports literal equality and trailing-asterisk prefix
// patterns; the asterisk contributes nothing to the prefix itself.
func pathMatches(pattern, path string) bool {
	if path == pattern {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(path, prefix)
	}
	return false
}
