package feed

import (
	"slices"
	"strings"
)

type Router struct {
	rules []RoutingRule
}

func NewRouter(rules []RoutingRule) *Router {
	return &Router{rules: rules}
}

// Route returns the category an item titled title belongs in. Rules are tried
// in declared order; a rule whose target is not a known category never
// applies.
func (r *Router) Route(title, sourceCategory string, knownCategories []string) string {
	value := strings.ToLower(title)

	for _, rule := range r.rules {
		if !slices.Contains(knownCategories, rule.Target) {
			continue
		}
		if matchesAny(value, rule.Keywords) {
			return rule.Target
		}
	}

	return sourceCategory
}

// matchesAny reports whether any non-empty keyword is a substring of the
// already lower-cased value.
func matchesAny(value string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(value, keyword) {
			return true
		}
	}
	return false
}
