package feed

import (
	"testing"
)

func TestRouter_RoutesOnKeywordMatch(t *testing.T) {
	router := NewRouter([]RoutingRule{
		{Keywords: []string{"zero-day", "exploit"}, Target: "Critical Vulnerabilities"},
	})
	known := []string{"General", "Critical Vulnerabilities"}

	target := router.Route("New zero-day exploit found in widely used library", "General", known)
	if target != "Critical Vulnerabilities" {
		t.Errorf("Expected 'Critical Vulnerabilities', got '%s'", target)
	}
}

func TestRouter_MatchIsCaseInsensitive(t *testing.T) {
	router := NewRouter([]RoutingRule{
		{Keywords: []string{"ransomware"}, Target: "Security"},
	})

	target := router.Route("RANSOMWARE gang hits hospital", "News", []string{"News", "Security"})
	if target != "Security" {
		t.Errorf("Expected 'Security', got '%s'", target)
	}
}

func TestRouter_NoMatchKeepsSourceCategory(t *testing.T) {
	router := NewRouter([]RoutingRule{
		{Keywords: []string{"exploit"}, Target: "Security"},
	})

	target := router.Route("Quarterly earnings report", "News", []string{"News", "Security"})
	if target != "News" {
		t.Errorf("Expected 'News', got '%s'", target)
	}
}

func TestRouter_UnknownTargetNeverApplies(t *testing.T) {
	router := NewRouter([]RoutingRule{
		{Keywords: []string{"exploit"}, Target: "Missing"},
		{Keywords: []string{"exploit"}, Target: "Security"},
	})

	target := router.Route("Exploit released", "News", []string{"News", "Security"})
	if target != "Security" {
		t.Errorf("Expected rule with unknown target to be skipped, got '%s'", target)
	}
}

func TestRouter_FirstMatchingRuleWins(t *testing.T) {
	router := NewRouter([]RoutingRule{
		{Keywords: []string{"ai"}, Target: "AI"},
		{Keywords: []string{"security"}, Target: "Security"},
	})
	known := []string{"News", "AI", "Security"}

	target := router.Route("AI security tooling", "News", known)
	if target != "AI" {
		t.Errorf("Expected first rule to win, got '%s'", target)
	}
}

func TestRouter_Deterministic(t *testing.T) {
	router := NewRouter([]RoutingRule{
		{Keywords: []string{"cve"}, Target: "Security"},
	})
	known := []string{"News", "Security"}

	first := router.Route("CVE-2024-1234 patched", "News", known)
	for i := 0; i < 10; i++ {
		if got := router.Route("CVE-2024-1234 patched", "News", known); got != first {
			t.Fatalf("Expected stable routing, got '%s' then '%s'", first, got)
		}
	}
}
