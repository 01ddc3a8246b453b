// Package vocabulary holds the static keyword tables shared by the rule
// compiler and the shard retriever. Both components must classify text
// with the same vocabulary: a rule tagged "security" at compile time has
// to be found by a task classified "security" at retrieval time. The
// tables are versioned so a bundle compiled against one vocabulary can
// be detected as stale by a loader running another.
package vocabulary

import (
	"sort"
	"strings"
)

// Version identifies the keyword tables. Bump on any table change.
const Version = "v1"

// DefaultIntent is assigned when no keyword table matches.
const DefaultIntent = "general"

// intentKeywords maps an intent/domain category to the keywords that
// signal it. Intents and domains share one taxonomy: a rule's inferred
// domain and a task's detected intent come from the same table.
var intentKeywords = map[string][]string{
	"security":    {"secur", "auth", "secret", "credential", "token", "vulnerab", "encrypt", "password", "sanitiz"},
	"testing":     {"test", "spec", "coverage", "assert", "mock", "fixture", "tdd"},
	"git":         {"git", "commit", "branch", "merge", "rebase", "push", "pull request"},
	"deps":        {"dependenc", "package", "install", "upgrade", "version bump", "lockfile", "vendor"},
	"docs":        {"document", "readme", "changelog", "comment", "docstring"},
	"performance": {"performance", "optimiz", "latenc", "benchmark", "profil", "cache", "throughput"},
	"refactor":    {"refactor", "cleanup", "restructur", "rename", "extract", "simplif"},
	"api":         {"api", "endpoint", "rest", "http", "grpc", "handler", "route"},
	"database":    {"database", "sql", "migration", "schema", "query", "index"},
	"config":      {"config", "environment variable", "env var", "settings", "yaml", "toml"},
}

// riskKeywords maps risk-signalling keywords to a risk class name.
// Checked in severity order so the strongest signal wins.
var riskKeywords = []struct {
	Class    string
	Keywords []string
}{
	{"critical", []string{"never", "critical", "forbidden", "destructive", "irreversible", "secret", "credential"}},
	{"high", []string{"must", "always", "required", "mandatory", "security", "production"}},
	{"medium", []string{"should", "avoid", "prefer", "recommended"}},
	{"low", []string{"may", "consider", "optional", "suggest"}},
}

// actionableVerbs are the stems that mark a bullet line as an implicit
// rule during fallback extraction.
var actionableVerbs = []string{
	"must", "never", "always", "avoid", "use ", "prefer", "ensure",
	"do not", "don't", "should", "only ", "require",
}

// constitutionMarkers are heading keywords that classify a block as
// constitution material.
var constitutionMarkers = []string{
	"safety", "invariant", "mandatory", "constitution", "critical",
	"non-negotiable", "always", "never", "security policy", "core rules",
}

// negativePolarity and positivePolarity are the stems used for
// contradiction detection between two rules on the same subject.
var negativePolarity = []string{"never", "avoid", "do not", "don't", "forbid"}
var positivePolarity = []string{"always", "must", "prefer", "use", "ensure"}

// DetectIntent classifies free text into one intent category. The
// category with the most keyword hits wins, scanned in deterministic
// order; no hits yields DefaultIntent.
func DetectIntent(text string) string {
	lower := strings.ToLower(text)

	best := DefaultIntent
	bestHits := 0
	for _, intent := range sortedIntents() {
		hits := 0
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = intent
			bestHits = hits
		}
	}
	return best
}

// DetectDomains returns every domain category with at least one keyword
// hit, in deterministic order. Empty result means no signal.
func DetectDomains(text string) []string {
	lower := strings.ToLower(text)

	var domains []string
	for _, domain := range sortedIntents() {
		for _, kw := range intentKeywords[domain] {
			if strings.Contains(lower, kw) {
				domains = append(domains, domain)
				break
			}
		}
	}
	return domains
}

// DetectRiskName returns the strongest matching risk class name, or ""
// when no keyword matches.
func DetectRiskName(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range riskKeywords {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				return entry.Class
			}
		}
	}
	return ""
}

// IsActionable reports whether a bullet line reads like a rule.
func IsActionable(line string) bool {
	lower := strings.ToLower(line)
	for _, verb := range actionableVerbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

// IsConstitutionHeading reports whether a block heading marks the block
// as constitution material.
func IsConstitutionHeading(heading string) bool {
	lower := strings.ToLower(heading)
	for _, marker := range constitutionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Polarity classifies rule text as +1 (prescriptive), -1 (prohibitive),
// or 0 (neutral). Negative stems win over positive stems because
// "never" phrasing dominates mixed sentences.
func Polarity(text string) int {
	lower := strings.ToLower(text)
	for _, stem := range negativePolarity {
		if strings.Contains(lower, stem) {
			return -1
		}
	}
	for _, stem := range positivePolarity {
		if strings.Contains(lower, stem) {
			return 1
		}
	}
	return 0
}

// Subject extracts a normalized subject from rule text for
// contradiction matching: lowercased, polarity stems and stop words
// removed, remaining significant terms sorted.
func Subject(text string) string {
	lower := strings.ToLower(text)
	for _, stem := range append(append([]string{}, negativePolarity...), positivePolarity...) {
		lower = strings.ReplaceAll(lower, stem, " ")
	}

	var terms []string
	for _, term := range strings.Fields(lower) {
		term = strings.Trim(term, ".,;:!?()[]\"'`")
		if len(term) < 3 || stopWords[term] {
			continue
		}
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return strings.Join(terms, " ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "are": true, "any": true, "all": true, "your": true,
	"when": true, "into": true, "from": true, "you": true,
}

// sortedIntents returns the taxonomy categories in stable order.
func sortedIntents() []string {
	intents := make([]string, 0, len(intentKeywords))
	for intent := range intentKeywords {
		intents = append(intents, intent)
	}
	sort.Strings(intents)
	return intents
}

// Intents exposes the taxonomy for callers that need to enumerate it.
func Intents() []string {
	return sortedIntents()
}
