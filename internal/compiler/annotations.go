package compiler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/guidanced/internal/policy"
	"github.com/fyrsmithlabs/guidanced/internal/vocabulary"
)

// Inline annotation grammar. All annotations are stripped from the
// cleaned rule text after extraction.
var (
	riskAnnotation     = regexp.MustCompile(`\((critical|high|medium|low|info)\)`)
	toolAnnotation     = regexp.MustCompile(`\[((?:edit|bash|read|write|mcp|task|all)(?:\|(?:edit|bash|read|write|mcp|task|all))*)\]`)
	intentAnnotation   = regexp.MustCompile(`#([a-z][a-z0-9_-]*)`)
	domainAnnotation   = regexp.MustCompile(`@([a-z][a-z0-9_-]*)`)
	scopeAnnotation    = regexp.MustCompile(`scope:(\S+)`)
	verifierAnnotation = regexp.MustCompile(`verify:([a-zA-Z0-9_-]+)`)
	priorityAnnotation = regexp.MustCompile(`priority:(\d+)`)

	whitespaceRun = regexp.MustCompile(`\s{2,}`)
)

// annotate extracts inline annotations from raw rule text, fills in
// missing fields by keyword inference and last-resort defaults, and
// stores the cleaned text. Operates on the rule in place.
func annotate(rule *policy.GuidanceRule, raw string) {
	text := raw

	if m := riskAnnotation.FindStringSubmatch(text); m != nil {
		rule.RiskClass = policy.RiskClass(m[1])
		text = riskAnnotation.ReplaceAllString(text, "")
	}
	if m := toolAnnotation.FindStringSubmatch(text); m != nil {
		rule.ToolClasses = strings.Split(m[1], "|")
		text = toolAnnotation.ReplaceAllString(text, "")
	}
	for _, m := range intentAnnotation.FindAllStringSubmatch(text, -1) {
		rule.Intents = append(rule.Intents, m[1])
	}
	text = intentAnnotation.ReplaceAllString(text, "")
	for _, m := range domainAnnotation.FindAllStringSubmatch(text, -1) {
		rule.Domains = append(rule.Domains, m[1])
	}
	text = domainAnnotation.ReplaceAllString(text, "")
	for _, m := range scopeAnnotation.FindAllStringSubmatch(text, -1) {
		rule.RepoScopes = append(rule.RepoScopes, m[1])
	}
	text = scopeAnnotation.ReplaceAllString(text, "")
	if m := verifierAnnotation.FindStringSubmatch(text); m != nil {
		rule.Verifier = m[1]
		text = verifierAnnotation.ReplaceAllString(text, "")
	}
	if m := priorityAnnotation.FindStringSubmatch(text); m != nil {
		if p, err := strconv.Atoi(m[1]); err == nil {
			rule.Priority = p
		}
		text = priorityAnnotation.ReplaceAllString(text, "")
	}

	rule.Text = cleanText(text)
	inferMissing(rule)
}

// inferMissing fills unset fields from the shared vocabulary, falling
// back to the catch-all defaults when no keyword matches.
func inferMissing(rule *policy.GuidanceRule) {
	if rule.RiskClass == "" {
		if name := vocabulary.DetectRiskName(rule.Text); name != "" {
			rule.RiskClass = policy.RiskClass(name)
		} else {
			rule.RiskClass = policy.RiskMedium
		}
	}
	if len(rule.Domains) == 0 {
		rule.Domains = vocabulary.DetectDomains(rule.Text)
	}
	if len(rule.Intents) == 0 {
		rule.Intents = vocabulary.DetectDomains(rule.Text)
	}
	if len(rule.Domains) == 0 {
		rule.Domains = []string{vocabulary.DefaultIntent}
	}
	if len(rule.Intents) == 0 {
		rule.Intents = []string{vocabulary.DefaultIntent}
	}
	if len(rule.ToolClasses) == 0 {
		rule.ToolClasses = []string{"all"}
	}
	if len(rule.RepoScopes) == 0 {
		rule.RepoScopes = []string{"**/*"}
	}
	if rule.Priority == 0 {
		rule.Priority = defaultPriority(rule.RiskClass)
	}
}

// defaultPriority derives a nominal priority from the risk class so an
// unannotated critical rule still outranks an unannotated info rule.
func defaultPriority(risk policy.RiskClass) int {
	return risk.Severity() * 10
}

// cleanText normalizes whitespace after annotation stripping.
func cleanText(text string) string {
	text = strings.TrimSpace(text)
	text = whitespaceRun.ReplaceAllString(text, " ")
	return text
}
