package policy

import (
	"fmt"
	"sort"
	"strings"
)

// RenderConstitution renders constitution rules as a line-budgeted text
// block, grouped by each rule's first domain. Both the compiler and the
// optimizer's promotion path use this so a promoted bundle hashes the
// same way a recompiled one would.
func RenderConstitution(rules []GuidanceRule, maxLines int) string {
	byDomain := make(map[string][]GuidanceRule)
	for _, rule := range rules {
		domain := "general"
		if len(rule.Domains) > 0 {
			domain = rule.Domains[0]
		}
		byDomain[domain] = append(byDomain[domain], rule)
	}

	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	var lines []string
	for _, domain := range domains {
		lines = append(lines, "## "+domain)
		for _, rule := range byDomain[domain] {
			lines = append(lines, fmt.Sprintf("- [%s] %s", rule.ID, rule.Text))
		}
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}
