package gates

import (
	"fmt"
	"strings"
)

// EvaluateSecrets scans a content blob for credential-shaped substrings
// using the gitleaks ruleset (regex plus entropy heuristics). Matches
// produce one result per finding at the configured severity. Empty
// content yields no results. Pure; scanning never fails.
func (e *Engine) EvaluateSecrets(content string) []Result {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	decision := Block
	if e.config.SecretsSeverity == "warn" {
		decision = Warn
	}

	findings := e.detector.DetectString(content)
	if len(findings) == 0 {
		return nil
	}

	results := make([]Result, 0, len(findings))
	for _, f := range findings {
		results = append(results, Result{
			Decision:       decision,
			GateName:       "secrets",
			Reason:         fmt.Sprintf("%s detected at line %d", f.Description, f.StartLine),
			TriggeredRules: []string{f.RuleID},
			Remediation:    "move the credential to a secret store and reference it by name",
			Metadata: map[string]string{
				"line": fmt.Sprintf("%d", f.StartLine),
			},
		})
	}

	e.recordResults(results)
	return results
}
