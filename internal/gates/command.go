package gates

import (
	"regexp"
	"strings"
)

// commandPattern is one entry in the destructive or confirmation tier.
type commandPattern struct {
	id          string
	pattern     *regexp.Regexp
	reason      string
	remediation string
}

// blockPatterns are commands that are never acceptable from an
// automated agent. Any match blocks the command outright.
var blockPatterns = []commandPattern{
	{
		id:          "rm-rf-root",
		pattern:     regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)[a-zA-Z]*\s+(/|~|\$HOME|/etc|/usr|/var|/home)(\s|/|$)`),
		reason:      "recursive forced delete of a root-level path",
		remediation: "delete specific files or directories inside the workspace instead",
	},
	{
		id:          "force-push-protected",
		pattern:     regexp.MustCompile(`\bgit\s+push\s+[^|;&]*(--force|-f)\b[^|;&]*\b(main|master|release)\b|\bgit\s+push\s+[^|;&]*\b(main|master|release)\b[^|;&]*(--force|-f)\b`),
		reason:      "force push to a protected branch",
		remediation: "push to a feature branch and open a pull request",
	},
	{
		id:          "pipe-to-shell",
		pattern:     regexp.MustCompile(`\b(curl|wget)\b[^|;&]*\|\s*(sudo\s+)?(ba)?sh\b`),
		reason:      "piping a remote download straight into a shell",
		remediation: "download the script, review it, then execute it explicitly",
	},
	{
		id:          "dynamic-eval",
		pattern:     regexp.MustCompile(`\beval\s+["$]|\bpython[3]?\s+-c\s+.*\b(exec|eval)\(`),
		reason:      "dynamic code execution of constructed input",
		remediation: "run the code from a reviewed file instead of eval",
	},
	{
		id:          "dd-block-device",
		pattern:     regexp.MustCompile(`\bdd\b[^|;&]*\bof=/dev/(sd|nvme|hd|disk)`),
		reason:      "raw write to a block device",
		remediation: "block devices are off-limits to automated tasks",
	},
	{
		id:          "fork-bomb",
		pattern:     regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}`),
		reason:      "fork bomb",
		remediation: "",
	},
	{
		id:          "chmod-777-root",
		pattern:     regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*777\s+/(\s|$)`),
		reason:      "world-writable permissions on the filesystem root",
		remediation: "scope permission changes to the specific files that need them",
	},
}

// confirmPatterns are risky-but-legitimate commands that need a human
// in the loop before they run.
var confirmPatterns = []commandPattern{
	{
		id:          "rm-recursive",
		pattern:     regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*)+\s+\S`),
		reason:      "recursive or forced delete",
		remediation: "confirm the target path before deleting",
	},
	{
		id:          "git-reset-hard",
		pattern:     regexp.MustCompile(`\bgit\s+reset\s+--hard\b`),
		reason:      "hard reset discards uncommitted work",
		remediation: "stash or commit local changes first",
	},
	{
		id:          "git-clean-force",
		pattern:     regexp.MustCompile(`\bgit\s+clean\s+-[a-zA-Z]*f`),
		reason:      "git clean removes untracked files",
		remediation: "run with --dry-run first",
	},
	{
		id:          "sql-drop",
		pattern:     regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema)\b`),
		reason:      "destructive schema statement",
		remediation: "confirm against the intended environment",
	},
	{
		id:          "terraform-destroy",
		pattern:     regexp.MustCompile(`\bterraform\s+destroy\b`),
		reason:      "terraform destroy tears down infrastructure",
		remediation: "review the plan output before destroying",
	},
	{
		id:          "bulk-chown",
		pattern:     regexp.MustCompile(`\b(chown|chmod)\s+(-[a-zA-Z]*R[a-zA-Z]*)\s`),
		reason:      "recursive ownership or permission change",
		remediation: "confirm the directory subtree affected",
	},
}

// EvaluateCommand checks a shell command against the destructive and
// confirmation pattern tiers. A destructive match blocks; otherwise a
// confirmation match asks for one. Empty or unmatched input yields no
// results, which aggregates to allow. Pure; never fails.
func (e *Engine) EvaluateCommand(command string) []Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	var results []Result
	for _, p := range blockPatterns {
		if p.pattern.MatchString(command) {
			results = append(results, Result{
				Decision:       Block,
				GateName:       "command",
				Reason:         p.reason,
				TriggeredRules: []string{p.id},
				Remediation:    p.remediation,
			})
		}
	}
	for _, p := range confirmPatterns {
		if p.pattern.MatchString(command) {
			results = append(results, Result{
				Decision:       RequireConfirmation,
				GateName:       "command",
				Reason:         p.reason,
				TriggeredRules: []string{p.id},
				Remediation:    p.remediation,
			})
		}
	}

	e.recordResults(results)
	return results
}
