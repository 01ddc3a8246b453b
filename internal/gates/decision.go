package gates

// Decision is a gate's verdict on a proposed action.
type Decision string

const (
	Allow               Decision = "allow"
	Warn                Decision = "warn"
	RequireConfirmation Decision = "require-confirmation"
	Block               Decision = "block"
)

// Precedence orders decisions: block dominates require-confirmation
// dominates warn dominates allow.
func (d Decision) Precedence() int {
	switch d {
	case Block:
		return 3
	case RequireConfirmation:
		return 2
	case Warn:
		return 1
	case Allow:
		return 0
	default:
		return 0
	}
}

// Result is one gate's verdict with its evidence.
type Result struct {
	Decision       Decision          `json:"decision"`
	GateName       string            `json:"gate_name"`
	Reason         string            `json:"reason"`
	TriggeredRules []string          `json:"triggered_rules,omitempty"`
	Remediation    string            `json:"remediation,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Aggregate reduces a set of gate results to one decision. The
// aggregate can never be weaker than any individual result: a single
// block blocks the compound action. No results means allow.
func Aggregate(results []Result) Decision {
	decision := Allow
	for _, r := range results {
		if r.Decision.Precedence() > decision.Precedence() {
			decision = r.Decision
		}
	}
	return decision
}
