package optimizer

import (
	"time"

	"github.com/fyrsmithlabs/guidanced/internal/ledger"
)

// ChangeType classifies a proposed rule change.
type ChangeType string

const (
	ChangeAdd     ChangeType = "add"
	ChangeModify  ChangeType = "modify"
	ChangeRemove  ChangeType = "remove"
	ChangePromote ChangeType = "promote"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeAdd, ChangeModify, ChangeRemove, ChangePromote:
		return true
	default:
		return false
	}
}

// RuleChange is one proposed edit to the rule set.
type RuleChange struct {
	ID          string                  `json:"id"`
	Type        ChangeType              `json:"type"`
	RuleID      string                  `json:"rule_id"`
	OldText     string                  `json:"old_text,omitempty"`
	NewText     string                  `json:"new_text"`
	OldPriority int                     `json:"old_priority,omitempty"`
	NewPriority int                     `json:"new_priority"`
	Rationale   string                  `json:"rationale"`
	Triggering  ledger.ViolationRanking `json:"triggering"`
	CreatedAt   time.Time               `json:"created_at"`
}

// OptimizationMetrics is the quality snapshot used on both sides of a
// change evaluation.
type OptimizationMetrics struct {
	ViolationRate float64 `json:"violation_rate"`
	ReworkLines   float64 `json:"rework_lines"`
	TaskCount     int     `json:"task_count"`
}

// ABTestResult is the heuristic evaluation of one change. The candidate
// side is a fixed-multiplier estimate derived from the baseline, not
// measured telemetry.
type ABTestResult struct {
	ChangeID       string              `json:"change_id"`
	Baseline       OptimizationMetrics `json:"baseline"`
	Candidate      OptimizationMetrics `json:"candidate"`
	ReworkDecrease float64             `json:"rework_decrease"`
	RiskIncrease   float64             `json:"risk_increase"`
	ShouldPromote  bool                `json:"should_promote"`
	Reason         string              `json:"reason"`
}

// RuleADR is the permanent audit record of one evaluated change.
// ADRs are numbered sequentially and never deleted or rewritten.
type RuleADR struct {
	Number    int          `json:"number"`
	Title     string       `json:"title"`
	Decision  string       `json:"decision"`
	Rationale string       `json:"rationale"`
	Change    RuleChange   `json:"change"`
	Result    ABTestResult `json:"result"`
	CreatedAt time.Time    `json:"created_at"`
}

// CycleReport is the outcome of one optimizer cycle.
type CycleReport struct {
	Rankings []ledger.ViolationRanking `json:"rankings"`
	Changes  []RuleChange              `json:"changes"`
	Results  []ABTestResult            `json:"results"`
	ADRs     []RuleADR                 `json:"adrs"`
	Promoted []string                  `json:"promoted"`
	Demoted  []string                  `json:"demoted"`
}
