package ledger

import (
	"time"

	"github.com/fyrsmithlabs/guidanced/internal/policy"
)

// Violation records one rule breach observed during a task.
type Violation struct {
	RuleID        string           `json:"rule_id"`
	Description   string           `json:"description"`
	Severity      policy.RiskClass `json:"severity"`
	Location      string           `json:"location,omitempty"`
	AutoCorrected bool             `json:"auto_corrected"`
}

// TestStats summarizes the task's test runs.
type TestStats struct {
	Ran    int `json:"ran"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// DiffStats summarizes the task's code changes.
type DiffStats struct {
	// TotalLines is the total changed line count (added plus removed).
	TotalLines int `json:"total_lines"`
	// ReworkLines counts lines that replaced previously written code.
	ReworkLines int `json:"rework_lines"`
	// FilesChanged is the number of files touched by the diff.
	FilesChanged int `json:"files_changed"`
}

// RunEvent is the outcome record of one agent task. The caller mutates
// it while the task runs; FinalizeEvent freezes it into the ledger,
// after which it is never modified.
type RunEvent struct {
	TaskID           string      `json:"task_id"`
	Intent           string      `json:"intent"`
	GuidanceHash     string      `json:"guidance_hash"`
	RetrievedRuleIDs []string    `json:"retrieved_rule_ids,omitempty"`
	ToolsUsed        []string    `json:"tools_used,omitempty"`
	FilesTouched     []string    `json:"files_touched,omitempty"`
	Diff             DiffStats   `json:"diff"`
	Tests            TestStats   `json:"tests"`
	Violations       []Violation `json:"violations,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	EndedAt          time.Time   `json:"ended_at,omitempty"`
	DurationMs       float64     `json:"duration_ms"`
	Finalized        bool        `json:"finalized"`
}

// ViolationRanking is the derived per-rule violation aggregate that
// drives optimizer prioritization. Never stored; recomputed on demand.
type ViolationRanking struct {
	RuleID    string  `json:"rule_id"`
	Frequency int     `json:"frequency"`
	Cost      float64 `json:"cost"`
	Score     float64 `json:"score"`
}

// Metrics aggregates outcome quality over a window of events.
type Metrics struct {
	TaskCount          int     `json:"task_count"`
	ViolationRate      float64 `json:"violation_rate"`       // violations per 10 tasks
	SelfCorrectionRate float64 `json:"self_correction_rate"` // auto-corrected / total violations
	MeanReworkLines    float64 `json:"mean_rework_lines"`
}
