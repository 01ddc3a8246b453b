package retriever

import (
	"github.com/fyrsmithlabs/guidanced/internal/policy"
)

// Request describes one retrieval call.
type Request struct {
	// TaskDescription is the free-text task the agent is about to run.
	TaskDescription string `json:"task_description"`
	// Intent overrides detection when set. An unknown intent is not an
	// error; it is matched literally and may select zero shards.
	Intent string `json:"intent,omitempty"`
	// RiskFilter keeps only shards at this risk class or more severe.
	RiskFilter policy.RiskClass `json:"risk_filter,omitempty"`
	// RepoScope keeps only shards whose scopes match this path.
	RepoScope string `json:"repo_scope,omitempty"`
	// MaxShards overrides the configured shard budget when positive.
	MaxShards int `json:"max_shards,omitempty"`
}

// ScoredShard is one selected shard with its ranking evidence.
type ScoredShard struct {
	Shard      policy.RuleShard `json:"shard"`
	Similarity float64          `json:"similarity"`
	Reason     string           `json:"reason"`
}

// Result is the outcome of one retrieval: the constitution always, plus
// at most the budgeted number of ranked shards.
type Result struct {
	Constitution           policy.Constitution `json:"constitution"`
	Shards                 []ScoredShard       `json:"shards"`
	DetectedIntent         string              `json:"detected_intent"`
	ContradictionsResolved int                 `json:"contradictions_resolved"`
	PolicyText             string              `json:"policy_text"`
	LatencyMs              float64             `json:"latency_ms"`
}
